package modelserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(srv.URL, 2*time.Second, 200*time.Millisecond, time.Second, zerolog.Nop())
}

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	vec, err := c.Embed(context.Background(), "nomic-embed-text", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	vec, err := c.Embed(context.Background(), "m", "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedDoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Embed(context.Background(), "m", "text")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatStreamEmitsDeltasAndCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"response":"hel","done":false}` + "\n"))
		flusher.Flush()
		w.Write([]byte(`{"response":"lo","done":false}` + "\n"))
		flusher.Flush()
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	c := testClient(t, srv)
	stream, err := c.ChatStream(context.Background(), "llama3.1", "hi", nil)
	require.NoError(t, err)

	var text string
	for tok := range stream {
		require.NoError(t, tok.Err)
		text += tok.Text
	}
	assert.Equal(t, "hello", text)
}

func TestChatStreamCancellationStopsConsumption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"response":"a","done":false}` + "\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := testClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.ChatStream(ctx, "llama3.1", "hi", nil)
	require.NoError(t, err)

	<-stream // first delta
	cancel()

	tok, ok := <-stream
	if ok {
		assert.Error(t, tok.Err)
	}
}

func TestListTagsReturnsModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.1:latest","size":100,"modified_at":"2026-01-01"}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	tags, err := c.ListTags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "llama3.1:latest", tags[0].Name)
}
