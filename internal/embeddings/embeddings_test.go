package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwvanderstam/wherespace/internal/apperr"
)

type fakeClient struct {
	gotModel string
	gotText  string
	vec      []float32
	err      error
}

func (f *fakeClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	f.gotModel = model
	f.gotText = text
	return f.vec, f.err
}

func TestEmbedderDelegatesWithBoundModel(t *testing.T) {
	fc := &fakeClient{vec: []float32{1, 2, 3}}
	e := New(fc, "nomic-embed-text", 3)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, "nomic-embed-text", fc.gotModel)
	assert.Equal(t, "hello world", fc.gotText)
}

func TestEmbedderPropagatesError(t *testing.T) {
	fc := &fakeClient{err: errors.New("boom")}
	e := New(fc, "m", 3)

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestEmbedderRejectsDimensionMismatch(t *testing.T) {
	fc := &fakeClient{vec: []float32{1, 2}}
	e := New(fc, "nomic-embed-text", 3)

	_, err := e.Embed(context.Background(), "hello world")
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindEmbedding, appErr.Kind)
}

func TestEmbedderSkipsDimensionCheckWhenUnconfigured(t *testing.T) {
	fc := &fakeClient{vec: []float32{1, 2}}
	e := New(fc, "nomic-embed-text", 0)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
