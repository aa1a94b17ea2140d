package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwvanderstam/wherespace/internal/catalog"
	"github.com/jwvanderstam/wherespace/internal/ingest"
	"github.com/jwvanderstam/wherespace/internal/modelserver"
	"github.com/jwvanderstam/wherespace/internal/querycache"
	"github.com/jwvanderstam/wherespace/internal/retrieval"
	"github.com/jwvanderstam/wherespace/internal/scanner"
	"github.com/jwvanderstam/wherespace/internal/vectorstore"
)

type fakeRetriever struct {
	hits []retrieval.Hit
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, fileType *string) ([]retrieval.Hit, error) {
	return f.hits, f.err
}

type fakeChatClient struct {
	tokens []string
}

func (f *fakeChatClient) ChatStream(ctx context.Context, model, prompt string, options map[string]any) (<-chan modelserver.StreamToken, error) {
	out := make(chan modelserver.StreamToken, len(f.tokens)+1)
	for _, tok := range f.tokens {
		out <- modelserver.StreamToken{Text: tok}
	}
	close(out)
	return out, nil
}

type fakeCatalog struct {
	tags []catalog.Tag
	err  error
}

func (f *fakeCatalog) List(ctx context.Context) ([]catalog.Tag, error) { return f.tags, f.err }

type fakeModelState struct {
	model        string
	persisted    string
	persistedErr error
}

func (f *fakeModelState) Get() string { return f.model }
func (f *fakeModelState) Set(model string) error {
	f.model = model
	f.persisted = model
	return nil
}
func (f *fakeModelState) ReadPersisted() (string, error) {
	return f.persisted, f.persistedErr
}

type fakeDocumentStore struct {
	docs         []vectorstore.DocSummary
	flushedCount int64
	documentN    int64
	chunkN       int64
}

func (f *fakeDocumentStore) ListDocuments(ctx context.Context) ([]vectorstore.DocSummary, error) {
	return f.docs, nil
}
func (f *fakeDocumentStore) FlushAll(ctx context.Context) (int64, error) { return f.flushedCount, nil }
func (f *fakeDocumentStore) CountChunks(ctx context.Context) (int64, error) { return f.chunkN, nil }
func (f *fakeDocumentStore) CountDocuments(ctx context.Context) (int64, error) {
	return f.documentN, nil
}

type fakeCache struct {
	cleared bool
	stats   querycache.Stats
}

func (f *fakeCache) Stats() querycache.Stats { return f.stats }
func (f *fakeCache) Clear()                  { f.cleared = true }

type fakeIngest struct {
	outcome ingest.Outcome
}

func (f *fakeIngest) Run(ctx context.Context, paths []string) ingest.Outcome { return f.outcome }

type fakeScanner struct {
	result scanner.Result
}

func (f *fakeScanner) Scan(root string) (scanner.Result, error) { return f.result, nil }

func newTestServer() (*Server, *fakeCache, *fakeModelState) {
	cache := &fakeCache{}
	modelState := &fakeModelState{model: "llama3.1", persisted: "llama3.1"}
	deps := Deps{
		Retriever:       &fakeRetriever{hits: []retrieval.Hit{{FileName: "a.txt", Content: "content"}}},
		ChatClient:      &fakeChatClient{tokens: []string{"hel", "lo"}},
		Catalog:         &fakeCatalog{tags: []catalog.Tag{{Name: "llama3.1", FullTag: "llama3.1:latest"}}},
		ModelState:      modelState,
		Documents:       &fakeDocumentStore{documentN: 2, chunkN: 5},
		Cache:           cache,
		Ingest:          &fakeIngest{outcome: ingest.Outcome{Ingested: 1}},
		Scanner:         &fakeScanner{result: scanner.Result{Documents: []scanner.DirectoryDocuments{{Directory: "/d", Paths: []string{"/d/a.txt"}}}}},
		TopK:            5,
		MaxPromptTokens: 2000,
	}
	return New(deps, zerolog.Nop()), cache, modelState
}

func TestHandleStatusReturnsCounts(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "llama3.1", body["current_model"])
	assert.Equal(t, "llama3.1", body["persisted_model"])
	assert.Equal(t, true, body["persistence_ok"])
	assert.Equal(t, float64(2), body["document_count"])
}

func TestHandleStatusReportsPersistenceMismatch(t *testing.T) {
	s, _, modelState := newTestServer()
	modelState.persisted = "mistral"

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "llama3.1", body["current_model"])
	assert.Equal(t, "mistral", body["persisted_model"])
	assert.Equal(t, false, body["persistence_ok"])
}

func TestHandleSetModelRejectsUnknownModel(t *testing.T) {
	s, _, _ := newTestServer()
	body, _ := json.Marshal(map[string]string{"model": "nonexistent"})
	req := httptest.NewRequest(http.MethodPost, "/api/set_model", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSetModelAcceptsKnownModel(t *testing.T) {
	s, _, modelState := newTestServer()
	body, _ := json.Marshal(map[string]string{"model": "llama3.1"})
	req := httptest.NewRequest(http.MethodPost, "/api/set_model", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama3.1", modelState.model)
}

func TestHandleFlushDocumentsClearsCache(t *testing.T) {
	s, cache, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/flush_documents", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cache.cleared)
}

func TestHandleQueryStreamEmitsTokensThenSources(t *testing.T) {
	s, _, _ := newTestServer()
	body, _ := json.Marshal(map[string]any{"query": "what is in the document"})
	req := httptest.NewRequest(http.MethodPost, "/api/query_stream", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "hel")
	assert.Contains(t, lines[2], "sources")
}

func TestHandleQueryStreamRejectsEmptyQuery(t *testing.T) {
	s, _, _ := newTestServer()
	body, _ := json.Marshal(map[string]any{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/query_stream", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIngestDirectoryRunsPipelineAndClearsCache(t *testing.T) {
	s, cache, _ := newTestServer()
	body, _ := json.Marshal(map[string]string{"path": "/d"})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest_directory", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cache.cleared)
}

func TestHandleCacheStatsReturnsStats(t *testing.T) {
	s, cache, _ := newTestServer()
	cache.stats = querycache.Stats{Size: 3, Hits: 10, Misses: 2}
	req := httptest.NewRequest(http.MethodGet, "/api/cache_stats", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body querycache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Size)
}
