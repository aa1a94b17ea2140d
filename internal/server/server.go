// Package server implements the HTTP facade (C10): the chi-routed REST and
// streaming API in front of the retrieval and ingestion pipelines.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jwvanderstam/wherespace/internal/catalog"
	"github.com/jwvanderstam/wherespace/internal/ingest"
	"github.com/jwvanderstam/wherespace/internal/logging"
	"github.com/jwvanderstam/wherespace/internal/modelserver"
	"github.com/jwvanderstam/wherespace/internal/querycache"
	"github.com/jwvanderstam/wherespace/internal/retrieval"
	"github.com/jwvanderstam/wherespace/internal/scanner"
	"github.com/jwvanderstam/wherespace/internal/vectorstore"
)

type retriever interface {
	Retrieve(ctx context.Context, query string, topK int, fileType *string) ([]retrieval.Hit, error)
}

type chatClient interface {
	ChatStream(ctx context.Context, model, prompt string, options map[string]any) (<-chan modelserver.StreamToken, error)
}

type catalogClient interface {
	List(ctx context.Context) ([]catalog.Tag, error)
}

type modelState interface {
	Get() string
	Set(model string) error
	ReadPersisted() (string, error)
}

type documentStore interface {
	ListDocuments(ctx context.Context) ([]vectorstore.DocSummary, error)
	FlushAll(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
}

type resultCache interface {
	Stats() querycache.Stats
	Clear()
}

type ingestRunner interface {
	Run(ctx context.Context, paths []string) ingest.Outcome
}

type dirScanner interface {
	Scan(root string) (scanner.Result, error)
}

// Deps bundles every collaborator the HTTP facade needs.
type Deps struct {
	Retriever       retriever
	ChatClient      chatClient
	Catalog         catalogClient
	ModelState      modelState
	Documents       documentStore
	Cache           resultCache
	Ingest          ingestRunner
	Scanner         dirScanner
	TopK            int
	MaxPromptTokens int
	ChatOptions     map[string]any
}

// Server wires HTTP handlers to the retrieval/ingestion pipeline.
type Server struct {
	deps   Deps
	router http.Handler
	log    zerolog.Logger
}

// New constructs a Server ready to ServeHTTP.
func New(deps Deps, log zerolog.Logger) *Server {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(logging.ChiMiddleware(log))
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		deps: deps,
		log:  log.With().Str("component", "server").Logger(),
	}
	s.router = mux

	mux.Get("/api/status", s.handleStatus)
	mux.Get("/api/models", s.handleModels)
	mux.Post("/api/set_model", s.handleSetModel)
	mux.Get("/api/list_documents", s.handleListDocuments)
	mux.Post("/api/flush_documents", s.handleFlushDocuments)
	mux.Post("/api/query_stream", s.handleQueryStream)
	mux.Post("/api/query_direct_stream", s.handleQueryDirectStream)
	mux.Post("/api/ingest_directory", s.handleIngestDirectory)
	mux.Get("/api/cache_stats", s.handleCacheStats)
	mux.Post("/api/clear_cache", s.handleClearCache)
	mux.Post("/api/scan", s.handleScan)

	return s
}

// ServeHTTP exposes the router so Server satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
