package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jwvanderstam/wherespace/internal/apperr"
	"github.com/jwvanderstam/wherespace/internal/catalog"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentCount, err := s.deps.Documents.CountDocuments(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	chunkCount, err := s.deps.Documents.CountChunks(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	model := s.deps.ModelState.Get()
	persisted, err := s.deps.ModelState.ReadPersisted()
	persistenceOK := err == nil && persisted == model

	writeJSON(w, http.StatusOK, map[string]any{
		"current_model":   model,
		"persisted_model": persisted,
		"persistence_ok":  persistenceOK,
		"document_count":  documentCount,
		"chunk_count":     chunkCount,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	tags, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": tags})
}

type setModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req setModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		writeError(w, apperr.Validation("model must not be empty"))
		return
	}

	tags, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	canonical, ok := catalog.Resolve(tags, req.Model)
	if !ok {
		writeError(w, apperr.ModelNotFound("requested model is not available", catalog.Names(tags)))
		return
	}

	if err := s.deps.ModelState.Set(canonical); err != nil {
		writeError(w, apperr.Internal("persist model selection", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "model": canonical, "verified": true})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleFlushDocuments(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Documents.FlushAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// A flush invalidates every cached retrieval result (P8); relying on TTL
	// expiry alone would let stale hits survive until they age out.
	s.deps.Cache.Clear()

	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.deps.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

type scanRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, apperr.Validation("path must not be empty"))
		return
	}

	result, err := s.deps.Scanner.Scan(req.Path)
	if err != nil {
		writeError(w, apperr.Internal("scan directory", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ingestRequest struct {
	Path         string `json:"path"`
	MaxDocuments int    `json:"max_documents"`
}

func (s *Server) handleIngestDirectory(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, apperr.Validation("path must not be empty"))
		return
	}

	result, err := s.deps.Scanner.Scan(req.Path)
	if err != nil {
		writeError(w, apperr.Internal("scan directory", err))
		return
	}

	var paths []string
	for _, group := range result.Documents {
		paths = append(paths, group.Paths...)
	}

	// A request-supplied cap narrows (never widens) the coordinator's own
	// configured max_documents_per_run (§4.6).
	if req.MaxDocuments > 0 && req.MaxDocuments < len(paths) {
		paths = paths[:req.MaxDocuments]
	}

	if len(paths) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"ingested": 0, "skipped": 0, "failed": 0, "failures": []any{}})
		return
	}

	outcome := s.deps.Ingest.Run(r.Context(), paths)
	if outcome.Ingested > 0 {
		// Newly ingested content invalidates prior cached retrievals, same
		// as an explicit flush (P8).
		s.deps.Cache.Clear()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ingested": outcome.Ingested,
		"skipped":  outcome.Skipped,
		"failed":   outcome.Failed,
		"failures": outcome.Failures,
	})
}
