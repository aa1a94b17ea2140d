package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jwvanderstam/wherespace/internal/apperr"
	"github.com/jwvanderstam/wherespace/internal/retrieval"
	"github.com/jwvanderstam/wherespace/internal/retriever"
)

type queryRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	FileType string `json:"file_type"`
}

// handleQueryStream runs the full RAG pipeline (embed -> retrieve -> rerank
// -> dedup -> prompt) and streams the model's answer as newline-delimited
// JSON events, finishing with a source-list record (§4.10).
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, apperr.Validation("query must not be empty"))
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.deps.TopK
	}

	var fileType *string
	if req.FileType != "" {
		fileType = &req.FileType
	}

	ctx := r.Context()
	hits, err := s.deps.Retriever.Retrieve(ctx, req.Query, topK, fileType)
	if err != nil {
		writeError(w, err)
		return
	}

	prompt := retriever.BuildPrompt(req.Query, hits, s.deps.MaxPromptTokens)
	s.streamChat(w, r, prompt, hits)
}

// handleQueryDirectStream bypasses retrieval entirely and streams a direct
// answer from the model (§4.8 direct mode).
func (s *Server) handleQueryDirectStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, apperr.Validation("query must not be empty"))
		return
	}

	prompt := retriever.BuildDirectPrompt(req.Query)
	s.streamChat(w, r, prompt, nil)
}

// streamChat relays model tokens to the client as they arrive, flushing
// after every token so no buffering delays the stream, and finishes with a
// terminal record carrying either the source list or a stream-level error.
// If the client disconnects, r.Context() is cancelled, which propagates
// into ChatStream and stops the upstream call within one idle window
// (P11) rather than continuing to consume tokens nobody will see.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, prompt string, sources []retrieval.Hit) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Internal("streaming unsupported", fmt.Errorf("response writer does not support flushing")))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	model := s.deps.ModelState.Get()
	tokens, err := s.deps.ChatClient.ChatStream(r.Context(), model, prompt, s.deps.ChatOptions)
	if err != nil {
		writeNDJSON(w, map[string]any{"error": err.Error()})
		flusher.Flush()
		return
	}

	enc := json.NewEncoder(w)
	for tok := range tokens {
		if tok.Err != nil {
			_ = enc.Encode(map[string]any{"error": tok.Err.Error()})
			flusher.Flush()
			return
		}
		_ = enc.Encode(map[string]any{"token": tok.Text})
		flusher.Flush()
	}

	_ = enc.Encode(map[string]any{"done": true, "sources": sourceSummaries(sources)})
	flusher.Flush()
}

// sourceSummary is the trailing record's per-hit shape (§4.10): just enough
// for a client to render citations, not the full internal Hit.
type sourceSummary struct {
	FileName   string  `json:"file_name"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview"`
}

func sourceSummaries(hits []retrieval.Hit) []sourceSummary {
	out := make([]sourceSummary, len(hits))
	for i, h := range hits {
		out[i] = sourceSummary{FileName: h.FileName, Similarity: h.Similarity, Preview: h.ContentPreview}
	}
	return out
}

func writeNDJSON(w http.ResponseWriter, payload any) {
	_ = json.NewEncoder(w).Encode(payload)
}
