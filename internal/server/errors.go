package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jwvanderstam/wherespace/internal/apperr"
)

// statusForKind maps the §7 error taxonomy to HTTP status codes.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindModelNotFound:
		return http.StatusNotFound
	case apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	case apperr.KindEmbedding:
		return http.StatusBadGateway
	case apperr.KindStorage:
		return http.StatusServiceUnavailable
	case apperr.KindSchemaMismatch:
		return http.StatusInternalServerError
	case apperr.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and JSON body. A typed *apperr.Error
// carries its own kind and detail payload; anything else is treated as an
// internal error without leaking implementation detail to the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, statusForKind(appErr.Kind), map[string]any{
			"error":   appErr.Message,
			"kind":    string(appErr.Kind),
			"details": appErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": "internal error",
		"kind":  string(apperr.KindInternal),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
