// Package embeddings adapts the model server client to the narrow
// single-text Embedder interface consumed by the ingestion pipeline and the
// retriever, matching the teacher's dependency-injection convention.
package embeddings

import (
	"context"
	"fmt"

	"github.com/jwvanderstam/wherespace/internal/apperr"
)

// Embedder generates a vector representation for a single piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// modelServerEmbedder wraps a model-server client bound to a fixed model id
// and the vector dimension D every embedding must match (§4.2).
type modelServerEmbedder struct {
	client    embedClient
	model     string
	dimension int
}

// embedClient is the subset of modelserver.Client this package depends on;
// declared locally so tests can supply a fake without importing net/http.
type embedClient interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// New constructs an Embedder bound to modelName against client. dimension is
// the configured vector length D; a returned embedding of any other length
// fails with an EmbeddingError rather than reaching the vector store.
func New(client embedClient, modelName string, dimension int) Embedder {
	return &modelServerEmbedder{client: client, model: modelName, dimension: dimension}
}

func (e *modelServerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, err
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, apperr.Embedding("embed text", fmt.Errorf("expected vector of length %d, got %d", e.dimension, len(vec)))
	}
	return vec, nil
}
