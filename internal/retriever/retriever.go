// Package retriever implements the Retrieval pipeline (C8): embed the
// query, check the query cache, search the vector store, re-rank, dedup,
// and cache the final result set.
package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"github.com/jwvanderstam/wherespace/internal/retrieval"
)

// oversampleFactor widens the initial vector-store search so re-ranking and
// dedup have room to discard candidates without starving the final top_k
// (§4.8).
const oversampleFactor = 2

// nearDuplicateThreshold is the TF-IDF cosine similarity above which two
// chunks are treated as near-duplicates (§4.8).
const nearDuplicateThreshold = 0.95

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type cache interface {
	Get(embedding []float32, topK int) ([]retrieval.Hit, bool)
	Put(embedding []float32, topK int, hits []retrieval.Hit)
}

type searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, minSimilarity float64, fileType *string) ([]retrieval.Hit, error)
}

// Retriever resolves a natural-language query into a ranked, deduplicated
// set of chunks.
type Retriever struct {
	embedder      embedder
	cache         cache
	store         searcher
	minSimilarity float64
}

// New constructs a Retriever.
func New(e embedder, c cache, s searcher, minSimilarity float64) *Retriever {
	return &Retriever{embedder: e, cache: c, store: s, minSimilarity: minSimilarity}
}

// Retrieve returns up to topK chunks relevant to query, ordered by
// descending re-ranked score with ties broken by ascending file_path then
// chunk_index (P9). Identical (query, topK) pairs served from the cache
// within its TTL make zero vector-store calls (P7).
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, fileType *string) ([]retrieval.Hit, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if cached, ok := r.cache.Get(embedding, topK); ok {
		return cached, nil
	}

	candidates, err := r.store.Search(ctx, embedding, topK*oversampleFactor, r.minSimilarity, fileType)
	if err != nil {
		return nil, err
	}

	ranked := rerank(query, candidates)
	deduped := dedup(ranked)

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}

	r.cache.Put(embedding, topK, deduped)
	return deduped, nil
}

// rerank scores each hit as 0.7*similarity + 0.3*lexical_coverage and
// sorts descending, breaking ties by ascending file_path then chunk_index.
func rerank(query string, hits []retrieval.Hit) []retrieval.Hit {
	queryTerms := tokenize(query)

	type scored struct {
		hit   retrieval.Hit
		score float64
	}
	scoredHits := make([]scored, len(hits))
	for i, h := range hits {
		coverage := lexicalCoverage(queryTerms, h.Content)
		scoredHits[i] = scored{hit: h, score: 0.7*h.Similarity + 0.3*coverage}
	}

	sort.SliceStable(scoredHits, func(i, j int) bool {
		if scoredHits[i].score != scoredHits[j].score {
			return scoredHits[i].score > scoredHits[j].score
		}
		if scoredHits[i].hit.FilePath != scoredHits[j].hit.FilePath {
			return scoredHits[i].hit.FilePath < scoredHits[j].hit.FilePath
		}
		return scoredHits[i].hit.ChunkIndex < scoredHits[j].hit.ChunkIndex
	})

	out := make([]retrieval.Hit, len(scoredHits))
	for i, s := range scoredHits {
		out[i] = s.hit
	}
	return out
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// lexicalCoverage is the fraction of distinct query terms present in content.
func lexicalCoverage(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := make(map[string]bool)
	for _, t := range tokenize(content) {
		contentTerms[t] = true
	}

	seen := make(map[string]bool)
	var present int
	var distinct int
	for _, t := range queryTerms {
		if seen[t] {
			continue
		}
		seen[t] = true
		distinct++
		if contentTerms[t] {
			present++
		}
	}
	if distinct == 0 {
		return 0
	}
	return float64(present) / float64(distinct)
}

// dedup removes exact-content duplicates, then near-duplicates whose
// TF-IDF cosine similarity is at or above nearDuplicateThreshold, keeping
// whichever of the pair ranks first (highest score, from rerank's order).
func dedup(hits []retrieval.Hit) []retrieval.Hit {
	seenHashes := make(map[string]bool)
	var exactDeduped []retrieval.Hit
	for _, h := range hits {
		sum := sha256.Sum256([]byte(h.Content))
		hash := hex.EncodeToString(sum[:])
		if seenHashes[hash] {
			continue
		}
		seenHashes[hash] = true
		exactDeduped = append(exactDeduped, h)
	}

	vectors := tfidfVectors(exactDeduped)

	var kept []retrieval.Hit
	var keptVectors []map[string]float64
	for i, h := range exactDeduped {
		isDuplicate := false
		for _, kv := range keptVectors {
			if cosineSimilarity(vectors[i], kv) >= nearDuplicateThreshold {
				isDuplicate = true
				break
			}
		}
		if isDuplicate {
			continue
		}
		kept = append(kept, h)
		keptVectors = append(keptVectors, vectors[i])
	}

	return kept
}

// tfidfVectors computes a simple TF-IDF vector per document over the
// corpus formed by hits, sufficient for near-duplicate detection without
// pulling in an external vectorization library for this narrow use.
func tfidfVectors(hits []retrieval.Hit) []map[string]float64 {
	docTerms := make([]map[string]int, len(hits))
	docFreq := make(map[string]int)

	for i, h := range hits {
		terms := make(map[string]int)
		for _, t := range tokenize(h.Content) {
			terms[t]++
		}
		docTerms[i] = terms
		for t := range terms {
			docFreq[t]++
		}
	}

	n := float64(len(hits))
	vectors := make([]map[string]float64, len(hits))
	for i, terms := range docTerms {
		vec := make(map[string]float64, len(terms))
		for t, count := range terms {
			idf := math.Log(1 + n/float64(docFreq[t]))
			vec[t] = float64(count) * idf
		}
		vectors[i] = vec
	}
	return vectors
}

func cosineSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for t, v := range a {
		dot += v * b[t]
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
