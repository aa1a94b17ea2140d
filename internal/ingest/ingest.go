// Package ingest implements the Ingestion Coordinator (C6): the pipeline
// that turns a list of candidate file paths into embedded, stored chunks.
package ingest

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jwvanderstam/wherespace/internal/chunker"
	"github.com/jwvanderstam/wherespace/internal/embedbatch"
	"github.com/jwvanderstam/wherespace/internal/extractor"
	"github.com/jwvanderstam/wherespace/internal/vectorstore"
)

// defaultMaxDocumentsPerRun matches §4.6's soft cap.
const defaultMaxDocumentsPerRun = 50

// Failure records why one document could not be ingested.
type Failure struct {
	Path   string
	Reason string
}

// Outcome summarizes a single ingestion run (§4.6).
type Outcome struct {
	Ingested int
	Skipped  int
	Failed   int
	Failures []Failure
}

type store interface {
	ExistingDocumentState(ctx context.Context, filePath string) (size int64, modified float64, found bool, err error)
	ReplaceDocumentChunks(ctx context.Context, filePath string, rows []vectorstore.Row) error
}

// Coordinator runs the extract -> chunk -> embed -> store pipeline.
type Coordinator struct {
	extractor          *extractor.Extractor
	splitter           *chunker.Splitter
	embedder           embedbatch.Embedder
	store              store
	extractWorkers     int
	embedWorkers       int
	embedProgressEvery int
	maxDocumentsPerRun int
	log                zerolog.Logger
}

// New constructs a Coordinator. Zero worker/cap values fall back to the
// §5/§4.6 defaults.
func New(
	ex *extractor.Extractor,
	splitter *chunker.Splitter,
	embedder embedbatch.Embedder,
	st store,
	extractWorkers, embedWorkers, embedProgressEvery, maxDocumentsPerRun int,
	log zerolog.Logger,
) *Coordinator {
	if extractWorkers <= 0 {
		extractWorkers = runtime.NumCPU() - 1
		if extractWorkers < 1 {
			extractWorkers = 1
		}
	}
	if maxDocumentsPerRun <= 0 {
		maxDocumentsPerRun = defaultMaxDocumentsPerRun
	}
	return &Coordinator{
		extractor:          ex,
		splitter:           splitter,
		embedder:           embedder,
		store:              st,
		extractWorkers:     extractWorkers,
		embedWorkers:       embedWorkers,
		embedProgressEvery: embedProgressEvery,
		maxDocumentsPerRun: maxDocumentsPerRun,
		log:                log.With().Str("component", "ingest").Logger(),
	}
}

type candidate struct {
	path         string
	fileName     string
	fileType     string
	size         int64
	modifiedTime float64
	text         string
}

// Run ingests up to maxDocumentsPerRun of paths, skipping documents whose
// (size, modified_time) already match what is stored, extracting the rest
// in parallel, chunking them, embedding every chunk from every document
// in one global batch, and writing each document's chunks atomically.
func (c *Coordinator) Run(ctx context.Context, paths []string) Outcome {
	var outcome Outcome

	// A fresh run id correlates every log line this run emits, and
	// distinguishes otherwise-identical retried runs over the same paths.
	runLog := c.log.With().Str("run_id", uuid.NewString()).Logger()

	if len(paths) > c.maxDocumentsPerRun {
		runLog.Info().Int("requested", len(paths)).Int("cap", c.maxDocumentsPerRun).
			Msg("ingestion run truncated to max_documents_per_run")
		paths = paths[:c.maxDocumentsPerRun]
	}

	candidates, skipped, extractFailures := c.extractCandidates(ctx, paths)
	outcome.Skipped += skipped
	outcome.Failed += len(extractFailures)
	outcome.Failures = append(outcome.Failures, extractFailures...)

	if len(candidates) == 0 {
		return outcome
	}

	// Build one flat chunk list across all candidate documents, keeping a
	// back-pointer from each chunk to its originating document.
	type chunkRef struct {
		docIdx     int
		chunkIndex int
		content    string
	}
	var chunkRefs []chunkRef
	docChunkTexts := make([][]string, len(candidates))
	for di, cand := range candidates {
		chunks := c.splitter.Split(cand.text)
		docChunkTexts[di] = chunks
		for ci, content := range chunks {
			chunkRefs = append(chunkRefs, chunkRef{docIdx: di, chunkIndex: ci, content: content})
		}
	}

	texts := make([]string, len(chunkRefs))
	for i, ref := range chunkRefs {
		texts[i] = ref.content
	}

	embeddings := embedbatch.EmbedMany(ctx, c.embedder, texts, embedbatch.Options{
		MaxWorkers: c.embedWorkers,
		BatchSize:  c.embedProgressEvery,
		OnProgress: func(p embedbatch.Progress) {
			runLog.Debug().Int("completed", p.Completed).Int("total", p.Total).
				Float64("rate_per_sec", p.RatePerSec).Msg("embedding progress")
		},
	}, runLog)

	// Reassemble per document.
	docRows := make([][]vectorstore.Row, len(candidates))
	docFailed := make([]bool, len(candidates))
	for i, ref := range chunkRefs {
		vec := embeddings[i]
		if vec == nil {
			docFailed[ref.docIdx] = true
			continue
		}
		cand := candidates[ref.docIdx]
		preview := ref.content
		if len(preview) > 200 {
			preview = preview[:200]
		}
		docRows[ref.docIdx] = append(docRows[ref.docIdx], vectorstore.Row{
			ChunkIndex:     ref.chunkIndex,
			Content:        ref.content,
			ContentPreview: preview,
			Embedding:      vec,
			FileName:       cand.fileName,
			FileType:       cand.fileType,
			FileSize:       cand.size,
			ModifiedTime:   cand.modifiedTime,
		})
	}

	for di, cand := range candidates {
		if docFailed[di] {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, Failure{Path: cand.path, Reason: "embedding failed for one or more chunks"})
			continue
		}
		if len(docChunkTexts[di]) == 0 {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, Failure{Path: cand.path, Reason: "no extractable chunks"})
			continue
		}
		if err := c.store.ReplaceDocumentChunks(ctx, cand.path, docRows[di]); err != nil {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, Failure{Path: cand.path, Reason: err.Error()})
			continue
		}
		outcome.Ingested++
	}

	return outcome
}

// extractCandidates stats and extracts every path concurrently, classifying
// each as skipped (unchanged since last ingest, or unextractable/no useful
// content per §4.6 step 1 and §7's ExtractionError row), failed (stat or
// existing-state lookup error), or a candidate ready for chunking.
func (c *Coordinator) extractCandidates(ctx context.Context, paths []string) ([]candidate, int, []Failure) {
	var (
		mu         sync.Mutex
		candidates []candidate
		skipped    int
		failures   []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.extractWorkers)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			cand, skip, err := c.prepareOne(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, Failure{Path: p, Reason: err.Error()})
			case skip:
				skipped++
			default:
				candidates = append(candidates, cand)
			}
			return nil
		})
	}
	_ = g.Wait()

	return candidates, skipped, failures
}

func (c *Coordinator) prepareOne(ctx context.Context, path string) (candidate, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return candidate{}, false, fmt.Errorf("stat file: %w", err)
	}
	size := info.Size()
	modified := float64(info.ModTime().UnixNano()) / 1e9

	existingSize, existingModified, found, err := c.store.ExistingDocumentState(ctx, path)
	if err != nil {
		return candidate{}, false, fmt.Errorf("check existing state: %w", err)
	}
	if found && existingSize == size && existingModified == modified {
		return candidate{}, true, nil
	}

	// Extraction failure or below-minimum content is absorbed, not a
	// failure: the document is skipped, not counted as Failed (§4.6 step 1,
	// §7 ExtractionError row).
	text, ok := c.extractor.Extract(path)
	if !ok {
		return candidate{}, true, nil
	}

	return candidate{
		path:         path,
		fileName:     fileName(path),
		fileType:     fileType(path),
		size:         size,
		modifiedTime: modified,
		text:         text,
	}, false, nil
}
