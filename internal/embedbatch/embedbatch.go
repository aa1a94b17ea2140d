// Package embedbatch runs a worker pool that embeds many texts in parallel
// (C5), tolerating per-item failures and reporting coarse progress.
package embedbatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// defaultMaxWorkers and defaultBatchSize match §4.5.
const (
	defaultMaxWorkers = 4
	defaultBatchSize  = 20
)

// Embedder generates a vector representation for a single piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Progress reports coarse-grained completion while a batch runs.
type Progress struct {
	Completed  int
	Total      int
	RatePerSec float64
}

// Options configures EmbedMany. Zero values fall back to the §4.5 defaults.
type Options struct {
	MaxWorkers int
	BatchSize  int
	OnProgress func(Progress)
}

// EmbedMany embeds every text in texts, returning a slice of the same
// length. A text whose embedding call fails gets a nil slot rather than
// aborting the whole batch (§4.5). If ctx is cancelled, in-flight calls are
// allowed to return but no further texts are submitted; unprocessed slots
// stay nil.
//
// Work is partitioned into contiguous ranges, one per worker, rather than
// a shared work-stealing queue.
func EmbedMany(ctx context.Context, embedder Embedder, texts []string, opts Options, log zerolog.Logger) [][]float32 {
	total := len(texts)
	results := make([][]float32, total)
	if total == 0 {
		return results
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if maxWorkers > total {
		maxWorkers = total
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var completed int64
	start := time.Now()
	report := func() {
		if opts.OnProgress == nil {
			return
		}
		n := atomic.LoadInt64(&completed)
		elapsed := time.Since(start).Seconds()
		var rate float64
		if elapsed > 0 {
			rate = float64(n) / elapsed
		}
		opts.OnProgress(Progress{Completed: int(n), Total: total, RatePerSec: rate})
	}

	ranges := partition(total, maxWorkers)

	var wg sync.WaitGroup
	for _, r := range ranges {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := r.start; i < r.end; i++ {
				if ctx.Err() != nil {
					return
				}
				vec, err := embedder.Embed(ctx, texts[i])
				if err != nil {
					log.Warn().Err(err).Int("index", i).Msg("embedding failed, leaving slot empty")
					vec = nil
				}
				results[i] = vec

				n := atomic.AddInt64(&completed, 1)
				if n == int64(total) || n%int64(batchSize) == 0 {
					report()
				}
			}
		}()
	}
	wg.Wait()

	return results
}

type chunkRange struct{ start, end int }

// partition splits [0,total) into up to workerCount contiguous ranges,
// distributing the remainder across the first ranges so sizes differ by
// at most one.
func partition(total, workerCount int) []chunkRange {
	ranges := make([]chunkRange, 0, workerCount)
	base := total / workerCount
	remainder := total % workerCount

	start := 0
	for i := 0; i < workerCount; i++ {
		size := base
		if i < remainder {
			size++
		}
		if size == 0 {
			continue
		}
		ranges = append(ranges, chunkRange{start: start, end: start + size})
		start += size
	}
	return ranges
}
