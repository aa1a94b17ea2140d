// Package vectorstore implements the Vector Store Adapter (C1): a pooled,
// schema-managing interface to Postgres + pgvector.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/jwvanderstam/wherespace/internal/apperr"
	"github.com/jwvanderstam/wherespace/internal/retrieval"
)

// Row is one chunk ready for insertion (§3, §6.1).
type Row struct {
	ChunkIndex     int
	Content        string
	ContentPreview string
	Embedding      []float32
	FileName       string
	FileType       string
	FileSize       int64
	ModifiedTime   float64
}

// DocSummary is one row per distinct file_path, for /api/list_documents.
type DocSummary struct {
	FilePath     string
	FileName     string
	FileType     string
	FileSize     int64
	ModifiedTime float64
	ChunkCount   int64
}

// insertPageSize bounds batch-insert statement size (§4.1).
const insertPageSize = 1000

// Store persists and retrieves chunk embeddings from Postgres + pgvector.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	log       zerolog.Logger
}

// Open connects to Postgres, ensures the schema exists, and returns a Store.
// allowSchemaReset must be true for a dimension mismatch at an existing
// table to be resolved automatically (drop + recreate); otherwise it is a
// fatal SchemaMismatch error (§4.1).
func Open(ctx context.Context, dsn string, poolMin, poolMax, dimension int, allowSchemaReset bool, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if poolMin > 0 {
		cfg.MinConns = int32(poolMin)
	}
	if poolMax > 0 {
		cfg.MaxConns = int32(poolMax)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}

	store := &Store{
		pool:      pool,
		dimension: dimension,
		log:       log.With().Str("component", "vectorstore").Logger(),
	}

	if err := store.initSchema(ctx, allowSchemaReset); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying connection pool. Called once at process
// stop.
func (s *Store) Close() {
	s.pool.Close()
}

// WithConnection scopes a pooled connection acquisition, guaranteeing
// release on every exit path including panics, since the release is a
// deferred call that runs during stack unwinding (§4.1).
func (s *Store) WithConnection(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

func (s *Store) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn
	err := withRetry(ctx, func() error {
		c, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, apperr.Storage("acquire connection", err)
	}
	return conn, nil
}

// initSchema idempotently ensures the vector extension, the documents
// table, its indexes, and the ANN index exist. If an existing table has a
// different embedding dimension, it is dropped and recreated when
// allowSchemaReset is set; otherwise the mismatch is fatal.
func (s *Store) initSchema(ctx context.Context, allowSchemaReset bool) error {
	existingDim, exists, err := s.existingDimension(ctx)
	if err != nil {
		return apperr.Storage("inspect existing schema", err)
	}

	if exists && existingDim != s.dimension {
		if !allowSchemaReset {
			return apperr.SchemaMismatch("embedding dimension mismatch", fmt.Errorf(
				"documents table has embedding dimension %d, configured dimension is %d", existingDim, s.dimension))
		}
		s.log.Warn().Int("existing_dim", existingDim).Int("configured_dim", s.dimension).
			Msg("embedding dimension mismatch, dropping and recreating documents table (data loss)")
		if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS documents`); err != nil {
			return apperr.Storage("drop mismatched schema", err)
		}
	}

	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	file_path TEXT NOT NULL,
	chunk_index INT NOT NULL,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	content_preview TEXT NOT NULL,
	chunk_content TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	modified_time DOUBLE PRECISION NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (file_path, chunk_index)
);

CREATE INDEX IF NOT EXISTS documents_file_path_idx ON documents (file_path);
`, s.dimension)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return apperr.Storage("create schema", err)
	}

	if err := s.ensureANNIndex(ctx); err != nil {
		// An approximate index can legitimately fail to build on an empty
		// or tiny table; this is not fatal to startup.
		s.log.Warn().Err(err).Msg("ann index not (re)created")
	}

	return nil
}

func (s *Store) existingDimension(ctx context.Context) (dim int, exists bool, err error) {
	const q = `
SELECT a.atttypmod
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = 'documents' AND a.attname = 'embedding' AND a.attnum > 0
LIMIT 1`

	var typmod int
	err = s.pool.QueryRow(ctx, q).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	// pgvector stores the declared dimension directly in atttypmod.
	return typmod, true, nil
}

// ensureANNIndex (re)creates the cosine-distance ANN index, choosing the
// `lists` parameter from the monotone table in §4.1.
func (s *Store) ensureANNIndex(ctx context.Context) error {
	count, err := s.CountChunks(ctx)
	if err != nil {
		return err
	}
	lists := ListsForCount(count)

	_, err = s.pool.Exec(ctx, `DROP INDEX IF EXISTS documents_embedding_idx`)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf(
		`CREATE INDEX documents_embedding_idx ON documents USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
		lists)
	_, err = s.pool.Exec(ctx, ddl)
	return err
}

// Reindex manually re-tunes and rebuilds the ANN index. Re-tuning is not
// automatic (§4.1); an operator must call this explicitly.
func (s *Store) Reindex(ctx context.Context) error {
	if err := s.ensureANNIndex(ctx); err != nil {
		return apperr.Storage("reindex", err)
	}
	return nil
}

// ListsForCount selects the IVFFlat `lists` parameter from the monotone
// table in §4.1: <=1K -> 50, <=10K -> 100, <=100K -> ceil(sqrt(count)),
// >100K -> 1000.
func ListsForCount(count int64) int {
	switch {
	case count <= 1_000:
		return 50
	case count <= 10_000:
		return 100
	case count <= 100_000:
		return int(math.Ceil(math.Sqrt(float64(count))))
	default:
		return 1000
	}
}

// ReplaceDocumentChunks deletes all rows for filePath and inserts rows
// within a single transaction, batching inserts in pages of <=1000 rows to
// bound statement size. Partial inserts are never visible to readers (I4).
func (s *Store) ReplaceDocumentChunks(ctx context.Context, filePath string, rows []Row) error {
	for _, r := range rows {
		if len(r.Embedding) != s.dimension {
			return apperr.Storage("replace document chunks",
				fmt.Errorf("embedding dimension mismatch: expected %d got %d", s.dimension, len(r.Embedding)))
		}
	}

	err := withRetry(ctx, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE file_path = $1`, filePath); err != nil {
			return fmt.Errorf("delete existing chunks: %w", err)
		}

		for start := 0; start < len(rows); start += insertPageSize {
			end := start + insertPageSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := insertPage(ctx, tx, filePath, rows[start:end]); err != nil {
				return err
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return apperr.Storage("replace document chunks", err)
	}
	return nil
}

func insertPage(ctx context.Context, tx pgx.Tx, filePath string, rows []Row) error {
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO documents
				(file_path, chunk_index, file_name, file_type, content_preview, chunk_content, file_size, modified_time, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			filePath, r.ChunkIndex, r.FileName, r.FileType, r.ContentPreview, r.Content, r.FileSize, r.ModifiedTime,
			pgvector.NewVector(r.Embedding), now,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// Search returns up to topK rows ordered by ascending cosine distance,
// filtered by similarity >= minSimilarity and optionally fileType (§4.1).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, minSimilarity float64, fileType *string) ([]retrieval.Hit, error) {
	if len(embedding) != s.dimension {
		return nil, apperr.Storage("search",
			fmt.Errorf("embedding dimension mismatch: expected %d got %d", s.dimension, len(embedding)))
	}

	query := `
SELECT file_path, chunk_index, file_name, file_type, content_preview, chunk_content, file_size,
       1 - (embedding <=> $1) AS similarity
FROM documents
WHERE 1 - (embedding <=> $1) >= $2`
	args := []any{pgvector.NewVector(embedding), minSimilarity}

	if fileType != nil && *fileType != "" {
		query += fmt.Sprintf(" AND file_type = $%d", len(args)+1)
		args = append(args, strings.ToLower(*fileType))
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, topK)

	var hits []retrieval.Hit
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		hits = hits[:0]
		for rows.Next() {
			var h retrieval.Hit
			if err := rows.Scan(&h.FilePath, &h.ChunkIndex, &h.FileName, &h.FileType, &h.ContentPreview, &h.Content, &h.FileSize, &h.Similarity); err != nil {
				return err
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.Storage("search", err)
	}
	return hits, nil
}

// ListDocuments returns one row per distinct file_path with file metadata
// and chunk_count.
func (s *Store) ListDocuments(ctx context.Context) ([]DocSummary, error) {
	const q = `
SELECT file_path, file_name, file_type, file_size, modified_time, COUNT(*) AS chunk_count
FROM documents
GROUP BY file_path, file_name, file_type, file_size, modified_time
ORDER BY file_path`

	var docs []DocSummary
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		docs = docs[:0]
		for rows.Next() {
			var d DocSummary
			if err := rows.Scan(&d.FilePath, &d.FileName, &d.FileType, &d.FileSize, &d.ModifiedTime, &d.ChunkCount); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.Storage("list documents", err)
	}
	return docs, nil
}

// ExistingDocumentState returns the stored (file_size, modified_time) for
// filePath, used by the ingestion coordinator's skip_existing check (§4.6).
func (s *Store) ExistingDocumentState(ctx context.Context, filePath string) (size int64, modified float64, found bool, err error) {
	const q = `SELECT file_size, modified_time FROM documents WHERE file_path = $1 LIMIT 1`
	dbErr := withRetry(ctx, func() error {
		e := s.pool.QueryRow(ctx, q, filePath).Scan(&size, &modified)
		if errors.Is(e, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if e != nil {
			return e
		}
		found = true
		return nil
	})
	if dbErr != nil {
		return 0, 0, false, apperr.Storage("lookup existing document state", dbErr)
	}
	return size, modified, found, nil
}

// DeleteDocument deletes all rows for filePath, returning the deleted count.
func (s *Store) DeleteDocument(ctx context.Context, filePath string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE file_path = $1`, filePath)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperr.Storage("delete document", err)
	}
	return n, nil
}

// FlushAll deletes all rows, returning the deleted count.
func (s *Store) FlushAll(ctx context.Context) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM documents`)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperr.Storage("flush all", err)
	}
	return n, nil
}

// CountChunks returns the total row count.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	})
	if err != nil {
		return 0, apperr.Storage("count chunks", err)
	}
	return n, nil
}

// CountDocuments returns the number of distinct file_path values.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT file_path) FROM documents`).Scan(&n)
	})
	if err != nil {
		return 0, apperr.Storage("count documents", err)
	}
	return n, nil
}

// withRetry retries op up to 3 attempts with bounded exponential backoff on
// transient failures (§4.1). Callers are expected to keep op's critical
// section to a single logical database operation.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 5 * time.Second

	policy := backoff.WithMaxRetries(bo, 2) // 3 attempts total
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// isPermanent classifies context cancellation as non-retryable; everything
// else (connection resets, timeouts) is treated as transient.
func isPermanent(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
