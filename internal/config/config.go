// Package config collects all runtime configuration for WhereSpace into a
// single value constructed once at process start and passed by reference to
// the components that need it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config captures all runtime configuration for the application.
type Config struct {
	HTTP      HTTPConfig
	DataDir   string
	Database  DatabaseConfig
	Model     ModelServerConfig
	Embed     EmbeddingConfig
	Chunking  ChunkingConfig
	Workers   WorkerConfig
	Cache     CacheConfig
	Retrieval RetrievalConfig
	Scanner   ScannerConfig
}

// HTTPConfig groups the HTTP facade's bind address.
type HTTPConfig struct {
	Host string
	Port int
}

// Address returns the host:port pair the HTTP server should bind to.
func (h HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DatabaseConfig captures the vector store connection parameters and pool
// bounds (see §4.1 and §6.5).
type DatabaseConfig struct {
	Host             string
	Port             int
	Name             string
	User             string
	Password         string
	PoolMin          int
	PoolMax          int
	AllowSchemaReset bool
}

// DSN builds a libpq-style connection string from the individual fields.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// ModelServerConfig describes how to reach the external embedding/chat
// model server (§6.2's wire contract).
type ModelServerConfig struct {
	BaseURL         string
	ChatModel       string
	EmbedTimeout    time.Duration
	ChatIdleTimeout time.Duration
	TagsTimeout     time.Duration
}

// EmbeddingConfig describes the embedding model and its vector dimension D.
type EmbeddingConfig struct {
	Model     string
	Dimension int
}

// ChunkingConfig carries the chunker's tuning parameters (§4.4).
type ChunkingConfig struct {
	ChunkSize int
	Overlap   int
}

// WorkerConfig bounds the parallelism of extraction and embedding (§5).
type WorkerConfig struct {
	ExtractWorkers       int
	EmbedWorkers         int
	EmbedProgressEvery   int
	MaxDocumentsPerRun   int
	MaxDocumentSizeBytes int64
}

// CacheConfig bounds the query cache (§4.7).
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// RetrievalConfig carries retriever defaults (§4.8).
type RetrievalConfig struct {
	TopK            int
	MinSimilarity   float64
	MaxPromptTokens int
}

// ScannerConfig carries the storage scanner's directory skip-list and
// candidate document extension whitelist (§4.12).
type ScannerConfig struct {
	SkipDirNames       []string
	DocumentExtensions []string
}

// ModelStatePath returns the path to the durable current-model selection
// file, rooted under DataDir (§4.9).
func (c Config) ModelStatePath() string {
	return filepath.Join(c.DataDir, "model_state.json")
}

// FromEnv builds a Config by reading environment variables and applying
// sensible defaults. The resulting configuration is validated before it is
// returned.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", "127.0.0.1"),
			Port: getEnvInt("HTTP_PORT", 5000),
		},
		DataDir: getEnv("DATA_DIR", "./data"),
		Database: DatabaseConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnvInt("DB_PORT", 5432),
			Name:             getEnv("DB_NAME", "vectordb"),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", ""),
			PoolMin:          getEnvInt("POOL_MIN", 2),
			PoolMax:          getEnvInt("POOL_MAX", 10),
			AllowSchemaReset: getEnv("ALLOW_SCHEMA_RESET", "false") == "true",
		},
		Model: ModelServerConfig{
			BaseURL:         getEnv("MODEL_SERVER_URL", "http://localhost:11434"),
			ChatModel:       getEnv("CHAT_MODEL", "llama3.1"),
			EmbedTimeout:    60 * time.Second,
			ChatIdleTimeout: 30 * time.Second,
			TagsTimeout:     5 * time.Second,
		},
		Embed: EmbeddingConfig{
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDING_DIM", 768),
		},
		Chunking: ChunkingConfig{
			ChunkSize: getEnvInt("CHUNK_SIZE", 512),
			Overlap:   getEnvInt("CHUNK_OVERLAP", 100),
		},
		Workers: WorkerConfig{
			ExtractWorkers:       getEnvInt("MAX_WORKERS_EXTRACT", defaultExtractWorkers()),
			EmbedWorkers:         getEnvInt("MAX_WORKERS_EMBED", 4),
			EmbedProgressEvery:   getEnvInt("EMBED_PROGRESS_BATCH", 20),
			MaxDocumentsPerRun:   getEnvInt("MAX_DOCUMENTS_PER_RUN", 50),
			MaxDocumentSizeBytes: int64(getEnvInt("MAX_DOCUMENT_SIZE_BYTES", 10*1024*1024)),
		},
		Cache: CacheConfig{
			Size: getEnvInt("QUERY_CACHE_SIZE", 1000),
			TTL:  time.Duration(getEnvInt("QUERY_CACHE_TTL_SEC", 300)) * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:            getEnvInt("TOP_K", 10),
			MinSimilarity:   getEnvFloat("MIN_SIMILARITY", 0.3),
			MaxPromptTokens: getEnvInt("MAX_PROMPT_TOKENS", 2000),
		},
		Scanner: ScannerConfig{
			SkipDirNames:       splitEnvList("SCANNER_SKIP_DIRS", []string{"AppData", "node_modules", ".git"}),
			DocumentExtensions: splitEnvList("SCANNER_DOCUMENT_EXTENSIONS", []string{"pdf", "docx", "txt", "md"}),
		},
	}

	cfg.Model.BaseURL = strings.TrimRight(cfg.Model.BaseURL, "/")

	if !filepath.IsAbs(cfg.DataDir) {
		abs, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = abs
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Model.BaseURL == "" {
		return fmt.Errorf("MODEL_SERVER_URL must not be empty")
	}
	if c.Model.ChatModel == "" {
		return fmt.Errorf("CHAT_MODEL must not be empty")
	}
	if c.Embed.Model == "" {
		return fmt.Errorf("EMBEDDING_MODEL must not be empty")
	}
	if c.Embed.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME must not be empty")
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be non-negative and smaller than CHUNK_SIZE")
	}
	if c.Database.PoolMin <= 0 || c.Database.PoolMax < c.Database.PoolMin {
		return fmt.Errorf("POOL_MIN/POOL_MAX must satisfy 0 < min <= max")
	}
	if c.Workers.ExtractWorkers <= 0 {
		c.Workers.ExtractWorkers = 1
	}
	if c.Workers.EmbedWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS_EMBED must be positive")
	}
	if c.Workers.MaxDocumentsPerRun <= 0 {
		c.Workers.MaxDocumentsPerRun = 50
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("MIN_SIMILARITY must be within [0, 1]")
	}
	return nil
}

func defaultExtractWorkers() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
