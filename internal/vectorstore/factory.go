// Package vectorstore implements rag.VectorStore on top of Postgres with
// pgvector, Qdrant, SQLite and process memory. Every backend scores hits
// by cosine similarity, returns them in descending score order, and rejects
// vectors whose dimension differs from the one it was configured with.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// Backend names a vector store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendQdrant   Backend = "qdrant"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// Dimensions is the embedding length every row must have.
	Dimensions int

	// MaxK caps the number of hits a single search returns.
	MaxK int

	Postgres PostgresConfig
	Qdrant   QdrantConfig
	SQLite   SQLiteConfig
}

// ConfigFromEnv resolves a store Config from environment variables.
//
//	VECTOR_STORE   = postgres | qdrant | sqlite | memory (default: postgres)
//	DATABASE_URL   postgres connection string
//	PG_TABLE       postgres table (default: documents)
//	QDRANT_HOST, QDRANT_PORT (6334), QDRANT_COLLECTION (documents),
//	QDRANT_API_KEY, QDRANT_TLS
//	SQLITE_PATH    (default: ~/.assistant/vectors.db)
//	TOP_K_MAX      (default: 50)
func ConfigFromEnv(dimensions int) Config {
	return Config{
		Backend:    Backend(getEnvOrDefault("VECTOR_STORE", string(BackendPostgres))),
		Dimensions: dimensions,
		MaxK:       getEnvInt("TOP_K_MAX", rag.MaxTopK),
		Postgres: PostgresConfig{
			URL:   os.Getenv("DATABASE_URL"),
			Table: getEnvOrDefault("PG_TABLE", "documents"),
		},
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "documents"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		SQLite: SQLiteConfig{
			Path: os.Getenv("SQLITE_PATH"),
		},
	}
}

// Validate reports missing settings for the selected backend.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("vectorstore: dimensions must be positive, got %d", c.Dimensions)
	}
	switch c.Backend {
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("vectorstore: postgres requires DATABASE_URL")
		}
	case BackendQdrant:
		if c.Qdrant.Host == "" {
			return fmt.Errorf("vectorstore: qdrant requires QDRANT_HOST")
		}
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("vectorstore: unknown backend %q, valid values: postgres, qdrant, sqlite, memory", c.Backend)
	}
	return nil
}

// New opens the backend selected by cfg. The returned store must be closed.
func New(ctx context.Context, cfg Config) (rag.VectorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxK <= 0 || cfg.MaxK > rag.MaxTopK {
		cfg.MaxK = rag.MaxTopK
	}
	switch cfg.Backend {
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres, cfg.Dimensions, cfg.MaxK)
	case BackendQdrant:
		return NewQdrantStore(ctx, &cfg.Qdrant, cfg.Dimensions, cfg.MaxK)
	case BackendSQLite:
		return NewSQLiteStore(cfg.SQLite, cfg.Dimensions, cfg.MaxK)
	default:
		return NewMemoryStore(cfg.Dimensions, cfg.MaxK), nil
	}
}

func dimError(got, want int) error {
	return fmt.Errorf("%w: query has %d dimensions, store expects %d", rag.ErrDimensionMismatch, got, want)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
