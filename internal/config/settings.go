package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sntprz/ai-assistant/internal/budget"
	"github.com/sntprz/ai-assistant/internal/embedder"
	"github.com/sntprz/ai-assistant/internal/ingestion"
	"github.com/sntprz/ai-assistant/internal/provider"
	"github.com/sntprz/ai-assistant/internal/rag"
	"github.com/sntprz/ai-assistant/internal/vectorstore"
)

// DefaultRawDir is the ingestion root used when RAW_DIR is unset.
const DefaultRawDir = "data/raw"

// Settings is the resolved runtime configuration of every component.
type Settings struct {
	// RawDir is the default directory walked by ingest.
	RawDir string

	Embedding embedder.Config
	Store     vectorstore.Config
	Model     *provider.Config
	Ingest    ingestion.Config
	Retrieval Retrieval
	Cache     Cache
	Server    Server
}

// Retrieval holds query path limits and timeouts.
type Retrieval struct {
	TopKDefault int
	TopKMax     int

	EmbedTimeout    time.Duration
	StoreTimeout    time.Duration
	GenerateTimeout time.Duration

	// MaxContextTokens bounds the prompt. Zero disables trimming.
	MaxContextTokens int
}

// Cache holds the optional embedding cache settings.
type Cache struct {
	// RedisURL enables the cache when non-empty.
	RedisURL string
	TTL      time.Duration
}

// Server holds HTTP listener settings.
type Server struct {
	Host      string
	Port      int
	RateLimit float64
	RateBurst int
}

// FromEnv resolves Settings from the environment and validates them.
// Call Load and LoadDotEnv first so file layers are visible here.
// The chat model config is resolved but not validated, since ingestion
// never calls the model; provider.New validates it on construction.
func FromEnv() (*Settings, error) {
	var r envReader

	emb := embedder.ConfigFromEnv()
	ing := ingestion.DefaultConfig()
	ing.ChunkSize = r.int("CHUNK_SIZE_CHARS", ing.ChunkSize)
	ing.ChunkOverlap = r.int("CHUNK_OVERLAP_CHARS", ing.ChunkOverlap)
	ing.BatchSize = r.int("BATCH_SIZE", ing.BatchSize)
	ing.Workers = r.int("INGEST_WORKERS", ing.Workers)
	ing.MaxRetries = r.int("INGEST_MAX_RETRIES", ing.MaxRetries)
	ing.Source = envOr("SOURCE_LABEL", "user")

	s := &Settings{
		RawDir:    envOr("RAW_DIR", DefaultRawDir),
		Embedding: emb,
		Store:     vectorstore.ConfigFromEnv(emb.Dimensions),
		Model:     provider.ConfigFromEnv(),
		Ingest:    ing,
		Retrieval: Retrieval{
			TopKDefault:      r.int("TOP_K_DEFAULT", 5),
			TopKMax:          r.int("TOP_K_MAX", rag.MaxTopK),
			EmbedTimeout:     r.duration("EMBED_TIMEOUT", 30*time.Second),
			StoreTimeout:     r.duration("STORE_TIMEOUT", 10*time.Second),
			GenerateTimeout:  r.duration("GENERATE_TIMEOUT", 60*time.Second),
			MaxContextTokens: r.int("MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		},
		Cache: Cache{
			RedisURL: os.Getenv("EMBED_CACHE_REDIS_URL"),
			TTL:      r.duration("EMBED_CACHE_TTL", 7*24*time.Hour),
		},
		Server: Server{
			Host:      envOr("SERVER_HOST", "127.0.0.1"),
			Port:      r.int("SERVER_PORT", 8080),
			RateLimit: r.float("RATE_LIMIT", 10),
			RateBurst: r.int("RATE_BURST", 20),
		},
	}
	// Ingestion shares the per-call timeouts of the query path.
	s.Ingest.EmbedTimeout = s.Retrieval.EmbedTimeout
	s.Ingest.StoreTimeout = s.Retrieval.StoreTimeout
	if err := r.err(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports settings that cannot work, naming the variable to fix.
func (s *Settings) Validate() error {
	var errs []error
	if err := s.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Store.Validate(); err != nil {
		errs = append(errs, err)
	}
	in := s.Ingest
	switch {
	case in.ChunkSize <= 0:
		errs = append(errs, fmt.Errorf("config: CHUNK_SIZE_CHARS must be positive, got %d", in.ChunkSize))
	case in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize:
		errs = append(errs, fmt.Errorf("config: CHUNK_OVERLAP_CHARS must be in [0, %d), got %d", in.ChunkSize, in.ChunkOverlap))
	}
	if in.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("config: BATCH_SIZE must be at least 1, got %d", in.BatchSize))
	}
	if in.Workers < 1 {
		errs = append(errs, fmt.Errorf("config: INGEST_WORKERS must be at least 1, got %d", in.Workers))
	}
	q := s.Retrieval
	if q.TopKMax < 1 || q.TopKMax > rag.MaxTopK {
		errs = append(errs, fmt.Errorf("config: TOP_K_MAX must be in [1, %d], got %d", rag.MaxTopK, q.TopKMax))
	} else if q.TopKDefault < 1 || q.TopKDefault > q.TopKMax {
		errs = append(errs, fmt.Errorf("config: TOP_K_DEFAULT must be in [1, %d], got %d", q.TopKMax, q.TopKDefault))
	}
	if q.MaxContextTokens < 0 {
		errs = append(errs, fmt.Errorf("config: MAX_CONTEXT_TOKENS must not be negative, got %d", q.MaxContextTokens))
	}
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: SERVER_PORT must be in [1, 65535], got %d", s.Server.Port))
	}
	return errors.Join(errs...)
}

// envReader parses typed env vars and collects every malformed value so
// an operator sees all of them at once.
type envReader struct {
	errs []error
}

func (r *envReader) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %q is not an integer", key, v))
		return fallback
	}
	return i
}

func (r *envReader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

func (r *envReader) err() error { return errors.Join(r.errs...) }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
