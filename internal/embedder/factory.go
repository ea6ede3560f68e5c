// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend: Gemini through the genai SDK, OpenAI and Azure OpenAI
// through go-openai, and Ollama over its plain HTTP API.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// Backend names an embedding provider.
type Backend string

const (
	BackendGemini Backend = "gemini"
	BackendOpenAI Backend = "openai"
	BackendAzure  Backend = "azure"
	BackendOllama Backend = "ollama"
)

// Default embedding models per backend.
const (
	defaultGeminiModel = "gemini-embedding-001"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaModel = "nomic-embed-text"

	defaultGeminiDimensions = 768
	defaultOpenAIDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768

	defaultTimeout = 30 * time.Second
)

// Config holds the settings for constructing an embedder.
type Config struct {
	// Backend selects the provider.
	Backend Backend

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected vector length. Every returned vector is
	// checked against it.
	Dimensions int

	// APIKey authenticates against hosted backends.
	APIKey string

	// Endpoint overrides the provider base URL (Ollama host, OpenAI-compatible
	// base URL, Azure resource endpoint).
	Endpoint string

	// APIVersion is the Azure OpenAI API version. Ignored elsewhere.
	APIVersion string

	// Timeout bounds a single HTTP request to the provider.
	Timeout time.Duration
}

// DefaultDimensions returns the default embedding vector size for backend.
func DefaultDimensions(backend Backend) int {
	switch backend {
	case BackendGemini:
		return defaultGeminiDimensions
	case BackendOllama:
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves an embedder Config from environment variables,
// inheriting credentials from the chat provider's variables when no
// embedding-specific override is set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else gemini
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides the inherited API key
//  4. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  5. EMBEDDING_DIMENSIONS overrides the default dimension
func ConfigFromEnv() Config {
	backend := Backend(strings.ToLower(getEnv("EMBEDDING_PROVIDER")))
	if backend == "" {
		backend = Backend(strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", string(BackendGemini))))
	}

	cfg := Config{
		Backend:    backend,
		Model:      getEnv("EMBEDDING_MODEL"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", DefaultDimensions(backend)),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		Timeout:    getEnvDuration("EMBED_TIMEOUT", defaultTimeout),
	}

	switch backend {
	case BackendGemini:
		cfg.Model = firstNonEmpty(cfg.Model, defaultGeminiModel)
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("GOOGLE_API_KEY"))
	case BackendOpenAI:
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("OPENAI_BASE_URL"))
	case BackendAzure:
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
	case BackendOllama:
		cfg.Model = firstNonEmpty(cfg.Model, defaultOllamaModel)
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"))
	}
	return cfg
}

// Validate reports configuration that cannot work, naming the environment
// variable an operator needs to set.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be positive, got %d", c.Dimensions)
	}
	if c.Model == "" {
		return fmt.Errorf("embedder: EMBEDDING_MODEL is required for %s", c.Backend)
	}
	switch c.Backend {
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: gemini, openai, azure, ollama", c.Backend)
	}
	return nil
}

// New constructs the embedder selected by cfg after validating it.
func New(ctx context.Context, cfg Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch cfg.Backend {
	case BackendGemini:
		return NewGeminiEmbedder(ctx, &cfg)
	case BackendOpenAI, BackendAzure:
		return NewOpenAIEmbedder(&cfg), nil
	default:
		return NewOllamaEmbedder(&cfg), nil
	}
}

// checkVectors verifies that a provider returned one vector of the expected
// dimension per input.
func checkVectors(op string, want int, vecs [][]float32, dims int) error {
	if len(vecs) != want {
		return rag.Errorf(rag.ErrEmbedding, op, "expected %d embeddings, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		if dims > 0 && len(v) != dims {
			return rag.Wrap(rag.ErrEmbedding, op,
				fmt.Errorf("%w: embedding %d has %d dimensions, want %d", rag.ErrDimensionMismatch, i, len(v), dims))
		}
	}
	return nil
}

// statusError classifies a non-2xx provider response. Client errors other
// than 408 and 429 are permanent.
func statusError(op string, status int, msg string) error {
	err := fmt.Errorf("HTTP %d: %s", status, msg)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		err = fmt.Errorf("%w: %w", rag.ErrPermanent, err)
	}
	return rag.Wrap(rag.ErrEmbedding, op, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
