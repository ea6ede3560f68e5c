// Package config provides layered configuration for the assistant.
// Precedence, lowest first: built-in defaults, .env file, YAML file,
// environment variables. Both file layers are applied as env vars and never
// overwrite a variable that is already set, so the process environment
// always wins.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. ASSISTANT_CONFIG environment variable
//  3. ~/.assistant/config.yaml
//  4. ./assistant.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model used to compose answers.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore selects and configures the vector store backend.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Retrieval configures the query path.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Cache configures the Redis embedding cache.
	Cache CacheConfig `yaml:"cache"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, openai, azure, ollama, ark.
	Provider string `yaml:"provider"`

	// MaxTokens caps the length of a generated answer.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness.
	Temperature float32 `yaml:"temperature"`

	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ollama OllamaConfig `yaml:"ollama"`
	Ark    ArkConfig    `yaml:"ark"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend. Empty inherits model.provider.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds one embedding request, e.g. "30s".
	Timeout string `yaml:"timeout"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Backend selects the store: postgres, qdrant, sqlite, memory.
	Backend  string         `yaml:"backend"`
	Postgres PostgresConfig `yaml:"postgres"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	// Timeout bounds one search call, e.g. "10s".
	Timeout string `yaml:"timeout"`
}

// PostgresConfig holds pgvector settings.
type PostgresConfig struct {
	// URL is the connection string. Prefer env var DATABASE_URL.
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// SQLiteConfig holds the embedded store settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	RawDir       string `yaml:"raw_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	BatchSize    int    `yaml:"batch_size"`
	Workers      int    `yaml:"workers"`
	MaxRetries   int    `yaml:"max_retries"`
	Source       string `yaml:"source"`
}

// RetrievalConfig holds query path settings.
type RetrievalConfig struct {
	TopKDefault      int    `yaml:"top_k_default"`
	TopKMax          int    `yaml:"top_k_max"`
	GenerateTimeout  string `yaml:"generate_timeout"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	// RedisURL enables the cache when set.
	RedisURL string `yaml:"redis_url"`
	// TTL is the entry lifetime, e.g. "168h".
	TTL string `yaml:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBED_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"VECTOR_STORE", func(c *Config) string { return c.VectorStore.Backend }},
	{"STORE_TIMEOUT", func(c *Config) string { return c.VectorStore.Timeout }},
	{"DATABASE_URL", func(c *Config) string { return c.VectorStore.Postgres.URL }},
	{"PG_TABLE", func(c *Config) string { return c.VectorStore.Postgres.Table }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"SQLITE_PATH", func(c *Config) string { return c.VectorStore.SQLite.Path }},
	{"RAW_DIR", func(c *Config) string { return c.Ingest.RawDir }},
	{"CHUNK_SIZE_CHARS", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"CHUNK_OVERLAP_CHARS", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"BATCH_SIZE", func(c *Config) string { return intStr(c.Ingest.BatchSize) }},
	{"INGEST_WORKERS", func(c *Config) string { return intStr(c.Ingest.Workers) }},
	{"INGEST_MAX_RETRIES", func(c *Config) string { return intStr(c.Ingest.MaxRetries) }},
	{"SOURCE_LABEL", func(c *Config) string { return c.Ingest.Source }},
	{"TOP_K_DEFAULT", func(c *Config) string { return intStr(c.Retrieval.TopKDefault) }},
	{"TOP_K_MAX", func(c *Config) string { return intStr(c.Retrieval.TopKMax) }},
	{"GENERATE_TIMEOUT", func(c *Config) string { return c.Retrieval.GenerateTimeout }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"EMBED_CACHE_REDIS_URL", func(c *Config) string { return c.Cache.RedisURL }},
	{"EMBED_CACHE_TTL", func(c *Config) string { return c.Cache.TTL }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// LoadDotEnv applies the variables in a .env file without overriding any
// variable already set, which includes values applied by Load. An empty
// path means ./.env. A missing file is not an error.
func LoadDotEnv(path string, log *slog.Logger) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("config: no .env file found", slog.String("path", path))
			return false, nil
		}
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded .env file", slog.String("path", path))
	return true, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ASSISTANT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".assistant", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("assistant.yaml"); err == nil {
		return "assistant.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
