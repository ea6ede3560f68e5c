package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sntprz/ai-assistant/internal/vectorstore"
)

// settingsKeys are cleared by tests that resolve Settings so values from
// the developer's shell never leak in.
var settingsKeys = []string{
	"MODEL_PROVIDER", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
	"EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT", "OLLAMA_HOST", "GOOGLE_API_KEY",
	"VECTOR_STORE", "DATABASE_URL", "QDRANT_HOST", "SQLITE_PATH",
	"RAW_DIR", "CHUNK_SIZE_CHARS", "CHUNK_OVERLAP_CHARS", "BATCH_SIZE",
	"INGEST_WORKERS", "INGEST_MAX_RETRIES", "SOURCE_LABEL",
	"TOP_K_DEFAULT", "TOP_K_MAX", "EMBED_TIMEOUT", "STORE_TIMEOUT", "GENERATE_TIMEOUT",
	"MAX_CONTEXT_TOKENS", "EMBED_CACHE_REDIS_URL", "EMBED_CACHE_TTL",
	"SERVER_HOST", "SERVER_PORT", "RATE_LIMIT", "RATE_BURST",
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// localEnv configures an embedder and store that need no credentials.
func localEnv(t *testing.T) {
	t.Helper()
	clearEnv(t, settingsKeys...)
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("VECTOR_STORE", "memory")
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 512
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
  timeout: 15s
vector_store:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
    collection: handbook
ingest:
  chunk_size: 800
  chunk_overlap: 100
  batch_size: 16
retrieval:
  top_k_default: 8
server:
  rate_limit: 2.5
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "512",
		"MODEL_TEMPERATURE":        "0.3",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"EMBED_TIMEOUT":            "15s",
		"VECTOR_STORE":             "qdrant",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION":        "handbook",
		"CHUNK_SIZE_CHARS":         "800",
		"CHUNK_OVERLAP_CHARS":      "100",
		"BATCH_SIZE":               "16",
		"TOP_K_DEFAULT":            "8",
		"RATE_LIMIT":               "2.5",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	keys := make([]string, 0, len(checks))
	for k := range checks {
		keys = append(keys, k)
	}
	clearEnv(t, keys...)

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "azure")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "assistant.yaml")
	if err := os.WriteFile(cfgPath, []byte("ingest:\n  source: wiki\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t, "SOURCE_LABEL")
	t.Setenv("ASSISTANT_CONFIG", cfgPath)

	loaded, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if got := os.Getenv("SOURCE_LABEL"); got != "wiki" {
		t.Errorf("SOURCE_LABEL = %q, want %q", got, "wiki")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "SOURCE_LABEL=dotenv\nRAW_DIR=from-dotenv\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	clearEnv(t, "SOURCE_LABEL")
	t.Setenv("RAW_DIR", "from-shell")

	found, err := LoadDotEnv(path, slog.Default())
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if !found {
		t.Fatal("expected .env to be found")
	}
	if got := os.Getenv("SOURCE_LABEL"); got != "dotenv" {
		t.Errorf("SOURCE_LABEL = %q, want %q", got, "dotenv")
	}
	if got := os.Getenv("RAW_DIR"); got != "from-shell" {
		t.Errorf("RAW_DIR = %q, want the shell value to win", got)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	t.Parallel()

	found, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"), slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for a missing file")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	localEnv(t)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.RawDir != DefaultRawDir {
		t.Errorf("RawDir = %q, want %q", s.RawDir, DefaultRawDir)
	}
	if s.Ingest.ChunkSize != 1200 || s.Ingest.ChunkOverlap != 200 || s.Ingest.BatchSize != 32 {
		t.Errorf("ingest defaults = %d/%d/%d, want 1200/200/32",
			s.Ingest.ChunkSize, s.Ingest.ChunkOverlap, s.Ingest.BatchSize)
	}
	if s.Ingest.Source != "user" {
		t.Errorf("Source = %q, want user", s.Ingest.Source)
	}
	if s.Retrieval.TopKDefault != 5 || s.Retrieval.TopKMax != 50 {
		t.Errorf("top_k = %d/%d, want 5/50", s.Retrieval.TopKDefault, s.Retrieval.TopKMax)
	}
	if s.Store.Backend != vectorstore.BackendMemory {
		t.Errorf("Store.Backend = %q", s.Store.Backend)
	}
	if s.Store.Dimensions != s.Embedding.Dimensions {
		t.Errorf("store dimensions %d != embedding dimensions %d", s.Store.Dimensions, s.Embedding.Dimensions)
	}
	if s.Server.Host != "127.0.0.1" || s.Server.Port != 8080 {
		t.Errorf("server = %s:%d", s.Server.Host, s.Server.Port)
	}
	if s.Cache.RedisURL != "" {
		t.Errorf("cache should be disabled by default, got %q", s.Cache.RedisURL)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	localEnv(t)
	t.Setenv("CHUNK_SIZE_CHARS", "500")
	t.Setenv("CHUNK_OVERLAP_CHARS", "50")
	t.Setenv("GENERATE_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT", "0.5")
	t.Setenv("STORE_TIMEOUT", "3s")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Ingest.ChunkSize != 500 || s.Ingest.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d, want 500/50", s.Ingest.ChunkSize, s.Ingest.ChunkOverlap)
	}
	if s.Retrieval.GenerateTimeout != 5*time.Second {
		t.Errorf("GenerateTimeout = %v", s.Retrieval.GenerateTimeout)
	}
	if s.Ingest.StoreTimeout != 3*time.Second || s.Retrieval.StoreTimeout != 3*time.Second {
		t.Errorf("StoreTimeout = %v (ingest) / %v (retrieval), want 3s", s.Ingest.StoreTimeout, s.Retrieval.StoreTimeout)
	}
	if s.Ingest.EmbedTimeout != s.Retrieval.EmbedTimeout {
		t.Errorf("ingest EmbedTimeout = %v, want %v", s.Ingest.EmbedTimeout, s.Retrieval.EmbedTimeout)
	}
	if s.Server.RateLimit != 0.5 {
		t.Errorf("RateLimit = %v", s.Server.RateLimit)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "overlap not below size",
			env:     map[string]string{"CHUNK_SIZE_CHARS": "100", "CHUNK_OVERLAP_CHARS": "100"},
			wantErr: "CHUNK_OVERLAP_CHARS",
		},
		{
			name:    "zero batch size",
			env:     map[string]string{"BATCH_SIZE": "0"},
			wantErr: "BATCH_SIZE",
		},
		{
			name:    "top_k default above max",
			env:     map[string]string{"TOP_K_DEFAULT": "20", "TOP_K_MAX": "10"},
			wantErr: "TOP_K_DEFAULT",
		},
		{
			name:    "top_k max above hard cap",
			env:     map[string]string{"TOP_K_MAX": "51"},
			wantErr: "TOP_K_MAX",
		},
		{
			name:    "malformed integer",
			env:     map[string]string{"SERVER_PORT": "eighty"},
			wantErr: "SERVER_PORT",
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"STORE_TIMEOUT": "10"},
			wantErr: "STORE_TIMEOUT",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"VECTOR_STORE": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "qdrant without host",
			env:     map[string]string{"VECTOR_STORE": "qdrant"},
			wantErr: "QDRANT_HOST",
		},
		{
			name:    "gemini embedder without key",
			env:     map[string]string{"EMBEDDING_PROVIDER": "gemini"},
			wantErr: "GOOGLE_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			localEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.1, "0.1"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
