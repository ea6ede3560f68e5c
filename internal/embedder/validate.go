package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelMarkers are name fragments of chat models. Pointing EMBEDDING_MODEL
// at one of them is legal on some backends but yields useless vectors.
var chatModelMarkers = []string{
	"gpt-", "o1", "o3", "o4",
	"llama2", "llama3", "llama-2", "llama-3",
	"mistral", "mixtral", "gemma", "gemini-1", "gemini-2",
	"phi-", "phi3", "claude", "command-r", "deepseek", "qwen",
}

// knownDimensions lists the native output size of common embedding models.
var knownDimensions = map[string]int{
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, m := range chatModelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Warnings lists configuration that validates but is probably a mistake.
// inherited reports whether the backend came from MODEL_PROVIDER rather
// than EMBEDDING_PROVIDER.
func Warnings(cfg Config, inherited bool) []string {
	var out []string
	if inherited {
		out = append(out, fmt.Sprintf(
			"EMBEDDING_PROVIDER is not set; using MODEL_PROVIDER=%s for embeddings", cfg.Backend))
	}
	if looksLikeChatModel(cfg.Model) {
		out = append(out, fmt.Sprintf(
			"EMBEDDING_MODEL=%s looks like a chat model; use a dedicated embedding model", cfg.Model))
	}
	// Gemini and OpenAI v3 models truncate to the requested size, so only a
	// larger request than the native size is certainly wrong there.
	if native, ok := knownDimensions[strings.ToLower(cfg.Model)]; ok {
		truncates := cfg.Backend == BackendGemini || strings.HasPrefix(cfg.Model, "text-embedding-3")
		if cfg.Dimensions > native || (!truncates && cfg.Dimensions != native) {
			out = append(out, fmt.Sprintf(
				"EMBEDDING_DIMENSIONS=%d does not match %s (native %d); every write will fail the dimension check",
				cfg.Dimensions, cfg.Model, native))
		}
	}
	return out
}

// Warn logs every warning for cfg. Call it once at startup.
func Warn(log *slog.Logger, cfg Config) {
	inherited := os.Getenv("EMBEDDING_PROVIDER") == "" && os.Getenv("MODEL_PROVIDER") != ""
	for _, w := range Warnings(cfg, inherited) {
		log.Warn("embedder: "+w,
			slog.String("backend", string(cfg.Backend)),
			slog.String("model", cfg.Model),
		)
	}
}
