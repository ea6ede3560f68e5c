// Package audit records one structured log entry per CLI command with the
// configuration the command resolved, so operators can reconstruct which
// store, embedder and model a run used.
//
// Secrets are logged as presence only. Connection strings are logged with
// their credentials removed.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// redaction says how an env var's value appears in the audit entry.
type redaction int

const (
	plain redaction = iota
	secret
	dsn
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key  string
	mode redaction
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"GEMINI_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"OPENAI_BASE_URL", plain},
	{"OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"ARK_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_DIMENSIONS", plain},
	{"EMBEDDING_API_KEY", secret},
	{"VECTOR_STORE", plain},
	{"DATABASE_URL", dsn},
	{"PG_TABLE", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"SQLITE_PATH", plain},
	{"EMBED_CACHE_REDIS_URL", dsn},
	{"RAW_DIR", plain},
	{"CHUNK_SIZE_CHARS", plain},
	{"CHUNK_OVERLAP_CHARS", plain},
	{"BATCH_SIZE", plain},
	{"TOP_K_DEFAULT", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, entry.render(os.Getenv(entry.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the audit rendering of value for key: presence only
// for secrets, a credential-free URL for connection strings, and the value
// itself otherwise. Unknown keys are treated as plain.
func SanitiseKey(key, value string) string {
	for _, e := range auditKeys {
		if e.key == key {
			return e.render(value)
		}
	}
	return valOrUnset(value)
}

func (e auditEntry) render(v string) string {
	switch e.mode {
	case secret:
		return presence(v)
	case dsn:
		return redactURL(v)
	default:
		return valOrUnset(v)
	}
}

// redactURL drops the userinfo and query of a connection URL. A value that
// does not parse is reported as set/unset only.
func redactURL(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return "set"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
