// Package tracing wires Langfuse into the eino callback chain so every chat
// model call made while answering a query is traced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/sntprz/ai-assistant/internal/version"
)

const defaultHost = "http://localhost:3000"

// Config holds Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup builds the Langfuse callback handler. It returns a flush function
// that must be called before process exit so buffered traces are sent.
// If Langfuse is not configured the handler and flush are nil and ok is
// false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "assistant.answer",
		Release:   version.Version,
	})
	return handler, flush, true
}

// Install registers the Langfuse handler globally when configured and
// returns the flush function, or a no-op when tracing is disabled.
func Install(cfg Config) (flush func(), ok bool) {
	handler, flush, ok := Setup(cfg)
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
