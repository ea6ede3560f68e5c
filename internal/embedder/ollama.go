package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required; Ollama runs locally.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model string
	// dims is the expected vector length.
	dims int
	// client is the shared HTTP client with the configured timeout.
	client *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *Config) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaEmbedder{
		host:   strings.TrimRight(cfg.Endpoint, "/"),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		client: &http.Client{Timeout: timeout},
	}
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	const op = "ollama embed"

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, rag.Wrap(rag.ErrEmbedding, op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, rag.Wrap(rag.ErrEmbedding, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, rag.Wrap(rag.ErrEmbedding, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && result.Error != "" {
			msg = result.Error
		}
		return nil, statusError(op, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, rag.Wrap(rag.ErrEmbedding, op, fmt.Errorf("decode response: %w", decodeErr))
	}

	if err := checkVectors(op, len(texts), result.Embeddings, e.dims); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

// Name identifies the embedder in readiness output.
func (e *OllamaEmbedder) Name() string { return "ollama" }

// Ping checks that the Ollama server answers.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build ping request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: ping returned HTTP %d", resp.StatusCode)
	}
	return nil
}
