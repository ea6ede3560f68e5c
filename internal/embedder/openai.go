package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings API through go-openai. It is safe for concurrent use.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
	// name is "openai" or "azure".
	name string
	op   string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder. cfg.Backend selects
// OpenAI or Azure style authentication and URLs.
func NewOpenAIEmbedder(cfg *Config) *OpenAIEmbedder {
	var clientCfg openai.ClientConfig
	name := "openai"
	if cfg.Backend == BackendAzure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		// Use the deployment name as-is; the default mapper strips dots.
		clientCfg.AzureModelMapperFunc = func(model string) string { return model }
		name = "azure"
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = cfg.Endpoint
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
		dims:   cfg.Dimensions,
		name:   name,
		op:     name + " embed",
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The API may return data out of order; results are placed by index.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dims > 0 {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, e.parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, rag.Errorf(rag.ErrEmbedding, e.op, "expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, rag.Errorf(rag.ErrEmbedding, e.op, "index %d out of range [0, %d)", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	if err := checkVectors(e.op, len(texts), out, e.dims); err != nil {
		return nil, err
	}
	return out, nil
}

// parseAPIError extracts a human-readable error from the API response.
func (e *OpenAIEmbedder) parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(e.op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		return statusError(e.op, reqErr.HTTPStatusCode, msg)
	}
	return rag.Wrap(rag.ErrEmbedding, e.op, err)
}

// extractDetail pulls the "detail" field some OpenAI-compatible servers use
// for error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// Name identifies the embedder in readiness output.
func (e *OpenAIEmbedder) Name() string { return e.name }

// Ping lists models, which costs no tokens.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s: list models: %w", e.Name(), err)
	}
	return nil
}
