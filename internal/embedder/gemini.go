package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// geminiMaxBatch is the largest number of inputs the Gemini API accepts in
// one batch embedding request.
const geminiMaxBatch = 100

// GeminiEmbedder implements rag.Embedder with the Google Gen AI SDK.
// It is safe for concurrent use.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGeminiEmbedder constructs a GeminiEmbedder against the Gemini API.
// cfg.Endpoint, when set, overrides the API base URL.
func NewGeminiEmbedder(ctx context.Context, cfg *Config) (*GeminiEmbedder, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed converts a batch of texts into their corresponding embeddings,
// splitting into API-sized sub-batches as needed.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "gemini embed"
	out := make([][]float32, 0, len(texts))

	for offset := 0; offset < len(texts); offset += geminiMaxBatch {
		end := min(offset+geminiMaxBatch, len(texts))
		part := texts[offset:end]

		contents := make([]*genai.Content, len(part))
		for i, t := range part {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}
		cfg := &genai.EmbedContentConfig{}
		if e.dims > 0 {
			d := int32(e.dims)
			cfg.OutputDimensionality = &d
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, parseGeminiError(op, err)
		}
		if resp == nil || len(resp.Embeddings) != len(part) {
			got := 0
			if resp != nil {
				got = len(resp.Embeddings)
			}
			return nil, rag.Errorf(rag.ErrEmbedding, op, "expected %d embeddings, got %d", len(part), got)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, rag.Errorf(rag.ErrEmbedding, op, "empty embedding in response")
			}
			out = append(out, emb.Values)
		}
	}

	if err := checkVectors(op, len(texts), out, e.dims); err != nil {
		return nil, err
	}
	return out, nil
}

func parseGeminiError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.Code, apiErr.Message)
	}
	return rag.Wrap(rag.ErrEmbedding, op, err)
}

// Name identifies the embedder in readiness output.
func (e *GeminiEmbedder) Name() string { return "gemini" }
