package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetrieverConfig tunes a DefaultRetriever.
type RetrieverConfig struct {
	// MaxTopK is the largest topK a caller may request (default: MaxTopK).
	MaxTopK int

	// EmbedTimeout bounds the query embedding call. Zero means no bound
	// beyond the caller's context.
	EmbedTimeout time.Duration

	// SearchTimeout bounds the vector search call.
	SearchTimeout time.Duration
}

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorStore. It embeds the query at retrieval time and delegates
// similarity search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	cfg RetrieverConfig
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and VectorStore.
func NewRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.MaxTopK <= 0 || cfg.MaxTopK > MaxTopK {
		cfg.MaxTopK = MaxTopK
	}
	return &DefaultRetriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Retrieve embeds the query and returns at most topK passages in descending
// score order. Arguments are validated before any outbound call.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Errorf(ErrInvalidArgument, "retrieve", "query must not be empty")
	}
	if topK < 1 || topK > r.cfg.MaxTopK {
		return nil, Errorf(ErrInvalidArgument, "retrieve", "top_k must be between 1 and %d, got %d", r.cfg.MaxTopK, topK)
	}

	if err := ctx.Err(); err != nil {
		return nil, ContextError("retrieve", err)
	}
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, ContextError("retrieve", err)
	}
	hits, err := r.search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}
	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, Passage{
			DocID:   h.DocID,
			ChunkID: h.ChunkID,
			Title:   h.Title,
			Source:  h.Source,
			Date:    h.Date,
			Content: h.Content,
			Score:   h.Score,
		})
	}
	return passages, nil
}

func (r *DefaultRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := withOptionalTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	vec, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, Wrap(ErrEmbedding, "embed query", err)
	}
	return vec, nil
}

func (r *DefaultRetriever) search(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	ctx, cancel := withOptionalTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	hits, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, Wrap(ErrStoreRead, "vector search", err)
	}
	return hits, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
