package vectorstore

import (
	"context"
	"sync"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// MemoryStore is an in-process VectorStore with brute-force cosine search.
// It is used by tests and by the CLI when no persistent backend is wanted.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]rag.EmbeddedChunk
	dim  int
	maxK int
}

// NewMemoryStore returns an empty store for vectors of length dim.
func NewMemoryStore(dim, maxK int) *MemoryStore {
	return &MemoryStore{rows: make(map[string]rag.EmbeddedChunk), dim: dim, maxK: maxK}
}

// Upsert implements rag.VectorStore.
func (s *MemoryStore) Upsert(_ context.Context, rows []rag.EmbeddedChunk) (int, error) {
	if err := rag.CheckDimensions("memory upsert", rows, s.dim); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		r.Embedding = append([]float32(nil), r.Embedding...)
		s.rows[r.ID] = r
	}
	return len(rows), nil
}

// Search implements rag.VectorStore.
func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if len(query) != s.dim {
		return nil, rag.Wrap(rag.ErrStoreRead, "memory search", dimError(len(query), s.dim))
	}
	if err := ctx.Err(); err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, "memory search", err)
	}
	k = rag.ClampK(k, s.maxK)

	s.mu.RLock()
	hits := make([]rag.Hit, 0, len(s.rows))
	for _, r := range s.rows {
		hits = append(hits, rag.Hit{Record: recordOf(r.Chunk), Score: rag.Cosine(query, r.Embedding)})
	}
	s.mu.RUnlock()

	return rag.RankHits(hits, k), nil
}

// Len reports the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Ping implements rag.VectorStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Name implements rag.VectorStore.
func (s *MemoryStore) Name() string { return "memory" }

// Close implements rag.VectorStore.
func (s *MemoryStore) Close() error { return nil }

func recordOf(c rag.Chunk) rag.Record {
	r := rag.Record{
		ChunkID: c.ID,
		DocID:   c.DocID,
		Title:   c.Title,
		Content: c.Content,
		Source:  c.Source,
		Seq:     c.Seq,
	}
	if !c.CreatedAt.IsZero() {
		d := c.CreatedAt
		r.Date = &d
	}
	return r
}
