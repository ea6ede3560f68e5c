package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sntprz/ai-assistant/internal/rag"
)

const testDim = 3

// openTestStores returns every backend that runs without external services.
func openTestStores(t *testing.T) map[string]rag.VectorStore {
	t.Helper()
	sq, err := NewSQLiteStore(SQLiteConfig{Path: ":memory:"}, testDim, rag.MaxTopK)
	if err != nil {
		t.Fatalf("open in-memory sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]rag.VectorStore{
		"memory": NewMemoryStore(testDim, rag.MaxTopK),
		"sqlite": sq,
	}
}

func row(id string, vec ...float32) rag.EmbeddedChunk {
	return rag.EmbeddedChunk{
		Chunk: rag.Chunk{
			ID:      id,
			DocID:   "doc-" + id,
			Title:   "title " + id,
			Content: "content " + id,
			Source:  "user",
		},
		Embedding: vec,
	}
}

func Test_Store_SearchOrdersByCosine(t *testing.T) {
	t.Parallel()
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			n, err := s.Upsert(ctx, []rag.EmbeddedChunk{
				row("a", 1, 0, 0),
				row("b", 0.8, 0.2, 0),
				row("c", 0, 0, 1),
			})
			if err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if n != 3 {
				t.Fatalf("want 3 written, got %d", n)
			}

			hits, err := s.Search(ctx, []float32{1, 0, 0}, 2)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(hits) != 2 {
				t.Fatalf("want 2 hits, got %d", len(hits))
			}
			if hits[0].ChunkID != "a" || hits[1].ChunkID != "b" {
				t.Errorf("want [a b], got [%s %s]", hits[0].ChunkID, hits[1].ChunkID)
			}
			if hits[0].Score < hits[1].Score {
				t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
			}
			if hits[0].Content != "content a" || hits[0].DocID != "doc-a" || hits[0].Source != "user" {
				t.Errorf("record fields not round-tripped: %+v", hits[0].Record)
			}
		})
	}
}

func Test_Store_UpsertOverwrites(t *testing.T) {
	t.Parallel()
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Upsert(ctx, []rag.EmbeddedChunk{row("a", 1, 0, 0)}); err != nil {
				t.Fatalf("first upsert: %v", err)
			}
			updated := row("a", 0, 1, 0)
			updated.Content = "rewritten"
			if _, err := s.Upsert(ctx, []rag.EmbeddedChunk{updated}); err != nil {
				t.Fatalf("second upsert: %v", err)
			}

			hits, err := s.Search(ctx, []float32{0, 1, 0}, 10)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(hits) != 1 {
				t.Fatalf("want 1 row after overwrite, got %d", len(hits))
			}
			if hits[0].Content != "rewritten" {
				t.Errorf("want rewritten content, got %q", hits[0].Content)
			}
		})
	}
}

func Test_Store_DimensionMismatch(t *testing.T) {
	t.Parallel()
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Upsert(ctx, []rag.EmbeddedChunk{row("ok", 1, 0, 0), row("bad", 1, 0)})
			if !errors.Is(err, rag.ErrDimensionMismatch) || !errors.Is(err, rag.ErrStoreWrite) {
				t.Fatalf("want store write + dimension mismatch, got %v", err)
			}

			// Nothing from the rejected batch is visible.
			hits, err := s.Search(ctx, []float32{1, 0, 0}, 5)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(hits) != 0 {
				t.Errorf("want empty store, got %d hits", len(hits))
			}

			_, err = s.Search(ctx, []float32{1, 0}, 5)
			if !errors.Is(err, rag.ErrDimensionMismatch) || !errors.Is(err, rag.ErrStoreRead) {
				t.Errorf("want store read + dimension mismatch, got %v", err)
			}
		})
	}
}

func Test_Store_EmptySearchAndTies(t *testing.T) {
	t.Parallel()
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			hits, err := s.Search(ctx, []float32{1, 0, 0}, 5)
			if err != nil {
				t.Fatalf("search empty: %v", err)
			}
			if len(hits) != 0 {
				t.Fatalf("want no hits, got %d", len(hits))
			}

			if _, err := s.Upsert(ctx, []rag.EmbeddedChunk{row("z", 1, 0, 0), row("m", 2, 0, 0)}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			hits, err = s.Search(ctx, []float32{1, 0, 0}, 5)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(hits) != 2 || hits[0].ChunkID != "m" || hits[1].ChunkID != "z" {
				t.Errorf("equal scores must break ties by chunk id, got %+v", hits)
			}
		})
	}
}

func Test_Store_DateRoundTrip(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dated := row("d", 1, 0, 0)
			dated.CreatedAt = created
			if _, err := s.Upsert(ctx, []rag.EmbeddedChunk{dated, row("u", 0, 1, 0)}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			hits, err := s.Search(ctx, []float32{1, 0, 0}, 2)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if hits[0].Date == nil || !hits[0].Date.Equal(created) {
				t.Errorf("want date %v, got %v", created, hits[0].Date)
			}
			if hits[1].Date != nil {
				t.Errorf("undated chunk must have nil date, got %v", hits[1].Date)
			}
		})
	}
}

func Test_SQLiteStore_ReopenChecksDimensions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vectors.db")

	s, err := NewSQLiteStore(SQLiteConfig{Path: path}, testDim, rag.MaxTopK)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Upsert(context.Background(), []rag.EmbeddedChunk{row("a", 1, 0, 0)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := NewSQLiteStore(SQLiteConfig{Path: path}, testDim, rag.MaxTopK)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, err := again.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 persisted row, got %d", n)
	}
	_ = again.Close()

	if _, err := NewSQLiteStore(SQLiteConfig{Path: path}, 8, rag.MaxTopK); !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("want dimension mismatch on reopen with 8 dims, got %v", err)
	}
}

func Test_MemoryStore_CopiesEmbedding(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(testDim, rag.MaxTopK)
	r := row("a", 1, 0, 0)
	if _, err := s.Upsert(context.Background(), []rag.EmbeddedChunk{r}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.Embedding[0] = -1

	hits, err := s.Search(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("caller mutation leaked into store, score %v", hits[0].Score)
	}
	if s.Len() != 1 {
		t.Errorf("want len 1, got %d", s.Len())
	}
}

func Test_Config_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Backend: BackendMemory, Dimensions: 3}, false},
		{"sqlite", Config{Backend: BackendSQLite, Dimensions: 3}, false},
		{"postgres with url", Config{Backend: BackendPostgres, Dimensions: 3, Postgres: PostgresConfig{URL: "postgres://x"}}, false},
		{"postgres without url", Config{Backend: BackendPostgres, Dimensions: 3}, true},
		{"qdrant without host", Config{Backend: BackendQdrant, Dimensions: 3}, true},
		{"qdrant with host", Config{Backend: BackendQdrant, Dimensions: 3, Qdrant: QdrantConfig{Host: "localhost"}}, false},
		{"zero dimensions", Config{Backend: BackendMemory}, true},
		{"unknown backend", Config{Backend: "chroma", Dimensions: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_ConfigFromEnv(t *testing.T) {
	t.Setenv("VECTOR_STORE", "qdrant")
	t.Setenv("QDRANT_HOST", "qdrant.local")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("QDRANT_TLS", "true")
	t.Setenv("TOP_K_MAX", "20")

	cfg := ConfigFromEnv(768)
	if cfg.Backend != BackendQdrant || cfg.Dimensions != 768 || cfg.MaxK != 20 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Qdrant.Host != "qdrant.local" || cfg.Qdrant.Port != 7000 || !cfg.Qdrant.UseTLS {
		t.Errorf("unexpected qdrant config: %+v", cfg.Qdrant)
	}
	if cfg.Qdrant.Collection != "documents" || cfg.Postgres.Table != "documents" {
		t.Errorf("want default collection and table names, got %q / %q", cfg.Qdrant.Collection, cfg.Postgres.Table)
	}
}

func Test_New_Memory(t *testing.T) {
	t.Parallel()
	s, err := New(context.Background(), Config{Backend: BackendMemory, Dimensions: 4, MaxK: 500})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if s.Name() != "memory" {
		t.Errorf("want memory backend, got %s", s.Name())
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func Test_TableIdent(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]string{
		"documents": `"documents"`,
		"Docs":      `"Docs"`,
		"my_Table2": `"my_Table2"`,
	} {
		if got := tableIdent(name); got != want {
			t.Errorf("tableIdent(%q) = %s, want %s", name, got, want)
		}
	}
}
