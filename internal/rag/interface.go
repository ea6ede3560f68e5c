// Package rag defines the data model and the interfaces shared by the
// retrieval-augmented answering pipeline: embedding, vector storage and
// passage retrieval. Concrete backends (Postgres, Qdrant, SQLite, Gemini,
// OpenAI, Ollama) satisfy these interfaces so the ingestion and answer
// layers never depend on a specific provider.
package rag

import (
	"context"
	"time"
)

// Document is the plain-text rendition of one source file.
type Document struct {
	// ID is a stable identifier derived from the file's path relative to the
	// ingestion root.
	ID string

	// Title is the file base name without its extension.
	Title string

	// Text is the normalized extracted text.
	Text string

	// Source is a label describing where the document came from.
	Source string

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time
}

// Chunk is a contiguous slice of a Document's text.
type Chunk struct {
	// ID is deterministic over (Title, Content).
	ID string

	DocID     string
	Title     string
	Content   string
	Source    string
	CreatedAt time.Time

	// Seq is the zero-based position of the chunk within its document.
	Seq int
}

// EmbeddedChunk pairs a Chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// Record is the stored form of a chunk as returned by a VectorStore.
// Optional fields may be empty.
type Record struct {
	ChunkID string
	DocID   string
	Title   string
	Content string
	Source  string
	Date    *time.Time
	Seq     int
}

// Hit is a Record with its cosine similarity to the query vector.
type Hit struct {
	Record
	Score float32
}

// Passage is a retrieved chunk prepared for prompt assembly and citation.
type Passage struct {
	DocID   string     `json:"doc_id"`
	ChunkID string     `json:"chunk_id"`
	Title   string     `json:"title"`
	Source  string     `json:"source"`
	Date    *time.Time `json:"date,omitempty"`
	Content string     `json:"content"`
	Score   float32    `json:"score"`
}

// QueryResult is the answer to one query with the passages it was grounded
// on, in retrieval order.
type QueryResult struct {
	Answer    string    `json:"answer"`
	Sources   []Passage `json:"sources"`
	LatencyMS int64     `json:"latency_ms"`
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order. An empty
	// input returns an empty result without contacting the provider.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists embedded chunks and answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert inserts or replaces rows keyed by chunk ID and reports how many
	// rows were written. A row whose embedding length differs from the
	// store's dimension fails the whole call with ErrStoreWrite.
	Upsert(ctx context.Context, rows []EmbeddedChunk) (int, error)

	// Search returns at most k hits ordered by descending cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Name identifies the backend in logs and readiness output.
	Name() string

	// Close releases any resources held by the store.
	Close() error
}

// Retriever fetches the passages most relevant to a natural-language query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// EmbedOne embeds a single text with e.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, Wrap(ErrEmbedding, "embed", errEmbedCount(1, len(vecs)))
	}
	return vecs[0], nil
}
