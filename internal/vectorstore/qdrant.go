package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Payload field names.
const (
	fieldChunkID = "chunk_id"
	fieldDocID   = "doc_id"
	fieldTitle   = "title"
	fieldContent = "content"
	fieldSource  = "source"
	fieldDate    = "date"
	fieldSeq     = "seq"
)

// QdrantStore implements rag.VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	dim  int
	maxK int
}

// NewQdrantStore connects to Qdrant and ensures the target collection exists
// with a cosine vector space of size dim.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig, dim, maxK int) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg, dim: dim, maxK: maxK}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the collection if it does not already exist and
// otherwise checks its vector size.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(s.dim) {
		return fmt.Errorf("qdrant: collection %q holds %d-dimensional vectors, configured %d: %w",
			s.cfg.Collection, size, s.dim, rag.ErrDimensionMismatch)
	}
	return nil
}

// Upsert implements rag.VectorStore. Point IDs are the chunk UUIDs, so
// re-ingesting a chunk overwrites it.
func (s *QdrantStore) Upsert(ctx context.Context, rows []rag.EmbeddedChunk) (int, error) {
	const op = "qdrant upsert"
	if err := rag.CheckDimensions(op, rows, s.dim); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(rows))
	for _, r := range rows {
		payload := map[string]any{
			fieldChunkID: r.ID,
			fieldDocID:   r.DocID,
			fieldTitle:   r.Title,
			fieldContent: r.Content,
			fieldSource:  r.Source,
			fieldSeq:     int64(r.Seq),
		}
		if !r.CreatedAt.IsZero() {
			payload[fieldDate] = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, rag.Wrap(rag.ErrStoreWrite, op, err)
	}
	return len(rows), nil
}

// Search implements rag.VectorStore.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	const op = "qdrant search"
	if len(query) != s.dim {
		return nil, rag.Wrap(rag.ErrStoreRead, op, dimError(len(query), s.dim))
	}
	limit := uint64(rag.ClampK(k, s.maxK))

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, op, err)
	}

	hits := make([]rag.Hit, 0, len(results))
	for _, r := range results {
		h := rag.Hit{Score: r.Score}
		h.ChunkID = r.Id.GetUuid()
		if p := r.Payload; p != nil {
			h.DocID = p[fieldDocID].GetStringValue()
			h.Title = p[fieldTitle].GetStringValue()
			h.Content = p[fieldContent].GetStringValue()
			h.Source = p[fieldSource].GetStringValue()
			h.Seq = int(p[fieldSeq].GetIntegerValue())
			if v := p[fieldDate].GetStringValue(); v != "" {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					h.Date = &t
				}
			}
		}
		hits = append(hits, h)
	}
	return rag.RankHits(hits, int(limit)), nil
}

// Ping implements rag.VectorStore.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Name implements rag.VectorStore.
func (s *QdrantStore) Name() string { return "qdrant" }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
