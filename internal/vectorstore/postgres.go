package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// PostgresConfig holds connection parameters for a Postgres database with
// the pgvector extension installed.
type PostgresConfig struct {
	// URL is a libpq-style connection string or postgres:// URL.
	URL string

	// Table is the table holding chunks (default: documents).
	Table string
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore implements rag.VectorStore on a pgvector table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
	dim   int
	maxK  int
}

// NewPostgresStore connects to the database, creates the table and its
// cosine index if missing, and checks the embedding column matches dim.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, dim, maxK int) (*PostgresStore, error) {
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("vectorstore: invalid postgres table name %q", cfg.Table)
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	s := &PostgresStore{
		pool:  pool,
		table: tableIdent(cfg.Table),
		dim:   dim,
		maxK:  maxK,
	}
	if err := s.ensureTable(ctx, cfg.Table); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// tableIdent quotes name so mixed-case tables keep their case.
func tableIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *PostgresStore) ensureTable(ctx context.Context, name string) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %[1]s (
    chunk_id  TEXT PRIMARY KEY,
    doc_id    TEXT NOT NULL,
    title     TEXT,
    content   TEXT NOT NULL,
    source    TEXT,
    date      TIMESTAMPTZ,
    seq       INTEGER NOT NULL DEFAULT 0,
    embedding vector(%[2]d) NOT NULL
);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, s.table, s.dim, pgx.Identifier{name + "_embedding_idx"}.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: failed to ensure table %s: %w", name, err)
	}

	// pgvector stores the declared dimension in atttypmod. The regclass
	// cast folds unquoted names, so it gets the same quoted form as the DDL.
	var have int
	err := s.pool.QueryRow(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE attrelid = $1::text::regclass AND attname = 'embedding'`, s.table).Scan(&have)
	if err != nil {
		return fmt.Errorf("postgres: failed to read embedding dimension: %w", err)
	}
	if have > 0 && have != s.dim {
		return fmt.Errorf("postgres: table %s holds %d-dimensional vectors, configured %d: %w",
			name, have, s.dim, rag.ErrDimensionMismatch)
	}
	return nil
}

// Upsert implements rag.VectorStore. Rows are written in one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, rows []rag.EmbeddedChunk) (int, error) {
	const op = "postgres upsert"
	if err := rag.CheckDimensions(op, rows, s.dim); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (chunk_id, doc_id, title, content, source, date, seq, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::vector)
ON CONFLICT (chunk_id) DO UPDATE SET
    doc_id = EXCLUDED.doc_id, title = EXCLUDED.title, content = EXCLUDED.content,
    source = EXCLUDED.source, date = EXCLUDED.date, seq = EXCLUDED.seq,
    embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, r := range rows {
		var date *time.Time
		if !r.CreatedAt.IsZero() {
			d := r.CreatedAt
			date = &d
		}
		batch.Queue(query, r.ID, r.DocID, r.Title, r.Content, r.Source, date, r.Seq,
			pgvector.NewVector(r.Embedding).String())
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, rag.Wrap(rag.ErrStoreWrite, op, err)
	}
	return len(rows), nil
}

// Search implements rag.VectorStore. Score is 1 minus pgvector's cosine
// distance, so it matches rag.Cosine.
func (s *PostgresStore) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	const op = "postgres search"
	if len(query) != s.dim {
		return nil, rag.Wrap(rag.ErrStoreRead, op, dimError(len(query), s.dim))
	}
	k = rag.ClampK(k, s.maxK)

	stmt := fmt.Sprintf(`
SELECT chunk_id, doc_id, title, content, source, date, seq,
       1 - (embedding <=> $1::text::vector) AS score
FROM %s
ORDER BY embedding <=> $1::text::vector, chunk_id
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, stmt, pgvector.NewVector(query).String(), k)
	if err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, op, err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var (
			h             rag.Hit
			title, source *string
			score         float64
		)
		if err := rows.Scan(&h.ChunkID, &h.DocID, &title, &h.Content, &source, &h.Date, &h.Seq, &score); err != nil {
			return nil, rag.Wrap(rag.ErrStoreRead, op, err)
		}
		if title != nil {
			h.Title = *title
		}
		if source != nil {
			h.Source = *source
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, op, err)
	}
	// Re-rank so ties order exactly like the other backends.
	return rag.RankHits(hits, k), nil
}

// Ping implements rag.VectorStore.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Name implements rag.VectorStore.
func (s *PostgresStore) Name() string { return "postgres" }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
