package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/sntprz/ai-assistant/internal/rag"
)

// SQLiteConfig holds the settings for a local SQLite vector store.
type SQLiteConfig struct {
	// Path is the database file. Empty means DefaultSQLitePath; ":memory:"
	// gives a private in-memory database for tests.
	Path string
}

// SQLiteStore is a VectorStore backed by a local SQLite database. Vectors
// are stored as little-endian float32 blobs and searched by brute force,
// which suits corpora up to a few hundred thousand chunks.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db   *sql.DB
	dim  int
	maxK int
}

// DefaultSQLitePath returns ~/.assistant/vectors.db, creating the directory
// if needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("vectorstore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".assistant")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("vectorstore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "vectors.db"), nil
}

// NewSQLiteStore opens (or creates) the database and runs the schema
// migration. Opening a database created for a different dimension fails
// with rag.ErrDimensionMismatch.
func NewSQLiteStore(cfg SQLiteConfig, dim, maxK int) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		p, err := DefaultSQLitePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	dsn := path
	if path != ":memory:" {
		// WAL mode improves concurrent read performance and is safe for single-host use.
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dim: dim, maxK: maxK}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist and pins the
// vector dimension.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id   TEXT    PRIMARY KEY,
    doc_id     TEXT    NOT NULL,
    title      TEXT    NOT NULL DEFAULT '',
    content    TEXT    NOT NULL,
    source     TEXT    NOT NULL DEFAULT '',
    created_at INTEGER,            -- Unix timestamp (seconds), NULL when unknown
    seq        INTEGER NOT NULL DEFAULT 0,
    embedding  BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id, seq);
CREATE TABLE IF NOT EXISTS store_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("vectorstore: sqlite migrate: %w", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO store_meta (key, value) VALUES ('dimensions', ?)`, strconv.Itoa(s.dim)); err != nil {
			return fmt.Errorf("vectorstore: sqlite record dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("vectorstore: sqlite read dimensions: %w", err)
	default:
		if stored != strconv.Itoa(s.dim) {
			return fmt.Errorf("vectorstore: sqlite database holds %s-dimensional vectors, configured %d: %w",
				stored, s.dim, rag.ErrDimensionMismatch)
		}
	}
	return nil
}

// Upsert implements rag.VectorStore. All rows are written in one
// transaction, so a failure leaves the store unchanged.
func (s *SQLiteStore) Upsert(ctx context.Context, rows []rag.EmbeddedChunk) (int, error) {
	const op = "sqlite upsert"
	if err := rag.CheckDimensions(op, rows, s.dim); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rag.Wrap(rag.ErrStoreWrite, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (chunk_id, doc_id, title, content, source, created_at, seq, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (chunk_id) DO UPDATE SET
    doc_id = excluded.doc_id, title = excluded.title, content = excluded.content,
    source = excluded.source, created_at = excluded.created_at, seq = excluded.seq,
    embedding = excluded.embedding`)
	if err != nil {
		return 0, rag.Wrap(rag.ErrStoreWrite, op, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var created sql.NullInt64
		if !r.CreatedAt.IsZero() {
			created = sql.NullInt64{Int64: r.CreatedAt.Unix(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocID, r.Title, r.Content, r.Source, created, r.Seq, rag.EncodeVector(r.Embedding)); err != nil {
			return 0, rag.Wrap(rag.ErrStoreWrite, op, fmt.Errorf("chunk %s: %w", r.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, rag.Wrap(rag.ErrStoreWrite, op, err)
	}
	return len(rows), nil
}

// Search implements rag.VectorStore.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	const op = "sqlite search"
	if len(query) != s.dim {
		return nil, rag.Wrap(rag.ErrStoreRead, op, dimError(len(query), s.dim))
	}
	k = rag.ClampK(k, s.maxK)

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, doc_id, title, content, source, created_at, seq, embedding FROM chunks`)
	if err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, op, err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var (
			h       rag.Hit
			created sql.NullInt64
			blob    []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.DocID, &h.Title, &h.Content, &h.Source, &created, &h.Seq, &blob); err != nil {
			return nil, rag.Wrap(rag.ErrStoreRead, op, err)
		}
		vec, err := rag.DecodeVector(blob)
		if err != nil {
			return nil, rag.Wrap(rag.ErrStoreRead, op, fmt.Errorf("chunk %s: %w", h.ChunkID, err))
		}
		if created.Valid {
			t := time.Unix(created.Int64, 0).UTC()
			h.Date = &t
		}
		h.Score = rag.Cosine(query, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, rag.Wrap(rag.ErrStoreRead, op, err)
	}
	return rag.RankHits(hits, k), nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, rag.Wrap(rag.ErrStoreRead, "sqlite count", err)
	}
	return n, nil
}

// Ping implements rag.VectorStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Name implements rag.VectorStore.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("vectorstore: sqlite close: %w", err)
	}
	return nil
}
