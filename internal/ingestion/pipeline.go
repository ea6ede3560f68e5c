// Package ingestion implements the document ingestion pipeline.
// It walks a directory of files, extracts their text in parallel, chunks
// it, embeds the chunks in fixed-size batches, and upserts the results into
// the vector store. Per-file and per-batch failures are recorded in the
// Report and the run continues; only systemic failures abort it.
// This pipeline is invoked by the `assistant ingest` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sntprz/ai-assistant/internal/chunker"
	"github.com/sntprz/ai-assistant/internal/extract"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/rag"
)

// ErrSystemic marks a failure that aborts the whole run: the store is
// unreachable, the root cannot be read, too many consecutive batches
// failed, or the run was cancelled.
var ErrSystemic = errors.New("ingestion: systemic failure")

// Extractor turns raw bytes into normalized text. *extract.Registry
// satisfies it.
type Extractor interface {
	Extract(ctx context.Context, data []byte, format extract.Format) (string, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to chunker.DefaultSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by adjacent chunks.
	// Zero is a valid overlap; DefaultConfig sets chunker.DefaultOverlap.
	ChunkOverlap int

	// BatchSize is the number of chunks per embedding request and upsert.
	// Defaults to 32 if zero.
	BatchSize int

	// Workers bounds the number of files extracted concurrently.
	// Defaults to 4 if zero.
	Workers int

	// MaxRetries is the number of retries per batch for retryable
	// embedding or store errors. Defaults to 3; negative disables retries.
	MaxRetries int

	// MaxConsecutiveFailures is the number of failed batches in a row that
	// aborts the run. Defaults to 3 if zero.
	MaxConsecutiveFailures int

	// Source labels every ingested document. Defaults to "user".
	Source string

	// MaxFileBytes skips files larger than this. Defaults to 50 MiB.
	MaxFileBytes int64

	// RetryInitialInterval and RetryMaxInterval shape the exponential
	// backoff between batch retries. Default to 500ms and 10s.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// EmbedTimeout bounds each embedding attempt and StoreTimeout each
	// upsert attempt and the pre-flight ping. Zero means no bound beyond
	// the caller's context.
	EmbedTimeout time.Duration
	StoreTimeout time.Duration

	// Now stamps documents with their ingestion time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    chunker.DefaultSize,
		ChunkOverlap: chunker.DefaultOverlap,
		BatchSize:    32,
		Workers:      4,
		MaxRetries:   3,
	}
}

// Pipeline orchestrates the walk → extract → chunk → embed → upsert flow for
// a directory of documents.
type Pipeline struct {
	// extractor converts raw file bytes into text.
	extractor Extractor

	// chunker splits document text into overlapping chunks.
	chunker *chunker.Chunker

	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// It fails with rag.ErrInvalidArgument when the chunk parameters are invalid.
func NewPipeline(extractor Extractor, embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.Source == "" {
		c.Source = "user"
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 50 << 20
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	ch, err := chunker.New(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	return &Pipeline{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		cfg:       c,
	}, nil
}

// item is one unique chunk queued for embedding, with the indexes of every
// file that produced it.
type item struct {
	chunk rag.Chunk
	files []int
}

// Run ingests every file under root. The returned Report is non-nil whenever
// discovery succeeded, including when the run is aborted; the error is nil
// unless the failure was systemic, in which case it matches ErrSystemic.
// Progress messages are reported via the optional progress callback.
func (p *Pipeline) Run(ctx context.Context, root string, progress func(msg string)) (*Report, error) {
	start := time.Now()
	log := logging.FromContext(ctx)
	if progress == nil {
		progress = func(string) {}
	}

	if err := p.ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: store %s unreachable: %w", ErrSystemic, p.store.Name(), err)
	}

	files, err := Discover(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSystemic, err)
	}
	progress(fmt.Sprintf("found %d files under %s", len(files), root))

	report := &Report{Files: make([]FileResult, len(files))}
	defer func() { report.Duration = time.Since(start) }()

	docs, err := p.extractAll(ctx, files, report)
	if err != nil {
		return report, fmt.Errorf("%w: extraction interrupted: %w", ErrSystemic, err)
	}

	// Chunk in file order and dedupe by chunk ID so identical content is
	// embedded once per run.
	var items []item
	index := map[string]int{}
	total := make([]int, len(files))
	for fi, doc := range docs {
		if doc == nil {
			continue
		}
		for _, c := range p.chunker.Chunk(*doc) {
			total[fi]++
			if at, ok := index[c.ID]; ok {
				items[at].files = append(items[at].files, fi)
				continue
			}
			index[c.ID] = len(items)
			items = append(items, item{chunk: c, files: []int{fi}})
		}
	}

	written := make([]int, len(files))
	attempted := make([]int, len(files))
	fileErr := make([]error, len(files))
	batches := (len(items) + p.cfg.BatchSize - 1) / p.cfg.BatchSize
	consecutive := 0

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			p.finish(report, docs, total, attempted, written, fileErr)
			return report, fmt.Errorf("%w: %w", ErrSystemic, err)
		}
		batch := items[b*p.cfg.BatchSize : min((b+1)*p.cfg.BatchSize, len(items))]

		n, err := p.writeBatch(ctx, batch)
		for _, it := range batch {
			for _, fi := range it.files {
				attempted[fi]++
				if err != nil {
					fileErr[fi] = err
				} else {
					written[fi]++
				}
			}
		}
		if err != nil {
			report.BatchesFailed++
			consecutive++
			log.Error("ingestion: batch failed",
				slog.Int("batch", b+1),
				slog.Int("batches", batches),
				slog.Int("chunks", len(batch)),
				slog.Any("error", err),
			)
			progress(fmt.Sprintf("batch %d/%d failed: %v", b+1, batches, err))
			if consecutive >= p.cfg.MaxConsecutiveFailures {
				p.finish(report, docs, total, attempted, written, fileErr)
				return report, fmt.Errorf("%w: %d consecutive batches failed: %w", ErrSystemic, consecutive, err)
			}
			continue
		}
		consecutive = 0
		report.BatchesWritten++
		report.ChunksWritten += n
		progress(fmt.Sprintf("batch %d/%d: wrote %d chunks", b+1, batches, n))
	}

	p.finish(report, docs, total, attempted, written, fileErr)
	log.Info("ingestion: run complete",
		slog.Int("files", len(files)),
		slog.Int("ingested", report.Count(StatusIngested)),
		slog.Int("skipped", report.Count(StatusSkipped)),
		slog.Int("failed", report.Count(StatusFailed)),
		slog.Int("chunks_written", report.ChunksWritten),
	)
	return report, nil
}

// finish resolves the status of every file that produced text.
func (p *Pipeline) finish(report *Report, docs []*rag.Document, total, attempted, written []int, fileErr []error) {
	for fi, doc := range docs {
		if doc == nil {
			continue
		}
		path := report.Files[fi].Path
		switch {
		case fileErr[fi] != nil:
			res := failed(path, fileErr[fi])
			res.Chunks = written[fi]
			report.Files[fi] = res
		case attempted[fi] < total[fi]:
			res := failed(path, errors.New("run aborted before all chunks were written"))
			res.Chunks = written[fi]
			report.Files[fi] = res
		default:
			report.Files[fi] = FileResult{Path: path, Status: StatusIngested, Chunks: written[fi]}
		}
	}
}

// extractAll reads and extracts files on a bounded worker pool. Every file
// gets a provisional result; docs[i] is nil for files that were skipped or
// failed. Only cancellation of ctx makes it return an error.
func (p *Pipeline) extractAll(ctx context.Context, files []RawDocument, report *Report) ([]*rag.Document, error) {
	now := p.cfg.Now().UTC()
	docs := make([]*rag.Document, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i], report.Files[i] = p.extractOne(gctx, &files[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (p *Pipeline) extractOne(ctx context.Context, f *RawDocument, now time.Time) (*rag.Document, FileResult) {
	log := logging.FromContext(ctx).With(slog.String("file", f.RelPath))

	format, err := extract.FormatFromPath(f.Path)
	if err != nil {
		log.Info("ingestion: skipping file", slog.String("reason", "unsupported format"))
		return nil, classify(f.RelPath, err)
	}
	f.Format = format

	info, err := os.Stat(f.Path)
	if err != nil {
		log.Warn("ingestion: stat failed", slog.Any("error", err))
		return nil, failed(f.RelPath, fmt.Errorf("stat: %w", err))
	}
	if info.Size() > p.cfg.MaxFileBytes {
		log.Warn("ingestion: skipping file", slog.String("reason", "too large"), slog.Int64("bytes", info.Size()))
		return nil, skipped(f.RelPath, fmt.Sprintf("file exceeds %d bytes", p.cfg.MaxFileBytes), nil)
	}

	f.Content, err = os.ReadFile(f.Path)
	if err != nil {
		log.Warn("ingestion: read failed", slog.Any("error", err))
		return nil, failed(f.RelPath, fmt.Errorf("read: %w", err))
	}

	text, err := p.extractor.Extract(ctx, f.Content, format)
	// Raw bytes are not needed past extraction.
	f.Content = nil
	if err != nil {
		log.Warn("ingestion: extraction failed", slog.Any("error", err))
		return nil, classify(f.RelPath, err)
	}
	if text == "" {
		log.Info("ingestion: skipping file", slog.String("reason", "no text"))
		return nil, skipped(f.RelPath, "no extractable text", nil)
	}

	meta := InferMetadata(*f)
	log.Debug("ingestion: extracted", slog.String("format", string(format)), slog.Int("chars", len([]rune(text))))
	return &rag.Document{
		ID:        meta.DocID,
		Title:     meta.Title,
		Text:      text,
		Source:    p.cfg.Source,
		CreatedAt: now,
	}, FileResult{Path: f.RelPath, Status: StatusIngested}
}

// writeBatch embeds and upserts one batch, retrying retryable failures with
// exponential backoff. It returns the number of rows the store accepted.
func (p *Pipeline) writeBatch(ctx context.Context, batch []item) (int, error) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.chunk.Content
	}

	vecs, err := retry(ctx, p.backoff(), func() ([][]float32, error) {
		actx, cancel := withOptionalTimeout(ctx, p.cfg.EmbedTimeout)
		defer cancel()
		return p.embedder.Embed(actx, texts)
	})
	if err != nil {
		if !errors.Is(err, rag.ErrEmbedding) {
			err = rag.Wrap(rag.ErrEmbedding, "ingest embed", err)
		}
		return 0, err
	}
	if len(vecs) != len(batch) {
		return 0, rag.Errorf(rag.ErrEmbedding, "ingest embed", "expected %d vectors, got %d", len(batch), len(vecs))
	}

	rows := make([]rag.EmbeddedChunk, len(batch))
	for i, it := range batch {
		rows[i] = rag.EmbeddedChunk{Chunk: it.chunk, Embedding: vecs[i]}
	}
	return retry(ctx, p.backoff(), func() (int, error) {
		actx, cancel := withOptionalTimeout(ctx, p.cfg.StoreTimeout)
		defer cancel()
		n, err := p.store.Upsert(actx, rows)
		if err != nil && !errors.Is(err, rag.ErrStoreWrite) {
			err = rag.Wrap(rag.ErrStoreWrite, "ingest upsert", err)
		}
		return n, err
	})
}

func (p *Pipeline) ping(ctx context.Context) error {
	ctx, cancel := withOptionalTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.store.Ping(ctx)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (p *Pipeline) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInitialInterval
	b.MaxInterval = p.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries)) //nolint:gosec // MaxRetries is clamped to >= 0
}

// retry runs op until it succeeds, returns a non-retryable error, or the
// policy b gives up.
func retry[T any](ctx context.Context, b backoff.BackOff, op func() (T, error)) (T, error) {
	log := logging.FromContext(ctx)
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		if err != nil && !rag.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn("ingestion: retrying batch", slog.Duration("wait", wait), slog.Any("error", err))
	})
}
