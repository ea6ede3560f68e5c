package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/extract"
	"github.com/sntprz/ai-assistant/internal/ingestion"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/vectorstore"
)

// ingestFlags holds the `assistant ingest` overrides. A flag only replaces
// the configured value when it was set on the command line.
type ingestFlags struct {
	dir          string
	chunkSize    int
	chunkOverlap int
	batchSize    int
	workers      int
	store        string
	source       string
	asJSON       bool
}

// NewIngestCmd constructs the `assistant ingest` command, which indexes a
// directory of documents into the configured vector store.
func NewIngestCmd() *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a directory of documents into the vector store",
		Long: `Walk a directory, extract text from every supported file, split it into
overlapping chunks, embed the chunks and upsert them into the vector store.

Supported formats: .txt .md .json .jsonl .csv .docx .pdf (pdf needs pdftotext
on PATH). Hidden files and directories are ignored. Re-ingesting the same
files is idempotent: chunk IDs are derived from their content.

A file that cannot be read or parsed is reported and skipped; the command
only fails when the store is unreachable, too many batches fail in a row,
or the run is interrupted.

Environment variables:
  RAW_DIR                Default directory (default: data/raw)
  VECTOR_STORE           postgres | qdrant | sqlite | memory (default: postgres)
  EMBEDDING_PROVIDER     gemini | openai | azure | ollama
  CHUNK_SIZE_CHARS       Characters per chunk (default: 1200)
  CHUNK_OVERLAP_CHARS    Characters shared by adjacent chunks (default: 200)
  BATCH_SIZE             Chunks per embedding request (default: 32)

Examples:
  assistant ingest
  assistant ingest --dir ./docs --store sqlite
  assistant ingest --dir ./docs --chunk-size 800 --chunk-overlap 100 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if err := f.apply(cmd, s); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			d, err := openDeps(ctx, log, s, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer d.close(log)

			pipeline, err := ingestion.NewPipeline(extract.NewRegistry(), d.embedder, d.store, &s.Ingest)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("dir", s.RawDir),
				slog.Int("chunk_size", s.Ingest.ChunkSize),
				slog.Int("chunk_overlap", s.Ingest.ChunkOverlap),
				slog.Int("batch_size", s.Ingest.BatchSize),
			)

			report, runErr := pipeline.Run(ctx, s.RawDir, func(msg string) {
				log.Info(msg)
			})
			if report != nil {
				if err := printReport(cmd, report, f.asJSON); err != nil {
					return err
				}
			}
			if runErr != nil {
				if errors.Is(runErr, ingestion.ErrSystemic) {
					return fmt.Errorf("ingest: %w", runErr)
				}
				log.Warn("ingest: run finished with errors", slog.Any("error", runErr))
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.dir, "dir", "d", config.DefaultRawDir, "Directory to ingest (overrides RAW_DIR)")
	fl.IntVar(&f.chunkSize, "chunk-size", 0, "Maximum characters per chunk")
	fl.IntVar(&f.chunkOverlap, "chunk-overlap", 0, "Characters shared by adjacent chunks")
	fl.IntVar(&f.batchSize, "batch-size", 0, "Chunks per embedding request and upsert")
	fl.IntVar(&f.workers, "workers", 0, "Files extracted concurrently")
	fl.StringVar(&f.store, "store", "", "Vector store backend: postgres, qdrant, sqlite, memory")
	fl.StringVar(&f.source, "source", "", "Source label stored with every document")
	fl.BoolVar(&f.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

// apply copies every flag the user set into s and revalidates it.
func (f *ingestFlags) apply(cmd *cobra.Command, s *config.Settings) error {
	changed := cmd.Flags().Changed
	if changed("dir") {
		s.RawDir = f.dir
	}
	if changed("chunk-size") {
		s.Ingest.ChunkSize = f.chunkSize
	}
	if changed("chunk-overlap") {
		s.Ingest.ChunkOverlap = f.chunkOverlap
	}
	if changed("batch-size") {
		s.Ingest.BatchSize = f.batchSize
	}
	if changed("workers") {
		s.Ingest.Workers = f.workers
	}
	if changed("store") {
		s.Store.Backend = vectorstore.Backend(f.store)
	}
	if changed("source") {
		s.Ingest.Source = f.source
	}
	return s.Validate()
}

// printReport writes one line per file and a summary to stdout.
func printReport(cmd *cobra.Command, r *ingestion.Report, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	for _, file := range r.Files {
		line := fmt.Sprintf("%-8s %s", file.Status, file.Path)
		switch {
		case file.Status == ingestion.StatusIngested:
			line += fmt.Sprintf(" (%d chunks)", file.Chunks)
		case file.Reason != "":
			line += ": " + file.Reason
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\n%d ingested, %d skipped, %d failed; %d chunks written in %s\n",
		r.Count(ingestion.StatusIngested),
		r.Count(ingestion.StatusSkipped),
		r.Count(ingestion.StatusFailed),
		r.ChunksWritten,
		r.Duration.Round(time.Millisecond),
	)
	if r.BatchesFailed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d of %d batches failed\n", r.BatchesFailed, r.BatchesFailed+r.BatchesWritten)
	}
	return nil
}
