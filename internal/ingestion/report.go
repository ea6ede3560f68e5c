package ingestion

import (
	"errors"
	"time"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// Status is the outcome of ingesting one file.
type Status string

const (
	// StatusIngested means every chunk of the file was written.
	StatusIngested Status = "ingested"

	// StatusSkipped means the file was deliberately not ingested: its format
	// is unsupported or it holds no text.
	StatusSkipped Status = "skipped"

	// StatusFailed means reading, extracting or writing the file failed.
	StatusFailed Status = "failed"
)

// FileResult records what happened to one file.
type FileResult struct {
	Path   string `json:"path"`
	Status Status `json:"status"`

	// Chunks is the number of chunks written for the file.
	Chunks int `json:"chunks"`

	// Reason explains a skip or failure.
	Reason string `json:"reason,omitempty"`

	err error
}

// Err returns the error behind a skip or failure, if any.
func (r FileResult) Err() error { return r.err }

// Report summarises one ingestion run.
type Report struct {
	Files []FileResult `json:"files"`

	// ChunksWritten counts rows acknowledged by the store. Chunks shared by
	// several files are written and counted once.
	ChunksWritten int `json:"chunks_written"`

	BatchesWritten int           `json:"batches_written"`
	BatchesFailed  int           `json:"batches_failed"`
	Duration       time.Duration `json:"duration"`
}

// Count returns the number of files with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

func skipped(path, reason string, err error) FileResult {
	return FileResult{Path: path, Status: StatusSkipped, Reason: reason, err: err}
}

func failed(path string, err error) FileResult {
	return FileResult{Path: path, Status: StatusFailed, Reason: err.Error(), err: err}
}

// classify turns a read or extraction error into a file result.
func classify(path string, err error) FileResult {
	if errors.Is(err, rag.ErrUnsupportedFormat) {
		return skipped(path, "unsupported format", err)
	}
	return failed(path, err)
}
