// Package extract converts raw document bytes into normalized plain text.
// Each supported format has an Extractor; a Registry picks one by format
// and normalizes whatever it produces.
//
// Supported formats:
//
//	.txt .md .markdown .csv .json .jsonl .docx .pdf
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// Format identifies a supported document format.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

// extensions maps lower-cased file extensions to formats.
var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".csv":      FormatCSV,
	".json":     FormatJSON,
	".jsonl":    FormatJSONL,
	".ndjson":   FormatJSONL,
	".docx":     FormatDOCX,
	".pdf":      FormatPDF,
}

// FormatFromPath infers the format from the file extension.
// Unknown extensions fail with rag.ErrUnsupportedFormat.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return "", rag.Errorf(rag.ErrUnsupportedFormat, "extract", "extension %s of %s", ext, filepath.Base(path))
}

// Extractor turns the bytes of one format into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry dispatches extraction by format.
type Registry struct {
	extractors map[Format]Extractor
}

// Option customises a Registry.
type Option func(*Registry)

// WithExtractor registers or replaces the extractor for f.
func WithExtractor(f Format, e Extractor) Option {
	return func(r *Registry) { r.extractors[f] = e }
}

// WithCommandRunner sets the runner used to invoke pdftotext.
func WithCommandRunner(runner CommandRunner) Option {
	return func(r *Registry) { r.extractors[FormatPDF] = &PDF{Runner: runner} }
}

// NewRegistry returns a Registry with every built-in extractor.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{extractors: map[Format]Extractor{
		FormatText:     ExtractorFunc(extractPlain),
		FormatMarkdown: ExtractorFunc(extractMarkdown),
		FormatCSV:      ExtractorFunc(extractCSV),
		FormatJSON:     ExtractorFunc(extractJSON),
		FormatJSONL:    ExtractorFunc(extractJSONL),
		FormatDOCX:     ExtractorFunc(extractDOCX),
		FormatPDF:      &PDF{Runner: ExecRunner{}},
	}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract returns the normalized text of data interpreted as format.
// It fails with rag.ErrUnsupportedFormat when no extractor is registered
// and rag.ErrExtraction when the extractor fails. An empty result is not an
// error; callers decide whether to skip the document.
func (r *Registry) Extract(ctx context.Context, data []byte, format Format) (string, error) {
	e, ok := r.extractors[format]
	if !ok {
		return "", rag.Errorf(rag.ErrUnsupportedFormat, "extract", "format %q", format)
	}
	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", rag.Wrap(rag.ErrExtraction, fmt.Sprintf("extract %s", format), err)
	}
	return Normalize(text), nil
}

// ExtractFile infers the format from path and extracts data.
func (r *Registry) ExtractFile(ctx context.Context, path string, data []byte) (string, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}
	return r.Extract(ctx, data, format)
}

// Supports reports whether path has a registered format.
func (r *Registry) Supports(path string) bool {
	f, err := FormatFromPath(path)
	if err != nil {
		return false
	}
	_, ok := r.extractors[f]
	return ok
}
