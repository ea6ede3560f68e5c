package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, feeding stdin and returning stdout.
func (ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// PDF extracts text with poppler's pdftotext, reading the document from
// stdin. Pages are separated by form feeds in pdftotext output; they become
// line breaks here.
type PDF struct {
	Runner CommandRunner

	// Binary overrides the pdftotext executable name.
	Binary string
}

var pdfMagic = []byte("%PDF-")

// Extract implements Extractor.
func (p *PDF) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return "", errors.New("pdf: missing %PDF header")
	}
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(ctx, data, bin, "-enc", "UTF-8", "-layout", "-", "-")
	if err != nil {
		return "", fmt.Errorf("pdf: %w", err)
	}
	return strings.ReplaceAll(string(out), "\f", "\n"), nil
}
