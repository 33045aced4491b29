// Package pdftext extracts plain text from uploaded PDF files.
//
// The implementation shells out to poppler's pdftotext. PDF layout and OCR
// are out of scope: the result is a flat text blob with pages separated by
// newlines.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrNoText is returned when a PDF yields no extractable text
// (image-only scans, empty documents).
var ErrNoText = errors.New("pdftext: no extractable text")

// Extractor turns a PDF stream into a single text blob.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// PdftotextExtractor extracts text by running the pdftotext binary.
type PdftotextExtractor struct {
	cmd    string
	runner Runner
	logger *slog.Logger
}

// NewPdftotext creates an extractor using the given pdftotext command
// (binary name or absolute path; empty means "pdftotext").
func NewPdftotext(cmd string, logger *slog.Logger) *PdftotextExtractor {
	if cmd == "" {
		cmd = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftotextExtractor{cmd: cmd, runner: execRunner{}, logger: logger}
}

// Extract writes the stream to a temp file and runs
// pdftotext -enc UTF-8 -eol unix <file> - on it. Form feeds (pdftotext's page
// separator) are normalized to newlines so pages are newline-joined.
func (e *PdftotextExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "pyeongeo-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	out, errb, err := e.runner.Run(ctx, e.cmd, "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		e.logger.Error("pdftotext failed", "error", err, "stderr", string(errb))
		return "", fmt.Errorf("run %s: %w", e.cmd, err)
	}

	text := strings.ReplaceAll(string(out), "\f", "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
