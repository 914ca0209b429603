// Package extract pulls plain text out of document attachments so they can be
// indexed as site content.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for extensions without an extractor.
var ErrUnsupported = errors.New("unsupported attachment format")

type extractFunc func(data []byte) (string, error)

var extractors = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".odt":  extractCat,
	".rtf":  extractCat,
	".xlsx": extractExcel,
	".txt":  extractPlain,
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// Extractor extracts plain text from attachment files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(data, filepath.Ext(path))
}

// ExtractBytes extracts text from data according to ext, e.g. ".pdf".
func (e *Extractor) ExtractBytes(data []byte, ext string) (string, error) {
	fn, ok := extractors[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	text, err := fn(data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
