// Package ingest turns uploaded documents into plain text for extraction.
//
// Each supported format (plain text, CSV, JSON, YAML, HTML, XML, DOCX) has its
// own importer implementing the Importer interface. The engine picks one by
// file extension and falls back to decoding unknown files as text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileSize is 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

var (
	// ErrEmptyDocument is returned when a file yields no text.
	ErrEmptyDocument = errors.New("file is empty or has no extractable text")
	// ErrTooLarge is returned for files above the engine's size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupported is returned for known binary formats without an importer.
	ErrUnsupported = errors.New("unsupported file format")
)

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file name.
	CanHandle(name string) bool

	// Text extracts the document's text from its raw bytes.
	Text(data []byte) (string, error)
}

// Engine dispatches files to importers.
type Engine struct {
	importers   []Importer
	fallback    Importer
	maxFileSize int64
}

// NewEngine creates an engine with every built-in importer. maxFileSize <= 0
// means DefaultMaxFileSize.
func NewEngine(maxFileSize int64) *Engine {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Engine{
		importers: []Importer{
			&PlainTextImporter{},
			&CSVImporter{},
			&JSONImporter{},
			&YAMLImporter{},
			&HTMLImporter{},
			&XMLImporter{},
			&DOCXImporter{},
		},
		fallback:    &PlainTextImporter{},
		maxFileSize: maxFileSize,
	}
}

// Binary formats that would decode to noise as text.
var unsupportedExts = []string{".pdf", ".doc", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".png", ".jpg", ".jpeg", ".gif"}

// Extensions lists the extensions with a dedicated importer.
func Extensions() []string {
	exts := []string{".txt", ".md", ".log", ".csv", ".tsv", ".json", ".yaml", ".yml", ".html", ".htm", ".xml", ".docx"}
	sort.Strings(exts)
	return exts
}

// ExtractBytes returns the text of a document named name.
func (e *Engine) ExtractBytes(name string, data []byte) (string, error) {
	if int64(len(data)) > e.maxFileSize {
		return "", fmt.Errorf("%s: %w (%d bytes, limit %d)", name, ErrTooLarge, len(data), e.maxFileSize)
	}
	if hasExt(name, unsupportedExts...) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	imp := e.fallback
	for _, i := range e.importers {
		if i.CanHandle(name) {
			imp = i
			break
		}
	}
	text, err := imp.Text(data)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyDocument)
	}
	return text, nil
}

// ExtractFile reads path and returns its text.
func (e *Engine) ExtractFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > e.maxFileSize {
		return "", fmt.Errorf("%s: %w (%d bytes, limit %d)", path, ErrTooLarge, info.Size(), e.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return e.ExtractBytes(filepath.Base(path), data)
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
