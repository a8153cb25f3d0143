package ingest

import "strings"

// PlainTextImporter handles .txt, .md, .log and serves as the fallback for
// unrecognized files.
type PlainTextImporter struct{}

// CanHandle returns true for plain text extensions.
func (t *PlainTextImporter) CanHandle(name string) bool {
	return hasExt(name, ".txt", ".md", ".markdown", ".log", "")
}

// Text decodes the file and normalizes line endings.
func (t *PlainTextImporter) Text(data []byte) (string, error) {
	return strings.ReplaceAll(decodeText(data), "\r\n", "\n"), nil
}
