package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// CSVImporter handles .csv and .tsv files.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(name string) bool {
	return hasExt(name, ".csv", ".tsv")
}

// Text renders each row as its cells joined by ", ", one row per line.
// Rows may have differing field counts.
func (c *CSVImporter) Text(data []byte) (string, error) {
	text := decodeText(data)
	reader := csv.NewReader(strings.NewReader(text))

	// Tabs win when the first line has more of them than commas.
	first, _, _ := strings.Cut(text, "\n")
	if strings.Count(first, "\t") > strings.Count(first, ",") {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing CSV: %w", err)
	}
	lines := make([]string, 0, len(records))
	for _, row := range records {
		lines = append(lines, strings.Join(row, ", "))
	}
	return strings.Join(lines, "\n"), nil
}
