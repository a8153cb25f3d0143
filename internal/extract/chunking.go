package extract

import (
	"log/slog"
	"strings"
)

// Chunking defaults, in characters (runes).
const (
	DefaultMaxInputChars = 12000
	DefaultChunkOverlap  = 200
	DefaultMaxChunks     = 8
)

// Chunker splits long inputs into overlapping windows that each fit a single
// model call. With a Counter set, MaxSize and Overlap are measured in tokens;
// otherwise in characters.
type Chunker struct {
	MaxSize   int
	Overlap   int
	MaxChunks int
	Counter   TokenCounter
}

func (c Chunker) withDefaults() Chunker {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxInputChars
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MaxSize {
		c.Overlap = c.MaxSize / 10
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	return c
}

// Split returns text unchanged as a single chunk when it fits, otherwise at
// most MaxChunks overlapping chunks, preferring to cut at paragraph breaks.
// Text beyond the last chunk is dropped and logged.
func (c Chunker) Split(text string) []string {
	if text == "" {
		return []string{}
	}
	c = c.withDefaults()

	runes := []rune(text)
	maxRunes, overlap := c.MaxSize, c.Overlap
	if c.Counter != nil {
		tokens := c.Counter.CountTokens(text)
		if tokens <= c.MaxSize {
			return []string{text}
		}
		// Convert the token budget into characters at this text's density.
		perToken := float64(len(runes)) / float64(tokens)
		maxRunes = max(1, int(float64(c.MaxSize)*perToken))
		overlap = int(float64(c.Overlap) * perToken)
		if overlap >= maxRunes {
			overlap = maxRunes / 10
		}
	} else if len(runes) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) && len(chunks) < c.MaxChunks {
		end := min(pos+maxRunes, len(runes))
		chunk := string(runes[pos:end])

		// Prefer a paragraph break in the last third of the window.
		if end < len(runes) {
			searchStart := (end - pos) * 2 / 3
			window := string(runes[pos+searchStart : end])
			if idx := strings.LastIndex(window, "\n\n"); idx != -1 {
				cut := searchStart + len([]rune(window[:idx]))
				if cut > overlap {
					chunk = string(runes[pos : pos+cut])
					end = pos + cut
				}
			}
		}

		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			pos = end
			break
		}
		pos = max(end-overlap, pos+1)
	}

	if pos < len(runes) {
		slog.Warn("input truncated to chunk limit",
			"max_chunks", c.MaxChunks, "dropped_chars", len(runes)-pos)
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	return chunks
}
