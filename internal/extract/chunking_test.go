package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerShortText(t *testing.T) {
	c := Chunker{MaxSize: 100}
	got := c.Split("short text")
	assert.Equal(t, []string{"short text"}, got)
	assert.Empty(t, c.Split(""))
}

func TestChunkerSplitsWithOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // 300 chars, no paragraph breaks
	c := Chunker{MaxSize: 100, Overlap: 20, MaxChunks: 10}
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 100)
	}
	// Consecutive chunks share the overlap.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		assert.True(t, strings.HasPrefix(chunks[i], prev[len(prev)-20:]), "chunk %d should start with the tail of chunk %d", i, i-1)
	}
	// The final chunk reaches the end of the text.
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestChunkerMaxChunks(t *testing.T) {
	text := strings.Repeat("x", 1000)
	c := Chunker{MaxSize: 100, Overlap: 10, MaxChunks: 3}
	chunks := c.Split(text)
	assert.Len(t, chunks, 3)
}

func TestChunkerPrefersParagraphBreak(t *testing.T) {
	para1 := strings.Repeat("a", 80)
	para2 := strings.Repeat("b", 80)
	text := para1 + "\n\n" + para2
	c := Chunker{MaxSize: 100, Overlap: 5, MaxChunks: 5}
	chunks := c.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, para1, chunks[0])
}

func TestChunkerRuneSafe(t *testing.T) {
	text := strings.Repeat("سلام دنیا ", 50) // multi-byte runes
	c := Chunker{MaxSize: 64, Overlap: 8, MaxChunks: 20}
	for _, ch := range c.Split(text) {
		assert.True(t, utf8.ValidString(ch))
	}
}

type fixedCounter struct{ perRune int }

func (f fixedCounter) CountTokens(text string) int {
	return utf8.RuneCountInString(text) * f.perRune
}

func TestChunkerWithTokenCounter(t *testing.T) {
	text := strings.Repeat("y", 100)

	// 100 chars = 200 tokens with a budget of 100 tokens -> about 50 chars per chunk.
	c := Chunker{MaxSize: 100, Overlap: 0, MaxChunks: 10, Counter: fixedCounter{perRune: 2}}
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, 50, len(chunks[0]))

	// Fits within budget -> single chunk.
	c.Counter = fixedCounter{perRune: 1}
	assert.Len(t, c.Split(text), 1)
}

func TestHeuristicCounter(t *testing.T) {
	var h HeuristicCounter
	assert.Equal(t, 0, h.CountTokens(""))
	assert.Equal(t, 1, h.CountTokens("ab"))
	assert.Equal(t, 25, h.CountTokens(strings.Repeat("z", 100)))
}
