package extract

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// HeuristicCounter estimates one token per four characters.
type HeuristicCounter struct{}

func (HeuristicCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(1, n/4)
}

// HFTokenizer counts tokens with a HuggingFace tokenizer.json.
type HFTokenizer struct {
	mu sync.Mutex
	tk *tokenizer.Tokenizer
}

// LoadTokenizer reads a tokenizer.json file.
func LoadTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// CountTokens falls back to the heuristic if encoding fails.
func (h *HFTokenizer) CountTokens(text string) int {
	h.mu.Lock()
	enc, err := h.tk.EncodeSingle(text, false)
	h.mu.Unlock()
	if err != nil || enc == nil {
		return HeuristicCounter{}.CountTokens(text)
	}
	return len(enc.Ids)
}
