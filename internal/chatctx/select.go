// Package chatctx chooses which prior chat turns accompany a new message to
// the model. Selection is a pure function of the history: it keeps the opening
// turns, the most recent turns, and information-dense turns in between, under
// a hard cap.
package chatctx

import (
	"sort"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
)

const (
	// DefaultCap bounds the number of turns returned by Select.
	DefaultCap = 18
	// ShortHistory is the length at or below which history is kept whole.
	ShortHistory = 8
	// HeadTurns and TailTurns are always candidates.
	HeadTurns = 3
	TailTurns = 10
	// SubstantiveLength is the rune count above which a middle turn is kept.
	SubstantiveLength = 50
	// dedupePrefix is how many runes of content identify a turn for dedupe.
	dedupePrefix = 50
)

// Keyword lists for middle-turn relevance. Matching is a case-insensitive
// substring test, so entries should be distinctive.
var (
	IdentityKeywords = []string{
		"my name", "name is", "i am", "i'm", "call me", "who am i", "who are you",
		"نام", "اسم", "من هستم", "هستم", "اسمم",
	}
	HelpKeywords = []string{
		"help", "problem", "issue", "error", "can you", "please",
		"کمک", "مشکل", "خطا", "لطفا", "لطفاً", "میتوانی", "می‌توانی",
	}
	AnalysisKeywords = []string{
		"analy", "result", "extract", "entity", "entities", "relationship", "summar", "explain",
		"تحلیل", "بررسی", "نتیجه", "استخراج", "توضیح", "خلاصه",
	}
	QuestionKeywords = []string{
		"what", "why", "how", "when", "where", "which",
		"چه", "چرا", "چطور", "چگونه", "کجا", "کی", "آیا", "کدام",
	}
)

var keywordLists = [][]string{IdentityKeywords, HelpKeywords, AnalysisKeywords, QuestionKeywords}

// Select returns the turns of history to attach to the next model call.
// A non-positive maxTurns means DefaultCap. history is never modified.
func Select(history []analysis.Turn, maxTurns int) []analysis.Turn {
	if maxTurns <= 0 {
		maxTurns = DefaultCap
	}
	if len(history) <= ShortHistory {
		out := make([]analysis.Turn, len(history))
		copy(out, history)
		return out
	}

	n := len(history)
	// Candidates in priority order: head, tail, then relevant middle turns.
	candidates := make([]int, 0, HeadTurns+TailTurns+n)
	for i := 0; i < HeadTurns; i++ {
		candidates = append(candidates, i)
	}
	for i := n - TailTurns; i < n; i++ {
		candidates = append(candidates, i)
	}
	for i := HeadTurns; i < n-TailTurns; i++ {
		if Relevant(history[i].Content) {
			candidates = append(candidates, i)
		}
	}

	type key struct {
		role   analysis.Role
		prefix string
	}
	seen := make(map[key]bool, len(candidates))
	keep := make([]int, 0, len(candidates))
	for _, i := range candidates {
		t := history[i]
		k := key{role: t.Role, prefix: runePrefix(t.Content, dedupePrefix)}
		if seen[k] {
			continue
		}
		seen[k] = true
		keep = append(keep, i)
	}

	// Back to conversation order so the cap drops the oldest turns.
	sort.Ints(keep)
	if len(keep) > maxTurns {
		keep = keep[len(keep)-maxTurns:]
	}
	out := make([]analysis.Turn, len(keep))
	for j, i := range keep {
		out[j] = history[i]
	}
	return out
}

// Relevant reports whether a middle turn carries identity, help-seeking,
// analytical or question signals, or is long enough to be substantive.
func Relevant(content string) bool {
	if len([]rune(content)) > SubstantiveLength {
		return true
	}
	if strings.ContainsAny(content, "?؟") {
		return true
	}
	lower := strings.ToLower(content)
	for _, list := range keywordLists {
		for _, kw := range list {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
