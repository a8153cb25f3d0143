package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	conflictStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderAnalysis writes a human-readable summary of one analysis.
func renderAnalysis(w io.Writer, heading string, a *analysis.ModelAnalysis) {
	fmt.Fprintln(w, titleStyle.Render(heading)+" "+dimStyle.Render(a.ModelName))
	if a.ConfidenceScore != nil {
		fmt.Fprintf(w, "  %s %.2f\n", labelStyle.Render("confidence:"), *a.ConfidenceScore)
	}
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("entities:"), len(a.Entities))
	for _, e := range a.Entities {
		fmt.Fprintf(w, "    • %s %s%s\n", e.Name, dimStyle.Render("("+e.Type+")"), attrSuffix(e.Attributes))
	}
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("relationships:"), len(a.Relationships))
	for _, r := range a.Relationships {
		fmt.Fprintf(w, "    • %s -[%s]-> %s%s\n", r.SourceEntityID, r.Type, r.TargetEntityID, attrSuffix(r.Attributes))
	}
	if a.Reasoning != "" {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("reasoning:"), a.Reasoning)
	}
}

// renderArbitration writes the agreement, the conflicts and all three
// analyses, final first.
func renderArbitration(w io.Writer, resp *analysis.MultiModelResponse) {
	fmt.Fprintf(w, "%s %.0f%%\n", titleStyle.Render("Agreement:"), resp.AgreementScore*100)
	conflicts := append(append([]string{}, resp.ConflictingEntities...), resp.ConflictingRelationships...)
	if len(conflicts) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no conflicts"))
	}
	for _, c := range conflicts {
		fmt.Fprintln(w, "  "+conflictStyle.Render("≠ "+c))
	}
	fmt.Fprintln(w)
	renderAnalysis(w, "Final analysis", &resp.FinalAnalysis)
	fmt.Fprintln(w)
	renderAnalysis(w, "First pass", &resp.FirstAnalysis)
	fmt.Fprintln(w)
	renderAnalysis(w, "Second pass", &resp.SecondAnalysis)
}

func renderRuns(w io.Writer, runs []*store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No runs stored."))
		return
	}
	for _, r := range runs {
		score := ""
		if r.AgreementScore != nil {
			score = fmt.Sprintf(" agreement %.0f%%", *r.AgreementScore*100)
		}
		fmt.Fprintf(w, "%s  %s  %s %s%s\n",
			dimStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
			titleStyle.Render(r.ID),
			labelStyle.Render(string(r.Kind)),
			strings.Join(r.Models, ", "),
			score)
		fmt.Fprintf(w, "    %s\n", snippet(r.Text, 100))
	}
}

func attrSuffix(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return " " + dimStyle.Render("{"+strings.Join(parts, ", ")+"}")
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return text
}
