// Package report renders standalone HTML reports for extraction results.
package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
)

//go:embed report.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("report.html.tmpl").ParseFS(templateFS, "report.html.tmpl"))

// Segment is a run of source text. Marked segments are the first occurrence
// of an extracted entity's name.
type Segment struct {
	Text   string
	Marked bool
	Type   string
}

type entityRow struct {
	Name       string
	Type       string
	Attributes string
}

type relationshipRow struct {
	Source     string
	Type       string
	Target     string
	Attributes string
}

type section struct {
	Heading       string
	Model         string
	Confidence    string
	Reasoning     string
	Entities      []entityRow
	Relationships []relationshipRow
}

type page struct {
	Lang     string
	Dir      string
	Title    string
	Segments []Segment
	Sections []section

	Multi                    bool
	Agreement                string
	ConflictingEntities      []string
	ConflictingRelationships []string
}

// WriteExtraction renders the report for a single analysis of text.
func WriteExtraction(w io.Writer, text, language string, a *analysis.ModelAnalysis) error {
	if a == nil {
		return fmt.Errorf("rendering report: nil analysis")
	}
	lang := analysis.NormalizeLanguage(language)
	p := page{
		Lang:     lang,
		Dir:      direction(lang),
		Title:    "Extraction Report",
		Segments: Highlight(text, a.Entities),
		Sections: []section{newSection("Extraction", a)},
	}
	return render(w, p)
}

// WriteArbitration renders the report for a multi-model response: the final
// analysis first, then both independent passes, with agreement and conflicts.
func WriteArbitration(w io.Writer, resp *analysis.MultiModelResponse) error {
	if resp == nil {
		return fmt.Errorf("rendering report: nil response")
	}
	lang := analysis.NormalizeLanguage(resp.Language)
	p := page{
		Lang:     lang,
		Dir:      direction(lang),
		Title:    "Multi-Model Analysis Report",
		Segments: Highlight(resp.Text, resp.FinalAnalysis.Entities),
		Sections: []section{
			newSection("Final analysis (referee)", &resp.FinalAnalysis),
			newSection("First pass", &resp.FirstAnalysis),
			newSection("Second pass", &resp.SecondAnalysis),
		},
		Multi:                    true,
		Agreement:                fmt.Sprintf("%.0f%%", resp.AgreementScore*100),
		ConflictingEntities:      resp.ConflictingEntities,
		ConflictingRelationships: resp.ConflictingRelationships,
	}
	return render(w, p)
}

func render(w io.Writer, p page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

// Highlight splits text so that the first unmarked occurrence of each entity
// name, in entity order, becomes its own marked segment. Matching is exact.
func Highlight(text string, entities []analysis.Entity) []Segment {
	segs := []Segment{{Text: text}}
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		typ := e.Type
		if typ == "" {
			typ = "ENTITY"
		}
		for i, s := range segs {
			if s.Marked {
				continue
			}
			idx := strings.Index(s.Text, e.Name)
			if idx < 0 {
				continue
			}
			var split []Segment
			if idx > 0 {
				split = append(split, Segment{Text: s.Text[:idx]})
			}
			split = append(split, Segment{Text: e.Name, Marked: true, Type: typ})
			if rest := s.Text[idx+len(e.Name):]; rest != "" {
				split = append(split, Segment{Text: rest})
			}
			segs = append(segs[:i], append(split, segs[i+1:]...)...)
			break
		}
	}
	return segs
}

func newSection(heading string, a *analysis.ModelAnalysis) section {
	s := section{Heading: heading, Model: a.ModelName, Reasoning: a.Reasoning}
	if a.ConfidenceScore != nil {
		s.Confidence = fmt.Sprintf("%.2f", *a.ConfidenceScore)
	}
	for _, e := range a.Entities {
		s.Entities = append(s.Entities, entityRow{Name: e.Name, Type: e.Type, Attributes: attributesText(e.Attributes)})
	}
	for _, r := range a.Relationships {
		s.Relationships = append(s.Relationships, relationshipRow{
			Source:     r.SourceEntityID,
			Type:       r.Type,
			Target:     r.TargetEntityID,
			Attributes: attributesText(r.Attributes),
		})
	}
	return s
}

func attributesText(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return fmt.Sprint(attrs)
	}
	return string(b)
}

func direction(lang string) string {
	switch {
	case analysis.IsPersian(lang), strings.HasPrefix(lang, "ar"), strings.HasPrefix(lang, "he"), strings.HasPrefix(lang, "ur"):
		return "rtl"
	default:
		return "ltr"
	}
}
