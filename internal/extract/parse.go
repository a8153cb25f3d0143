package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
)

// ErrMalformedExtraction is returned when model output cannot be read as an
// extraction result.
var ErrMalformedExtraction = errors.New("malformed extraction")

// MalformedError describes unusable model output. It matches ErrMalformedExtraction.
type MalformedError struct {
	Reason string
	Raw    string // truncated model output
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed extraction: %s (output: %q)", e.Reason, e.Raw)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedExtraction
}

const rawSnippetLen = 200

func malformed(reason, raw string) *MalformedError {
	r := []rune(raw)
	if len(r) > rawSnippetLen {
		raw = string(r[:rawSnippetLen]) + "..."
	}
	return &MalformedError{Reason: reason, Raw: raw}
}

// ParseAnalysis converts raw model output into a ModelAnalysis.
//
// Markdown code fences are stripped and, if the whole output is not JSON, the
// outermost {...} block is tried. Items missing required fields are dropped;
// a structurally wrong document is an error.
func ParseAnalysis(raw, modelName string) (*analysis.ModelAnalysis, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	entRaw, hasEntities := obj["entities"]
	relRaw, hasRelationships := obj["relationships"]
	if !hasEntities && !hasRelationships {
		return nil, malformed("object has neither entities nor relationships", raw)
	}

	out := &analysis.ModelAnalysis{
		ModelName:     modelName,
		Entities:      []analysis.Entity{},
		Relationships: []analysis.Relationship{},
	}

	if hasEntities && !isNull(entRaw) {
		var items []map[string]any
		if err := json.Unmarshal(entRaw, &items); err != nil {
			if !isArray(entRaw) {
				return nil, malformed("entities is not an array", raw)
			}
			items = objectItems(entRaw)
		}
		for _, item := range items {
			if e, ok := entityFrom(item); ok {
				out.Entities = append(out.Entities, e)
			}
		}
	}

	if hasRelationships && !isNull(relRaw) {
		var items []map[string]any
		if err := json.Unmarshal(relRaw, &items); err != nil {
			if !isArray(relRaw) {
				return nil, malformed("relationships is not an array", raw)
			}
			items = objectItems(relRaw)
		}
		for _, item := range items {
			if r, ok := relationshipFrom(item); ok {
				out.Relationships = append(out.Relationships, r)
			}
		}
	}

	if v, ok := obj["confidence_score"]; ok {
		var score float64
		if err := json.Unmarshal(v, &score); err == nil {
			score = min(max(score, 0), 1)
			out.ConfidenceScore = &score
		}
	}
	if v, ok := obj["reasoning"]; ok {
		var reasoning string
		if err := json.Unmarshal(v, &reasoning); err == nil {
			out.Reasoning = strings.TrimSpace(reasoning)
		}
	}

	return out, nil
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	content := stripFences(raw)
	if content == "" {
		return nil, malformed("empty output", raw)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, malformed("no JSON object found", raw)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err != nil || obj == nil {
		return nil, malformed("invalid JSON object", raw)
	}
	return obj, nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func isNull(m json.RawMessage) bool {
	return strings.TrimSpace(string(m)) == "null"
}

func isArray(m json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(m)), "[")
}

// objectItems decodes an array whose elements are of mixed kinds, keeping the objects.
func objectItems(m json.RawMessage) []map[string]any {
	var elems []json.RawMessage
	if err := json.Unmarshal(m, &elems); err != nil {
		return nil
	}
	var out []map[string]any
	for _, el := range elems {
		var obj map[string]any
		if json.Unmarshal(el, &obj) == nil && obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

func entityFrom(item map[string]any) (analysis.Entity, bool) {
	name := stringField(item, "name")
	typ := stringField(item, "type")
	if strings.TrimSpace(name) == "" || strings.TrimSpace(typ) == "" {
		return analysis.Entity{}, false
	}
	return analysis.Entity{
		ID:         stringField(item, "id"),
		Name:       name,
		Type:       typ,
		StartIndex: intField(item, "start_index"),
		EndIndex:   intField(item, "end_index"),
		Attributes: attributesField(item),
	}, true
}

func relationshipFrom(item map[string]any) (analysis.Relationship, bool) {
	src := stringField(item, "source_entity_id")
	dst := stringField(item, "target_entity_id")
	typ := stringField(item, "type")
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" || strings.TrimSpace(typ) == "" {
		return analysis.Relationship{}, false
	}
	return analysis.Relationship{
		ID:             stringField(item, "id"),
		SourceEntityID: src,
		TargetEntityID: dst,
		Type:           typ,
		Attributes:     attributesField(item),
	}, true
}

// stringField reads a scalar field as a string; numbers are formatted.
func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}

func intField(item map[string]any, key string) *int {
	f, ok := item[key].(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func attributesField(item map[string]any) map[string]any {
	if m, ok := item["attributes"].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
