package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLImporter handles .yaml and .yml files.
type YAMLImporter struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLImporter) CanHandle(name string) bool {
	return hasExt(name, ".yaml", ".yml")
}

// Text flattens every document like JSONImporter does, separating
// multi-document streams with blank lines.
func (y *YAMLImporter) Text(data []byte) (string, error) {
	decoder := yaml.NewDecoder(strings.NewReader(decodeText(data)))
	var docs []string
	for docNum := 1; ; docNum++ {
		var doc interface{}
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("invalid YAML (document %d): %w", docNum, err)
		}
		if doc == nil {
			continue
		}
		docs = append(docs, flattenedText(normalizeYAML(doc)))
	}
	return strings.Join(docs, "\n\n"), nil
}

// normalizeYAML converts map[interface{}]interface{} nodes, which yaml.v3
// produces for non-string keys, into the map shape flattenJSON expects.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = normalizeYAML(inner)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalizeYAML(inner)
		}
		return out
	case []interface{}:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
