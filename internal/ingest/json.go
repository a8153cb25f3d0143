package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// JSONImporter handles .json files.
type JSONImporter struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(name string) bool {
	return hasExt(name, ".json")
}

// Text flattens the document to "path: value" lines in key order.
func (j *JSONImporter) Text(data []byte) (string, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(decodeText(data)), &raw); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return flattenedText(raw), nil
}

// flattenedText renders a decoded JSON or YAML value as sorted "key: value"
// lines. Scalars at the root render bare.
func flattenedText(val interface{}) string {
	out := make(map[string]string)
	flattenJSON("", val, out)
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			lines = append(lines, out[k])
			continue
		}
		lines = append(lines, k+": "+out[k])
	}
	return strings.Join(lines, "\n")
}

// flattenJSON recursively flattens a JSON value into dot-notation key-value pairs.
func flattenJSON(prefix string, val interface{}, out map[string]string) {
	switch v := val.(type) {
	case map[string]interface{}:
		for k, inner := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(key, inner, out)
		}
	case []interface{}:
		for i, elem := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), elem, out)
		}
	case string:
		out[prefix] = v
	case float64:
		out[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		out[prefix] = fmt.Sprintf("%t", v)
	case nil:
		out[prefix] = "null"
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}
