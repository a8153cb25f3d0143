package analysis

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// NormalizeName case-folds s and collapses every run of whitespace into a single
// space. It is purely lexical: "Ali" and "ALI " match, "Ali" and "Ali Rezaei" do not.
func NormalizeName(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.FieldsFunc(folded, unicode.IsSpace), " ")
}

// EntityKey is the identity of an entity for comparison across passes.
type EntityKey struct {
	Name string
	Type string
}

// Key returns the entity's identity key.
func (e Entity) Key() EntityKey {
	return EntityKey{Name: NormalizeName(e.Name), Type: strings.TrimSpace(e.Type)}
}

// RelationshipKey is the identity of a relationship for comparison across passes.
type RelationshipKey struct {
	Source string
	Target string
	Type   string
}

// Key returns the relationship's identity key.
func (r Relationship) Key() RelationshipKey {
	return RelationshipKey{
		Source: strings.TrimSpace(r.SourceEntityID),
		Target: strings.TrimSpace(r.TargetEntityID),
		Type:   strings.TrimSpace(r.Type),
	}
}

// AttributesEqual reports whether two attribute maps hold the same values.
// A nil map equals an empty one. Values are compared by their JSON encoding so
// that an int and a float64 with the same value are equal.
func AttributesEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}
