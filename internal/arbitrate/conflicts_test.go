package arbitrate

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/stretchr/testify/assert"
)

func TestEntityConflicts(t *testing.T) {
	tests := []struct {
		name          string
		first, second []analysis.Entity
		want          []string
	}{
		{
			name: "none",
			want: []string{},
		},
		{
			name:   "case and whitespace are not conflicts",
			first:  []analysis.Entity{ent("Ali  Rezaei", "PERSON")},
			second: []analysis.Entity{ent(" ali rezaei", "PERSON")},
			want:   []string{},
		},
		{
			name:   "type is part of identity",
			first:  []analysis.Entity{ent("Ali", "PERSON")},
			second: []analysis.Entity{ent("Ali", "SUSPECT")},
			want: []string{
				"Ali (PERSON): only in first pass",
				"Ali (SUSPECT): only in second pass",
			},
		},
		{
			name:   "order is first pass then second-only",
			first:  []analysis.Entity{ent("B", "X"), ent("Shared", "X"), ent("A", "X")},
			second: []analysis.Entity{ent("D", "X"), ent("Shared", "X"), ent("C", "X")},
			want: []string{
				"B (X): only in first pass",
				"A (X): only in first pass",
				"D (X): only in second pass",
				"C (X): only in second pass",
			},
		},
		{
			name:   "duplicates within a pass count once",
			first:  []analysis.Entity{ent("Ali", "PERSON"), ent("ALI", "PERSON")},
			second: []analysis.Entity{},
			want:   []string{"Ali (PERSON): only in first pass"},
		},
		{
			name:   "attributes differ",
			first:  []analysis.Entity{{Name: "Ali", Type: "PERSON", Attributes: map[string]any{"age": 30}}},
			second: []analysis.Entity{{Name: "Ali", Type: "PERSON", Attributes: map[string]any{"age": 31}}},
			want:   []string{"Ali (PERSON): attributes differ between passes"},
		},
		{
			name:   "nil and empty attributes are equal",
			first:  []analysis.Entity{{Name: "Ali", Type: "PERSON"}},
			second: []analysis.Entity{{Name: "Ali", Type: "PERSON", Attributes: map[string]any{}}},
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityConflicts(tt.first, tt.second))
		})
	}
}

func TestRelationshipConflicts(t *testing.T) {
	first := []analysis.Relationship{
		rel("Ali", "Shop", "VISITED"),
		{SourceEntityID: "Ali", TargetEntityID: "Car", Type: "DROVE", Attributes: map[string]any{"when": "night"}},
	}
	second := []analysis.Relationship{
		{SourceEntityID: "Ali", TargetEntityID: "Car", Type: "DROVE", Attributes: map[string]any{"when": "day"}},
		rel("Shop", "Ali", "VISITED"),
	}
	assert.Equal(t, []string{
		"Ali -[VISITED]-> Shop: only in first pass",
		"Ali -[DROVE]-> Car: attributes differ between passes",
		"Shop -[VISITED]-> Ali: only in second pass",
	}, RelationshipConflicts(first, second))
}

func TestAgreementScore(t *testing.T) {
	a := func(ents []analysis.Entity, rels []analysis.Relationship) *analysis.ModelAnalysis {
		return &analysis.ModelAnalysis{Entities: ents, Relationships: rels}
	}
	tests := []struct {
		name          string
		first, second *analysis.ModelAnalysis
		want          float64
	}{
		{"both empty", a(nil, nil), a(nil, nil), 1.0},
		{"identical", a([]analysis.Entity{ent("Ali", "PERSON")}, nil), a([]analysis.Entity{ent("ali", "PERSON")}, nil), 1.0},
		{"disjoint", a([]analysis.Entity{ent("Ali", "PERSON")}, nil), a([]analysis.Entity{ent("Shop", "LOCATION")}, nil), 0.0},
		{"one side empty", a([]analysis.Entity{ent("Ali", "PERSON")}, nil), a(nil, nil), 0.0},
		{
			"entities and relationships pooled",
			a([]analysis.Entity{ent("Ali", "PERSON"), ent("Shop", "LOCATION")}, []analysis.Relationship{rel("Ali", "Shop", "VISITED")}),
			a([]analysis.Entity{ent("Ali", "PERSON"), ent("Shop", "LOCATION")}, nil),
			2.0 / 3.0,
		},
		{
			"duplicates ignored",
			a([]analysis.Entity{ent("Ali", "PERSON"), ent("Ali", "PERSON")}, nil),
			a([]analysis.Entity{ent("Ali", "PERSON")}, nil),
			1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AgreementScore(tt.first, tt.second), 1e-9)
		})
	}
}

// randomPass draws entities and relationships from a small vocabulary so that
// overlaps and duplicates are common.
func randomPass(rng *rand.Rand) *analysis.ModelAnalysis {
	names := []string{"Ali", "ali", "Shop", "Sara", "Car"}
	types := []string{"PERSON", "LOCATION"}
	out := &analysis.ModelAnalysis{}
	for i := rng.Intn(6); i > 0; i-- {
		e := ent(names[rng.Intn(len(names))], types[rng.Intn(len(types))])
		if rng.Intn(4) == 0 {
			e.Attributes = map[string]any{"n": rng.Intn(2)}
		}
		out.Entities = append(out.Entities, e)
	}
	for i := rng.Intn(4); i > 0; i-- {
		out.Relationships = append(out.Relationships,
			rel(names[rng.Intn(len(names))], names[rng.Intn(len(names))], "KNOWS"))
	}
	return out
}

func TestConflictAndScoreProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		first, second := randomPass(rng), randomPass(rng)

		score := AgreementScore(first, second)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)

		_, a := firstByKey(first.Entities, analysis.Entity.Key)
		_, b := firstByKey(second.Entities, analysis.Entity.Key)
		for _, d := range EntityConflicts(first.Entities, second.Entities) {
			switch {
			case strings.HasSuffix(d, onlyFirst):
				assert.True(t, hasLabel(a, d) && !hasLabel(b, d), "descriptor %q", d)
			case strings.HasSuffix(d, onlySecond):
				assert.True(t, hasLabel(b, d) && !hasKeyFor(a, b, d), "descriptor %q", d)
			case strings.HasSuffix(d, attributesDiff):
				assert.True(t, hasLabel(a, d), "descriptor %q", d)
			default:
				t.Fatalf("unexpected descriptor %q", d)
			}
		}

		// Identical passes always agree fully with no conflicts.
		assert.Equal(t, 1.0, AgreementScore(first, first))
		assert.Empty(t, EntityConflicts(first.Entities, first.Entities))
		assert.Empty(t, RelationshipConflicts(first.Relationships, first.Relationships))
	}
}

func hasLabel(m map[analysis.EntityKey]analysis.Entity, descriptor string) bool {
	for _, e := range m {
		if strings.HasPrefix(descriptor, entityLabel(e)+": ") {
			return true
		}
	}
	return false
}

// hasKeyFor reports whether the second-pass entity named by descriptor also
// has its key in a.
func hasKeyFor(a, b map[analysis.EntityKey]analysis.Entity, descriptor string) bool {
	for k, e := range b {
		if strings.HasPrefix(descriptor, entityLabel(e)+": ") {
			_, ok := a[k]
			return ok
		}
	}
	return false
}

func ExampleEntityConflicts() {
	first := []analysis.Entity{{Name: "Ali", Type: "PERSON"}, {Name: "Shop", Type: "LOCATION"}}
	second := []analysis.Entity{{Name: "Ali", Type: "PERSON"}}
	for _, c := range EntityConflicts(first, second) {
		fmt.Println(c)
	}
	// Output: Shop (LOCATION): only in first pass
}
