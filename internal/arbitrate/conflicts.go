package arbitrate

import (
	"fmt"

	"github.com/hurttlocker/langextract/internal/analysis"
)

const (
	onlyFirst      = "only in first pass"
	onlySecond     = "only in second pass"
	attributesDiff = "attributes differ between passes"
)

func entityLabel(e analysis.Entity) string {
	return fmt.Sprintf("%s (%s)", e.Name, e.Type)
}

func relationshipLabel(r analysis.Relationship) string {
	return fmt.Sprintf("%s -[%s]-> %s", r.SourceEntityID, r.Type, r.TargetEntityID)
}

// firstByKey keeps the first item per key, preserving order of first appearance.
func firstByKey[T any, K comparable](items []T, key func(T) K) ([]K, map[K]T) {
	order := make([]K, 0, len(items))
	byKey := make(map[K]T, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := byKey[k]; ok {
			continue
		}
		byKey[k] = it
		order = append(order, k)
	}
	return order, byKey
}

// diff walks first-pass keys in order, then second-pass-only keys in order.
func diff[T any, K comparable](first, second []T, key func(T) K, attrs func(T) map[string]any, label func(T) string) []string {
	orderA, a := firstByKey(first, key)
	orderB, b := firstByKey(second, key)

	out := []string{}
	for _, k := range orderA {
		itA := a[k]
		itB, inB := b[k]
		switch {
		case !inB:
			out = append(out, label(itA)+": "+onlyFirst)
		case !analysis.AttributesEqual(attrs(itA), attrs(itB)):
			out = append(out, label(itA)+": "+attributesDiff)
		}
	}
	for _, k := range orderB {
		if _, inA := a[k]; !inA {
			out = append(out, label(b[k])+": "+onlySecond)
		}
	}
	return out
}

// EntityConflicts describes entities found by only one pass, or by both with
// different attributes.
func EntityConflicts(first, second []analysis.Entity) []string {
	return diff(first, second,
		analysis.Entity.Key,
		func(e analysis.Entity) map[string]any { return e.Attributes },
		entityLabel)
}

// RelationshipConflicts is EntityConflicts for relationships.
func RelationshipConflicts(first, second []analysis.Relationship) []string {
	return diff(first, second,
		analysis.Relationship.Key,
		func(r analysis.Relationship) map[string]any { return r.Attributes },
		relationshipLabel)
}

func overlap[K comparable](a, b map[K]bool) (both, either int) {
	for k := range a {
		if b[k] {
			both++
		}
	}
	return both, len(a) + len(b) - both
}

// AgreementScore is the share of identity keys, entities and relationships
// together, that both passes found: |both| / |either|. Two empty passes agree
// fully.
func AgreementScore(first, second *analysis.ModelAnalysis) float64 {
	keySet := func(m *analysis.ModelAnalysis) (map[analysis.EntityKey]bool, map[analysis.RelationshipKey]bool) {
		ents := make(map[analysis.EntityKey]bool, len(m.Entities))
		for _, e := range m.Entities {
			ents[e.Key()] = true
		}
		rels := make(map[analysis.RelationshipKey]bool, len(m.Relationships))
		for _, r := range m.Relationships {
			rels[r.Key()] = true
		}
		return ents, rels
	}
	entA, relA := keySet(first)
	entB, relB := keySet(second)

	eBoth, eEither := overlap(entA, entB)
	rBoth, rEither := overlap(relA, relB)
	if eEither+rEither == 0 {
		return 1.0
	}
	score := float64(eBoth+rBoth) / float64(eEither+rEither)
	return min(max(score, 0), 1)
}
