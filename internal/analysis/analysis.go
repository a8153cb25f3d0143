// Package analysis holds the canonical shape of an extraction result: entities,
// relationships, per-pass analyses and the reconciled multi-model response.
//
// Types here carry no behavior beyond identity keys and normalization; they are
// produced by the extractor and the arbitration engine and consumed by callers.
package analysis

// Entity is one extracted fact-bearing thing (a person, place, behavior, ...).
// Type is a tag from an open taxonomy such as PERSON or SUSPICIOUS_BEHAVIOR.
type Entity struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	StartIndex *int           `json:"start_index,omitempty"`
	EndIndex   *int           `json:"end_index,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Relationship links two entities. Endpoint ids are whatever the extractor
// emitted; they may be names or "TYPE:name" surrogates and may not resolve to an
// entity in the same result. Callers display dangling references, they do not fail.
type Relationship struct {
	ID             string         `json:"id,omitempty"`
	SourceEntityID string         `json:"source_entity_id"`
	TargetEntityID string         `json:"target_entity_id"`
	Type           string         `json:"type"`
	Attributes     map[string]any `json:"attributes"`
}

// ModelAnalysis is the output of one extraction pass.
type ModelAnalysis struct {
	ModelName       string         `json:"model_name"`
	Entities        []Entity       `json:"entities"`
	Relationships   []Relationship `json:"relationships"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
}

// IsEmpty reports whether the pass found nothing. An empty analysis is a valid
// outcome, distinct from a pass that failed to parse.
func (m *ModelAnalysis) IsEmpty() bool {
	return len(m.Entities) == 0 && len(m.Relationships) == 0
}

// MultiModelResponse is the arbitration result: both independent passes, the
// referee's final analysis, and the disagreement diagnostics between the first two.
type MultiModelResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Domain   string `json:"domain"`

	FirstAnalysis  ModelAnalysis `json:"first_analysis"`
	SecondAnalysis ModelAnalysis `json:"second_analysis"`
	FinalAnalysis  ModelAnalysis `json:"final_analysis"`

	AgreementScore           float64  `json:"agreement_score"`
	ConflictingEntities      []string `json:"conflicting_entities"`
	ConflictingRelationships []string `json:"conflicting_relationships"`
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one side of a chat exchange. Turns are appended, never mutated.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
