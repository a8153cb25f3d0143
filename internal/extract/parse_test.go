package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEnts  int
		wantRels  int
		wantError bool
	}{
		{"plain object", `{"entities":[{"name":"Ali","type":"PERSON"}],"relationships":[]}`, 1, 0, false},
		{"empty result", `{"entities":[],"relationships":[]}`, 0, 0, false},
		{"only entities key", `{"entities":[{"name":"Ali","type":"PERSON"}]}`, 1, 0, false},
		{"only relationships key", `{"relationships":[{"source_entity_id":"a","target_entity_id":"b","type":"KNOWS"}]}`, 0, 1, false},
		{"fenced", "```json\n{\"entities\":[{\"name\":\"Ali\",\"type\":\"PERSON\"}],\"relationships\":[]}\n```", 1, 0, false},
		{"prose around object", "Here you go:\n{\"entities\":[{\"name\":\"Ali\",\"type\":\"PERSON\"}],\"relationships\":[]}\nHope that helps.", 1, 0, false},
		{"null arrays read as empty", `{"entities":null,"relationships":null}`, 0, 0, false},
		{"invalid items dropped", `{"entities":[{"name":"Ali"},{"type":"PERSON"},{"name":"Shop","type":"LOCATION"},"junk"],"relationships":[{"source_entity_id":"a","type":"X"}]}`, 1, 0, false},

		{"not json", `I could not find any entities.`, 0, 0, true},
		{"empty", ``, 0, 0, true},
		{"array", `[{"name":"Ali","type":"PERSON"}]`, 0, 0, true},
		{"no known keys", `{"facts":[]}`, 0, 0, true},
		{"entities not array", `{"entities":"Ali","relationships":[]}`, 0, 0, true},
		{"relationships object", `{"entities":[],"relationships":{"a":"b"}}`, 0, 0, true},
		{"truncated", `{"entities":[{"name":"Ali","type":"PER`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.raw, "ollama/test")
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedExtraction), "want ErrMalformedExtraction, got %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ollama/test", got.ModelName)
			assert.Len(t, got.Entities, tt.wantEnts)
			assert.Len(t, got.Relationships, tt.wantRels)
			assert.NotNil(t, got.Entities)
			assert.NotNil(t, got.Relationships)
		})
	}
}

func TestParseAnalysisFields(t *testing.T) {
	raw := `{
		"entities": [
			{"id": "e1", "name": "Ali", "type": "PERSON", "start_index": 0, "end_index": 3, "attributes": {"age": 30}}
		],
		"relationships": [
			{"id": "r1", "source_entity_id": "e1", "target_entity_id": "e2", "type": "VISITED", "attributes": {"when": "night"}}
		],
		"confidence_score": 1.7,
		"reasoning": "  clear statement  "
	}`
	got, err := ParseAnalysis(raw, "m")
	require.NoError(t, err)

	e := got.Entities[0]
	assert.Equal(t, "e1", e.ID)
	require.NotNil(t, e.StartIndex)
	require.NotNil(t, e.EndIndex)
	assert.Equal(t, 0, *e.StartIndex)
	assert.Equal(t, 3, *e.EndIndex)
	assert.Equal(t, float64(30), e.Attributes["age"])

	r := got.Relationships[0]
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, "VISITED", r.Type)
	assert.Equal(t, "night", r.Attributes["when"])

	require.NotNil(t, got.ConfidenceScore)
	assert.Equal(t, 1.0, *got.ConfidenceScore)
	assert.Equal(t, "clear statement", got.Reasoning)
}

func TestParseAnalysisDefaultsAttributes(t *testing.T) {
	got, err := ParseAnalysis(`{"entities":[{"name":"Ali","type":"PERSON"}]}`, "m")
	require.NoError(t, err)
	assert.NotNil(t, got.Entities[0].Attributes)
	assert.Nil(t, got.Entities[0].StartIndex)
	assert.Nil(t, got.ConfidenceScore)
}

func TestMalformedErrorTruncatesRaw(t *testing.T) {
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'ب'
	}
	_, err := ParseAnalysis(string(long), "m")
	var me *MalformedError
	require.True(t, errors.As(err, &me))
	assert.LessOrEqual(t, len([]rune(me.Raw)), rawSnippetLen+3)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1}  `))
}
