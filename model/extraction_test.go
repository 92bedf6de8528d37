package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExtractionResult_Valid(t *testing.T) {
	result, err := ParseExtractionResult(`{
		"entities": [
			{"name": "Aspirin", "type": "drug", "properties": {"class": "NSAID"}},
			{"name": "Fever", "type": "symptom"}
		],
		"relations": [
			{"source": "Aspirin", "target": "Fever", "relationType": "treats", "weight": 0.9}
		]
	}`)
	assert.NoError(t, err)
	assert.Len(t, result.Entities, 2)
	assert.Len(t, result.Relations, 1)
	assert.Equal(t, "NSAID", result.Entities[0].Properties["class"])
	assert.Equal(t, 0.9, *result.Relations[0].Weight)
}

func TestParseExtractionResult_WeightOptional(t *testing.T) {
	result, err := ParseExtractionResult(`{
		"entities": [{"name": "A", "type": "t"}, {"name": "B", "type": "t"}],
		"relations": [{"source": "A", "target": "B", "relationType": "rel"}]
	}`)
	assert.NoError(t, err)
	assert.Nil(t, result.Relations[0].Weight)
}

func TestParseExtractionResult_Empty(t *testing.T) {
	result, err := ParseExtractionResult(`{"entities": [], "relations": []}`)
	assert.NoError(t, err)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Relations)
}

func TestParseExtractionResult_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no JSON", "nothing"},
		{"entity missing type", `{"entities": [{"name": "A"}]}`},
		{"entity missing name", `{"entities": [{"type": "t"}]}`},
		{"relation missing target", `{"relations": [{"source": "A", "relationType": "rel"}]}`},
		{"relation missing type", `{"relations": [{"source": "A", "target": "B"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExtractionResult(tt.response)
			assert.Error(t, err)
		})
	}
}

func TestLastUserMessage(t *testing.T) {
	assert.Equal(t, "", LastUserMessage(nil))
	assert.Equal(t, "", LastUserMessage([]Message{{Role: RoleAssistant, Content: "hi"}}))
	assert.Equal(t, "second", LastUserMessage([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	}))
}
