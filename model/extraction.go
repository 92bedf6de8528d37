package model

import (
	"encoding/json"
	"fmt"
)

// ExtractedEntity is an entity as named by the extraction LLM, before
// deterministic ids are assigned.
type ExtractedEntity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ExtractedRelation is a relation between two extracted entities, referenced
// by name. Weight defaults to 1.0 when absent.
type ExtractedRelation struct {
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	RelationType string   `json:"relationType"`
	Weight       *float64 `json:"weight,omitempty"`
}

// ExtractionResult is the deduplicated output of entity/relation extraction.
type ExtractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// ParseExtractionResult extracts the first JSON object from an LLM response
// and validates it against the extraction schema. Entities require name and
// type; relations require source, target and relationType.
func ParseExtractionResult(response string) (*ExtractionResult, error) {
	obj, ok := ExtractJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object in extraction response")
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extraction result: %w", err)
	}

	for _, e := range result.Entities {
		if e.Name == "" || e.Type == "" {
			return nil, fmt.Errorf("extracted entity is missing name or type")
		}
	}
	for _, r := range result.Relations {
		if r.Source == "" || r.Target == "" || r.RelationType == "" {
			return nil, fmt.Errorf("extracted relation is missing an endpoint or type")
		}
	}

	return &result, nil
}
