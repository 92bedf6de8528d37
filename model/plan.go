package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Top-k bounds applied when normalizing a search plan.
const (
	MinTopK     = 1
	MaxTopK     = 8
	DefaultTopK = 5
)

// Plan is the normalized retrieval intent derived from a user message.
type Plan struct {
	ShouldSearch       bool     `json:"should_search"`
	SearchQuery        string   `json:"search_query"`
	IdentifiedEntities []string `json:"identified_entities,omitempty"`
	TopK               int      `json:"top_k"`
}

// RawPlan is the loosely typed plan as produced by the planner LLM, before
// normalization. Pointer fields distinguish absent from zero values.
type RawPlan struct {
	ShouldSearch       *bool    `json:"should_search"`
	SearchQuery        string   `json:"search_query"`
	IdentifiedEntities []string `json:"identified_entities"`
	TopK               *float64 `json:"top_k"`
}

// ParseRawPlan extracts the first JSON object from an LLM response and
// validates it against the plan schema.
func ParseRawPlan(response string) (*RawPlan, error) {
	obj, ok := ExtractJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object in planner response")
	}

	var raw RawPlan
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	if raw.ShouldSearch == nil {
		return nil, fmt.Errorf("plan is missing should_search")
	}
	if *raw.ShouldSearch && raw.SearchQuery == "" {
		return nil, fmt.Errorf("plan requests search without search_query")
	}

	return &raw, nil
}

// DefaultPlan is the fallback used when the planner output cannot be parsed:
// search with the user's own message.
func DefaultPlan(userMessage string) Plan {
	return Plan{
		ShouldSearch: true,
		SearchQuery:  userMessage,
		TopK:         DefaultTopK,
	}
}

// NormalizePlan converts a raw plan into its canonical form, clamping top_k
// into [MinTopK, MaxTopK] by floor and defaulting it when absent or not
// finite.
func NormalizePlan(raw *RawPlan) Plan {
	plan := Plan{
		SearchQuery:        raw.SearchQuery,
		IdentifiedEntities: raw.IdentifiedEntities,
		TopK:               normalizeTopK(raw.TopK),
	}
	if raw.ShouldSearch != nil {
		plan.ShouldSearch = *raw.ShouldSearch
	}
	return plan
}

func normalizeTopK(v *float64) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return DefaultTopK
	}
	k := int(math.Floor(*v))
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// ExtractJSONObject returns the first balanced {...} substring of s. String
// literals are respected so braces inside quoted values do not terminate the
// scan.
func ExtractJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if start < 0 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
