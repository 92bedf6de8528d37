package model

import "time"

// Document is a corpus entry stored whole. The embedding, when present, has
// the engine's configured dimension; the lexical index is derived from
// Content by the store on every upsert.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Path      string         `json:"path,omitempty"`
	Screen    string         `json:"screen,omitempty"`
	Domain    string         `json:"domain,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VectorHit is a document matched by vector similarity. Score is
// 1 / (1 + L2 distance).
type VectorHit struct {
	Document Document
	Distance float64
	Score    float64
}

// TextHit is a document matched by full-text relevance. Score is the
// lexical rank.
type TextHit struct {
	Document Document
	Score    float64
}

// SearchResult is a fused hybrid-search hit.
type SearchResult struct {
	Document    Document `json:"document"`
	Score       float64  `json:"score"`
	VectorScore float64  `json:"vector_score,omitempty"`
	TextScore   float64  `json:"text_score,omitempty"`
}
