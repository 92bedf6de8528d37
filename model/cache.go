package model

import "time"

// CacheEntry is a content-addressed cached response. HitCount is
// monotonically non-decreasing; LastHitAt is nil until the first hit.
type CacheEntry struct {
	RequestHash string         `json:"request_hash"`
	Question    string         `json:"question"`
	Context     map[string]any `json:"context,omitempty"`
	Response    string         `json:"response"`
	HitCount    int            `json:"hit_count"`
	LastHitAt   *time.Time     `json:"last_hit_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
