package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CacheVersion is folded into every request hash so a format change
// invalidates old cache entries wholesale.
const CacheVersion = "v2"

// RequestHash computes the content address of a RAG request: the SHA-256 hex
// of a stable JSON serialization of the conversation, the caller context and
// the normalized plan. Object keys are sorted recursively; array order is
// preserved.
func RequestHash(messages []Message, context map[string]any, plan Plan) (string, error) {
	payload := map[string]any{
		"cacheVersion": CacheVersion,
		"messages":     messages,
		"context":      context,
		"plan":         plan,
	}

	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON serializes v with all object keys sorted recursively.
// encoding/json already sorts map keys, so one round trip through untyped
// maps normalizes structs and nested objects alike. Number literals are kept
// verbatim to avoid float round-tripping.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return nil, err
	}

	return json.Marshal(normalized)
}
