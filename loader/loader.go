// Package loader reads source files into plain-text documents ready for
// ingestion. Each loader normalizes its format down to text and attaches
// source metadata.
package loader

import "context"

// Document is one loaded piece of content with its source metadata.
type Document struct {
	Content  string
	Metadata map[string]any
}

// DocumentLoader loads documents from some source.
type DocumentLoader interface {
	Load(ctx context.Context) ([]Document, error)
}

// StaticLoader serves a fixed list of documents. Useful for tests and seeded
// corpora.
type StaticLoader struct {
	Documents []Document
}

// NewStaticLoader creates a loader over a fixed document list.
func NewStaticLoader(documents []Document) *StaticLoader {
	return &StaticLoader{Documents: documents}
}

// Load returns the static list.
func (l *StaticLoader) Load(ctx context.Context) ([]Document, error) {
	return l.Documents, nil
}
