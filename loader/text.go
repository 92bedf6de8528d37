package loader

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"
)

// TextLoader loads a plain-text file as a single document.
type TextLoader struct {
	filePath string
	metadata map[string]any
}

// TextLoaderOption configures a TextLoader.
type TextLoaderOption func(*TextLoader)

// WithTextMetadata merges extra metadata into every loaded document.
func WithTextMetadata(metadata map[string]any) TextLoaderOption {
	return func(l *TextLoader) {
		maps.Copy(l.metadata, metadata)
	}
}

// NewTextLoader creates a loader for one text file.
func NewTextLoader(filePath string, opts ...TextLoaderOption) *TextLoader {
	l := &TextLoader{
		filePath: filePath,
		metadata: map[string]any{
			"source": filePath,
			"type":   "text",
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the whole file into one document.
func (l *TextLoader) Load(ctx context.Context) ([]Document, error) {
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.filePath, err)
	}

	metadata := make(map[string]any, len(l.metadata))
	maps.Copy(metadata, l.metadata)

	return []Document{{
		Content:  strings.TrimSpace(string(content)),
		Metadata: metadata,
	}}, nil
}

// TextParagraphLoader loads a text file as one document per paragraph.
type TextParagraphLoader struct {
	filePath string
	metadata map[string]any
}

// NewTextParagraphLoader creates a paragraph-splitting loader for one file.
func NewTextParagraphLoader(filePath string) *TextParagraphLoader {
	return &TextParagraphLoader{
		filePath: filePath,
		metadata: map[string]any{
			"source": filePath,
			"type":   "text_paragraphs",
		},
	}
}

// Load reads the file and emits one document per non-empty paragraph.
func (l *TextParagraphLoader) Load(ctx context.Context) ([]Document, error) {
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.filePath, err)
	}

	var documents []Document
	for i, paragraph := range strings.Split(string(content), "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		metadata := make(map[string]any, len(l.metadata)+1)
		maps.Copy(metadata, l.metadata)
		metadata["paragraph_number"] = i

		documents = append(documents, Document{Content: paragraph, Metadata: metadata})
	}

	return documents, nil
}
