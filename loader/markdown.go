package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// MarkdownLoader loads a Markdown file as one plain-text document. The
// Markdown is rendered and the resulting markup stripped, so formatting
// syntax does not leak into the document text.
type MarkdownLoader struct {
	filePath string
	policy   *bluemonday.Policy
}

// NewMarkdownLoader creates a loader for one Markdown file.
func NewMarkdownLoader(filePath string) *MarkdownLoader {
	return &MarkdownLoader{
		filePath: filePath,
		policy:   bluemonday.UGCPolicy(),
	}
}

// Load reads the file and returns its rendered text content.
func (l *MarkdownLoader) Load(ctx context.Context) ([]Document, error) {
	raw, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.filePath, err)
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.ToHTML(raw, p, renderer)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rendered)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered markdown %s: %w", l.filePath, err)
	}

	content := normalizeText(l.policy.Sanitize(doc.Text()))

	return []Document{{
		Content: content,
		Metadata: map[string]any{
			"source": l.filePath,
			"type":   "markdown",
		},
	}}, nil
}
