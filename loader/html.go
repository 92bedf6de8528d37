package loader

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// HTMLLoader loads an HTML file as one plain-text document. Markup is
// sanitized before extraction so script and style content never reaches the
// document text.
type HTMLLoader struct {
	filePath string
	policy   *bluemonday.Policy
}

// NewHTMLLoader creates a loader for one HTML file.
func NewHTMLLoader(filePath string) *HTMLLoader {
	return &HTMLLoader{
		filePath: filePath,
		policy:   bluemonday.UGCPolicy(),
	}
}

// Load reads the file, strips markup and returns the visible text with the
// page title in metadata.
func (l *HTMLLoader) Load(ctx context.Context) ([]Document, error) {
	raw, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.filePath, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", l.filePath, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()

	body := doc.Find("body")
	var text string
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}

	content := normalizeText(l.policy.Sanitize(text))

	metadata := map[string]any{
		"source": l.filePath,
		"type":   "html",
	}
	if title != "" {
		metadata["title"] = title
	}

	return []Document{{Content: content, Metadata: metadata}}, nil
}

// normalizeText collapses runs of spaces and blank lines left behind by
// markup removal.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true

	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
