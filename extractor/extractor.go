// Package extractor turns raw text into a deduplicated set of entities and
// relations using an LLM, one chunk at a time.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ugnoguchigxp/regular-rag/log"
	"github.com/ugnoguchigxp/regular-rag/model"
)

// extractionSystemPrompt instructs the model to emit nothing but the
// extraction JSON object.
const extractionSystemPrompt = `You are a knowledge extraction system. Extract entities and relationships from the given text.

Respond with a single JSON object and nothing else:
{
  "entities": [{"name": "entity name", "type": "entity type", "properties": {}}],
  "relations": [{"source": "entity name", "target": "entity name", "relationType": "relation", "weight": 1.0}]
}

Rules:
- Entity types are short lowercase nouns (person, organization, drug, concept, ...).
- Relation source and target must be names from the entities list.
- Weight expresses relation strength between 0 and 1; omit it when unsure.
- Return {"entities": [], "relations": []} when the text contains nothing extractable.`

// LLM is the completion capability the extractor needs.
type LLM interface {
	ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error)
}

// Extractor runs chunked entity/relation extraction. Chunks are processed
// sequentially to keep rate-limit pressure bounded.
type Extractor struct {
	llm       LLM
	chunkSize int
	logger    log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithChunkSize overrides the extraction chunk budget.
func WithChunkSize(size int) Option {
	return func(e *Extractor) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithLogger sets the extractor's logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor backed by the given LLM.
func New(llm LLM, opts ...Option) *Extractor {
	e := &Extractor{
		llm:       llm,
		chunkSize: DefaultChunkSize,
		logger:    log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract chunks the text and extracts entities and relations from each
// chunk at temperature zero. A chunk whose response cannot be parsed or
// validated contributes nothing; provider errors surface to the caller.
//
// Entities are deduplicated by (lowercased name, type), later occurrences
// merging their properties into the first. Relations are deduplicated by
// (lowercased source, lowercased target, relation type), first wins.
func (e *Extractor) Extract(ctx context.Context, text string) (*model.ExtractionResult, error) {
	chunks := ChunkText(text, e.chunkSize)

	merged := &model.ExtractionResult{}
	entityIndex := make(map[string]int)
	relationSeen := make(map[string]struct{})

	for i, chunk := range chunks {
		result, err := e.extractChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to extract chunk %d: %w", i, err)
		}

		for _, entity := range result.Entities {
			key := strings.ToLower(entity.Name) + "\x00" + entity.Type
			if idx, ok := entityIndex[key]; ok {
				if len(entity.Properties) > 0 {
					existing := merged.Entities[idx]
					if existing.Properties == nil {
						existing.Properties = make(map[string]any, len(entity.Properties))
					}
					for k, v := range entity.Properties {
						existing.Properties[k] = v
					}
					merged.Entities[idx] = existing
				}
				continue
			}
			entityIndex[key] = len(merged.Entities)
			merged.Entities = append(merged.Entities, entity)
		}

		for _, relation := range result.Relations {
			key := strings.ToLower(relation.Source) + "\x00" + strings.ToLower(relation.Target) + "\x00" + relation.RelationType
			if _, ok := relationSeen[key]; ok {
				continue
			}
			relationSeen[key] = struct{}{}
			merged.Relations = append(merged.Relations, relation)
		}
	}

	return merged, nil
}

// extractChunk sends one chunk to the LLM and parses the response. Parse and
// validation failures are non-fatal and yield an empty contribution.
func (e *Extractor) extractChunk(ctx context.Context, chunk string) (*model.ExtractionResult, error) {
	completion, err := e.llm.ChatCompletion(ctx, []model.Message{
		{Role: model.RoleSystem, Content: extractionSystemPrompt},
		{Role: model.RoleUser, Content: chunk},
	}, &model.CompletionOptions{Temperature: 0})
	if err != nil {
		return nil, err
	}

	result, err := model.ParseExtractionResult(completion.Content)
	if err != nil {
		e.logger.Warn("extraction chunk skipped: %v", err)
		return &model.ExtractionResult{}, nil
	}

	return result, nil
}
