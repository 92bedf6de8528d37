package adapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// LangChainModel adapts a langchaingo llms.Model to the engine's completion
// interface, so any provider langchaingo supports can back the engine.
type LangChainModel struct {
	model llms.Model
}

// NewLangChainModel wraps a langchaingo model.
func NewLangChainModel(m llms.Model) *LangChainModel {
	return &LangChainModel{model: m}
}

// ChatCompletion runs one completion through the wrapped model. langchaingo
// does not expose a response id or token usage, so those stay empty.
func (a *LangChainModel) ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error) {
	content := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		content[i] = llms.MessageContent{
			Role:  chatMessageType(m.Role),
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		}
	}

	var callOpts []llms.CallOption
	if opts != nil {
		callOpts = append(callOpts, llms.WithTemperature(float64(opts.Temperature)))
		if opts.MaxTokens > 0 {
			callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
		}
	}

	resp, err := a.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("langchain completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("langchain completion returned no choices")
	}

	return &model.Completion{Content: resp.Choices[0].Content}, nil
}

func chatMessageType(role string) schema.ChatMessageType {
	switch role {
	case model.RoleSystem:
		return schema.ChatMessageTypeSystem
	case model.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

// LangChainEmbedder adapts a langchaingo embeddings.Embedder to the engine's
// embedding interface.
type LangChainEmbedder struct {
	embedder embeddings.Embedder
}

// NewLangChainEmbedder wraps a langchaingo embedder.
func NewLangChainEmbedder(e embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: e}
}

// CreateEmbedding embeds one text with the wrapped embedder.
func (a *LangChainEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedding, err := a.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("langchain embedding failed: %w", err)
	}
	return embedding, nil
}
