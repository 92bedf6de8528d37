// Package chatbot orchestrates one retrieval-augmented chat request: plan,
// retrieve, enrich, complete, cache.
package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/ugnoguchigxp/regular-rag/log"
	"github.com/ugnoguchigxp/regular-rag/model"
)

// planSystemPrompt drives the intent-analysis call. The model decides whether
// the question needs retrieval, rewrites the query and surfaces entities.
const planSystemPrompt = `You are a retrieval planner. Analyze the user's question and respond with a single JSON object and nothing else:
{
  "should_search": true or false,
  "search_query": "query to search the knowledge base with",
  "identified_entities": ["entity names mentioned in the question"],
  "top_k": 5
}

Rules:
- should_search is false only for questions answerable without any domain knowledge (greetings, small talk).
- search_query is required when should_search is true; rewrite the question into a compact search query.
- identified_entities lists concrete entities worth looking up in the knowledge graph; it may be empty.
- top_k is how many documents to retrieve, between 1 and 8.`

// answerPreamble opens the system prompt of the final completion; the
// retrieved context follows it.
const answerPreamble = `You are a helpful assistant. Answer using the reference material below when it is relevant; say so when it does not cover the question.

Reference material:
`

// CachedResponseID marks responses served from the cache.
const CachedResponseID = "cached"

// LLM is the completion capability used for planning and answering.
type LLM interface {
	ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error)
}

// Embedder embeds search queries.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs hybrid document retrieval.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, embedding []float32, k int, screen string) ([]model.SearchResult, error)
}

// GraphContext renders knowledge-graph context for identified entities.
type GraphContext interface {
	ContextForEntities(ctx context.Context, names []string) (string, error)
}

// Cache is the content-addressed response cache.
type Cache interface {
	FindByHash(ctx context.Context, hash string) (*model.CacheEntry, error)
	Save(ctx context.Context, hash, question string, context map[string]any, response string) error
	IncrementHitCount(ctx context.Context, hash string) error
}

// Chatbot is the stateless request orchestrator. All state lives in the
// stores, so one instance serves concurrent requests.
type Chatbot struct {
	llm      LLM
	embedder Embedder
	searcher Searcher
	graph    GraphContext
	cache    Cache
	logger   log.Logger
}

// Option configures a Chatbot.
type Option func(*Chatbot)

// WithLogger sets the chatbot's logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Chatbot) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Chatbot wired to its collaborators.
func New(llm LLM, embedder Embedder, searcher Searcher, graph GraphContext, cache Cache, opts ...Option) *Chatbot {
	c := &Chatbot{
		llm:      llm,
		embedder: embedder,
		searcher: searcher,
		graph:    graph,
		cache:    cache,
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessRAGRequest answers one conversation. It plans retrieval with a first
// LLM call, consults the cache keyed by the normalized request, retrieves and
// enriches context, answers with a second LLM call and persists the result.
//
// Cache failures degrade to a miss and are logged; retrieval and completion
// failures surface to the caller.
func (c *Chatbot) ProcessRAGRequest(ctx context.Context, messages []model.Message, reqContext map[string]any) (*model.Response, error) {
	userMessage := model.LastUserMessage(messages)

	plan := c.plan(ctx, userMessage)

	hash, err := model.RequestHash(messages, reqContext, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to compute request hash: %w", err)
	}

	if entry, err := c.cache.FindByHash(ctx, hash); err != nil {
		c.logger.Warn("cache lookup failed, treating as miss: %v", err)
	} else if entry != nil {
		if err := c.cache.IncrementHitCount(ctx, hash); err != nil {
			c.logger.Warn("failed to record cache hit: %v", err)
		}
		return &model.Response{ID: CachedResponseID, Content: entry.Response}, nil
	}

	var (
		results    []model.SearchResult
		ragContext string
	)
	if plan.ShouldSearch {
		results, ragContext, err = c.retrieve(ctx, plan, reqContext)
		if err != nil {
			return nil, err
		}
	}

	if len(plan.IdentifiedEntities) > 0 {
		graphContext, err := c.graph.ContextForEntities(ctx, plan.IdentifiedEntities)
		if err != nil {
			c.logger.Warn("graph enrichment failed: %v", err)
		} else if graphContext != "" {
			if ragContext != "" {
				ragContext += "\n\n"
			}
			ragContext += graphContext
		}
	}

	prompt := make([]model.Message, 0, len(messages)+1)
	prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: answerPreamble + ragContext})
	prompt = append(prompt, messages...)

	completion, err := c.llm.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	if err := c.cache.Save(ctx, hash, userMessage, reqContext, completion.Content); err != nil {
		c.logger.Warn("failed to persist cache entry: %v", err)
	}

	return &model.Response{
		ID:      completion.ID,
		Content: completion.Content,
		Usage:   completion.Usage,
		RAG: &model.RAGInfo{
			Results: results,
			Plan:    plan,
		},
	}, nil
}

// plan runs the intent-analysis call and normalizes its output. Any failure,
// transport or parse, falls back to searching with the user's own message.
func (c *Chatbot) plan(ctx context.Context, userMessage string) model.Plan {
	completion, err := c.llm.ChatCompletion(ctx, []model.Message{
		{Role: model.RoleSystem, Content: planSystemPrompt},
		{Role: model.RoleUser, Content: userMessage},
	}, &model.CompletionOptions{Temperature: 0})
	if err != nil {
		c.logger.Warn("planner call failed, using default plan: %v", err)
		return model.DefaultPlan(userMessage)
	}

	raw, err := model.ParseRawPlan(completion.Content)
	if err != nil {
		c.logger.Warn("planner response rejected, using default plan: %v", err)
		return model.DefaultPlan(userMessage)
	}

	return model.NormalizePlan(raw)
}

// retrieve embeds the planned query and runs hybrid search. The concatenated
// document contents become the retrieval context.
func (c *Chatbot) retrieve(ctx context.Context, plan model.Plan, reqContext map[string]any) ([]model.SearchResult, string, error) {
	embedding, err := c.embedder.CreateEmbedding(ctx, plan.SearchQuery)
	if err != nil {
		return nil, "", fmt.Errorf("failed to embed search query: %w", err)
	}

	results, err := c.searcher.HybridSearch(ctx, plan.SearchQuery, embedding, plan.TopK, screenFromContext(reqContext))
	if err != nil {
		return nil, "", fmt.Errorf("hybrid search failed: %w", err)
	}

	contents := make([]string, len(results))
	for i, result := range results {
		contents[i] = result.Document.Content
	}

	return results, strings.Join(contents, "\n\n"), nil
}

func screenFromContext(reqContext map[string]any) string {
	screen, _ := reqContext["screen"].(string)
	return screen
}
