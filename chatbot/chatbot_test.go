package chatbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// fakeLLM serves the planner call (recognized by its options) and the answer
// call from canned responses.
type fakeLLM struct {
	planResponse string
	planErr      error
	answer       string
	answerErr    error

	planCalls     int
	answerPrompts [][]model.Message
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error) {
	if opts != nil {
		f.planCalls++
		if f.planErr != nil {
			return nil, f.planErr
		}
		return &model.Completion{Content: f.planResponse}, nil
	}
	f.answerPrompts = append(f.answerPrompts, messages)
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	return &model.Completion{ID: "chatcmpl-1", Content: f.answer, Usage: &model.Usage{TotalTokens: 42}}, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	results []model.SearchResult
	err     error

	query  string
	k      int
	screen string
	calls  int
}

func (f *fakeSearcher) HybridSearch(ctx context.Context, query string, embedding []float32, k int, screen string) ([]model.SearchResult, error) {
	f.calls++
	f.query, f.k, f.screen = query, k, screen
	return f.results, f.err
}

type fakeGraph struct {
	context string
	err     error
	names   []string
}

func (f *fakeGraph) ContextForEntities(ctx context.Context, names []string) (string, error) {
	f.names = names
	return f.context, f.err
}

// memCache is an in-memory Cache with injectable failures.
type memCache struct {
	entries map[string]*model.CacheEntry
	hits    map[string]int

	findErr error
	saveErr error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*model.CacheEntry{}, hits: map[string]int{}}
}

func (m *memCache) FindByHash(ctx context.Context, hash string) (*model.CacheEntry, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.entries[hash], nil
}

func (m *memCache) Save(ctx context.Context, hash, question string, reqContext map[string]any, response string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[hash] = &model.CacheEntry{RequestHash: hash, Question: question, Context: reqContext, Response: response}
	return nil
}

func (m *memCache) IncrementHitCount(ctx context.Context, hash string) error {
	m.hits[hash]++
	return nil
}

func userMessages(content string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Content: content}}
}

func TestProcessRAGRequest_FullSearchFlow(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": true, "search_query": "aspirin side effects", "identified_entities": ["Aspirin"], "top_k": 2}`,
		answer:       "Aspirin can cause stomach upset.",
	}
	searcher := &fakeSearcher{results: []model.SearchResult{
		{Document: model.Document{ID: "doc-1", Content: "doc one"}, Score: 0.9},
		{Document: model.Document{ID: "doc-2", Content: "doc two"}, Score: 0.8},
	}}
	graph := &fakeGraph{context: "Knowledge graph context for: Aspirin"}
	embedder := &fakeEmbedder{}

	bot := New(llm, embedder, searcher, graph, newMemCache())
	response, err := bot.ProcessRAGRequest(context.Background(),
		userMessages("What are the side effects of aspirin?"),
		map[string]any{"screen": "medication_detail"})

	assert.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", response.ID)
	assert.Equal(t, "Aspirin can cause stomach upset.", response.Content)
	assert.Equal(t, 42, response.Usage.TotalTokens)

	assert.Equal(t, "aspirin side effects", searcher.query)
	assert.Equal(t, 2, searcher.k)
	assert.Equal(t, "medication_detail", searcher.screen)
	assert.Equal(t, []string{"Aspirin"}, graph.names)

	// retrieved documents then graph context, joined with blank lines, inside
	// the system message of the answer call
	assert.Len(t, llm.answerPrompts, 1)
	system := llm.answerPrompts[0][0]
	assert.Equal(t, model.RoleSystem, system.Role)
	assert.True(t, strings.HasPrefix(system.Content, answerPreamble))
	assert.Contains(t, system.Content, "doc one\n\ndoc two\n\nKnowledge graph context for: Aspirin")

	// the original conversation follows the system message untouched
	assert.Equal(t, "What are the side effects of aspirin?", llm.answerPrompts[0][1].Content)

	assert.NotNil(t, response.RAG)
	assert.Len(t, response.RAG.Results, 2)
	assert.Equal(t, "aspirin side effects", response.RAG.Plan.SearchQuery)
	assert.Equal(t, 2, response.RAG.Plan.TopK)
}

func TestProcessRAGRequest_CacheHitOnIdenticalRequest(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": true, "search_query": "aspirin", "identified_entities": [], "top_k": 3}`,
		answer:       "first answer",
	}
	embedder := &fakeEmbedder{}
	cache := newMemCache()

	bot := New(llm, embedder, &fakeSearcher{}, &fakeGraph{}, cache)
	messages := userMessages("Tell me about aspirin")
	reqContext := map[string]any{"screen": "home"}

	first, err := bot.ProcessRAGRequest(context.Background(), messages, reqContext)
	assert.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", first.ID)

	second, err := bot.ProcessRAGRequest(context.Background(), messages, reqContext)
	assert.NoError(t, err)
	assert.Equal(t, CachedResponseID, second.ID)
	assert.Equal(t, first.Content, second.Content)
	assert.Nil(t, second.RAG)

	// the second request stops at the cache: no embedding, no answer call
	assert.Equal(t, 1, embedder.calls)
	assert.Len(t, llm.answerPrompts, 1)

	var totalHits int
	for _, n := range cache.hits {
		totalHits += n
	}
	assert.Equal(t, 1, totalHits)
}

func TestProcessRAGRequest_PlannerFallback(t *testing.T) {
	llm := &fakeLLM{planResponse: "I refuse to answer in JSON.", answer: "answer"}
	searcher := &fakeSearcher{}

	bot := New(llm, &fakeEmbedder{}, searcher, &fakeGraph{}, newMemCache())
	_, err := bot.ProcessRAGRequest(context.Background(), userMessages("how does ibuprofen work?"), nil)

	assert.NoError(t, err)
	assert.Equal(t, "how does ibuprofen work?", searcher.query)
	assert.Equal(t, model.DefaultTopK, searcher.k)
	assert.Empty(t, searcher.screen)
}

func TestProcessRAGRequest_PlannerTransportErrorFallback(t *testing.T) {
	llm := &fakeLLM{planErr: errors.New("timeout"), answer: "answer"}
	searcher := &fakeSearcher{}

	bot := New(llm, &fakeEmbedder{}, searcher, &fakeGraph{}, newMemCache())
	_, err := bot.ProcessRAGRequest(context.Background(), userMessages("what is aspirin?"), nil)

	assert.NoError(t, err)
	assert.Equal(t, "what is aspirin?", searcher.query)
}

func TestProcessRAGRequest_NoSearch(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": false, "identified_entities": []}`,
		answer:       "Hello!",
	}
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{}

	bot := New(llm, embedder, searcher, &fakeGraph{}, newMemCache())
	response, err := bot.ProcessRAGRequest(context.Background(), userMessages("hi there"), nil)

	assert.NoError(t, err)
	assert.Equal(t, "Hello!", response.Content)
	assert.Zero(t, embedder.calls)
	assert.Zero(t, searcher.calls)
	assert.Empty(t, response.RAG.Results)

	assert.Equal(t, answerPreamble, llm.answerPrompts[0][0].Content)
}

func TestProcessRAGRequest_CacheFailuresDegrade(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": false, "identified_entities": []}`,
		answer:       "answer",
	}
	cache := newMemCache()
	cache.findErr = errors.New("cache db down")
	cache.saveErr = errors.New("cache db down")

	bot := New(llm, &fakeEmbedder{}, &fakeSearcher{}, &fakeGraph{}, cache)
	response, err := bot.ProcessRAGRequest(context.Background(), userMessages("hi"), nil)

	assert.NoError(t, err)
	assert.Equal(t, "answer", response.Content)
}

func TestProcessRAGRequest_GraphFailureSkipsEnrichment(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": true, "search_query": "aspirin", "identified_entities": ["Aspirin"], "top_k": 1}`,
		answer:       "answer",
	}
	searcher := &fakeSearcher{results: []model.SearchResult{
		{Document: model.Document{ID: "doc-1", Content: "doc one"}},
	}}
	graph := &fakeGraph{err: errors.New("graph down")}

	bot := New(llm, &fakeEmbedder{}, searcher, graph, newMemCache())
	response, err := bot.ProcessRAGRequest(context.Background(), userMessages("aspirin?"), nil)

	assert.NoError(t, err)
	assert.Equal(t, "answer", response.Content)
	assert.Equal(t, answerPreamble+"doc one", llm.answerPrompts[0][0].Content)
}

func TestProcessRAGRequest_RetrievalErrorSurfaces(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": true, "search_query": "aspirin", "identified_entities": [], "top_k": 1}`,
	}
	searcher := &fakeSearcher{err: errors.New("pg down")}

	bot := New(llm, &fakeEmbedder{}, searcher, &fakeGraph{}, newMemCache())
	_, err := bot.ProcessRAGRequest(context.Background(), userMessages("aspirin?"), nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "hybrid search failed")
	assert.Empty(t, llm.answerPrompts)
}

func TestProcessRAGRequest_CompletionErrorSurfaces(t *testing.T) {
	llm := &fakeLLM{
		planResponse: `{"should_search": false, "identified_entities": []}`,
		answerErr:    errors.New("model overloaded"),
	}

	bot := New(llm, &fakeEmbedder{}, &fakeSearcher{}, &fakeGraph{}, newMemCache())
	_, err := bot.ProcessRAGRequest(context.Background(), userMessages("hi"), nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "completion failed")
}
