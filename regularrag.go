package regularrag

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ugnoguchigxp/regular-rag/chatbot"
	"github.com/ugnoguchigxp/regular-rag/extractor"
	"github.com/ugnoguchigxp/regular-rag/knowledge"
	"github.com/ugnoguchigxp/regular-rag/loader"
	"github.com/ugnoguchigxp/regular-rag/log"
	"github.com/ugnoguchigxp/regular-rag/model"
	"github.com/ugnoguchigxp/regular-rag/store/postgres"
)

// DefaultDimension is the embedding dimension used when the configuration
// does not set one.
const DefaultDimension = 1536

// dimensionProbeText is embedded once at startup to verify the configured
// embedder actually produces vectors of the configured dimension.
const dimensionProbeText = "regular-rag dimension probe"

// Embedding truncation bounds for ingestion, in characters. Content longer
// than the cap is cut back to a natural boundary, but never below the floor.
const (
	embeddingCharCap   = 6000
	embeddingCharFloor = 3000
)

// LLM is the completion provider the engine runs on.
type LLM interface {
	ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error)
}

// Embedder is the embedding provider the engine runs on.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config wires an Engine. Exactly one of ConnString and Pool must be set:
// a connection string yields an owned pool, closed with the engine; a
// supplied pool stays owned by the caller.
type Config struct {
	ConnString string
	Pool       postgres.DBPool

	LLM      LLM
	Embedder Embedder

	// Cache overrides the response cache. The PostgreSQL cache repository is
	// used when nil; store/rediscache satisfies this for shared caches.
	Cache chatbot.Cache

	// Dimension is the embedding dimension, DefaultDimension when zero.
	Dimension int

	Logger log.Logger
}

// IngestResult reports what one document ingestion produced.
type IngestResult struct {
	DocumentID string
	Graph      *model.GraphBuildResult
}

// Engine is the facade over retrieval, the knowledge graph and the response
// cache. One Engine serves concurrent requests; all per-request state lives
// on the stack.
type Engine struct {
	store     *postgres.Store
	documents *postgres.DocumentRepository
	graph     *postgres.GraphRepository
	knowledge *knowledge.Service
	bot       *chatbot.Chatbot
	embedder  Embedder
	dimension int
	logger    log.Logger
	closed    atomic.Bool
}

// openStore is swappable in tests.
var openStore = func(ctx context.Context, cfg Config) (*postgres.Store, error) {
	if cfg.Pool != nil {
		return postgres.NewStoreWithPool(cfg.Pool), nil
	}
	return postgres.NewStore(ctx, cfg.ConnString)
}

// New constructs an Engine: it opens the store, initializes the schema and
// probes the embedder once to verify its output dimension. On probe failure
// an owned pool is released before the error propagates.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("config requires an LLM")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("config requires an embedder")
	}
	if cfg.ConnString == "" && cfg.Pool == nil {
		return nil, fmt.Errorf("config requires a connection string or a pool")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store.SetLogger(logger)

	if err := store.InitSchema(ctx, dimension); err != nil {
		store.Close()
		return nil, err
	}

	probe, err := cfg.Embedder.CreateEmbedding(ctx, dimensionProbeText)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("dimension probe failed: %w", err)
	}
	if len(probe) != dimension {
		store.Close()
		return nil, fmt.Errorf("%w: embedder produces vectors of length %d, configured dimension is %d",
			model.ErrDimensionMismatch, len(probe), dimension)
	}

	documents := postgres.NewDocumentRepository(store, dimension)
	graph := postgres.NewGraphRepository(store, dimension)

	var cache chatbot.Cache = postgres.NewCacheRepository(store)
	if cfg.Cache != nil {
		cache = cfg.Cache
	}

	ext := extractor.New(cfg.LLM, extractor.WithLogger(logger))
	knowledgeSvc := knowledge.NewService(graph, ext, cfg.Embedder, dimension, knowledge.WithLogger(logger))
	bot := chatbot.New(cfg.LLM, cfg.Embedder, documents, knowledgeSvc, cache, chatbot.WithLogger(logger))

	return &Engine{
		store:     store,
		documents: documents,
		graph:     graph,
		knowledge: knowledgeSvc,
		bot:       bot,
		embedder:  cfg.Embedder,
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Query answers one conversation with retrieval-augmented generation.
func (e *Engine) Query(ctx context.Context, messages []model.Message, reqContext map[string]any) (*model.Response, error) {
	if e.closed.Load() {
		return nil, model.ErrEngineClosed
	}
	return e.bot.ProcessRAGRequest(ctx, messages, reqContext)
}

// IngestDocument stores content under a fresh id and feeds it to the
// knowledge graph. The embedding is computed on a truncated copy of the
// content; the stored document always carries the full text.
func (e *Engine) IngestDocument(ctx context.Context, content string) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, model.ErrEngineClosed
	}

	embedding, err := e.embedder.CreateEmbedding(ctx, truncateForEmbedding(content))
	if err != nil {
		return nil, fmt.Errorf("failed to embed document: %w", err)
	}

	doc := &model.Document{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: embedding,
	}
	if err := e.documents.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	graphResult, err := e.knowledge.BuildGraphFromDocument(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("document %s stored but graph build failed: %w", doc.ID, err)
	}

	e.logger.Info("ingested document %s: %d nodes, %d edges",
		doc.ID, graphResult.NodesCreated, graphResult.EdgesCreated)

	return &IngestResult{DocumentID: doc.ID, Graph: graphResult}, nil
}

// IngestFromLoader loads documents with l and ingests each in order. The
// first failing document aborts the run; results for documents ingested
// before it are returned alongside the error.
func (e *Engine) IngestFromLoader(ctx context.Context, l loader.DocumentLoader) ([]IngestResult, error) {
	if e.closed.Load() {
		return nil, model.ErrEngineClosed
	}

	docs, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	results := make([]IngestResult, 0, len(docs))
	for i, doc := range docs {
		result, err := e.IngestDocument(ctx, doc.Content)
		if err != nil {
			return results, fmt.Errorf("failed to ingest document %d: %w", i, err)
		}
		results = append(results, *result)
	}

	return results, nil
}

// Documents exposes the document repository for callers that need direct
// search or upsert access.
func (e *Engine) Documents() *postgres.DocumentRepository {
	return e.documents
}

// Graph exposes the knowledge-graph repository.
func (e *Engine) Graph() *postgres.GraphRepository {
	return e.graph
}

// Knowledge exposes the graph context service.
func (e *Engine) Knowledge() *knowledge.Service {
	return e.knowledge
}

// Close releases the engine. Owned pools are closed; further calls fail with
// ErrEngineClosed. Close is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.store.Close()
	return nil
}

// truncateForEmbedding cuts content down to at most embeddingCharCap
// characters for embedding. It prefers the last paragraph boundary in the
// window, then the last sentence boundary, and only then a hard slice. A
// boundary is used only if it keeps more than embeddingCharFloor characters.
func truncateForEmbedding(content string) string {
	runes := []rune(content)
	if len(runes) <= embeddingCharCap {
		return content
	}

	window := runes[:embeddingCharCap]

	if cut := lastParagraphBoundary(window); cut > embeddingCharFloor {
		return string(window[:cut])
	}
	if cut := lastSentenceBoundary(window); cut > embeddingCharFloor {
		return string(window[:cut+1])
	}

	return string(window)
}

// lastParagraphBoundary returns the position of the last "\n\n" in the
// window, or -1.
func lastParagraphBoundary(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// lastSentenceBoundary returns the position of the last sentence-ending
// character in the window, or -1.
func lastSentenceBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '。' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
