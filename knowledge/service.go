// Package knowledge ingests extracted graphs and renders graph neighborhoods
// as context strings for retrieval-augmented prompts.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ugnoguchigxp/regular-rag/log"
	"github.com/ugnoguchigxp/regular-rag/model"
)

// Traversal depths used when rendering graph context.
const (
	ContextTraversalDepth = 2
	SubgraphDepth         = 1
	PathMaxDepth          = 5
)

// GraphStore is the persistence capability the service needs.
type GraphStore interface {
	UpsertNode(ctx context.Context, node *model.Node) error
	UpsertEdge(ctx context.Context, edge *model.Edge) error
	FindNodeByName(ctx context.Context, name string) (*model.Node, error)
	FindNodesByNames(ctx context.Context, names []string) ([]model.Node, error)
	TraverseBatch(ctx context.Context, seedIDs []string, maxDepth int) ([]model.TraversalResult, error)
	GetSubgraph(ctx context.Context, seedIDs []string, maxDepth int) (*model.Subgraph, error)
	FindPaths(ctx context.Context, fromID, toID string, maxDepth int) ([]model.GraphPath, error)
}

// EntityExtractor produces the entities and relations of a document.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (*model.ExtractionResult, error)
}

// Embedder is the embedding capability used for entity names.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Service builds the knowledge graph from documents and assembles graph
// context for the orchestrator.
type Service struct {
	graph     GraphStore
	extractor EntityExtractor
	embedder  Embedder
	dimension int
	logger    log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a graph service. dimension is the embedding dimension
// entity-name embeddings must have.
func NewService(graph GraphStore, extractor EntityExtractor, embedder Embedder, dimension int, opts ...Option) *Service {
	s := &Service{
		graph:     graph,
		extractor: extractor,
		embedder:  embedder,
		dimension: dimension,
		logger:    log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildGraphFromDocument extracts entities and relations from content and
// persists them. Entity-name embeddings are computed concurrently and best
// effort: a failed embedding leaves that node without one. A produced
// embedding of the wrong length aborts the build before any write.
//
// Relations are resolved against the entities extracted from this document
// only; a relation with an unresolved endpoint is skipped without side
// effects. The returned counts are per-row upsert invocations, overwrites
// included.
func (s *Service) BuildGraphFromDocument(ctx context.Context, content string) (*model.GraphBuildResult, error) {
	extraction, err := s.extractor.Extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to extract graph: %w", err)
	}

	embeddings := make([][]float32, len(extraction.Entities))
	var wg sync.WaitGroup
	for i, entity := range extraction.Entities {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			embedding, err := s.embedder.CreateEmbedding(ctx, name)
			if err != nil {
				s.logger.Warn("embedding for entity %q failed: %v", name, err)
				return
			}
			embeddings[i] = embedding
		}(i, entity.Name)
	}
	wg.Wait()

	for i, embedding := range embeddings {
		if len(embedding) > 0 && len(embedding) != s.dimension {
			return nil, fmt.Errorf("%w: embedding for entity %q has length %d, want %d",
				model.ErrDimensionMismatch, extraction.Entities[i].Name, len(embedding), s.dimension)
		}
	}

	result := &model.GraphBuildResult{}
	idByName := make(map[string]string, len(extraction.Entities))

	for i, entity := range extraction.Entities {
		node := &model.Node{
			ID:         model.NodeID(entity.Name, entity.Type),
			Name:       entity.Name,
			Type:       entity.Type,
			Properties: entity.Properties,
			Embedding:  embeddings[i],
		}
		if err := s.graph.UpsertNode(ctx, node); err != nil {
			return nil, err
		}
		result.NodesCreated++
		idByName[strings.ToLower(entity.Name)] = node.ID
	}

	for _, relation := range extraction.Relations {
		sourceID, okSource := idByName[strings.ToLower(relation.Source)]
		targetID, okTarget := idByName[strings.ToLower(relation.Target)]
		if !okSource || !okTarget {
			s.logger.Debug("skipping relation %s -[%s]-> %s: unresolved endpoint",
				relation.Source, relation.RelationType, relation.Target)
			continue
		}

		weight := 1.0
		if relation.Weight != nil {
			weight = *relation.Weight
		}

		edge := &model.Edge{
			ID:           model.EdgeID(sourceID, targetID, relation.RelationType),
			SourceID:     sourceID,
			TargetID:     targetID,
			RelationType: relation.RelationType,
			Weight:       weight,
		}
		if err := s.graph.UpsertEdge(ctx, edge); err != nil {
			return nil, err
		}
		result.EdgesCreated++
	}

	return result, nil
}

// ContextForEntities renders the two-hop neighborhood of the named entities.
// It returns the empty string when no name is given or none resolves.
func (s *Service) ContextForEntities(ctx context.Context, names []string) (string, error) {
	if len(names) == 0 {
		return "", nil
	}

	nodes, err := s.graph.FindNodesByNames(ctx, names)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}

	ids := make([]string, len(nodes))
	resolved := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
		resolved[i] = node.Name
	}

	traversal, err := s.graph.TraverseBatch(ctx, ids, ContextTraversalDepth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Knowledge graph context for: ")
	b.WriteString(strings.Join(resolved, ", "))
	b.WriteString("\n")

	for _, node := range nodes {
		if len(node.Properties) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s\n", node.Name, formatProperties(node.Properties)))
	}

	byDepth := make(map[int][]model.TraversalResult)
	var depths []int
	for _, row := range traversal {
		if _, ok := byDepth[row.Depth]; !ok {
			depths = append(depths, row.Depth)
		}
		byDepth[row.Depth] = append(byDepth[row.Depth], row)
	}
	sort.Ints(depths)

	for _, depth := range depths {
		b.WriteString(fmt.Sprintf("\nDepth %d:\n", depth))
		for _, row := range byDepth[depth] {
			arrow := "→"
			if row.Direction == model.DirectionIncoming {
				arrow = "←"
			}
			b.WriteString(fmt.Sprintf("%s [%s] %s (%s)\n", arrow, row.Relation, row.Node.Name, row.Node.Type))
		}
	}

	return b.String(), nil
}

// PathContext renders the weighted paths between two named entities. It
// returns the empty string when either name does not resolve or no path
// exists.
func (s *Service) PathContext(ctx context.Context, fromName, toName string) (string, error) {
	from, err := s.graph.FindNodeByName(ctx, fromName)
	if err != nil {
		return "", err
	}
	to, err := s.graph.FindNodeByName(ctx, toName)
	if err != nil {
		return "", err
	}
	if from == nil || to == nil {
		return "", nil
	}

	paths, err := s.graph.FindPaths(ctx, from.ID, to.ID, PathMaxDepth)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Paths from %s to %s:\n", from.Name, to.Name))
	for i, path := range paths {
		b.WriteString(fmt.Sprintf("%d. (weight %.2f) %s\n", i+1, path.TotalWeight, formatPath(path)))
	}

	return b.String(), nil
}

// SubgraphContext renders the one-hop subgraph around the named entities.
// Unresolved names are silently dropped; the empty string is returned when
// none resolve.
func (s *Service) SubgraphContext(ctx context.Context, names []string) (string, error) {
	nodes, err := s.graph.FindNodesByNames(ctx, names)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}

	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}

	subgraph, err := s.graph.GetSubgraph(ctx, ids, SubgraphDepth)
	if err != nil {
		return "", err
	}

	nameByID := make(map[string]string, len(subgraph.Nodes))

	var b strings.Builder
	b.WriteString("Subgraph:\nNodes:\n")
	for _, node := range subgraph.Nodes {
		nameByID[node.ID] = node.Name
		b.WriteString(fmt.Sprintf("- %s (%s)\n", node.Name, node.Type))
	}

	if len(subgraph.Edges) > 0 {
		b.WriteString("Edges:\n")
		for _, edge := range subgraph.Edges {
			b.WriteString(fmt.Sprintf("- %s -[%s]-> %s\n",
				nameByID[edge.SourceID], edge.RelationType, nameByID[edge.TargetID]))
		}
	}

	return b.String(), nil
}

func formatProperties(properties map[string]any) string {
	data, err := json.Marshal(properties)
	if err != nil {
		return fmt.Sprintf("%v", properties)
	}
	return string(data)
}

func formatPath(path model.GraphPath) string {
	var b strings.Builder
	for i, node := range path.Nodes {
		if i > 0 {
			relation := "related"
			if i-1 < len(path.Relations) {
				relation = path.Relations[i-1]
			}
			b.WriteString(fmt.Sprintf(" -[%s]-> ", relation))
		}
		b.WriteString(node.Name)
	}
	return b.String()
}
