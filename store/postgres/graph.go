package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// MaxPathResults caps the number of weighted paths FindPaths returns.
const MaxPathResults = 5

// GraphRepository persists the knowledge graph and runs its traversals. The
// multi-hop walks are delegated to recursive CTEs so the frontier never has
// to be materialized in the application.
type GraphRepository struct {
	pool      DBPool
	dimension int
}

// NewGraphRepository creates a graph repository bound to the store's pool and
// the configured embedding dimension.
func NewGraphRepository(store *Store, dimension int) *GraphRepository {
	return &GraphRepository{pool: store.Pool(), dimension: dimension}
}

// UpsertNode writes or overwrites a node by its deterministic id.
func (r *GraphRepository) UpsertNode(ctx context.Context, node *model.Node) error {
	if len(node.Embedding) > 0 && len(node.Embedding) != r.dimension {
		return fmt.Errorf("%w: node %s has embedding length %d, want %d",
			model.ErrDimensionMismatch, node.ID, len(node.Embedding), r.dimension)
	}

	properties, err := marshalJSONMap(node.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal node properties: %w", err)
	}

	query := `
		INSERT INTO nodes (id, name, type, properties, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			properties = EXCLUDED.properties,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`

	_, err = r.pool.Exec(ctx, query, node.ID, node.Name, node.Type, properties, vectorOrNil(node.Embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}
	return nil
}

// DeleteNode removes a node; its edges cascade in the database.
func (r *GraphRepository) DeleteNode(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

// UpsertEdge writes or overwrites an edge by id. Upserting the same id
// replaces relation type, weight and properties.
func (r *GraphRepository) UpsertEdge(ctx context.Context, edge *model.Edge) error {
	properties, err := marshalJSONMap(edge.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal edge properties: %w", err)
	}

	query := `
		INSERT INTO edges (id, source_id, target_id, relation_type, weight, properties)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			relation_type = EXCLUDED.relation_type,
			weight = EXCLUDED.weight,
			properties = EXCLUDED.properties
	`

	_, err = r.pool.Exec(ctx, query, edge.ID, edge.SourceID, edge.TargetID, edge.RelationType, edge.Weight, properties)
	if err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// DeleteEdge removes a single edge.
func (r *GraphRepository) DeleteEdge(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM edges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}

const nodeColumns = `id, name, type, properties, created_at, updated_at`

// FindNodeByID returns the node with the given id, or nil when it does not
// exist.
func (r *GraphRepository) FindNodeByID(ctx context.Context, id string) (*model.Node, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)
	return scanOptionalNode(row)
}

// FindNodeByName returns the node matching the name case-insensitively, or
// nil when none exists.
func (r *GraphRepository) FindNodeByName(ctx context.Context, name string) (*model.Node, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE LOWER(name) = LOWER($1) LIMIT 1`, name)
	return scanOptionalNode(row)
}

// FindNodesByNames resolves a batch of names case-insensitively. Names that
// do not resolve are simply absent from the result.
func (r *GraphRepository) FindNodesByNames(ctx context.Context, names []string) ([]model.Node, error) {
	if len(names) == 0 {
		return nil, nil
	}

	lowered := make([]string, len(names))
	for i, name := range names {
		lowered[i] = strings.ToLower(name)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE LOWER(name) = ANY($1)`, lowered)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes by names: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// SearchNodes performs a case-insensitive substring match on node names. The
// query is escaped so %, _ and backslash match literally.
func (r *GraphRepository) SearchNodes(ctx context.Context, query string, limit int) ([]model.Node, error) {
	pattern := "%" + escapeLikePattern(query) + "%"

	rows, err := r.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE name ILIKE $1 ESCAPE '\' ORDER BY name LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// GetNeighbors returns the outgoing and incoming adjacency of a node.
func (r *GraphRepository) GetNeighbors(ctx context.Context, nodeID string) (outgoing, incoming []model.Neighbor, err error) {
	outgoing, err = r.queryNeighbors(ctx, `
		SELECT n.id, n.name, n.type, n.properties, n.created_at, n.updated_at, e.relation_type, e.weight
		FROM edges e JOIN nodes n ON n.id = e.target_id
		WHERE e.source_id = $1
	`, nodeID)
	if err != nil {
		return nil, nil, err
	}

	incoming, err = r.queryNeighbors(ctx, `
		SELECT n.id, n.name, n.type, n.properties, n.created_at, n.updated_at, e.relation_type, e.weight
		FROM edges e JOIN nodes n ON n.id = e.source_id
		WHERE e.target_id = $1
	`, nodeID)
	if err != nil {
		return nil, nil, err
	}

	return outgoing, incoming, nil
}

func (r *GraphRepository) queryNeighbors(ctx context.Context, query, nodeID string) ([]model.Neighbor, error) {
	rows, err := r.pool.Query(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	var neighbors []model.Neighbor
	for rows.Next() {
		var (
			neighbor   model.Neighbor
			properties []byte
		)
		err := rows.Scan(
			&neighbor.Node.ID, &neighbor.Node.Name, &neighbor.Node.Type, &properties,
			&neighbor.Node.CreatedAt, &neighbor.Node.UpdatedAt,
			&neighbor.RelationType, &neighbor.Weight,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &neighbor.Node.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal neighbor properties: %w", err)
			}
		}
		neighbors = append(neighbors, neighbor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating neighbors: %w", err)
	}

	return neighbors, nil
}

// traverseBatchSQL walks edges in both directions from every seed. A row may
// never revisit a node already on its path, nor return to the node the walk
// started from. Each reached node is kept once, at its smallest depth.
const traverseBatchSQL = `
	WITH RECURSIVE walk AS (
		SELECT
			CASE WHEN e.source_id = s.seed THEN e.target_id ELSE e.source_id END AS node_id,
			1 AS depth,
			e.relation_type AS relation,
			CASE WHEN e.source_id = s.seed THEN 'outgoing' ELSE 'incoming' END AS direction,
			s.seed AS start_node_id,
			ARRAY[CASE WHEN e.source_id = s.seed THEN e.target_id ELSE e.source_id END] AS path
		FROM unnest($1::text[]) AS s(seed)
		JOIN edges e ON e.source_id = s.seed OR e.target_id = s.seed
		UNION ALL
		SELECT
			CASE WHEN e.source_id = w.node_id THEN e.target_id ELSE e.source_id END,
			w.depth + 1,
			e.relation_type,
			CASE WHEN e.source_id = w.node_id THEN 'outgoing' ELSE 'incoming' END,
			w.start_node_id,
			w.path || CASE WHEN e.source_id = w.node_id THEN e.target_id ELSE e.source_id END
		FROM walk w
		JOIN edges e ON e.source_id = w.node_id OR e.target_id = w.node_id
		WHERE w.depth < $2
		  AND NOT (CASE WHEN e.source_id = w.node_id THEN e.target_id ELSE e.source_id END = ANY(w.path))
		  AND CASE WHEN e.source_id = w.node_id THEN e.target_id ELSE e.source_id END <> w.start_node_id
	),
	deduped AS (
		SELECT DISTINCT ON (node_id) node_id, depth, relation, direction, start_node_id, path
		FROM walk
		ORDER BY node_id, depth ASC
	)
	SELECT d.node_id, n.name, n.type, n.properties, d.depth, d.relation, d.direction, d.start_node_id, d.path
	FROM deduped d
	JOIN nodes n ON n.id = d.node_id
	ORDER BY d.depth ASC, d.node_id ASC
`

// TraverseBatch runs a breadth-growing walk from all seeds at once, stopping
// at maxDepth. The result holds each reached node once, at its smallest
// depth, with the relation and direction of the step that reached it.
func (r *GraphRepository) TraverseBatch(ctx context.Context, seedIDs []string, maxDepth int) ([]model.TraversalResult, error) {
	if len(seedIDs) == 0 || maxDepth < 1 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, traverseBatchSQL, seedIDs, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse graph: %w", err)
	}
	defer rows.Close()

	var results []model.TraversalResult
	for rows.Next() {
		var (
			result     model.TraversalResult
			direction  string
			properties []byte
		)
		err := rows.Scan(
			&result.Node.ID, &result.Node.Name, &result.Node.Type, &properties,
			&result.Depth, &result.Relation, &direction, &result.StartNodeID, &result.Path,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan traversal row: %w", err)
		}
		result.Direction = model.Direction(direction)
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &result.Node.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal traversal properties: %w", err)
			}
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating traversal rows: %w", err)
	}

	return results, nil
}

// GetSubgraph traverses from the seeds and returns the induced subgraph: the
// seeds plus every traversed node, and exactly those edges with both
// endpoints inside that set.
func (r *GraphRepository) GetSubgraph(ctx context.Context, seedIDs []string, maxDepth int) (*model.Subgraph, error) {
	traversed, err := r.TraverseBatch(ctx, seedIDs, maxDepth)
	if err != nil {
		return nil, err
	}

	idSet := make(map[string]struct{}, len(seedIDs)+len(traversed))
	var ids []string
	for _, id := range seedIDs {
		if _, ok := idSet[id]; !ok {
			idSet[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, t := range traversed {
		if _, ok := idSet[t.Node.ID]; !ok {
			idSet[t.Node.ID] = struct{}{}
			ids = append(ids, t.Node.ID)
		}
	}

	rows, err := r.pool.Query(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load subgraph nodes: %w", err)
	}
	nodes, err := collectNodesAndClose(rows)
	if err != nil {
		return nil, err
	}

	edgeRows, err := r.pool.Query(ctx, `
		SELECT id, source_id, target_id, relation_type, weight, properties, created_at
		FROM edges
		WHERE source_id = ANY($1) AND target_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load subgraph edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []model.Edge
	for edgeRows.Next() {
		var (
			edge       model.Edge
			properties []byte
		)
		err := edgeRows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.RelationType, &edge.Weight, &properties, &edge.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subgraph edge: %w", err)
		}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &edge.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal edge properties: %w", err)
			}
		}
		edges = append(edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subgraph edges: %w", err)
	}

	return &model.Subgraph{Nodes: nodes, Edges: edges}, nil
}

// findPathsSQL unfolds every acyclic walk from the start node up to maxDepth
// hops, accumulating edge weights, and keeps the walks that reach the target.
const findPathsSQL = `
	WITH RECURSIVE paths AS (
		SELECT
			CASE WHEN e.source_id = $1 THEN e.target_id ELSE e.source_id END AS node_id,
			ARRAY[$1::text, CASE WHEN e.source_id = $1 THEN e.target_id ELSE e.source_id END] AS path,
			ARRAY[e.relation_type] AS relations,
			COALESCE(e.weight, 1.0) AS total_weight,
			1 AS depth
		FROM edges e
		WHERE e.source_id = $1 OR e.target_id = $1
		UNION ALL
		SELECT
			CASE WHEN e.source_id = p.node_id THEN e.target_id ELSE e.source_id END,
			p.path || CASE WHEN e.source_id = p.node_id THEN e.target_id ELSE e.source_id END,
			p.relations || e.relation_type,
			p.total_weight + COALESCE(e.weight, 1.0),
			p.depth + 1
		FROM paths p
		JOIN edges e ON e.source_id = p.node_id OR e.target_id = p.node_id
		WHERE p.depth < $3
		  AND p.node_id <> $2
		  AND NOT (CASE WHEN e.source_id = p.node_id THEN e.target_id ELSE e.source_id END = ANY(p.path))
	)
	SELECT path, relations, total_weight
	FROM paths
	WHERE node_id = $2
	ORDER BY total_weight ASC
	LIMIT $4
`

// FindPaths returns up to MaxPathResults acyclic paths between two nodes,
// lightest total weight first. Path node ids are hydrated with one bulk
// lookup; ids that no longer resolve are silently dropped.
func (r *GraphRepository) FindPaths(ctx context.Context, fromID, toID string, maxDepth int) ([]model.GraphPath, error) {
	rows, err := r.pool.Query(ctx, findPathsSQL, fromID, toID, maxDepth, MaxPathResults)
	if err != nil {
		return nil, fmt.Errorf("failed to find paths: %w", err)
	}
	defer rows.Close()

	type rawPath struct {
		ids       []string
		relations []string
		weight    float64
	}

	var raws []rawPath
	idSet := make(map[string]struct{})
	for rows.Next() {
		var raw rawPath
		if err := rows.Scan(&raw.ids, &raw.relations, &raw.weight); err != nil {
			return nil, fmt.Errorf("failed to scan path row: %w", err)
		}
		for _, id := range raw.ids {
			idSet[id] = struct{}{}
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating path rows: %w", err)
	}

	if len(raws) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	nodeRows, err := r.pool.Query(ctx, `SELECT id, name, type, properties FROM nodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate path nodes: %w", err)
	}
	defer nodeRows.Close()

	byID := make(map[string]model.PathNode)
	for nodeRows.Next() {
		var (
			node       model.PathNode
			properties []byte
		)
		if err := nodeRows.Scan(&node.ID, &node.Name, &node.Type, &properties); err != nil {
			return nil, fmt.Errorf("failed to scan path node: %w", err)
		}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &node.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal path node properties: %w", err)
			}
		}
		byID[node.ID] = node
	}
	if err := nodeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating path nodes: %w", err)
	}

	paths := make([]model.GraphPath, 0, len(raws))
	for _, raw := range raws {
		path := model.GraphPath{
			Relations:   raw.relations,
			TotalWeight: raw.weight,
		}
		for _, id := range raw.ids {
			if node, ok := byID[id]; ok {
				path.Nodes = append(path.Nodes, node)
			}
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// escapeLikePattern makes %, _ and backslash literal inside a LIKE pattern.
func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func scanOptionalNode(row pgx.Row) (*model.Node, error) {
	var (
		node       model.Node
		properties []byte
	)
	err := row.Scan(&node.ID, &node.Name, &node.Type, &properties, &node.CreatedAt, &node.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &node.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node properties: %w", err)
		}
	}
	return &node, nil
}

func collectNodes(rows pgx.Rows) ([]model.Node, error) {
	var nodes []model.Node
	for rows.Next() {
		var (
			node       model.Node
			properties []byte
		)
		err := rows.Scan(&node.ID, &node.Name, &node.Type, &properties, &node.CreatedAt, &node.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &node.Properties); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node properties: %w", err)
			}
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return nodes, nil
}

func collectNodesAndClose(rows pgx.Rows) ([]model.Node, error) {
	defer rows.Close()
	return collectNodes(rows)
}
