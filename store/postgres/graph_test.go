package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"

	"github.com/ugnoguchigxp/regular-rag/model"
)

func newGraphRepo(t *testing.T) (*GraphRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewStoreWithPool(mock)
	return NewGraphRepository(store, testDimension), mock
}

func nodeTestColumns() []string {
	return []string{"id", "name", "type", "properties", "created_at", "updated_at"}
}

func TestGraphRepository_UpsertNode(t *testing.T) {
	repo, mock := newGraphRepo(t)

	node := &model.Node{
		ID:         model.NodeID("Aspirin", "drug"),
		Name:       "Aspirin",
		Type:       "drug",
		Properties: map[string]any{"class": "NSAID"},
		Embedding:  []float32{0.1, 0.2, 0.3},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nodes")).
		WithArgs(node.ID, node.Name, node.Type, []byte(`{"class":"NSAID"}`), pgvector.NewVector(node.Embedding)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.UpsertNode(context.Background(), node))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_UpsertNode_NoEmbedding(t *testing.T) {
	repo, mock := newGraphRepo(t)

	node := &model.Node{ID: "node-1", Name: "Fever", Type: "symptom"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nodes")).
		WithArgs(node.ID, node.Name, node.Type, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.UpsertNode(context.Background(), node))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_UpsertNode_DimensionMismatch(t *testing.T) {
	repo, mock := newGraphRepo(t)

	err := repo.UpsertNode(context.Background(), &model.Node{
		ID: "node-1", Name: "Fever", Type: "symptom", Embedding: []float32{0.1},
	})
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_UpsertEdge(t *testing.T) {
	repo, mock := newGraphRepo(t)

	edge := &model.Edge{
		ID:           model.EdgeID("node-a", "node-b", "treats"),
		SourceID:     "node-a",
		TargetID:     "node-b",
		RelationType: "treats",
		Weight:       0.9,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edges")).
		WithArgs(edge.ID, edge.SourceID, edge.TargetID, edge.RelationType, edge.Weight, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.UpsertEdge(context.Background(), edge))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindNodeByName(t *testing.T) {
	repo, mock := newGraphRepo(t)
	now := time.Now()

	rows := pgxmock.NewRows(nodeTestColumns()).
		AddRow("node-1", "Aspirin", "drug", []byte(`{"class":"NSAID"}`), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(name) = LOWER($1)")).
		WithArgs("aspirin").
		WillReturnRows(rows)

	node, err := repo.FindNodeByName(context.Background(), "aspirin")
	assert.NoError(t, err)
	assert.Equal(t, "Aspirin", node.Name)
	assert.Equal(t, "NSAID", node.Properties["class"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindNodeByName_NotFound(t *testing.T) {
	repo, mock := newGraphRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(name) = LOWER($1)")).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	node, err := repo.FindNodeByName(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, node)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindNodesByNames(t *testing.T) {
	repo, mock := newGraphRepo(t)
	now := time.Now()

	rows := pgxmock.NewRows(nodeTestColumns()).
		AddRow("node-1", "Aspirin", "drug", []byte(nil), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(name) = ANY($1)")).
		WithArgs([]string{"aspirin", "ghost"}).
		WillReturnRows(rows)

	nodes, err := repo.FindNodesByNames(context.Background(), []string{"Aspirin", "Ghost"})
	assert.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindNodesByNames_Empty(t *testing.T) {
	repo, mock := newGraphRepo(t)

	nodes, err := repo.FindNodesByNames(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, nodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_SearchNodes_EscapesPattern(t *testing.T) {
	repo, mock := newGraphRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`name ILIKE $1 ESCAPE '\'`)).
		WithArgs(`%100\%\_pure%`, 10).
		WillReturnRows(pgxmock.NewRows(nodeTestColumns()))

	nodes, err := repo.SearchNodes(context.Background(), "100%_pure", 10)
	assert.NoError(t, err)
	assert.Empty(t, nodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_TraverseBatch(t *testing.T) {
	repo, mock := newGraphRepo(t)

	rows := pgxmock.NewRows([]string{"node_id", "name", "type", "properties", "depth", "relation", "direction", "start_node_id", "path"}).
		AddRow("node-b", "Fever", "symptom", []byte(nil), 1, "treats", "outgoing", "node-a", []string{"node-b"}).
		AddRow("node-c", "Inflammation", "condition", []byte(nil), 2, "indicates", "incoming", "node-a", []string{"node-b", "node-c"})

	mock.ExpectQuery(regexp.QuoteMeta("WITH RECURSIVE walk AS")).
		WithArgs([]string{"node-a"}, 2).
		WillReturnRows(rows)

	results, err := repo.TraverseBatch(context.Background(), []string{"node-a"}, 2)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, model.DirectionOutgoing, results[0].Direction)
	assert.Equal(t, 1, results[0].Depth)
	assert.Equal(t, []string{"node-b", "node-c"}, results[1].Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_TraverseBatch_NoSeeds(t *testing.T) {
	repo, mock := newGraphRepo(t)

	results, err := repo.TraverseBatch(context.Background(), nil, 2)
	assert.NoError(t, err)
	assert.Nil(t, results)

	results, err = repo.TraverseBatch(context.Background(), []string{"node-a"}, 0)
	assert.NoError(t, err)
	assert.Nil(t, results)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_GetSubgraph(t *testing.T) {
	repo, mock := newGraphRepo(t)
	now := time.Now()

	walkRows := pgxmock.NewRows([]string{"node_id", "name", "type", "properties", "depth", "relation", "direction", "start_node_id", "path"}).
		AddRow("node-b", "Fever", "symptom", []byte(nil), 1, "treats", "outgoing", "node-a", []string{"node-b"})
	mock.ExpectQuery(regexp.QuoteMeta("WITH RECURSIVE walk AS")).
		WithArgs([]string{"node-a"}, 1).
		WillReturnRows(walkRows)

	nodeRows := pgxmock.NewRows(nodeTestColumns()).
		AddRow("node-a", "Aspirin", "drug", []byte(nil), now, now).
		AddRow("node-b", "Fever", "symptom", []byte(nil), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM nodes WHERE id = ANY($1)")).
		WithArgs([]string{"node-a", "node-b"}).
		WillReturnRows(nodeRows)

	edgeRows := pgxmock.NewRows([]string{"id", "source_id", "target_id", "relation_type", "weight", "properties", "created_at"}).
		AddRow("edge-1", "node-a", "node-b", "treats", 1.0, []byte(nil), now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE source_id = ANY($1) AND target_id = ANY($1)")).
		WithArgs([]string{"node-a", "node-b"}).
		WillReturnRows(edgeRows)

	subgraph, err := repo.GetSubgraph(context.Background(), []string{"node-a"}, 1)
	assert.NoError(t, err)
	assert.Len(t, subgraph.Nodes, 2)
	assert.Len(t, subgraph.Edges, 1)
	assert.Equal(t, "treats", subgraph.Edges[0].RelationType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindPaths(t *testing.T) {
	repo, mock := newGraphRepo(t)

	pathRows := pgxmock.NewRows([]string{"path", "relations", "total_weight"}).
		AddRow([]string{"node-a", "node-b", "node-c"}, []string{"treats", "indicates"}, 1.9)
	mock.ExpectQuery(regexp.QuoteMeta("WITH RECURSIVE paths AS")).
		WithArgs("node-a", "node-c", 5, MaxPathResults).
		WillReturnRows(pathRows)

	// hydration id order follows map iteration, so only the shape is matched
	nodeRows := pgxmock.NewRows([]string{"id", "name", "type", "properties"}).
		AddRow("node-a", "Aspirin", "drug", []byte(nil)).
		AddRow("node-b", "Fever", "symptom", []byte(nil)).
		AddRow("node-c", "Inflammation", "condition", []byte(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, properties FROM nodes WHERE id = ANY($1)")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(nodeRows)

	paths, err := repo.FindPaths(context.Background(), "node-a", "node-c", 5)
	assert.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Equal(t, 1.9, paths[0].TotalWeight)
	assert.Equal(t, []string{"treats", "indicates"}, paths[0].Relations)
	assert.Equal(t, "Aspirin", paths[0].Nodes[0].Name)
	assert.Equal(t, "Inflammation", paths[0].Nodes[2].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepository_FindPaths_NoPath(t *testing.T) {
	repo, mock := newGraphRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WITH RECURSIVE paths AS")).
		WithArgs("node-a", "node-z", 5, MaxPathResults).
		WillReturnRows(pgxmock.NewRows([]string{"path", "relations", "total_weight"}))

	paths, err := repo.FindPaths(context.Background(), "node-a", "node-z", 5)
	assert.NoError(t, err)
	assert.Nil(t, paths)
	assert.NoError(t, mock.ExpectationsWereMet())
}
