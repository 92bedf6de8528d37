package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// RRFConstant is the Reciprocal Rank Fusion constant: each ranked list
// contributes 1/(RRFConstant + rank) per document.
const RRFConstant = 60

// DocumentRepository reads and upserts whole document rows. It never mutates
// stored content.
type DocumentRepository struct {
	pool      DBPool
	dimension int
}

// NewDocumentRepository creates a document repository bound to the store's
// pool and the configured embedding dimension.
func NewDocumentRepository(store *Store, dimension int) *DocumentRepository {
	return &DocumentRepository{pool: store.Pool(), dimension: dimension}
}

// UpsertDocument writes or overwrites a document by id. The lexical index is
// a generated column, so it is recomputed from the new content by the
// database. An embedding of the wrong length is rejected before the write.
func (r *DocumentRepository) UpsertDocument(ctx context.Context, doc *model.Document) error {
	if len(doc.Embedding) > 0 && len(doc.Embedding) != r.dimension {
		return fmt.Errorf("%w: document %s has embedding length %d, want %d",
			model.ErrDimensionMismatch, doc.ID, len(doc.Embedding), r.dimension)
	}

	metadata, err := marshalJSONMap(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, content, path, screen, domain, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			path = EXCLUDED.path,
			screen = EXCLUDED.screen,
			domain = EXCLUDED.domain,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`

	_, err = r.pool.Exec(ctx, query,
		doc.ID,
		doc.Content,
		nullableText(doc.Path),
		nullableText(doc.Screen),
		nullableText(doc.Domain),
		metadata,
		vectorOrNil(doc.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

// FindByVector returns up to k documents ordered by ascending L2 distance to
// the query embedding, restricted to rows that have an embedding (and to the
// screen, when given). Scores are 1/(1+distance).
func (r *DocumentRepository) FindByVector(ctx context.Context, embedding []float32, k int, screen string) ([]model.VectorHit, error) {
	if err := r.validateEmbedding(embedding); err != nil {
		return nil, err
	}

	query := `
		SELECT id, content, path, screen, domain, metadata, created_at, updated_at,
		       embedding <-> $1 AS distance
		FROM documents
		WHERE embedding IS NOT NULL
	`
	args := []any{pgvector.NewVector(embedding), k}
	if screen != "" {
		query += ` AND screen = $3`
		args = append(args, screen)
	}
	query += `
		ORDER BY distance ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var hits []model.VectorHit
	for rows.Next() {
		var hit model.VectorHit
		doc, err := scanDocument(rows, &hit.Distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hit.Document = *doc
		hit.Score = 1 / (1 + hit.Distance)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector hits: %w", err)
	}

	return hits, nil
}

// FindByText returns up to k documents whose lexical index matches the query
// under the simple parser, ordered by descending rank.
func (r *DocumentRepository) FindByText(ctx context.Context, query string, k int, screen string) ([]model.TextHit, error) {
	sql := `
		SELECT id, content, path, screen, domain, metadata, created_at, updated_at,
		       ts_rank(tsv, plainto_tsquery('simple', $1)) AS rank
		FROM documents
		WHERE tsv @@ plainto_tsquery('simple', $1)
	`
	args := []any{query, k}
	if screen != "" {
		sql += ` AND screen = $3`
		args = append(args, screen)
	}
	sql += `
		ORDER BY rank DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run text search: %w", err)
	}
	defer rows.Close()

	var hits []model.TextHit
	for rows.Next() {
		var hit model.TextHit
		doc, err := scanDocument(rows, &hit.Score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan text hit: %w", err)
		}
		hit.Document = *doc
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating text hits: %w", err)
	}

	return hits, nil
}

// HybridSearch runs the vector and text searches concurrently and fuses the
// two ranked lists with Reciprocal Rank Fusion. Documents found by both
// branches sum their contributions; ties keep first-insertion order.
func (r *DocumentRepository) HybridSearch(ctx context.Context, query string, embedding []float32, k int, screen string) ([]model.SearchResult, error) {
	var (
		wg         sync.WaitGroup
		vectorHits []model.VectorHit
		textHits   []model.TextHit
		vectorErr  error
		textErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = r.FindByVector(ctx, embedding, k, screen)
	}()
	go func() {
		defer wg.Done()
		textHits, textErr = r.FindByText(ctx, query, k, screen)
	}()
	wg.Wait()

	if vectorErr != nil {
		return nil, vectorErr
	}
	if textErr != nil {
		return nil, textErr
	}

	return fuseRRF(vectorHits, textHits, k), nil
}

// fuseRRF merges the ranked lists: every document collects
// 1/(RRFConstant + rank) per list it appears in, ranks being 1-based.
func fuseRRF(vectorHits []model.VectorHit, textHits []model.TextHit, k int) []model.SearchResult {
	byID := make(map[string]*model.SearchResult)
	var order []string

	for i, hit := range vectorHits {
		result, ok := byID[hit.Document.ID]
		if !ok {
			result = &model.SearchResult{Document: hit.Document}
			byID[hit.Document.ID] = result
			order = append(order, hit.Document.ID)
		}
		result.Score += 1 / float64(RRFConstant+i+1)
		result.VectorScore = hit.Score
	}

	for i, hit := range textHits {
		result, ok := byID[hit.Document.ID]
		if !ok {
			result = &model.SearchResult{Document: hit.Document}
			byID[hit.Document.ID] = result
			order = append(order, hit.Document.ID)
		}
		result.Score += 1 / float64(RRFConstant+i+1)
		result.TextScore = hit.Score
	}

	results := make([]model.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (r *DocumentRepository) validateEmbedding(embedding []float32) error {
	if len(embedding) != r.dimension {
		return fmt.Errorf("%w: query embedding has length %d, want %d",
			model.ErrInvalidEmbedding, len(embedding), r.dimension)
	}
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: query embedding contains a non-finite value",
				model.ErrInvalidEmbedding)
		}
	}
	return nil
}

// scanDocument scans a document row followed by one trailing float column
// (distance or rank).
func scanDocument(row interface{ Scan(dest ...any) error }, trailing *float64) (*model.Document, error) {
	var (
		doc                  model.Document
		path, screen, domain *string
		metadata             []byte
	)

	err := row.Scan(
		&doc.ID,
		&doc.Content,
		&path,
		&screen,
		&domain,
		&metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		trailing,
	)
	if err != nil {
		return nil, err
	}

	doc.Path = derefString(path)
	doc.Screen = derefString(screen)
	doc.Domain = derefString(domain)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}

	return &doc, nil
}

func marshalJSONMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func vectorOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
