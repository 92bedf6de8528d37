package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// CacheRepository is the content-addressed response cache. Entries are keyed
// by request hash; hits bump a monotonic counter.
type CacheRepository struct {
	pool DBPool
}

// NewCacheRepository creates a cache repository bound to the store's pool.
func NewCacheRepository(store *Store) *CacheRepository {
	return &CacheRepository{pool: store.Pool()}
}

// FindByHash returns the cached entry for a request hash, or nil when there
// is none.
func (r *CacheRepository) FindByHash(ctx context.Context, hash string) (*model.CacheEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT request_hash, question, context, response, hit_count, last_hit_at, created_at, updated_at
		FROM cache
		WHERE request_hash = $1
	`, hash)

	var (
		entry   model.CacheEntry
		context []byte
	)
	err := row.Scan(
		&entry.RequestHash,
		&entry.Question,
		&context,
		&entry.Response,
		&entry.HitCount,
		&entry.LastHitAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	if len(context) > 0 {
		if err := json.Unmarshal(context, &entry.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache context: %w", err)
		}
	}

	return &entry, nil
}

// Save upserts a cache entry; a conflicting hash overwrites question, context
// and response and bumps updated_at to server time.
func (r *CacheRepository) Save(ctx context.Context, hash, question string, context map[string]any, response string) error {
	contextJSON, err := marshalJSONMap(context)
	if err != nil {
		return fmt.Errorf("failed to marshal cache context: %w", err)
	}

	query := `
		INSERT INTO cache (request_hash, question, context, response)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_hash) DO UPDATE SET
			question = EXCLUDED.question,
			context = EXCLUDED.context,
			response = EXCLUDED.response,
			updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, hash, question, contextJSON, response); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// IncrementHitCount atomically bumps the hit counter and stamps the hit time.
func (r *CacheRepository) IncrementHitCount(ctx context.Context, hash string) error {
	query := `UPDATE cache SET hit_count = hit_count + 1, last_hit_at = now() WHERE request_hash = $1`
	if _, err := r.pool.Exec(ctx, query, hash); err != nil {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}
	return nil
}
