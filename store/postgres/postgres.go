package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ugnoguchigxp/regular-rag/log"
)

// DBPool is the subset of pgxpool.Pool the repositories need. pgxmock
// satisfies it, so every repository can be tested without a database.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps a connection pool and tracks whether it owns it. A store built
// from a connection string owns its pool and closes it on Close; a store
// wrapping an externally supplied pool never closes it.
type Store struct {
	pool   DBPool
	owns   bool
	logger log.Logger
}

// NewStore creates a store that owns its own connection pool, built from the
// given connection string. The pool is verified with a liveness ping and
// released again if the ping fails.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := &Store{pool: pool, owns: true, logger: log.GetDefaultLogger()}
	if err := s.Connect(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// NewStoreWithPool wraps an externally supplied pool. The caller keeps
// ownership: Close on the store will not close the pool.
// Useful for testing with mocks.
func NewStoreWithPool(pool DBPool) *Store {
	return &Store{pool: pool, owns: false, logger: log.GetDefaultLogger()}
}

// NewStoreOwningPool wraps a pool and transfers its ownership to the store,
// so Close on the store closes the pool.
func NewStoreOwningPool(pool DBPool) *Store {
	return &Store{pool: pool, owns: true, logger: log.GetDefaultLogger()}
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(logger log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Connect verifies the pool is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close releases the pool when the store owns it; borrowed pools are left to
// their owner.
func (s *Store) Close() {
	if s.owns {
		s.pool.Close()
	}
}

// OwnsPool reports whether Close would release the underlying pool.
func (s *Store) OwnsPool() bool {
	return s.owns
}

// Pool exposes the underlying pool for the repositories.
func (s *Store) Pool() DBPool {
	return s.pool
}

// InitSchema creates the extensions, tables and indexes the engine relies
// on. The tsv column is generated from content by the database, so lexical
// indexing can never drift from the stored text. Edge endpoints cascade on
// node deletion. dimension sizes the vector columns.
func (s *Store) InitSchema(ctx context.Context, dimension int) error {
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE EXTENSION IF NOT EXISTS pg_trgm;

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			path TEXT,
			screen TEXT,
			domain TEXT,
			metadata JSONB,
			embedding vector(%d),
			tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_documents_path ON documents (path);
		CREATE INDEX IF NOT EXISTS idx_documents_screen ON documents (screen);
		CREATE INDEX IF NOT EXISTS idx_documents_tsv ON documents USING GIN (tsv);

		CREATE TABLE IF NOT EXISTS cache (
			request_hash TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			context JSONB,
			response TEXT NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0,
			last_hit_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			properties JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes (name);
		CREATE INDEX IF NOT EXISTS idx_nodes_name_trgm ON nodes USING GIN (name gin_trgm_ops);
		CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes (type);

		CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			relation_type TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			properties JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source_id);
		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target_id);
		CREATE INDEX IF NOT EXISTS idx_edges_relation_type ON edges (relation_type);
	`, dimension, dimension)

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug("schema initialized with vector dimension %d", dimension)
	return nil
}
