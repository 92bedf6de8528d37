// Package postgres implements the persistent side of the engine on
// PostgreSQL with the pgvector extension.
//
// A Store wraps a pgx connection pool and tracks whether it owns it: stores
// built from a connection string close the pool on Close, stores wrapping an
// externally supplied pool never do. Three repositories are pure views over
// the pool and can be shared freely across concurrent requests:
//
//   - DocumentRepository: whole-row document upserts, vector KNN (L2),
//     full-text rank with the simple analyzer, and concurrent hybrid search
//     fused by Reciprocal Rank Fusion.
//   - GraphRepository: knowledge-graph CRUD, escaped substring search,
//     adjacency, batched multi-hop traversal, subgraph extraction and
//     weighted path finding, all delegated to recursive CTEs with cycle
//     prevention.
//   - CacheRepository: the content-addressed response cache with hit
//     accounting.
//
// All repository tests run against pgxmock; no live database is required.
package postgres
