// Package regularrag is a retrieval-augmented generation backend on
// PostgreSQL with pgvector.
//
// The Engine facade ties together hybrid document retrieval (vector KNN plus
// full-text search, fused by Reciprocal Rank Fusion), an LLM-extracted
// knowledge graph with multi-hop context assembly, and a content-addressed
// response cache.
//
// # Quick Start
//
//	llm := openai.New(os.Getenv("OPENAI_API_KEY"))
//
//	engine, err := regularrag.New(ctx, regularrag.Config{
//		ConnString: os.Getenv("DATABASE_URL"),
//		LLM:        llm,
//		Embedder:   llm,
//	})
//	if err != nil {
//		// ...
//	}
//	defer engine.Close()
//
//	_, err = engine.IngestDocument(ctx, "Aspirin treats fever. ...")
//
//	resp, err := engine.Query(ctx, []model.Message{
//		{Role: model.RoleUser, Content: "What does aspirin treat?"},
//	}, nil)
//
// A query runs a planner LLM call, hybrid search over the document store,
// optional graph enrichment for entities the planner identified, and a final
// completion. Identical requests are answered from the cache without further
// LLM calls.
//
// Ingestion stores the full document with an embedding and drives entity and
// relation extraction to keep the knowledge graph current.
package regularrag
