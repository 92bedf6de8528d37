// Package adapter bridges third-party LLM ecosystems into the engine's own
// completion and embedding interfaces.
//
// The langchaingo adapters wrap llms.Model and embeddings.Embedder so any
// provider that ecosystem supports can back the engine without the engine
// knowing about it. Adapters are thin: they translate message shapes and
// surface provider errors unchanged.
package adapter
