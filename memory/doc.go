// Package memory implements the conversational memory lifecycle:
// classification, scoring, retrieval, and compression of memory items.
//
// Memories are typed (semantic, episodic, procedural) and carry
// lifecycle metadata: importance, access tracking, and summary
// provenance. Items live in a per-session Pool keyed by a deterministic
// content-hash id, so replaying the same turn never duplicates state.
//
// Architecture:
//   - Classifier: assigns type and importance to a conversational exchange
//   - Scorer: combines relevance, importance, and recency decay
//   - Retriever: strategy-based top-K selection with access tracking
//   - Compressor: policy-triggered summarization of old episodic items
//
// Persistence and embeddings are collaborators behind the Store and
// Embedder interfaces; the lifecycle itself runs entirely in memory.
// Concurrency is the caller's concern: a Session serializes turns, and
// everything here assumes exclusive access to the Pool it is handed.
package memory
