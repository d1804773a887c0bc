package memory

import (
	"context"
	"math"
)

// Store is the persistence collaborator for memory items. The core's
// Retriever and Compressor operate on the in-memory Pool; a Store keeps
// a durable or searchable copy in sync at the orchestration boundary.
//
// Implementations: chromem.Store (local vector search), sqlite.Store
// (session snapshots).
type Store interface {
	// Upsert writes an item, replacing any existing item with the same id.
	Upsert(ctx context.Context, sessionID string, item *Item) error

	// Query retrieves items for a session by similarity to the query
	// text, highest first. Filter may be nil; otherwise only items whose
	// type matches are returned.
	Query(ctx context.Context, sessionID string, query string, topK int, filter *Type) ([]*Item, error)

	// Delete removes items by id. Ids absent from the store are skipped,
	// not errors.
	Delete(ctx context.Context, sessionID string, ids ...string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings. Retrieval uses it only
// to supply relevance scores; the core treats relevance as an opaque
// float.
//
// Implementations: mock.Embedder (testing), onnx.Embedder (local
// models), cache.Embedder (wraps another Embedder).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// EmbeddingRelevance adapts an Embedder into a RelevanceFunc by cosine
// similarity between the query and item content, mapped into [0,1].
// Embedding failures fall back to keyword overlap rather than failing
// retrieval.
func EmbeddingRelevance(ctx context.Context, e Embedder) RelevanceFunc {
	return func(query string, it *Item) float64 {
		qv, err := e.Embed(ctx, query)
		if err != nil {
			return KeywordRelevance(query, it)
		}
		cv, err := e.Embed(ctx, it.Content)
		if err != nil {
			return KeywordRelevance(query, it)
		}
		return (cosine(qv, cv) + 1) / 2
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
