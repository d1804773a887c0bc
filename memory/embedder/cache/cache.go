// Package cache wraps an embedder with an in-process result cache, so
// repeated retrieval over the same pool contents does not re-embed
// unchanged text.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/engramlabs/engram-go-sdk/memory"
)

// Embedder caches the vectors of an inner embedder keyed by input text.
// Cache cost is the vector's byte size, so MaxBytes bounds resident
// embedding data.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Options tunes the cache. Zero values fall back to defaults sized for
// a few thousand cached embeddings.
type Options struct {
	// MaxBytes bounds the total size of cached vectors. Default 16 MiB.
	MaxBytes int64

	// MaxEntries estimates how many distinct texts will be cached; it
	// sizes the admission counters. Default 10000.
	MaxEntries int64
}

// New wraps inner with a ristretto cache.
func New(inner memory.Embedder, opts Options) (*Embedder, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 16 << 20
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.MaxEntries * 10,
		MaxCost:     opts.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, or embeds and caches it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// Wait blocks until pending cache writes are visible. Tests use it to
// make Set effects deterministic.
func (e *Embedder) Wait() { e.cache.Wait() }

// Close releases the cache.
func (e *Embedder) Close() { e.cache.Close() }
