// Package mock provides a deterministic in-process embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

const defaultDimensions = 384

// Embedder generates embeddings purely from a hash of the input text,
// so identical texts always embed identically and tests never need a
// model on disk. Vectors are unit-normalized.
type Embedder struct {
	dimensions int
	calls      atomic.Int64
}

// New returns a mock embedder with 384 dimensions, matching the
// all-MiniLM-L6-v2 model the onnx embedder loads by default.
func New() *Embedder {
	return WithDimensions(defaultDimensions)
}

// WithDimensions returns a mock embedder producing vectors of the given
// size.
func WithDimensions(n int) *Embedder {
	if n <= 0 {
		n = defaultDimensions
	}
	return &Embedder{dimensions: n}
}

// Embed derives a pseudo-random unit vector from the text's FNV hash.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	var norm float64
	for i := range vec {
		// LCG stepped from the text hash keeps the sequence stable
		// across runs and platforms.
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Calls reports how many times Embed has run, for cache tests.
func (e *Embedder) Calls() int64 { return e.calls.Load() }
