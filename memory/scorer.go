package memory

import (
	"math"
	"strings"
	"time"
)

// Composite score weights. Relevance dominates, importance second,
// recency last. The split is contractual; see the retrieval strategies
// for how individual strategies bias away from it.
const (
	weightRelevance  = 0.5
	weightImportance = 0.3
	weightRecency    = 0.2
)

// DecayFunc maps elapsed time since last access to a recency factor in
// [0,1]. Implementations must satisfy decay(0) == 1 and be monotonically
// non-increasing toward 0 as elapsed time grows.
type DecayFunc func(elapsed time.Duration) float64

// ExpDecay returns exponential half-life decay: the factor halves every
// halfLife. The exact curve is a tunable default; only monotonicity is
// contractual.
func ExpDecay(halfLife time.Duration) DecayFunc {
	return func(elapsed time.Duration) float64 {
		if elapsed <= 0 {
			return 1
		}
		return math.Exp2(-float64(elapsed) / float64(halfLife))
	}
}

// FlatDecay ignores elapsed time entirely. Used by the semantic retrieval
// strategy, where facts do not go stale by the clock.
func FlatDecay() DecayFunc {
	return func(time.Duration) float64 { return 1 }
}

// Score combines caller-supplied relevance with the item's importance and
// recency into a single ranking value. Pure given its inputs; the decay
// curve is injected so strategies can rebalance recency.
func Score(item *Item, relevance float64, now time.Time, decay DecayFunc) float64 {
	recency := decay(now.Sub(item.lastTouched()))
	return weightRelevance*relevance + weightImportance*item.Importance + weightRecency*recency
}

// RelevanceFunc computes query-to-item relevance in [0,1]. The scorer
// treats relevance as opaque; callers may plug in embedding similarity
// from an external collaborator.
type RelevanceFunc func(query string, item *Item) float64

// KeywordRelevance is the default relevance function: the fraction of
// query terms present in the item content, case-insensitive.
func KeywordRelevance(query string, item *Item) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	content := strings.ToLower(item.Content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(content, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
