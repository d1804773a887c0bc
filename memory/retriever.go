package memory

import (
	"sort"
	"time"
)

// Mixed retrieval proportions. The requested top-k is split across the
// three memory types in this ratio; remainder units go to semantic first,
// then episodic, then procedural.
const (
	mixedSemanticShare   = 0.4
	mixedEpisodicShare   = 0.4
	mixedProceduralShare = 0.2
)

// episodicDecaySharpening steepens the base decay curve for the episodic
// strategy, which ranks with strong recency weighting.
const episodicDecaySharpening = 4

// RetrieveOptions tunes a single retrieval call.
type RetrieveOptions struct {
	// TypeFilter restricts retrieval to one memory type and selects the
	// matching strategy. Nil selects the mixed strategy.
	TypeFilter *Type

	// MaxAge bounds the episodic strategy to items created within the
	// window. Zero means unbounded.
	MaxAge time.Duration

	// ImportanceFloor makes the procedural strategy return every match
	// at or above the floor instead of a strict top-k. Zero disables it.
	ImportanceFloor float64

	// Now overrides the clock, for reproducible tests. Zero means
	// time.Now.
	Now time.Time
}

// Retriever ranks a memory pool against a query and returns the top-k
// items.
//
// Retrieval is not a pure query: every returned item has its access count
// incremented and its last-access time set to now. Callers must hold the
// session turn; the pool is mutated in place.
type Retriever struct {
	relevance RelevanceFunc
	decay     DecayFunc
}

// NewRetriever creates a retriever with keyword relevance and 24h
// half-life decay.
func NewRetriever() *Retriever {
	return &Retriever{
		relevance: KeywordRelevance,
		decay:     ExpDecay(24 * time.Hour),
	}
}

// NewRetrieverWith creates a retriever with an injected relevance
// function (e.g. embedding similarity from an external collaborator) and
// decay curve. Nil arguments fall back to the defaults.
func NewRetrieverWith(relevance RelevanceFunc, decay DecayFunc) *Retriever {
	r := NewRetriever()
	if relevance != nil {
		r.relevance = relevance
	}
	if decay != nil {
		r.decay = decay
	}
	return r
}

// scored pairs an item with its computed ranking value.
type scored struct {
	item      *Item
	score     float64
	relevance float64
}

// Retrieve returns at most topK items relevant to query, ranked by the
// strategy selected through opts. An empty pool or non-positive topK
// yields an empty result, never an error.
func (r *Retriever) Retrieve(pool Pool, query string, topK int, opts *RetrieveOptions) []*Item {
	if opts == nil {
		opts = &RetrieveOptions{}
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if topK <= 0 || len(pool) == 0 {
		return nil
	}

	var result []*Item
	if opts.TypeFilter == nil {
		result = r.retrieveMixed(pool, query, topK, now, opts)
	} else {
		switch *opts.TypeFilter {
		case TypeSemantic:
			result = r.retrieveSemantic(pool, query, topK, now)
		case TypeEpisodic:
			result = r.retrieveEpisodic(pool, query, topK, now, opts.MaxAge)
		case TypeProcedural:
			result = r.retrieveProcedural(pool, query, topK, now, opts.ImportanceFloor)
		}
	}

	for _, it := range result {
		it.Touch(now)
	}
	return result
}

// retrieveSemantic ranks by relevance and importance; recency is
// neutralized with a flat decay so facts do not go stale by the clock.
func (r *Retriever) retrieveSemantic(pool Pool, query string, topK int, now time.Time) []*Item {
	candidates := r.scoreItems(pool.ByType(TypeSemantic), query, now, FlatDecay())
	return topN(candidates, topK)
}

// retrieveEpisodic ranks with strong recency weighting, optionally
// restricted to items created within the age window.
func (r *Retriever) retrieveEpisodic(pool Pool, query string, topK int, now time.Time, maxAge time.Duration) []*Item {
	items := pool.ByType(TypeEpisodic)
	if maxAge > 0 {
		filtered := items[:0]
		for _, it := range items {
			if now.Sub(it.CreatedAt) <= maxAge {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	sharpened := func(elapsed time.Duration) float64 {
		return r.decay(elapsed * episodicDecaySharpening)
	}
	candidates := r.scoreItems(items, query, now, sharpened)
	return topN(candidates, topK)
}

// retrieveProcedural ranks by importance first and relevance second.
// With a positive floor it returns every item at or above the floor,
// still capped at topK.
func (r *Retriever) retrieveProcedural(pool Pool, query string, topK int, now time.Time, floor float64) []*Item {
	items := pool.ByType(TypeProcedural)
	if floor > 0 {
		filtered := items[:0]
		for _, it := range items {
			if it.Importance >= floor {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	candidates := make([]scored, 0, len(items))
	for _, it := range items {
		rel := r.relevance(query, it)
		candidates = append(candidates, scored{item: it, score: it.Importance, relevance: rel})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.relevance != b.relevance {
			return a.relevance > b.relevance
		}
		return lessByRecencyThenID(a.item, b.item)
	})
	return take(candidates, topK)
}

// retrieveMixed combines three independent per-type sub-draws in the
// 40/40/20 proportion, concatenated semantic, episodic, procedural. When
// a type cannot fill its quota, the shortfall is backfilled from the
// remaining candidates by composite score.
func (r *Retriever) retrieveMixed(pool Pool, query string, topK int, now time.Time, opts *RetrieveOptions) []*Item {
	nSem, nEpi, nPro := splitMixed(topK)

	sem := r.retrieveSemantic(pool, query, nSem, now)
	epi := r.retrieveEpisodic(pool, query, nEpi, now, opts.MaxAge)
	pro := r.retrieveProcedural(pool, query, nPro, now, opts.ImportanceFloor)

	result := make([]*Item, 0, topK)
	picked := make(map[string]bool)
	for _, draw := range [][]*Item{sem, epi, pro} {
		for _, it := range draw {
			if !picked[it.ID] {
				picked[it.ID] = true
				result = append(result, it)
			}
		}
	}

	if len(result) < topK {
		var rest []*Item
		for _, it := range pool {
			if !picked[it.ID] {
				rest = append(rest, it)
			}
		}
		leftovers := r.scoreItems(rest, query, now, r.decay)
		for _, it := range topN(leftovers, topK-len(result)) {
			result = append(result, it)
		}
	}
	return result
}

// splitMixed apportions topK across the three types, remainder units to
// semantic, then episodic, then procedural.
func splitMixed(topK int) (nSem, nEpi, nPro int) {
	nSem = int(float64(topK) * mixedSemanticShare)
	nEpi = int(float64(topK) * mixedEpisodicShare)
	nPro = int(float64(topK) * mixedProceduralShare)
	rem := topK - nSem - nEpi - nPro
	if rem > 0 {
		nSem, rem = nSem+1, rem-1
	}
	if rem > 0 {
		nEpi, rem = nEpi+1, rem-1
	}
	if rem > 0 {
		nPro++
	}
	return nSem, nEpi, nPro
}

// scoreItems computes the composite score for each item.
func (r *Retriever) scoreItems(items []*Item, query string, now time.Time, decay DecayFunc) []scored {
	candidates := make([]scored, 0, len(items))
	for _, it := range items {
		rel := r.relevance(query, it)
		candidates = append(candidates, scored{
			item:      it,
			score:     Score(it, rel, now, decay),
			relevance: rel,
		})
	}
	return candidates
}

// topN sorts candidates by score descending with the documented
// deterministic tie-break and returns the first n items.
func topN(candidates []scored, n int) []*Item {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		return lessByRecencyThenID(a.item, b.item)
	})
	return take(candidates, n)
}

// lessByRecencyThenID is the tie-break: more recent last access wins,
// then the lexicographically smaller id. Required for reproducible
// retrieval across repeated calls with identical clocks.
func lessByRecencyThenID(a, b *Item) bool {
	at, bt := a.lastTouched(), b.lastTouched()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID < b.ID
}

func take(candidates []scored, n int) []*Item {
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]*Item, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.item)
	}
	return out
}
