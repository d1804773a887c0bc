package memory

// PoolStats is a point-in-time snapshot of a pool's composition, useful
// for dashboards and debugging.
type PoolStats struct {
	TotalItems      int            `json:"total_items"`
	ByType          map[Type]int   `json:"by_type"`
	Summaries       int            `json:"summaries"`
	SourcesAbsorbed int            `json:"sources_absorbed"`
	TokensSaved     int            `json:"tokens_saved"`
	EstimatedTokens int            `json:"estimated_tokens"`
	AvgImportance   float64        `json:"avg_importance"`
	MostAccessedID  string         `json:"most_accessed_id,omitempty"`
}

// Snapshot computes PoolStats over the pool. TokensSaved compares each
// summary's original content against its digest, so it reflects the
// cumulative effect of past compression passes.
func Snapshot(pool Pool) PoolStats {
	stats := PoolStats{ByType: make(map[Type]int)}
	var importanceSum float64
	var mostAccessed *Item
	for _, it := range pool {
		stats.TotalItems++
		stats.ByType[it.Type]++
		stats.EstimatedTokens += it.EstimateTokens()
		importanceSum += it.Importance
		if it.IsSummary {
			stats.Summaries++
			stats.SourcesAbsorbed += len(it.SourceIDs)
			if saved := len(it.OriginalContent)/4 - it.EstimateTokens(); saved > 0 {
				stats.TokensSaved += saved
			}
		}
		if mostAccessed == nil ||
			it.AccessCount > mostAccessed.AccessCount ||
			(it.AccessCount == mostAccessed.AccessCount && it.ID < mostAccessed.ID) {
			mostAccessed = it
		}
	}
	if stats.TotalItems > 0 {
		stats.AvgImportance = importanceSum / float64(stats.TotalItems)
		stats.MostAccessedID = mostAccessed.ID
	}
	return stats
}
