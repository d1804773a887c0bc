package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Trigger reasons reported by ShouldTrigger.
const (
	ReasonCountExceeded      = "count_exceeded"
	ReasonAgeExceeded        = "age_exceeded"
	ReasonTokenLimitExceeded = "token_limit_exceeded"
	ReasonNoTrigger          = "no_trigger"
	ReasonManualOnly         = "manual_only"
)

// excerptCount bounds how many selected items the extractive digest
// quotes in full.
const excerptCount = 3

// Digester turns a batch of selected items into summary text. The
// returned text becomes the content of the summary item; everything
// else about the summary (type, provenance, importance) is fixed by the
// Compressor.
type Digester interface {
	Digest(ctx context.Context, items []*Item) (string, error)
}

// Stats reports the outcome of one compression pass.
type Stats struct {
	Triggered       bool    `json:"triggered"`
	Reason          string  `json:"reason"`
	ItemsCompressed int     `json:"items_compressed"`
	TokensBefore    int     `json:"tokens_before"`
	TokensAfter     int     `json:"tokens_after"`
	Ratio           float64 `json:"ratio"`
	SummaryID       string  `json:"summary_id,omitempty"`
}

// Compressor collapses old episodic items into summary items according
// to a CompressionConfig. A pass either fully replaces the selected set
// with one summary or changes nothing.
type Compressor struct {
	cfg      CompressionConfig
	digester Digester
}

// NewCompressor returns a Compressor using the extractive digest
// strategy. Use NewCompressorWith to plug in an LLM-backed digester.
func NewCompressor(cfg CompressionConfig) *Compressor {
	return NewCompressorWith(cfg, ExtractiveDigester{})
}

func NewCompressorWith(cfg CompressionConfig, d Digester) *Compressor {
	return &Compressor{cfg: cfg, digester: d}
}

// Config returns the policy this Compressor runs under.
func (c *Compressor) Config() CompressionConfig { return c.cfg }

// ShouldTrigger evaluates the configured policy against the pool and
// reports whether a pass should run, with a reason string.
func (c *Compressor) ShouldTrigger(pool Pool, now time.Time) (bool, string) {
	switch c.cfg.Trigger {
	case TriggerManual:
		return false, ReasonManualOnly
	case TriggerCountBased:
		return c.checkCount(pool)
	case TriggerTimeBased:
		return c.checkAge(pool, now)
	case TriggerTokenBased:
		return c.checkTokens(pool)
	case TriggerHybrid:
		if ok, reason := c.checkCount(pool); ok {
			return true, reason
		}
		if ok, reason := c.checkAge(pool, now); ok {
			return true, reason
		}
		if ok, reason := c.checkTokens(pool); ok {
			return true, reason
		}
	}
	return false, ReasonNoTrigger
}

func (c *Compressor) checkCount(pool Pool) (bool, string) {
	if len(pool.ByType(TypeEpisodic)) > c.cfg.MaxEpisodicCount {
		return true, ReasonCountExceeded
	}
	return false, ReasonNoTrigger
}

func (c *Compressor) checkAge(pool Pool, now time.Time) (bool, string) {
	preserved := c.preserveSet(pool)
	var oldest *Item
	for _, it := range pool {
		if it.Type != TypeEpisodic || preserved[it.ID] {
			continue
		}
		if oldest == nil || it.CreatedAt.Before(oldest.CreatedAt) {
			oldest = it
		}
	}
	if oldest != nil && now.Sub(oldest.CreatedAt) > c.cfg.MaxEpisodicAge {
		return true, ReasonAgeExceeded
	}
	return false, ReasonNoTrigger
}

func (c *Compressor) checkTokens(pool Pool) (bool, string) {
	if pool.EstimateTokens() > c.cfg.MaxTotalTokens {
		return true, ReasonTokenLimitExceeded
	}
	return false, ReasonNoTrigger
}

// preserveSet returns the ids exempt from this pass: the most recently
// created episodic items up to PreserveRecentCount, plus every item at
// or above the importance threshold when high-importance preservation
// is on. Non-episodic items never appear in the candidate set, so they
// are not tracked here.
func (c *Compressor) preserveSet(pool Pool) map[string]bool {
	preserved := make(map[string]bool)

	episodic := pool.ByType(TypeEpisodic)
	sort.Slice(episodic, func(i, j int) bool {
		a, b := episodic[i], episodic[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	for i := 0; i < len(episodic) && i < c.cfg.PreserveRecentCount; i++ {
		preserved[episodic[i].ID] = true
	}

	if c.cfg.PreserveHighImportance {
		for _, it := range pool {
			if it.Importance >= c.cfg.ImportanceThreshold {
				preserved[it.ID] = true
			}
		}
	}
	return preserved
}

// SelectForSummarization returns the episodic items eligible for this
// pass in chronological order, or nil when fewer than
// MinMemoriesToSummarize qualify.
func (c *Compressor) SelectForSummarization(pool Pool) []*Item {
	preserved := c.preserveSet(pool)
	var selected []*Item
	for _, it := range pool {
		if it.Type != TypeEpisodic || preserved[it.ID] {
			continue
		}
		selected = append(selected, it)
	}
	if len(selected) < c.cfg.MinMemoriesToSummarize {
		return nil
	}
	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return selected
}

// Run evaluates the trigger policy and, when it fires, executes one
// compression pass. A manual policy never fires here; use RunNow.
func (c *Compressor) Run(ctx context.Context, pool Pool, now time.Time) (Stats, error) {
	triggered, reason := c.ShouldTrigger(pool, now)
	if !triggered {
		return Stats{Triggered: false, Reason: reason}, nil
	}
	return c.pass(ctx, pool, now, reason)
}

// RunNow executes a compression pass unconditionally, bypassing the
// trigger policy. Selection rules still apply.
func (c *Compressor) RunNow(ctx context.Context, pool Pool, now time.Time) (Stats, error) {
	return c.pass(ctx, pool, now, ReasonManualOnly)
}

func (c *Compressor) pass(ctx context.Context, pool Pool, now time.Time, reason string) (Stats, error) {
	stats := Stats{Triggered: true, Reason: reason}

	selected := c.SelectForSummarization(pool)
	if len(selected) == 0 {
		log.Printf("[COMPRESS] trigger=%s but nothing eligible, skipping", reason)
		return stats, nil
	}

	for _, it := range selected {
		stats.TokensBefore += it.EstimateTokens()
	}

	// Digest before touching the pool: a failed digest leaves the pool
	// exactly as it was.
	digest, err := c.digester.Digest(ctx, selected)
	if err != nil {
		return Stats{Reason: reason}, fmt.Errorf("digest %d items: %w", len(selected), err)
	}

	summary, err := newSummaryItem(digest, selected, now)
	if err != nil {
		return Stats{Reason: reason}, fmt.Errorf("build summary item: %w", err)
	}

	for _, it := range selected {
		delete(pool, it.ID)
	}
	pool[summary.ID] = summary

	stats.ItemsCompressed = len(selected)
	stats.TokensAfter = summary.EstimateTokens()
	if stats.TokensBefore > 0 {
		stats.Ratio = 1 - float64(stats.TokensAfter)/float64(stats.TokensBefore)
	}
	stats.SummaryID = summary.ID

	log.Printf("[COMPRESS] collapsed %d items into %s (tokens %d -> %d, ratio %.2f)",
		stats.ItemsCompressed, summary.ID, stats.TokensBefore, stats.TokensAfter, stats.Ratio)
	return stats, nil
}

// newSummaryItem wraps digest text in a summary item carrying the
// provenance of the selected batch. Selected must be non-empty and in
// chronological order.
func newSummaryItem(digest string, selected []*Item, now time.Time) (*Item, error) {
	maxImportance := selected[0].Importance
	ids := make([]string, len(selected))
	contents := make([]string, len(selected))
	for i, it := range selected {
		ids[i] = it.ID
		contents[i] = it.Content
		if it.Importance > maxImportance {
			maxImportance = it.Importance
		}
	}

	summary, err := NewItem(digest, selected[0].Context, TypeEpisodic, maxImportance, now)
	if err != nil {
		return nil, err
	}
	summary.IsSummary = true
	summary.SourceIDs = ids
	summary.OriginalContent = strings.Join(contents, "\n")
	return summary, nil
}

// ExtractiveDigester builds a digest without any external call: the
// time span covered, the top few items by importance and access count
// quoted in full, and a count of the rest.
type ExtractiveDigester struct{}

func (ExtractiveDigester) Digest(_ context.Context, items []*Item) (string, error) {
	earliest, latest := items[0].CreatedAt, items[0].CreatedAt
	for _, it := range items[1:] {
		if it.CreatedAt.Before(earliest) {
			earliest = it.CreatedAt
		}
		if it.CreatedAt.After(latest) {
			latest = it.CreatedAt
		}
	}

	ranked := make([]*Item, len(items))
	copy(ranked, items)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.ID < b.ID
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary of %d memories from %s to %s.\n",
		len(items),
		earliest.Format("2006-01-02 15:04"),
		latest.Format("2006-01-02 15:04"))
	n := excerptCount
	if n > len(ranked) {
		n = len(ranked)
	}
	sb.WriteString("Key points:\n")
	for _, it := range ranked[:n] {
		fmt.Fprintf(&sb, "- %s\n", it.Content)
	}
	if rest := len(ranked) - n; rest > 0 {
		fmt.Fprintf(&sb, "(and %d more)", rest)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// GenerateFunc produces summary text for a prompt. It decouples the
// memory package from any particular LLM client.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// LLMDigester delegates digest generation to an external model. It
// falls back to nothing on its own; a failed call fails the pass and
// leaves the pool untouched.
type LLMDigester struct {
	Generate GenerateFunc
}

func (d LLMDigester) Digest(ctx context.Context, items []*Item) (string, error) {
	var sb strings.Builder
	sb.WriteString("Condense the following conversation memories into a short factual summary. " +
		"Keep concrete details, drop filler.\n\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "[%s] %s\n", it.CreatedAt.Format("2006-01-02 15:04"), it.Content)
	}
	text, err := d.Generate(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("llm digest: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("llm digest: empty response")
	}
	return text, nil
}
