package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/engramlabs/engram-go-sdk/core"
)

// TriggerPolicy selects the condition that starts a compression pass.
type TriggerPolicy string

const (
	// TriggerCountBased fires when the episodic item count exceeds
	// MaxEpisodicCount.
	TriggerCountBased TriggerPolicy = "count_based"

	// TriggerTimeBased fires when the oldest non-preserved episodic item
	// is older than MaxEpisodicAge.
	TriggerTimeBased TriggerPolicy = "time_based"

	// TriggerTokenBased fires when the pool's estimated token total
	// exceeds MaxTotalTokens.
	TriggerTokenBased TriggerPolicy = "token_based"

	// TriggerHybrid fires when any of the three conditions holds.
	TriggerHybrid TriggerPolicy = "hybrid"

	// TriggerManual never fires by policy; compression runs only when a
	// caller invokes it explicitly.
	TriggerManual TriggerPolicy = "manual"
)

var validTriggers = map[TriggerPolicy]bool{
	TriggerCountBased: true,
	TriggerTimeBased:  true,
	TriggerTokenBased: true,
	TriggerHybrid:     true,
	TriggerManual:     true,
}

// Duration wraps time.Duration so YAML configs can say "12h" or "30m".
type Duration time.Duration

// UnmarshalYAML parses Go duration strings and plain nanosecond ints.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := node.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(ns)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CompressionConfig holds the summarization policy for a session pool.
type CompressionConfig struct {
	Trigger                TriggerPolicy `yaml:"trigger"`
	MaxEpisodicAge         time.Duration `yaml:"max_episodic_age"`
	MaxEpisodicCount       int           `yaml:"max_episodic_count"`
	MaxTotalTokens         int           `yaml:"max_total_tokens"`
	MinMemoriesToSummarize int           `yaml:"min_memories_to_summarize"`
	PreserveRecentCount    int           `yaml:"preserve_recent_count"`
	PreserveHighImportance bool          `yaml:"preserve_high_importance"`
	ImportanceThreshold    float64       `yaml:"importance_threshold"`
}

// UnmarshalYAML decodes the policy, accepting duration strings like
// "24h" for max_episodic_age.
func (c *CompressionConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		Trigger                *TriggerPolicy `yaml:"trigger"`
		MaxEpisodicAge         *Duration      `yaml:"max_episodic_age"`
		MaxEpisodicCount       *int           `yaml:"max_episodic_count"`
		MaxTotalTokens         *int           `yaml:"max_total_tokens"`
		MinMemoriesToSummarize *int           `yaml:"min_memories_to_summarize"`
		PreserveRecentCount    *int           `yaml:"preserve_recent_count"`
		PreserveHighImportance *bool          `yaml:"preserve_high_importance"`
		ImportanceThreshold    *float64       `yaml:"importance_threshold"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.Trigger != nil {
		c.Trigger = *r.Trigger
	}
	if r.MaxEpisodicAge != nil {
		c.MaxEpisodicAge = r.MaxEpisodicAge.Std()
	}
	if r.MaxEpisodicCount != nil {
		c.MaxEpisodicCount = *r.MaxEpisodicCount
	}
	if r.MaxTotalTokens != nil {
		c.MaxTotalTokens = *r.MaxTotalTokens
	}
	if r.MinMemoriesToSummarize != nil {
		c.MinMemoriesToSummarize = *r.MinMemoriesToSummarize
	}
	if r.PreserveRecentCount != nil {
		c.PreserveRecentCount = *r.PreserveRecentCount
	}
	if r.PreserveHighImportance != nil {
		c.PreserveHighImportance = *r.PreserveHighImportance
	}
	if r.ImportanceThreshold != nil {
		c.ImportanceThreshold = *r.ImportanceThreshold
	}
	return nil
}

// DefaultCompressionConfig returns the stock policy: hybrid trigger, one
// day of episodic age, and conservative preservation.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Trigger:                TriggerHybrid,
		MaxEpisodicAge:         24 * time.Hour,
		MaxEpisodicCount:       20,
		MaxTotalTokens:         4000,
		MinMemoriesToSummarize: 3,
		PreserveRecentCount:    5,
		PreserveHighImportance: true,
		ImportanceThreshold:    0.8,
	}
}

// Validate checks the policy for malformed thresholds. It returns
// *core.TriggerEvaluationError so misconfiguration fails fast at load
// time, never mid-pass.
func (c CompressionConfig) Validate() error {
	if !validTriggers[c.Trigger] {
		return &core.TriggerEvaluationError{
			Field:   "trigger",
			Message: fmt.Sprintf("unknown policy %q", c.Trigger),
		}
	}
	if c.MaxEpisodicAge < 0 {
		return &core.TriggerEvaluationError{Field: "max_episodic_age", Message: "must not be negative"}
	}
	if c.MaxEpisodicCount < 0 {
		return &core.TriggerEvaluationError{Field: "max_episodic_count", Message: "must not be negative"}
	}
	if c.MaxTotalTokens < 0 {
		return &core.TriggerEvaluationError{Field: "max_total_tokens", Message: "must not be negative"}
	}
	if c.MinMemoriesToSummarize < 2 {
		return &core.TriggerEvaluationError{
			Field:   "min_memories_to_summarize",
			Message: "must be at least 2 for a pass to actually compress",
		}
	}
	if c.PreserveRecentCount < 0 {
		return &core.TriggerEvaluationError{Field: "preserve_recent_count", Message: "must not be negative"}
	}
	if c.ImportanceThreshold < 0 || c.ImportanceThreshold > 1 {
		return &core.TriggerEvaluationError{Field: "importance_threshold", Message: "outside [0,1]"}
	}
	return nil
}

// Config bundles the tunables for the whole memory system.
type Config struct {
	// TopK is the default number of items handed to the prompt per turn.
	TopK int `yaml:"top_k"`

	// DecayHalfLife sets the recency half-life used by retrieval.
	DecayHalfLife time.Duration `yaml:"decay_half_life"`

	// Compression is the summarization policy.
	Compression CompressionConfig `yaml:"compression"`
}

// UnmarshalYAML decodes the config, accepting duration strings like
// "12h" for decay_half_life.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		TopK          *int               `yaml:"top_k"`
		DecayHalfLife *Duration          `yaml:"decay_half_life"`
		Compression   *CompressionConfig `yaml:"compression"`
	}
	r := raw{Compression: &c.Compression}
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.TopK != nil {
		c.TopK = *r.TopK
	}
	if r.DecayHalfLife != nil {
		c.DecayHalfLife = r.DecayHalfLife.Std()
	}
	return nil
}

// DefaultConfig holds sensible defaults for local use.
var DefaultConfig = &Config{
	TopK:          10,
	DecayHalfLife: 24 * time.Hour,
	Compression:   DefaultCompressionConfig(),
}

// LoadConfig reads a YAML config file, fills unset fields from the
// defaults, and validates the compression policy.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := *DefaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig.TopK
	}
	if cfg.DecayHalfLife <= 0 {
		cfg.DecayHalfLife = DefaultConfig.DecayHalfLife
	}
	if err := cfg.Compression.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
