package memory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/memory"
)

func TestCompressionConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*memory.CompressionConfig)
		field  string
	}{
		{"unknown trigger", func(c *memory.CompressionConfig) { c.Trigger = "adaptive" }, "trigger"},
		{"negative age", func(c *memory.CompressionConfig) { c.MaxEpisodicAge = -time.Hour }, "max_episodic_age"},
		{"negative count", func(c *memory.CompressionConfig) { c.MaxEpisodicCount = -1 }, "max_episodic_count"},
		{"negative tokens", func(c *memory.CompressionConfig) { c.MaxTotalTokens = -100 }, "max_total_tokens"},
		{"min below two", func(c *memory.CompressionConfig) { c.MinMemoriesToSummarize = 1 }, "min_memories_to_summarize"},
		{"negative preserve", func(c *memory.CompressionConfig) { c.PreserveRecentCount = -3 }, "preserve_recent_count"},
		{"threshold above one", func(c *memory.CompressionConfig) { c.ImportanceThreshold = 1.2 }, "importance_threshold"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := memory.DefaultCompressionConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			terr, ok := err.(*core.TriggerEvaluationError)
			if !ok {
				t.Fatalf("error type = %T, want *core.TriggerEvaluationError", err)
			}
			if terr.Field != tc.field {
				t.Errorf("field = %q, want %q", terr.Field, tc.field)
			}
		})
	}

	if err := memory.DefaultCompressionConfig().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	content := `
top_k: 7
decay_half_life: 12h
compression:
  trigger: count_based
  max_episodic_count: 50
  min_memories_to_summarize: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := memory.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TopK != 7 {
		t.Errorf("TopK = %d, want 7", cfg.TopK)
	}
	if cfg.DecayHalfLife != 12*time.Hour {
		t.Errorf("DecayHalfLife = %v, want 12h", cfg.DecayHalfLife)
	}
	if cfg.Compression.Trigger != memory.TriggerCountBased {
		t.Errorf("Trigger = %q", cfg.Compression.Trigger)
	}
	if cfg.Compression.MaxEpisodicCount != 50 {
		t.Errorf("MaxEpisodicCount = %d, want 50", cfg.Compression.MaxEpisodicCount)
	}
	// Unset fields keep defaults.
	if cfg.Compression.MaxTotalTokens != memory.DefaultConfig.Compression.MaxTotalTokens {
		t.Errorf("MaxTotalTokens = %d, want default", cfg.Compression.MaxTotalTokens)
	}
}

func TestLoadConfigRejectsMalformedPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := `
compression:
  max_episodic_count: -5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := memory.LoadConfig(path); err == nil {
		t.Fatal("negative threshold should fail at load time")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := memory.LoadConfig("/no/such/file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
