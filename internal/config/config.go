// Package config defines the engine configuration and its loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ansel/lore/internal/logger"
)

// Config is the top-level configuration.
type Config struct {
	// RootDir is the document tree, the durable source of truth.
	RootDir string `mapstructure:"root_dir" json:"root_dir"`
	// DataDir holds derived state: index databases and logs.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	IndexPath  string `mapstructure:"index_path" json:"index_path"`
	VectorPath string `mapstructure:"vector_path" json:"vector_path"`

	// MetricsAddr, when set, exposes Prometheus metrics on that address
	// while serving (for example "127.0.0.1:9091").
	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr"`

	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`
	Watcher   WatcherConfig   `mapstructure:"watcher" json:"watcher"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	Search    SearchConfig    `mapstructure:"search" json:"search"`
	Logging   logger.Config   `mapstructure:"logging" json:"logging"`
}

// EmbeddingConfig selects the embedding provider. An empty provider disables
// semantic search; the engine stays keyword-only.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" json:"provider"` // "openai" or ""
	Model     string `mapstructure:"model" json:"model"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	Dimension int    `mapstructure:"dimension" json:"dimension"`
}

// WatcherConfig tunes the live file watcher.
type WatcherConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" json:"debounce_ms"`
}

// SchedulerConfig tunes the periodic backstop sweep.
type SchedulerConfig struct {
	SweepSchedule string `mapstructure:"sweep_schedule" json:"sweep_schedule"`
}

// SearchConfig tunes result paging and rank fusion.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" json:"default_limit"`
	Overfetch    int `mapstructure:"overfetch" json:"overfetch"`
	RRFK         int `mapstructure:"rrf_k" json:"rrf_k"`
}

// DefaultConfig returns the default configuration. Paths that depend on the
// home directory are filled in by the loader.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Watcher: WatcherConfig{
			DebounceMs: 500,
		},
		Scheduler: SchedulerConfig{
			SweepSchedule: "@every 1h",
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			Overfetch:    2,
			RRFK:         60,
		},
		Logging: logger.DefaultConfig(),
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if c.Watcher.DebounceMs < 0 {
		return fmt.Errorf("watcher.debounce_ms cannot be negative")
	}
	if c.Search.DefaultLimit < 0 || c.Search.Overfetch < 0 || c.Search.RRFK < 0 {
		return fmt.Errorf("search settings cannot be negative")
	}

	switch c.Embedding.Provider {
	case "":
		// Keyword-only mode.
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", c.Embedding.Provider)
		}
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding provider: %q", c.Embedding.Provider)
	}
	return nil
}

// applyPathDefaults fills in home-relative defaults for unset paths.
func (c *Config) applyPathDefaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".lore")
	}
	if c.RootDir == "" {
		c.RootDir = filepath.Join(c.DataDir, "documents")
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.DataDir, "index.db")
	}
	if c.VectorPath == "" {
		c.VectorPath = filepath.Join(c.DataDir, "vectors.db")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "lore.log")
	}
	return nil
}
