package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid defaults with key",
			mutate: func(c *Config) { c.Embedding.APIKey = "sk-test" },
		},
		{
			name:   "keyword only mode needs no key",
			mutate: func(c *Config) { c.Embedding.Provider = "" },
		},
		{
			name:    "missing root dir",
			mutate:  func(c *Config) { c.RootDir = ""; c.Embedding.APIKey = "sk-test" },
			wantErr: true,
		},
		{
			name:    "openai without api key",
			mutate:  func(c *Config) { c.Embedding.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "psychic" },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Embedding.APIKey = "k"; c.Watcher.DebounceMs = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RootDir = "/tmp/docs"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 500, cfg.Watcher.DebounceMs)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.NotEmpty(t, cfg.RootDir)
	assert.NotEmpty(t, cfg.IndexPath)
	assert.NotEmpty(t, cfg.VectorPath)
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lore.json")
	content := `{
		"root_dir": "/kb/docs",
		"data_dir": "/kb/state",
		"embedding": {"provider": "openai", "model": "text-embedding-3-large", "api_key": "sk-test"},
		"watcher": {"debounce_ms": 250},
		"search": {"rrf_k": 90}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/kb/docs", cfg.RootDir)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 250, cfg.Watcher.DebounceMs)
	assert.Equal(t, 90, cfg.Search.RRFK)
	// Unset paths derive from the data dir.
	assert.Equal(t, filepath.Join("/kb/state", "index.db"), cfg.IndexPath)
	assert.Equal(t, filepath.Join("/kb/state", "vectors.db"), cfg.VectorPath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LORE_EMBEDDING_API_KEY", "sk-from-env")
	t.Setenv("LORE_ROOT_DIR", "/env/docs")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
	assert.Equal(t, "/env/docs", cfg.RootDir)
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lore.json")

	cfg := DefaultConfig()
	cfg.RootDir = "/kb/docs"
	cfg.DataDir = "/kb/state"
	cfg.Embedding.APIKey = "sk-test"
	cfg.Scheduler.SweepSchedule = "@every 15m"

	loader := NewLoader(path)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "/kb/docs", loaded.RootDir)
	assert.Equal(t, "@every 15m", loaded.Scheduler.SweepSchedule)
	assert.Equal(t, "sk-test", loaded.Embedding.APIKey)
}
