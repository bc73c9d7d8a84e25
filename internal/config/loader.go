package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path means the default
// location under the home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// GetConfigPath returns the effective config file path.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".lore", "lore.json")
}

// Load reads the configuration file, overlays LORE_ environment variables
// and fills in defaults. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("LORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Env-only overrides that matter even without a config file.
	if key := os.Getenv("LORE_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if root := os.Getenv("LORE_ROOT_DIR"); root != "" {
		cfg.RootDir = root
	}

	if err := cfg.applyPathDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the config file as JSON.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("root_dir", cfg.RootDir)
	v.Set("data_dir", cfg.DataDir)
	v.Set("index_path", cfg.IndexPath)
	v.Set("vector_path", cfg.VectorPath)
	v.Set("embedding", cfg.Embedding)
	v.Set("watcher", cfg.Watcher)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("search", cfg.Search)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
