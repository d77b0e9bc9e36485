// Package config provides configuration loading and structs for ruiji.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the vector store backend and its files.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	Driver           string `yaml:"driver"`
	DatabasePath     string `yaml:"database_path"`
	SnapshotPath     string `yaml:"snapshot_path"`
	SnapshotCodec    string `yaml:"snapshot_codec"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds image model settings. ModelPath "mock" selects the deterministic mock.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	ImageSize  int    `yaml:"image_size"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
	CacheSize  int    `yaml:"cache_size"`
}

// IngestConfig holds directory ingestion settings.
type IngestConfig struct {
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
	Workers    int      `yaml:"workers"`
	RateLimit  float64  `yaml:"rate_limit"`
	IDScheme   string   `yaml:"id_scheme"`
}

// RecursiveOrDefault returns whether to walk directories recursively; defaults to true when unset.
func (c *IngestConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	Workers      int `yaml:"workers"`
	BatchSize    int `yaml:"batch_size"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != MockModel {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate checks enumerated settings. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"sqlite", "memory"}, c.Storage.Backend) {
		return fmt.Errorf("invalid storage.backend %q (want sqlite or memory)", c.Storage.Backend)
	}
	if !slices.Contains([]string{"sqlite3", "sqlite"}, c.Storage.Driver) {
		return fmt.Errorf("invalid storage.driver %q (want sqlite3 or sqlite)", c.Storage.Driver)
	}
	if !slices.Contains([]string{"zstd", "lz4", "none"}, c.Storage.SnapshotCodec) {
		return fmt.Errorf("invalid storage.snapshot_codec %q (want zstd, lz4 or none)", c.Storage.SnapshotCodec)
	}
	if !slices.Contains([]string{"path", "hash"}, c.Ingest.IDScheme) {
		return fmt.Errorf("invalid ingest.id_scheme %q (want path or hash)", c.Ingest.IDScheme)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) is below search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" and "" are left as is.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
