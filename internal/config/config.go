// Package config loads the codechatd configuration.
//
// The configuration is a single JSON document at a fixed path
// (~/.config/codechat/config.json by default, overridable with the
// CODECHAT_CONFIG environment variable or the --config flag). The
// loaded value is immutable; a reload produces a fresh value that
// atomically replaces the previous one. No indexer state is
// invalidated by a reload.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Default values applied by Load when the document omits a field.
const (
	DefaultDimensions   = 1536
	DefaultEmbedTimeout = 30 * time.Second
	DefaultListenAddr   = "127.0.0.1:5005"
	DefaultEmbedModel   = "text-embedding-3-small"
	DefaultLogMaxSizeMB = 10
	DefaultLogMaxFiles  = 5
)

// Config is the complete codechatd configuration.
type Config struct {
	// Embedding configures the remote embedding provider.
	Embedding EmbeddingConfig `json:"embedding"`

	// CacheDir is where the vector index and metadata sidecar live.
	// Defaults to <config dir>/.cache/codechat.
	CacheDir string `json:"cache_dir"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `json:"log_level"`

	// LogMaxSizeMB is the log file size in MB that triggers rotation.
	LogMaxSizeMB int `json:"log_max_size_mb"`

	// LogMaxFiles is how many rotated log files to keep.
	LogMaxFiles int `json:"log_max_files"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `json:"listen_addr"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// APIKey authenticates against the provider. May be empty when the
	// provider is a local OpenAI-compatible endpoint.
	APIKey string `json:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible).
	BaseURL string `json:"base_url"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// Dimensions is the embedding vector dimension.
	Dimensions int `json:"dimensions"`

	// TimeoutSeconds bounds a single embedding call.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Timeout returns the embedding call timeout as a duration.
func (e EmbeddingConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultEmbedTimeout
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// DefaultPath returns the fixed config file path.
// CODECHAT_CONFIG overrides it.
func DefaultPath() string {
	if p := os.Getenv("CODECHAT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "config.json")
}

// DefaultCacheDir returns the default cache directory.
func DefaultCacheDir() string {
	return filepath.Join(configDir(), ".cache", "codechat")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codechat")
	}
	return filepath.Join(home, ".config", "codechat")
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Model:          DefaultEmbedModel,
			Dimensions:     DefaultDimensions,
			TimeoutSeconds: int(DefaultEmbedTimeout / time.Second),
		},
		CacheDir:     DefaultCacheDir(),
		LogLevel:     "info",
		LogMaxSizeMB: DefaultLogMaxSizeMB,
		LogMaxFiles:  DefaultLogMaxFiles,
		ListenAddr:   DefaultListenAddr,
	}
}

// Load reads the JSON document at path and applies defaults for
// omitted fields. A missing file yields the default configuration; a
// malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbedModel
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = DefaultDimensions
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = int(DefaultEmbedTimeout / time.Second)
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.LogMaxFiles == 0 {
		c.LogMaxFiles = DefaultLogMaxFiles
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.TimeoutSeconds < 0 {
		return fmt.Errorf("embedding.timeout_seconds must be positive, got %d", c.Embedding.TimeoutSeconds)
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxFiles < 0 {
		return fmt.Errorf("log rotation settings must be positive")
	}
	return nil
}

// Holder provides atomic access to the current configuration value.
// The HTTP reload endpoint swaps the value; readers always observe a
// complete document.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewHolder loads the config at path and wraps it in a Holder.
func NewHolder(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path}
	h.cur.Store(cfg)
	return h, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	return h.cur.Load()
}

// Reload re-reads the config file and atomically replaces the value.
// On error the previous value is kept.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		return err
	}
	h.cur.Store(cfg)
	return nil
}
