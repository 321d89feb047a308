// Package config loads the bengine server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bengine/bengine"
)

// Config represents the bengine server configuration.
type Config struct {
	Title   string        `yaml:"title"`
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Content ContentConfig `yaml:"content"`
	API     *APIConfig    `yaml:"api,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// EngineConfig mirrors the engine options an embedder can set per server.
type EngineConfig struct {
	BlockLimit         int    `yaml:"block_limit,omitempty"`           // default 16
	DefaultText        *bool  `yaml:"default_text,omitempty"`          // default true
	AutoSave           bool   `yaml:"auto_save,omitempty"`             // default false
	SingleView         bool   `yaml:"single_view,omitempty"`           // default false
	LocalMode          bool   `yaml:"local_mode,omitempty"`            // default false
	MediaLimitMB       int64  `yaml:"media_limit_mb,omitempty"`        // default 100
	Mode               string `yaml:"mode,omitempty"`                  // "bengine" or "qengine"
	PlayableMediaLimit int    `yaml:"playable_media_limit,omitempty"`  // seconds, default 180
}

// EngineOptions converts the config into engine options. Zero fields keep
// the engine's own defaults.
func (c EngineConfig) EngineOptions() bengine.Options {
	return bengine.Options{
		BlockLimit:         c.BlockLimit,
		DefaultText:        c.DefaultText,
		EnableAutoSave:     c.AutoSave,
		EnableSingleView:   c.SingleView,
		LocalMode:          c.LocalMode,
		MediaLimit:         c.MediaLimitMB,
		Mode:               c.Mode,
		PlayableMediaLimit: c.PlayableMediaLimit,
	}
}

// StoreConfig selects the page store backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn,omitempty"`
}

// GetDriver returns the store driver (default: sqlite).
func (c StoreConfig) GetDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

// GetDSN returns the data source name with environment variable expansion
// (default: ./bengine.db for sqlite).
func (c StoreConfig) GetDSN() string {
	if c.DSN == "" {
		return "./bengine.db"
	}
	return os.ExpandEnv(c.DSN)
}

// ContentConfig locates the served content tree.
type ContentConfig struct {
	Dir   string `yaml:"dir,omitempty"`   // default ./content
	Watch *bool  `yaml:"watch,omitempty"` // default true
}

// GetDir returns the content directory (default: ./content).
func (c ContentConfig) GetDir() string {
	if c.Dir == "" {
		return "./content"
	}
	return c.Dir
}

// WatchEnabled reports whether the content watcher runs (default: true).
func (c ContentConfig) WatchEnabled() bool {
	if c.Watch == nil {
		return true
	}
	return *c.Watch
}

// APIConfig holds the optional HTTP hardening settings.
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig configures cross-origin access for embedding pages.
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"`
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // default 10
	Burst             int     `yaml:"burst,omitempty"`               // default 20
}

// GetCORSOrigins returns the configured CORS origins, or nil if not
// configured.
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second
// (default: 10).
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20).
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Title: "Bengine",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns the
// default configuration.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// LoadFromDir looks for bengine.yaml, then bng.yaml, in the given
// directory. If neither exists, returns the default configuration.
func LoadFromDir(dir string) (*Config, error) {
	benginePath := filepath.Join(dir, "bengine.yaml")
	if _, err := os.Stat(benginePath); err == nil {
		return Load(benginePath)
	}
	return Load(filepath.Join(dir, "bng.yaml"))
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
