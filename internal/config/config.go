// Package config loads cellar configuration from YAML with environment
// variable overrides. A missing config file is not an error: every field has
// a default, so the zero-setup path (`cellar serve` in an empty directory)
// just works.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cellar configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// SQLite item store
	Store StoreConfig `yaml:"store"`

	// API client (TUI and one-shot commands)
	Client ClientConfig `yaml:"client"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StoreConfig configures the SQLite item store.
type StoreConfig struct {
	Path string `yaml:"path"`

	// Items younger than this many whole days cannot be deleted.
	MinAgeDays int `yaml:"min_age_days"`
}

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures the categorized file logger. It mirrors the
// settings the logging package reads for itself from the same file.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "cellar",

		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "5s",
		},

		Store: StoreConfig{
			Path:       "data/cellar.db",
			MinAgeDays: 5,
		},

		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: "10s",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cwd, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CELLAR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("CELLAR_DB"); path != "" {
		c.Store.Path = path
	}
	if url := os.Getenv("CELLAR_SERVER_URL"); url != "" {
		c.Client.BaseURL = url
	}
	if days := os.Getenv("CELLAR_MIN_AGE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			c.Store.MinAgeDays = n
		}
	}
	if level := os.Getenv("CELLAR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetClientTimeout returns the API client timeout as a duration.
func (c *Config) GetClientTimeout() time.Duration {
	d, err := time.ParseDuration(c.Client.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// LogsDir returns the directory for log files, a sibling of the database.
func (c *Config) LogsDir() string {
	return filepath.Join(filepath.Dir(c.Store.Path), "logs")
}

// ValidLevels lists all supported log levels.
var ValidLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address not configured")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path not configured")
	}
	if c.Store.MinAgeDays < 0 {
		return fmt.Errorf("minimum age must be >= 0 days, got %d", c.Store.MinAgeDays)
	}
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client base URL not configured")
	}

	if c.Logging.Level != "" {
		validLevel := false
		for _, l := range ValidLevels {
			if c.Logging.Level == l {
				validLevel = true
				break
			}
		}
		if !validLevel {
			return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLevels)
		}
	}

	return nil
}
