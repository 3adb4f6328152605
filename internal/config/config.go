// Package config loads the application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects and parameterizes the site store backend.
type StoreConfig struct {
	// Backend is one of "sqlite", "postgres" or "memory".
	Backend string `yaml:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `yaml:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn"`
}

// ExternalConfig points at the community construction-site API.
type ExternalConfig struct {
	// BaseURL enables read-time reconciliation when non-empty.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age_days"`
}

// Config is the full application configuration.
type Config struct {
	// JournalDir is the directory the game writes journal files into.
	JournalDir string `yaml:"journal_dir"`

	Store    StoreConfig    `yaml:"store"`
	External ExternalConfig `yaml:"external"`
	Log      LogConfig      `yaml:"log"`

	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "colonytrack.db",
		},
		External: ExternalConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and validates a YAML configuration file. Fields absent from
// the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend '%s'", c.Store.Backend)
	}
	if c.External.Timeout < 0 {
		return fmt.Errorf("external.timeout must not be negative")
	}
	return nil
}
