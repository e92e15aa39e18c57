// Package config loads the support-desk settings from YAML or JSON
// files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full runtime configuration. Zero values are filled
// in from Defaults during load.
type Settings struct {
	// Provider selects the model backend: anthropic or openai.
	Provider string `yaml:"provider" json:"provider"`

	// Model overrides the provider's default model name.
	Model string `yaml:"model" json:"model"`

	// CheckpointPath is the SQLite file for thread checkpoints.
	// Empty means in-memory checkpoints.
	CheckpointPath string `yaml:"checkpoint_path" json:"checkpoint_path"`

	// DatabasePath is the SQLite file holding the support data
	// (orders, subscriptions, ledger, users).
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// MaxHops bounds stage executions per submission.
	MaxHops int `yaml:"max_hops" json:"max_hops"`

	// MaxToolIterations bounds the specialist tool loop.
	MaxToolIterations int `yaml:"max_tool_iterations" json:"max_tool_iterations"`

	// RecentWindow is how many trailing messages specialists send to
	// the model.
	RecentWindow int `yaml:"recent_window" json:"recent_window"`

	// RoleCacheSize and RoleCacheTTL bound the role lookup cache.
	// RoleCacheTTL uses time.ParseDuration syntax ("5m", "90s").
	RoleCacheSize int    `yaml:"role_cache_size" json:"role_cache_size"`
	RoleCacheTTL  string `yaml:"role_cache_ttl" json:"role_cache_ttl"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Defaults returns the settings used when no file is given.
func Defaults() Settings {
	return Settings{
		Provider:          "anthropic",
		MaxHops:           8,
		MaxToolIterations: 5,
		RecentWindow:      6,
		RoleCacheSize:     1024,
		RoleCacheTTL:      "5m",
		LogLevel:          "info",
	}
}

// CacheTTL parses RoleCacheTTL, falling back to the default on any
// parse failure.
func (s Settings) CacheTTL() time.Duration {
	d, err := time.ParseDuration(s.RoleCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// FromFile loads settings from a file, auto-detecting format by
// extension. Supported extensions: .yaml, .yml, .json. Missing fields
// keep their defaults.
func FromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Settings{}, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}
}

// FromYAML parses YAML data into Settings.
func FromYAML(data []byte) (Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse yaml: %w", err)
	}
	return s, s.validate()
}

// FromJSON parses JSON data into Settings.
func FromJSON(data []byte) (Settings, error) {
	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse json: %w", err)
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	switch s.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.MaxHops <= 0 {
		return fmt.Errorf("max_hops must be positive, got %d", s.MaxHops)
	}
	if s.MaxToolIterations <= 0 {
		return fmt.Errorf("max_tool_iterations must be positive, got %d", s.MaxToolIterations)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", s.LogLevel)
	}
	return nil
}
