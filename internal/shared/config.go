package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Database  DatabaseConfig  `toml:"database"`
	Storage   StorageConfig   `toml:"storage"`
	Migration MigrationConfig `toml:"migration"`
}

// SourceConfig contains connection settings for the legacy hierarchical store.
type SourceConfig struct {
	BaseURL string `toml:"base_url"`
	Secret  string `toml:"secret"`
}

// DatabaseConfig contains target database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig contains target blob storage settings.
type StorageConfig struct {
	BaseURL string `toml:"base_url"`
	Bucket  string `toml:"bucket"`
	APIKey  string `toml:"api_key"`
}

// MigrationConfig contains per-run migration defaults, overridable by flags.
type MigrationConfig struct {
	Concurrency int     `toml:"concurrency"`
	SampleSize  int     `toml:"sample_size"`
	RateLimit   float64 `toml:"rate_limit"`
	ItemTimeout int     `toml:"item_timeout_seconds"`
	MaxRetries  int     `toml:"max_retries"`
}

// Validate checks that mandatory connection settings are present.
//
// A missing source or target setting is the only fatal failure class: the
// engine refuses to start a job it cannot finish (everything after extraction
// degrades per item instead).
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("%w: source.base_url is required", ErrMissingConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrMissingConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
