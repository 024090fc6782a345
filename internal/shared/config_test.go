package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "storesync.db" {
			t.Errorf("expected database path storesync.db, got %s", config.Database.Path)
		}

		if config.Source.BaseURL != "http://localhost:9000" {
			t.Errorf("expected source base URL http://localhost:9000, got %s", config.Source.BaseURL)
		}

		if config.Storage.Bucket != "public" {
			t.Errorf("expected storage bucket public, got %s", config.Storage.Bucket)
		}

		if config.Migration.Concurrency != 25 {
			t.Errorf("expected concurrency 25, got %d", config.Migration.Concurrency)
		}

		if config.Migration.SampleSize != 10 {
			t.Errorf("expected sample size 10, got %d", config.Migration.SampleSize)
		}

		if config.Migration.ItemTimeout != 30 {
			t.Errorf("expected item timeout 30, got %d", config.Migration.ItemTimeout)
		}

		if config.Migration.MaxRetries != 2 {
			t.Errorf("expected max retries 2, got %d", config.Migration.MaxRetries)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}
		if config.Migration.Concurrency != defaultConfig.Migration.Concurrency {
			t.Errorf("created config concurrency doesn't match default")
		}
	})

	t.Run("CreateConfigFile refuses existing file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := os.WriteFile(configPath, []byte("# existing"), 0644); err != nil {
			t.Fatalf("failed to seed config file: %v", err)
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("expected error for existing config file")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		content := `
[source]
base_url = "https://legacy.example.com"
secret = "s3cret"

[database]
path = "/tmp/target.db"
max_open_conns = 4

[migration]
concurrency = 8
`
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Source.BaseURL != "https://legacy.example.com" {
			t.Errorf("expected source base URL, got %s", config.Source.BaseURL)
		}
		if config.Source.Secret != "s3cret" {
			t.Errorf("expected secret, got %s", config.Source.Secret)
		}
		if config.Database.MaxOpenConns != 4 {
			t.Errorf("expected max open conns 4, got %d", config.Database.MaxOpenConns)
		}
		if config.Migration.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", config.Migration.Concurrency)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("LoadConfig invalid TOML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := os.WriteFile(configPath, []byte("not [valid toml"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for invalid TOML")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		t.Run("complete config", func(t *testing.T) {
			config := DefaultConfig()
			if err := config.Validate(); err != nil {
				t.Errorf("expected default config to validate, got %v", err)
			}
		})

		t.Run("missing source", func(t *testing.T) {
			config := DefaultConfig()
			config.Source.BaseURL = ""

			err := config.Validate()
			if !errors.Is(err, ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("missing database path", func(t *testing.T) {
			config := DefaultConfig()
			config.Database.Path = ""

			err := config.Validate()
			if !errors.Is(err, ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})
	})
}
