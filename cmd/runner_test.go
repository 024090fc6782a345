package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/tasks"
	tu "github.com/desertthunder/storesync/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, expected := range []string{"setup", "migrate", "report", "tui"} {
			if !names[expected] {
				t.Errorf("expected %s command to be registered", expected)
			}
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("count: %d", 42); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "count: 42" {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := NewRunner(RunnerOpts{Output: &tu.FWriter{}}).writePlain("x"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("buildEngine", func(t *testing.T) {
		ctx := context.Background()

		t.Run("invalid config is fatal", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			config := shared.DefaultConfig()
			config.Source.BaseURL = ""

			_, _, err := runner.buildEngine(ctx, config)
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("unreachable source is fatal", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			server.Close()

			runner := NewRunner(RunnerOpts{})
			config := shared.DefaultConfig()
			config.Source.BaseURL = server.URL

			_, _, err := runner.buildEngine(ctx, config)
			if !errors.Is(err, shared.ErrSourceUnavailable) {
				t.Errorf("expected ErrSourceUnavailable, got %v", err)
			}
		})

		t.Run("assembles an engine against live endpoints", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{}"))
			}))
			defer server.Close()

			runner := NewRunner(RunnerOpts{})
			config := shared.DefaultConfig()
			config.Source.BaseURL = server.URL
			config.Database.Path = ":memory:"

			engine, db, err := runner.buildEngine(ctx, config)
			if err != nil {
				t.Fatalf("expected engine, got %v", err)
			}
			defer db.Close()
			if engine == nil {
				t.Fatal("expected non-nil engine")
			}
		})
	})
}

func TestPrintProgress(t *testing.T) {
	cases := []struct {
		name     string
		phase    tasks.Phase
		expected string
	}{
		{"extracting", tasks.Extracting, "📥 pulling users\n"},
		{"blob migrating", tasks.BlobMigrating, "📦 pulling users\n"},
		{"writing", tasks.Writing, "   pulling users\n"},
		{"entity completed", tasks.EntityCompleted, "✓ pulling users\n"},
		{"completed", tasks.Completed, "✅ pulling users\n"},
		{"configured is silent", tasks.Configured, ""},
		{"transforming is silent", tasks.Transforming, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.printProgress(tasks.ProgressUpdate{Phase: tc.phase, Message: "pulling users"})

			if output.String() != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, output.String())
			}
		})
	}
}

func TestItemTimeout(t *testing.T) {
	config := shared.DefaultConfig()
	if got := itemTimeout(config); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}

	config.Migration.ItemTimeout = 0
	if got := itemTimeout(config); got != 0 {
		t.Errorf("expected 0 for unset timeout, got %v", got)
	}
}

func TestWriteStats(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "stats.json")

	stats := &tasks.JobStats{
		RunID: "run-123",
		Entities: []tasks.EntityStats{
			{EntityType: "users", Total: 3, Migrated: 2, Skipped: 1},
		},
	}

	if err := writeStats(path, stats); err != nil {
		t.Fatalf("failed to write stats: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if !strings.Contains(string(data), `"run_id": "run-123"`) {
		t.Errorf("expected run id in stats file, got %s", data)
	}
}
