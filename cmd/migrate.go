package main

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storesync/internal/formatter"
	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/tasks"
)

// printProgress renders one engine update as a plain CLI line. Phases with
// no case here stay silent.
func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Extracting:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.BlobMigrating:
		r.writePlain("📦 %s\n", update.Message)
	case tasks.Writing:
		r.writePlain("   %s\n", update.Message)
	case tasks.EntityCompleted:
		r.writePlain("✓ %s\n", update.Message)
	case tasks.Completed:
		r.writePlain("✅ %s\n", update.Message)
	}
}

// MigrateRun runs one full migration pass across the selected entity types.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	job := tasks.Job{
		EntityTypes:    cmd.StringSlice("types"),
		DryRun:         cmd.Bool("dry-run"),
		Quick:          cmd.Bool("quick"),
		StorageOnly:    cmd.Bool("storage-only"),
		SkipStorage:    cmd.Bool("skip-storage"),
		IncludeStorage: cmd.Bool("include-storage"),
		Concurrency:    int(cmd.Int("concurrency")),
		SampleSize:     config.Migration.SampleSize,
	}
	if job.Concurrency <= 0 {
		job.Concurrency = config.Migration.Concurrency
	}

	r.logger.Info("starting migration",
		"dry_run", job.DryRun, "quick", job.Quick,
		"storage_only", job.StorageOnly, "concurrency", job.Concurrency)

	engine, db, err := r.buildEngine(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.writePlain("Starting migration...\n")
	if job.DryRun {
		r.writePlain("Mode: dry run (no writes)\n")
	}
	r.writePlain("\n")

	// Create progress channel and goroutine to handle updates
	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			r.printProgress(update)
		}
	}()

	stats, err := engine.Run(ctx, job, progressCh)
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Migration Complete!")
	r.writePlain("%s\n", formatter.SummaryTable(stats))
	r.writePlain("%s", formatter.SummaryText(stats))

	if statsOut := cmd.String("stats-out"); statsOut != "" {
		if err := writeStats(statsOut, stats); err != nil {
			r.logger.Warn("failed to write stats file", "path", statsOut, "error", err)
		} else {
			r.writePlain("\nStats written to %s\n", statsOut)
		}
	}

	return nil
}

// writeStats persists one run's stats for later `report` invocations. The
// file is the only artifact a run leaves behind; the engine itself keeps no
// state between runs.
func writeStats(path string, stats *tasks.JobStats) error {
	data, err := marshalStats(stats)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func itemTimeout(config *shared.Config) time.Duration {
	if config.Migration.ItemTimeout <= 0 {
		return 0
	}
	return time.Duration(config.Migration.ItemTimeout) * time.Second
}

// migrateCommand handles migration runs.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate the source dataset into the target store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Extract and transform, log intended writes, write nothing",
			},
			&cli.BoolFlag{
				Name:  "quick",
				Usage: "Cap each entity type to a small sample for fast checks",
			},
			&cli.BoolFlag{
				Name:  "storage-only",
				Usage: "Run only blob migration across all known prefixes",
			},
			&cli.BoolFlag{
				Name:  "skip-storage",
				Usage: "Skip blob migration entirely",
			},
			&cli.BoolFlag{
				Name:  "include-storage",
				Usage: "Force blob migration even under --dry-run",
			},
			&cli.StringSliceFlag{
				Name:  "types",
				Usage: "Entity types to migrate (default: all, in dependency order)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Concurrent item migrations per entity type",
			},
			&cli.StringFlag{
				Name:  "stats-out",
				Usage: "Write run stats as JSON to this path",
			},
		},
		Action: r.MigrateRun,
	}
}
