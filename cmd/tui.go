package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/tasks"
	"github.com/desertthunder/storesync/internal/ui"
)

// TUI launches the interactive terminal UI for a migration run.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/storesync-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	engine, db, err := r.buildEngine(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	job := tasks.Job{
		DryRun:      cmd.Bool("dry-run"),
		Quick:       cmd.Bool("quick"),
		SkipStorage: cmd.Bool("skip-storage"),
		Concurrency: config.Migration.Concurrency,
		SampleSize:  config.Migration.SampleSize,
	}

	model := ui.NewModel(ctx, engine, job)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Run a migration from an interactive terminal UI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Extract and transform, write nothing",
			},
			&cli.BoolFlag{
				Name:  "quick",
				Usage: "Cap each entity type to a small sample",
			},
			&cli.BoolFlag{
				Name:  "skip-storage",
				Usage: "Skip blob migration entirely",
			},
		},
		Action: r.TUI,
	}
}
