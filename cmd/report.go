package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storesync/internal/formatter"
	"github.com/desertthunder/storesync/internal/tasks"
)

// Report renders a previous run's stats file as a summary table and, when
// requested, exports the failure list to CSV.
func (r *Runner) Report(ctx context.Context, cmd *cli.Command) error {
	statsPath := cmd.String("stats")

	data, err := os.ReadFile(statsPath)
	if err != nil {
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var stats tasks.JobStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return fmt.Errorf("failed to parse stats file: %w", err)
	}

	r.writePlainHeader("Migration Report")
	r.writePlain("%s\n", formatter.SummaryTable(&stats))
	r.writePlain("%s", formatter.SummaryText(&stats))

	if out := cmd.String("failures-csv"); out != "" {
		csvData, err := formatter.FailuresToCSV(&stats)
		if err != nil {
			return fmt.Errorf("failed to build failures CSV: %w", err)
		}
		if err := os.WriteFile(out, csvData, 0644); err != nil {
			return fmt.Errorf("failed to write failures CSV: %w", err)
		}
		r.writePlain("\nFailures written to %s\n", out)
	}

	return nil
}

func marshalStats(stats *tasks.JobStats) ([]byte, error) {
	return json.MarshalIndent(stats, "", "  ")
}

// reportCommand renders stats files from previous runs.
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Render a previous run's stats file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stats",
				Usage:    "Path to a stats JSON file written by migrate --stats-out",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "failures-csv",
				Usage: "Export per-item failures to this CSV path",
			},
		},
		Action: r.Report,
	}
}
