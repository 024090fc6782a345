// package formatter renders migration run results to various formats (styled
// table, CSV, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/storesync/internal/tasks"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	totalStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// SummaryTable renders the per-entity-type results table with an aggregate
// total row.
func SummaryTable(stats *tasks.JobStats) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == len(stats.Entities):
				return totalStyle
			default:
				return cellStyle
			}
		}).
		Headers("ENTITY TYPE", "TOTAL", "MIGRATED", "SKIPPED", "ELAPSED")

	for _, e := range stats.Entities {
		t.Row(
			e.EntityType,
			strconv.Itoa(e.Total),
			strconv.Itoa(e.Migrated),
			strconv.Itoa(e.Skipped),
			e.Elapsed.Round(time.Millisecond).String(),
		)
	}

	t.Row(
		"TOTAL",
		strconv.Itoa(stats.TotalItems()),
		strconv.Itoa(stats.TotalMigrated()),
		strconv.Itoa(stats.TotalSkipped()),
		stats.Elapsed.Round(time.Millisecond).String(),
	)

	return t.Render()
}

// SummaryText renders a plain-text aggregate line for logs and non-TTY output.
func SummaryText(stats *tasks.JobStats) string {
	var buf bytes.Buffer

	mode := ""
	if stats.DryRun {
		mode = " (dry run)"
	}
	buf.WriteString(fmt.Sprintf("Run %s%s\n", stats.RunID, mode))
	buf.WriteString(fmt.Sprintf("Items: %d migrated, %d skipped of %d\n",
		stats.TotalMigrated(), stats.TotalSkipped(), stats.TotalItems()))
	if stats.BlobsMigrated > 0 || stats.BlobsFailed > 0 {
		buf.WriteString(fmt.Sprintf("Blobs: %d migrated, %d failed\n", stats.BlobsMigrated, stats.BlobsFailed))
	}
	buf.WriteString(fmt.Sprintf("Elapsed: %s (%.1f items/sec)\n",
		stats.Elapsed.Round(time.Millisecond), stats.Throughput()))

	return buf.String()
}

// FailuresToCSV converts every recorded per-item failure to CSV with columns:
// Entity Type, Item, Error.
func FailuresToCSV(stats *tasks.JobStats) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Entity Type", "Item", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range stats.Entities {
		for _, f := range e.Failures {
			record := []string{e.EntityType, f.Item, f.Error}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
