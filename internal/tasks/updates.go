package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a migration run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase      Phase   // Run phase
	EntityType string  // Entity type being processed, empty for job-level events
	Step       int     // Items processed so far within the phase
	Total      int     // Total items in this phase
	Message    string  // Human-readable message for display
	Rate       float64 // Items per second since job start, 0 when unknown
	ETA        time.Duration
	Data       any // Optional phase-specific data for advanced UIs
}

// Run phase enumeration
type Phase int

const (
	Configured Phase = iota
	Extracting
	Transforming
	BlobMigrating
	Writing
	EntityCompleted
	Completed
)

func (p Phase) String() string {
	switch p {
	case Configured:
		return "configured"
	case Extracting:
		return "extracting"
	case Transforming:
		return "transforming"
	case BlobMigrating:
		return "blob_migrating"
	case Writing:
		return "writing"
	case EntityCompleted:
		return "entity_completed"
	case Completed:
		return "completed"
	default:
		return ""
	}
}

func extractingUpdate(entityType string) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Extracting,
		EntityType: entityType,
		Message:    fmt.Sprintf("Extracting %s from source...", entityType),
	}
}

func extractedUpdate(entityType string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:      Extracting,
		EntityType: entityType,
		Step:       count,
		Total:      count,
		Message:    fmt.Sprintf("Extracted %d %s records", count, entityType),
	}
}

func waveUpdate(entityType string, processed, total int, rate float64, eta time.Duration) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s: %.1f items/sec", processed, total, entityType, rate)
	if eta > 0 {
		msg += fmt.Sprintf(", ETA %s", eta.Round(time.Second))
	}
	return ProgressUpdate{
		Phase:      Writing,
		EntityType: entityType,
		Step:       processed,
		Total:      total,
		Message:    msg,
		Rate:       rate,
		ETA:        eta,
	}
}

func blobPrefixUpdate(prefix string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BlobMigrating,
		Total:   count,
		Message: fmt.Sprintf("Migrating %d blobs under %q...", count, prefix),
	}
}

func entityCompletedUpdate(stats EntityStats) ProgressUpdate {
	return ProgressUpdate{
		Phase:      EntityCompleted,
		EntityType: stats.EntityType,
		Step:       stats.Migrated + stats.Skipped,
		Total:      stats.Total,
		Message:    fmt.Sprintf("%s done: %d migrated, %d skipped", stats.EntityType, stats.Migrated, stats.Skipped),
		Data:       stats,
	}
}

func completedUpdate(stats *JobStats) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Completed,
		Step:    stats.TotalItems(),
		Total:   stats.TotalItems(),
		Message: fmt.Sprintf("Migration complete: %d migrated, %d skipped in %s", stats.TotalMigrated(), stats.TotalSkipped(), stats.Elapsed.Round(time.Millisecond)),
		Data:    stats,
	}
}
