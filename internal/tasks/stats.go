package tasks

import "time"

// ItemFailure records one item that could not be migrated, keyed by its
// natural key or source key.
type ItemFailure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// EntityStats holds per-entity-type counters for one run. The invariant
// Migrated + Skipped == Total holds at entity completion regardless of how
// many items failed.
type EntityStats struct {
	EntityType string        `json:"entity_type"`
	Total      int           `json:"total"`
	Migrated   int           `json:"migrated"`
	Skipped    int           `json:"skipped"`
	Failures   []ItemFailure `json:"failures,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// JobStats aggregates a whole invocation. Discarded after the run; no job
// state persists between invocations.
type JobStats struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Entities  []EntityStats `json:"entities"`

	// BlobsMigrated counts distinct objects copied during the run, including
	// storage-only passes.
	BlobsMigrated int `json:"blobs_migrated"`
	BlobsFailed   int `json:"blobs_failed"`
}

func (j *JobStats) TotalItems() int {
	total := 0
	for _, e := range j.Entities {
		total += e.Total
	}
	return total
}

func (j *JobStats) TotalMigrated() int {
	total := 0
	for _, e := range j.Entities {
		total += e.Migrated
	}
	return total
}

func (j *JobStats) TotalSkipped() int {
	total := 0
	for _, e := range j.Entities {
		total += e.Skipped
	}
	return total
}

// Throughput reports items per second over the whole run.
func (j *JobStats) Throughput() float64 {
	if j.Elapsed <= 0 {
		return 0
	}
	return float64(j.TotalMigrated()+j.TotalSkipped()) / j.Elapsed.Seconds()
}
