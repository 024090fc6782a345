package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/stores"
	"github.com/desertthunder/storesync/internal/transform"
)

// UpsertWriter persists transformed records idempotently, retrying exactly
// once with the record's declared fallback projection when the destination
// schema lags the emitted shape.
//
// The writer also tracks natural keys written during the job: a second record
// normalizing to an already-written key is refused rather than silently
// clobbering the first.
type UpsertWriter struct {
	target stores.TargetStore
	logger *log.Logger
	dryRun bool

	mu   sync.Mutex
	seen map[string]map[string]string // table → natural key → source key
}

// NewUpsertWriter creates a writer for one job. In dry-run mode intended
// writes are logged and validated but nothing reaches the target.
func NewUpsertWriter(target stores.TargetStore, logger *log.Logger, dryRun bool) *UpsertWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &UpsertWriter{
		target: target,
		logger: logger,
		dryRun: dryRun,
		seen:   make(map[string]map[string]string),
	}
}

// Write upserts one record keyed by its natural key.
//
// On a [*stores.SchemaError] the write is retried once with the reduced
// projection; the record is then counted as migrated with the newer fields
// absent for this run. Any other failure, or a failing fallback, surfaces to
// the caller.
func (w *UpsertWriter) Write(ctx context.Context, rec *transform.TargetRecord) error {
	if rec.NaturalKey == "" {
		return fmt.Errorf("%w: refusing write to %q", shared.ErrMissingNaturalKey, rec.Table)
	}

	if prior, dup := w.claim(rec); dup {
		return fmt.Errorf("%w: %q in table %q already written by source record %q",
			shared.ErrDuplicateNaturalKey, rec.NaturalKey, rec.Table, prior)
	}

	if w.dryRun {
		w.logger.Info("dry-run: would upsert", "table", rec.Table, "natural_key", rec.NaturalKey, "columns", len(rec.Columns))
		return nil
	}

	err := w.target.Upsert(ctx, rec.Table, transform.ConflictColumn, rec.Columns)
	if err == nil {
		return nil
	}

	var schemaErr *stores.SchemaError
	if !errors.As(err, &schemaErr) {
		w.release(rec)
		return err
	}

	fallback := rec.Fallback()
	w.logger.Warn("schema drift, retrying with reduced projection",
		"table", rec.Table, "natural_key", rec.NaturalKey,
		"missing", schemaErr.Columns, "dropping", len(rec.Columns)-len(fallback))

	if err := w.target.Upsert(ctx, rec.Table, transform.ConflictColumn, fallback); err != nil {
		w.release(rec)
		return fmt.Errorf("fallback write failed: %w", err)
	}
	return nil
}

// claim registers the record's natural key, reporting the prior source key
// when the key was already written this job.
func (w *UpsertWriter) claim(rec *transform.TargetRecord) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys, ok := w.seen[rec.Table]
	if !ok {
		keys = make(map[string]string)
		w.seen[rec.Table] = keys
	}
	if prior, dup := keys[rec.NaturalKey]; dup {
		return prior, true
	}
	sourceKey, _ := rec.Columns["source_key"].(string)
	keys[rec.NaturalKey] = sourceKey
	return "", false
}

// release forgets a claim after a failed write so a later record with the
// same natural key still gets its attempt.
func (w *UpsertWriter) release(rec *transform.TargetRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if keys, ok := w.seen[rec.Table]; ok {
		delete(keys, rec.NaturalKey)
	}
}
