package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/stores"
	"github.com/desertthunder/storesync/internal/transform"
)

// Job describes one migration invocation: which entity types to process and
// under which run mode.
type Job struct {
	EntityTypes    []string // empty means all registered types in order
	DryRun         bool
	Quick          bool
	StorageOnly    bool
	SkipStorage    bool
	IncludeStorage bool // force blob migration even under dry-run
	Concurrency    int
	SampleSize     int // quick-mode cap, defaults to 10
}

// EngineOpts contains the dependencies and tuning for a MigrationEngine.
type EngineOpts struct {
	Source      stores.SourceStore
	SourceBlobs stores.SourceBlobStore
	Target      stores.TargetStore
	TargetBlobs stores.TargetBlobStore
	HTTPClient  *http.Client
	Logger      *log.Logger
	RateLimit   float64       // blob download rate limit
	ItemTimeout time.Duration // per-item pipeline timeout
	MaxRetries  int           // bounded retries for connectivity-class failures
}

// MigrationEngine orchestrates one full migration pass per entity type:
// extract, transform, optional blob migration, scheduled write.
//
// Once a run survives its preflight it always reaches completion: per-item
// failures accumulate in stats but never flip the job to a failed state.
type MigrationEngine struct {
	source      stores.SourceStore
	sourceBlobs stores.SourceBlobStore
	target      stores.TargetStore
	targetBlobs stores.TargetBlobStore
	httpClient  *http.Client
	logger      *log.Logger
	rateLimit   float64
	itemTimeout time.Duration
	maxRetries  int
}

// NewMigrationEngine creates an engine with the provided stores.
func NewMigrationEngine(opts EngineOpts) *MigrationEngine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &MigrationEngine{
		source:      opts.Source,
		sourceBlobs: opts.SourceBlobs,
		target:      opts.Target,
		targetBlobs: opts.TargetBlobs,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		rateLimit:   opts.RateLimit,
		itemTimeout: opts.ItemTimeout,
		maxRetries:  opts.MaxRetries,
	}
}

// Run executes one migration job and returns its stats. The returned error is
// non-nil only for pre-run failures (unknown entity type, missing stores);
// everything after that degrades per item.
func (e *MigrationEngine) Run(ctx context.Context, job Job, progress chan<- ProgressUpdate) (*JobStats, error) {
	entityTypes := job.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = transform.EntityTypes()
	}
	strategies := make([]transform.Strategy, 0, len(entityTypes))
	for _, et := range entityTypes {
		s, err := transform.Lookup(et)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	if !job.StorageOnly && e.source == nil {
		return nil, fmt.Errorf("%w: no source store", shared.ErrSourceUnavailable)
	}
	if !job.StorageOnly && !job.DryRun && e.target == nil {
		return nil, fmt.Errorf("%w: no target store", shared.ErrTargetUnavailable)
	}

	stats := &JobStats{
		RunID:     shared.GenerateID(),
		DryRun:    job.DryRun,
		StartedAt: time.Now(),
	}

	blobs := NewBlobMigrator(BlobMigratorOpts{
		Source:     e.sourceBlobs,
		Target:     e.targetBlobs,
		HTTPClient: e.httpClient,
		RateLimit:  e.rateLimit,
		Logger:     e.logger,
	})

	if job.StorageOnly {
		e.migrateStorage(ctx, job, strategies, blobs, progress, stats)
	} else {
		e.migrateRecords(ctx, job, strategies, blobs, progress, stats)
	}

	stats.BlobsMigrated = blobs.MigratedCount()
	stats.BlobsFailed = blobs.FailedCount()
	stats.Elapsed = time.Since(stats.StartedAt)
	sendProgress(progress, completedUpdate(stats))
	return stats, nil
}

// migrateRecords runs the full extract → transform → blob → write pass for
// each entity type sequentially.
func (e *MigrationEngine) migrateRecords(ctx context.Context, job Job, strategies []transform.Strategy, blobs *BlobMigrator, progress chan<- ProgressUpdate, stats *JobStats) {
	writer := NewUpsertWriter(e.target, e.logger, job.DryRun)
	blobsEnabled := e.sourceBlobs != nil && e.targetBlobs != nil &&
		!job.SkipStorage && (!job.DryRun || job.IncludeStorage)

	processed := 0
	for i, strategy := range strategies {
		entityType := entityTypeTag(job, i)
		entityStart := time.Now()
		sendProgress(progress, extractingUpdate(entityType))

		records, err := e.source.ExportCollection(ctx, strategy.Collection)
		if err != nil {
			// Completion is guaranteed past preflight: a whole-collection
			// extract failure degrades this entity type, not the job.
			e.logger.Error("extraction failed", "entity_type", entityType, "error", err)
			stats.Entities = append(stats.Entities, EntityStats{
				EntityType: entityType,
				Failures:   []ItemFailure{{Item: strategy.Collection, Error: err.Error()}},
				Elapsed:    time.Since(entityStart),
			})
			continue
		}

		items := itemsFromRecords(records)
		if job.Quick {
			cap := job.SampleSize
			if cap <= 0 {
				cap = 10
			}
			if len(items) > cap {
				items = items[:cap]
			}
		}
		sendProgress(progress, extractedUpdate(entityType, len(items)))

		proc := func(ctx context.Context, item BatchItem) error {
			return e.withRetry(ctx, func(itemCtx context.Context) error {
				return e.processItem(itemCtx, strategy, writer, blobs, blobsEnabled, item)
			})
		}

		res := RunBatch(ctx, items, BatchOpts{
			EntityType:     entityType,
			Concurrency:    job.Concurrency,
			JobStarted:     stats.StartedAt,
			PriorProcessed: processed,
		}, proc, progress)
		processed += len(items)

		entityStats := EntityStats{
			EntityType: entityType,
			Total:      len(items),
			Migrated:   res.Migrated,
			Skipped:    res.Skipped,
			Failures:   res.Failures,
			Elapsed:    time.Since(entityStart),
		}
		stats.Entities = append(stats.Entities, entityStats)
		sendProgress(progress, entityCompletedUpdate(entityStats))
	}
}

// migrateStorage runs only the blob phase across every known blob prefix.
func (e *MigrationEngine) migrateStorage(ctx context.Context, job Job, strategies []transform.Strategy, blobs *BlobMigrator, progress chan<- ProgressUpdate, stats *JobStats) {
	if e.sourceBlobs == nil || e.targetBlobs == nil {
		e.logger.Error("storage-only run without blob stores")
		return
	}

	processed := 0
	for _, strategy := range strategies {
		if strategy.BlobPrefix == "" {
			continue
		}
		entityStart := time.Now()

		paths, err := e.sourceBlobs.ListBlobs(ctx, strategy.BlobPrefix)
		if err != nil {
			e.logger.Error("blob listing failed", "prefix", strategy.BlobPrefix, "error", err)
			stats.Entities = append(stats.Entities, EntityStats{
				EntityType: "blobs/" + strategy.BlobPrefix,
				Failures:   []ItemFailure{{Item: strategy.BlobPrefix, Error: err.Error()}},
				Elapsed:    time.Since(entityStart),
			})
			continue
		}
		sort.Strings(paths)
		sendProgress(progress, blobPrefixUpdate(strategy.BlobPrefix, len(paths)))

		items := make([]BatchItem, len(paths))
		for i, p := range paths {
			items[i] = BatchItem{Key: p}
		}

		res := RunBatch(ctx, items, BatchOpts{
			EntityType:     "blobs/" + strategy.BlobPrefix,
			Concurrency:    job.Concurrency,
			JobStarted:     stats.StartedAt,
			PriorProcessed: processed,
		}, func(ctx context.Context, item BatchItem) error {
			if url := blobs.Migrate(ctx, item.Key); url == "" {
				return fmt.Errorf("%w: %s", shared.ErrBlobTransfer, item.Key)
			}
			return nil
		}, progress)
		processed += len(items)

		entityStats := EntityStats{
			EntityType: "blobs/" + strategy.BlobPrefix,
			Total:      len(items),
			Migrated:   res.Migrated,
			Skipped:    res.Skipped,
			Failures:   res.Failures,
			Elapsed:    time.Since(entityStart),
		}
		stats.Entities = append(stats.Entities, entityStats)
		sendProgress(progress, entityCompletedUpdate(entityStats))
	}
}

// processItem runs one item's pipeline: transform, migrate referenced blobs,
// write. A blob failure keeps the original reference and never fails the item.
func (e *MigrationEngine) processItem(ctx context.Context, strategy transform.Strategy, writer *UpsertWriter, blobs *BlobMigrator, blobsEnabled bool, item BatchItem) error {
	rec, err := strategy.Transform(item.Key, item.Payload)
	if err != nil {
		e.logger.Warn("skipping record", "collection", strategy.Collection, "key", item.Key, "reason", err)
		return err
	}

	if blobsEnabled {
		for _, col := range rec.BlobColumns {
			path, _ := rec.Columns[col].(string)
			if path == "" {
				continue
			}
			if url := blobs.Migrate(ctx, path); url != "" {
				rec.Columns[col] = url
			}
		}
	}

	return writer.Write(ctx, rec)
}

// withRetry wraps one item's pipeline in a timeout plus bounded
// retry-with-backoff for connectivity-class failures. Schema fallback is the
// writer's concern and is never retried here.
func (e *MigrationEngine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; ; attempt++ {
		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		err := fn(itemCtx)
		cancel()
		if err == nil {
			return nil
		}

		var connErr *stores.ConnectivityError
		retryable := errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded)
		if !retryable || attempt >= e.maxRetries || ctx.Err() != nil {
			return err
		}

		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		time.Sleep(backoff + jitter)
		backoff *= 2
	}
}

// itemsFromRecords flattens an exported collection into sorted batch items so
// runs are deterministic and quick-mode samples are stable.
func itemsFromRecords(records map[string]map[string]any) []BatchItem {
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	items := make([]BatchItem, len(keys))
	for i, key := range keys {
		items[i] = BatchItem{Key: key, Payload: records[key]}
	}
	return items
}

func entityTypeTag(job Job, i int) string {
	if len(job.EntityTypes) > 0 {
		return job.EntityTypes[i]
	}
	return transform.EntityOrder[i]
}
