package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchItem is one unit of work for the scheduler: a source key plus its raw
// payload. Storage-only passes reuse the type with a blob path as the key.
type BatchItem struct {
	Key     string
	Payload map[string]any
}

// Processor handles one item. A non-nil error marks the item skipped; it never
// stops siblings.
type Processor func(ctx context.Context, item BatchItem) error

// BatchOpts configures one scheduler pass.
type BatchOpts struct {
	EntityType  string
	Concurrency int

	// JobStarted and PriorProcessed let throughput reporting span entity
	// types: rate is measured since job start, not batch start.
	JobStarted     time.Time
	PriorProcessed int
}

// BatchResult folds every item's outcome into counters plus the failure list.
type BatchResult struct {
	Migrated int
	Skipped  int
	Failures []ItemFailure
}

// RunBatch processes every item exactly once in waves of at most
// opts.Concurrency, collecting each wave's outcomes independently so one
// item's failure never prevents a sibling (same wave or later) from being
// attempted. Progress is emitted whenever the processed count crosses a
// boundary of max(50, N/10).
//
// Items are not cancellable once their goroutine starts; ctx is consulted
// between waves only.
func RunBatch(ctx context.Context, items []BatchItem, opts BatchOpts, proc Processor, progress chan<- ProgressUpdate) BatchResult {
	result := BatchResult{}
	total := len(items)
	if total == 0 {
		return result
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 25
	}
	if opts.JobStarted.IsZero() {
		opts.JobStarted = time.Now()
	}

	interval := total / 10
	if interval < 50 {
		interval = 50
	}

	processed := 0
	for start := 0; start < total; start += concurrency {
		end := start + concurrency
		if end > total {
			end = total
		}
		wave := items[start:end]

		outcomes := make([]error, len(wave))
		var wg sync.WaitGroup
		for i, item := range wave {
			wg.Add(1)
			go func(i int, item BatchItem) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						outcomes[i] = fmt.Errorf("panic processing %q: %v", item.Key, r)
					}
				}()
				outcomes[i] = proc(ctx, item)
			}(i, item)
		}
		wg.Wait()

		for i, err := range outcomes {
			if err != nil {
				result.Skipped++
				result.Failures = append(result.Failures, ItemFailure{Item: wave[i].Key, Error: err.Error()})
			} else {
				result.Migrated++
			}
		}

		before := processed
		processed += len(wave)
		if before/interval != processed/interval || processed == total {
			elapsed := time.Since(opts.JobStarted)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(opts.PriorProcessed+processed) / elapsed.Seconds()
			}
			var eta time.Duration
			if remaining := total - processed; remaining > 0 && rate > 0 {
				eta = time.Duration(float64(remaining)/rate) * time.Second
			}
			sendProgress(progress, waveUpdate(opts.EntityType, processed, total, rate, eta))
		}
	}

	return result
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks waves.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}
