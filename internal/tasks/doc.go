// Package tasks orchestrates one-shot dataset migrations from the legacy
// hierarchical store into the normalized target, with real-time progress
// reporting.
//
// # Core Pieces
//
//  1. [RunBatch] : wave-based scheduler
//     - Processes every item exactly once with bounded concurrency
//     - Collects each wave's outcomes independently, so one item's failure never blocks its siblings
//     - Emits throughput and ETA at max(50, N/10) boundaries
//
//  2. [BlobMigrator] : per-job binary object copier
//     - Path→URL cache constructed per job, never shared across jobs
//     - At most one download+upload per distinct source path per job
//     - Returns "" on failure; callers keep the original reference
//
//  3. [UpsertWriter] : idempotent persistence with schema fallback
//     - Upserts keyed by natural key, so re-runs converge
//     - Retries exactly once with the declared reduced projection on [stores.SchemaError]
//     - Flags duplicate natural keys within a run instead of clobbering
//
//  4. [MigrationEngine] : the run controller
//     - Sequential entity-type passes in dependency order
//     - Modes: normal, dry-run, quick sampling, storage-only
//     - Per-item timeout plus bounded connectivity retry
//     - Per-item failures accumulate in [JobStats] while the job itself always completes
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates: sends use
// select with default, so a slow or absent consumer never stalls a wave.
package tasks
