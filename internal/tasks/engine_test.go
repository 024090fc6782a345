package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/stores"
	tu "github.com/desertthunder/storesync/internal/testing"
	"github.com/desertthunder/storesync/internal/transform"
)

func accountsOf(n int) map[string]map[string]any {
	records := make(map[string]map[string]any, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("u%03d", i)
		records[key] = map[string]any{
			"email":       fmt.Sprintf("user%03d@example.com", i),
			"displayName": fmt.Sprintf("User %d", i),
		}
	}
	return records
}

func TestMigrationEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("migrates and skips within one entity type", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {
				"u1": {"email": "mia@example.com", "displayName": "Mia"},
				"u2": {"email": "ray@example.com"},
				"u3": {"displayName": "No Email"},
			},
		}}
		target := tu.NewFakeTarget()

		engine := NewMigrationEngine(EngineOpts{Source: source, Target: target, Logger: quietLogger()})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if len(stats.Entities) != 1 {
			t.Fatalf("expected 1 entity stat, got %d", len(stats.Entities))
		}
		e := stats.Entities[0]
		if e.EntityType != "users" {
			t.Errorf("expected users, got %s", e.EntityType)
		}
		if e.Total != 3 || e.Migrated != 2 || e.Skipped != 1 {
			t.Errorf("expected 3/2/1, got %d/%d/%d", e.Total, e.Migrated, e.Skipped)
		}
		if e.Migrated+e.Skipped != e.Total {
			t.Errorf("expected migrated+skipped == total, got %d+%d != %d", e.Migrated, e.Skipped, e.Total)
		}
		if len(e.Failures) != 1 || e.Failures[0].Item != "u3" {
			t.Errorf("expected u3 recorded as failure, got %v", e.Failures)
		}

		count, _ := target.Count(ctx, "users")
		if count != 2 {
			t.Errorf("expected 2 rows written, got %d", count)
		}
	})

	t.Run("processes every registered type by default", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{}}
		target := tu.NewFakeTarget()

		engine := NewMigrationEngine(EngineOpts{Source: source, Target: target, Logger: quietLogger()})
		stats, err := engine.Run(ctx, Job{}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		order := transform.EntityTypes()
		if len(stats.Entities) != len(order) {
			t.Fatalf("expected %d entity stats, got %d", len(order), len(stats.Entities))
		}
		for i, e := range stats.Entities {
			if e.EntityType != order[i] {
				t.Errorf("expected %s at position %d, got %s", order[i], i, e.EntityType)
			}
		}
	})

	t.Run("unknown entity type fails before extraction", func(t *testing.T) {
		engine := NewMigrationEngine(EngineOpts{Source: &tu.FakeSource{}, Target: tu.NewFakeTarget(), Logger: quietLogger()})

		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"ghosts"}}, nil)
		if !errors.Is(err, shared.ErrUnknownEntityType) {
			t.Errorf("expected ErrUnknownEntityType, got %v", err)
		}
		if stats != nil {
			t.Error("expected no stats for a refused run")
		}
	})

	t.Run("dry run reaches no store", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": accountsOf(5),
		}}
		target := tu.NewFakeTarget()
		targetBlobs := tu.NewFakeTargetBlobs()

		engine := NewMigrationEngine(EngineOpts{
			Source: source, Target: target,
			SourceBlobs: &tu.FakeSourceBlobs{}, TargetBlobs: targetBlobs,
			Logger: quietLogger(),
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}, DryRun: true}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if !stats.DryRun {
			t.Error("expected stats to record dry-run")
		}
		if stats.Entities[0].Migrated != 5 {
			t.Errorf("expected 5 validated, got %d", stats.Entities[0].Migrated)
		}
		if target.Upserts != 0 {
			t.Errorf("expected no upserts, got %d", target.Upserts)
		}
		if targetBlobs.UploadCount() != 0 {
			t.Errorf("expected no uploads, got %d", targetBlobs.UploadCount())
		}
	})

	t.Run("quick caps the sample", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": accountsOf(137),
		}}
		target := tu.NewFakeTarget()

		engine := NewMigrationEngine(EngineOpts{Source: source, Target: target, Logger: quietLogger()})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}, Quick: true}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if stats.Entities[0].Total != 10 {
			t.Errorf("expected sample of 10, got %d", stats.Entities[0].Total)
		}
		count, _ := target.Count(ctx, "users")
		if count != 10 {
			t.Errorf("expected 10 rows, got %d", count)
		}
	})

	t.Run("quick honors a custom sample size", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": accountsOf(50),
		}}
		engine := NewMigrationEngine(EngineOpts{Source: source, Target: tu.NewFakeTarget(), Logger: quietLogger()})

		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}, Quick: true, SampleSize: 25}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if stats.Entities[0].Total != 25 {
			t.Errorf("expected sample of 25, got %d", stats.Entities[0].Total)
		}
	})

	t.Run("reruns converge", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": accountsOf(8),
		}}
		target := tu.NewFakeTarget()
		engine := NewMigrationEngine(EngineOpts{Source: source, Target: target, Logger: quietLogger()})

		for i := 0; i < 2; i++ {
			if _, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil); err != nil {
				t.Fatalf("run %d failed: %v", i, err)
			}
		}

		count, _ := target.Count(ctx, "users")
		if count != 8 {
			t.Errorf("expected rerun to converge to 8 rows, got %d", count)
		}
	})

	t.Run("extraction failure degrades the entity type only", func(t *testing.T) {
		calls := 0
		source := &flakySource{
			failFor: "accounts",
			inner: &tu.FakeSource{Collections: map[string]map[string]map[string]any{
				"listings": {"l1": {"id": "l1", "title": "Chair"}},
			}},
			calls: &calls,
		}
		target := tu.NewFakeTarget()
		engine := NewMigrationEngine(EngineOpts{Source: source, Target: target, Logger: quietLogger()})

		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users", "listings"}}, nil)
		if err != nil {
			t.Fatalf("expected run to complete, got %v", err)
		}

		if len(stats.Entities) != 2 {
			t.Fatalf("expected stats for both types, got %d", len(stats.Entities))
		}
		users := stats.Entities[0]
		if users.Migrated != 0 || len(users.Failures) != 1 {
			t.Errorf("expected degraded users entity, got %+v", users)
		}
		listings := stats.Entities[1]
		if listings.Migrated != 1 {
			t.Errorf("expected listings to still migrate, got %+v", listings)
		}
	})

	t.Run("rewrites blob references", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "image-bytes")
		}))
		defer server.Close()

		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {
				"u1": {"email": "mia@example.com", "photoURL": "avatars/u1.jpg"},
				"u2": {"email": "ray@example.com", "photoURL": "avatars/gone.jpg"},
			},
		}}
		sourceBlobs := &tu.FakeSourceBlobs{Locators: map[string]string{
			"avatars/u1.jpg": server.URL + "/avatars/u1.jpg",
		}}
		target := tu.NewFakeTarget()
		targetBlobs := tu.NewFakeTargetBlobs()

		engine := NewMigrationEngine(EngineOpts{
			Source: source, SourceBlobs: sourceBlobs,
			Target: target, TargetBlobs: targetBlobs,
			Logger: quietLogger(),
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		migrated := target.Row("users", "mia@example.com")
		if migrated["photo_url"] != "https://cdn.test/avatars/u1.jpg" {
			t.Errorf("expected rewritten blob reference, got %v", migrated["photo_url"])
		}

		// A blob failure keeps the original reference and never fails the item.
		kept := target.Row("users", "ray@example.com")
		if kept["photo_url"] != "avatars/gone.jpg" {
			t.Errorf("expected original reference kept, got %v", kept["photo_url"])
		}
		if stats.Entities[0].Migrated != 2 {
			t.Errorf("expected both items migrated, got %d", stats.Entities[0].Migrated)
		}
		if stats.BlobsMigrated != 1 || stats.BlobsFailed != 1 {
			t.Errorf("expected 1 migrated and 1 failed blob, got %d/%d", stats.BlobsMigrated, stats.BlobsFailed)
		}
	})

	t.Run("storage only migrates blobs without records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "image-bytes")
		}))
		defer server.Close()

		sourceBlobs := &tu.FakeSourceBlobs{Locators: map[string]string{
			"avatars/u1.jpg":        server.URL + "/a",
			"avatars/u2.jpg":        server.URL + "/b",
			"listing-images/l1.jpg": server.URL + "/c",
			"catalog-icons/c1.png":  server.URL + "/d",
		}}
		target := tu.NewFakeTarget()
		targetBlobs := tu.NewFakeTargetBlobs()

		engine := NewMigrationEngine(EngineOpts{
			SourceBlobs: sourceBlobs, TargetBlobs: targetBlobs,
			Logger: quietLogger(),
		})
		stats, err := engine.Run(ctx, Job{StorageOnly: true}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if targetBlobs.UploadCount() != 4 {
			t.Errorf("expected 4 uploads, got %d", targetBlobs.UploadCount())
		}
		if target.Upserts != 0 {
			t.Errorf("expected no record writes, got %d", target.Upserts)
		}
		if stats.BlobsMigrated != 4 {
			t.Errorf("expected 4 blobs migrated, got %d", stats.BlobsMigrated)
		}

		tags := map[string]bool{}
		for _, e := range stats.Entities {
			tags[e.EntityType] = true
		}
		for _, expected := range []string{"blobs/avatars", "blobs/listing-images", "blobs/catalog-icons"} {
			if !tags[expected] {
				t.Errorf("expected stats for %s, got %v", expected, tags)
			}
		}
	})

	t.Run("retries connectivity failures", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {"u1": {"email": "mia@example.com"}},
		}}
		target := tu.NewFakeTarget()
		var attempts int32
		target.UpsertHook = func(table string, row stores.Row) error {
			if atomic.AddInt32(&attempts, 1) == 1 {
				return &stores.ConnectivityError{Store: "relational", Op: "exec", Err: errors.New("locked")}
			}
			return nil
		}

		engine := NewMigrationEngine(EngineOpts{
			Source: source, Target: target, Logger: quietLogger(), MaxRetries: 2,
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if stats.Entities[0].Migrated != 1 {
			t.Errorf("expected item migrated after retry, got %+v", stats.Entities[0])
		}
		if attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("exhausted retries count as skipped", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {"u1": {"email": "mia@example.com"}},
		}}
		target := tu.NewFakeTarget()
		var attempts int32
		target.UpsertHook = func(table string, row stores.Row) error {
			atomic.AddInt32(&attempts, 1)
			return &stores.ConnectivityError{Store: "relational", Op: "exec", Err: errors.New("locked")}
		}

		engine := NewMigrationEngine(EngineOpts{
			Source: source, Target: target, Logger: quietLogger(), MaxRetries: 1,
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("expected run to complete, got %v", err)
		}

		if stats.Entities[0].Skipped != 1 {
			t.Errorf("expected item skipped, got %+v", stats.Entities[0])
		}
		if attempts != 2 {
			t.Errorf("expected original attempt plus 1 retry, got %d", attempts)
		}
	})

	t.Run("slow writes hit the item timeout", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {"u1": {"email": "mia@example.com"}},
		}}
		target := &stalledTarget{delay: 300 * time.Millisecond}

		engine := NewMigrationEngine(EngineOpts{
			Source: source, Target: target, Logger: quietLogger(),
			ItemTimeout: 50 * time.Millisecond,
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("expected run to complete, got %v", err)
		}

		entity := stats.Entities[0]
		if entity.Migrated != 0 || entity.Skipped != 1 {
			t.Errorf("expected the stalled item skipped, got %+v", entity)
		}
		if len(entity.Failures) != 1 || !strings.Contains(entity.Failures[0].Error, context.DeadlineExceeded.Error()) {
			t.Errorf("expected deadline exceeded in failures, got %+v", entity.Failures)
		}
	})

	t.Run("skip reasons are not retried", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": {"u1": {"displayName": "No Email"}},
		}}
		target := tu.NewFakeTarget()

		engine := NewMigrationEngine(EngineOpts{
			Source: source, Target: target, Logger: quietLogger(), MaxRetries: 3,
		})
		stats, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if stats.Entities[0].Skipped != 1 {
			t.Errorf("expected record skipped, got %+v", stats.Entities[0])
		}
	})

	t.Run("emits completion update", func(t *testing.T) {
		source := &tu.FakeSource{Collections: map[string]map[string]map[string]any{
			"accounts": accountsOf(3),
		}}
		progress := make(chan ProgressUpdate, 100)

		engine := NewMigrationEngine(EngineOpts{Source: source, Target: tu.NewFakeTarget(), Logger: quietLogger()})
		if _, err := engine.Run(ctx, Job{EntityTypes: []string{"users"}}, progress); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		close(progress)

		var last ProgressUpdate
		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
			last = u
		}

		if last.Phase != Completed {
			t.Errorf("expected final update to be completed, got %s", last.Phase)
		}
		sawExtracting := false
		for _, p := range phases {
			if p == Extracting {
				sawExtracting = true
			}
		}
		if !sawExtracting {
			t.Error("expected an extracting update")
		}
	})
}

// stalledTarget blocks every upsert until either the delay elapses or the
// write's context expires. The item timeout travels as a context deadline, so
// only a target that honors ctx, as real stores do, can be cut off by it.
type stalledTarget struct {
	delay time.Duration
}

func (s *stalledTarget) Upsert(ctx context.Context, table, conflictColumn string, row stores.Row) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

func (s *stalledTarget) Count(ctx context.Context, table string) (int, error) {
	return 0, nil
}

// flakySource fails exports for one collection and delegates the rest.
type flakySource struct {
	failFor string
	inner   *tu.FakeSource
	calls   *int
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) ExportCollection(ctx context.Context, collection string) (map[string]map[string]any, error) {
	*f.calls++
	if collection == f.failFor {
		return nil, &stores.ConnectivityError{Store: "flaky", Op: "export", Err: errors.New("unreachable")}
	}
	return f.inner.ExportCollection(ctx, collection)
}
