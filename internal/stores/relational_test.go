package stores

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/storesync/internal/shared"
)

// newTestStore opens a single-connection in-memory database with the full
// schema applied.
func newTestStore(t *testing.T) (*RelationalStore, *sql.DB) {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	t.Cleanup(func() { db.Close() })

	if err := shared.ApplySchema(db); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return NewRelationalStore(db), db
}

func userRow(id, naturalKey string) Row {
	return Row{
		"id":           id,
		"natural_key":  naturalKey,
		"source_key":   id,
		"email":        naturalKey,
		"display_name": "Mia",
		"rating":       4.5,
		"review_count": int64(3),
		"metadata":     "{}",
	}
}

func TestRelationalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert inserts and counts", func(t *testing.T) {
		store, _ := newTestStore(t)

		if err := store.Upsert(ctx, "users", "natural_key", userRow("u1", "mia@example.com")); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		count, err := store.Count(ctx, "users")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 row, got %d", count)
		}
	})

	t.Run("Upsert converges on natural key", func(t *testing.T) {
		store, _ := newTestStore(t)

		first := userRow("u1", "mia@example.com")
		if err := store.Upsert(ctx, "users", "natural_key", first); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		second := userRow("u1-again", "mia@example.com")
		second["display_name"] = "Mia Updated"
		if err := store.Upsert(ctx, "users", "natural_key", second); err != nil {
			t.Fatalf("failed to re-upsert: %v", err)
		}

		count, err := store.Count(ctx, "users")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected re-upsert to converge to 1 row, got %d", count)
		}

		row, err := store.GetByNaturalKey(ctx, "users", "mia@example.com")
		if err != nil {
			t.Fatalf("failed to fetch row: %v", err)
		}
		if name, _ := row["display_name"].(string); name != "Mia Updated" {
			t.Errorf("expected updated display_name, got %v", row["display_name"])
		}
		// The surrogate id is never updated on conflict.
		if id, _ := row["id"].(string); id != "u1" {
			t.Errorf("expected original id to survive re-upsert, got %v", row["id"])
		}
	})

	t.Run("Upsert rejects empty row", func(t *testing.T) {
		store, _ := newTestStore(t)

		if err := store.Upsert(ctx, "users", "natural_key", Row{}); err == nil {
			t.Error("expected error for empty row")
		}
	})

	t.Run("Upsert rejects row without conflict column", func(t *testing.T) {
		store, _ := newTestStore(t)

		if err := store.Upsert(ctx, "users", "natural_key", Row{"id": "u1"}); err == nil {
			t.Error("expected error for row missing conflict column")
		}
	})

	t.Run("GetByNaturalKey missing row", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.GetByNaturalKey(ctx, "users", "nobody@example.com")
		if !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("expected sql.ErrNoRows, got %v", err)
		}
	})

	t.Run("classifies missing columns as SchemaError", func(t *testing.T) {
		store, db := newTestStore(t)

		// Roll the destination back to the pre-engagement shape.
		if err := shared.RollbackSchema(db); err != nil {
			t.Fatalf("failed to rollback: %v", err)
		}

		err := store.Upsert(ctx, "users", "natural_key", userRow("u1", "mia@example.com"))

		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected *SchemaError, got %v", err)
		}
		if schemaErr.TableMissing {
			t.Error("expected table to exist")
		}
		missing := map[string]bool{}
		for _, col := range schemaErr.Columns {
			missing[col] = true
		}
		if !missing["rating"] || !missing["review_count"] {
			t.Errorf("expected rating and review_count reported missing, got %v", schemaErr.Columns)
		}
	})

	t.Run("classifies missing table as SchemaError", func(t *testing.T) {
		store, _ := newTestStore(t)

		err := store.Upsert(ctx, "ghost", "natural_key", Row{"natural_key": "x"})

		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected *SchemaError, got %v", err)
		}
		if !schemaErr.TableMissing {
			t.Errorf("expected TableMissing, got %v", schemaErr)
		}
	})

	t.Run("classifies primary key clash as ConstraintError", func(t *testing.T) {
		store, _ := newTestStore(t)

		if err := store.Upsert(ctx, "users", "natural_key", userRow("u1", "mia@example.com")); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		// Same surrogate id under a different natural key: the conflict target
		// doesn't fire, the primary key does.
		err := store.Upsert(ctx, "users", "natural_key", userRow("u1", "other@example.com"))

		var constraintErr *ConstraintError
		if !errors.As(err, &constraintErr) {
			t.Fatalf("expected *ConstraintError, got %v", err)
		}
		if constraintErr.Table != "users" {
			t.Errorf("expected table users, got %s", constraintErr.Table)
		}
	})

	t.Run("Count missing table", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.Count(ctx, "ghost")

		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Errorf("expected *SchemaError for missing table, got %v", err)
		}
	})
}
