// package stores defines the source and target store contracts for the
// migration engine, plus their concrete clients.
//
// Legacy hierarchical store (HTTP tree export), relational target (SQLite),
// object storage (HTTP bucket API)
package stores

import (
	"context"
)

// Row is one normalized record as handed to the target store: column name to
// value. Values must be database-representable (string, int64, float64, bool,
// time.Time, nil).
type Row map[string]any

// SourceStore reads whole collections out of the legacy hierarchical store.
// The engine never writes to the source.
type SourceStore interface {
	// ExportCollection returns the full tree under a named collection as a
	// map of source key to raw payload. The source enforces no schema, so
	// payload values are untyped.
	ExportCollection(ctx context.Context, collection string) (map[string]map[string]any, error)

	// Name identifies the store in logs and progress output.
	Name() string
}

// SourceBlobStore exposes the binary objects attached to source records.
type SourceBlobStore interface {
	// ListBlobs returns the paths of all objects under a prefix.
	ListBlobs(ctx context.Context, prefix string) ([]string, error)

	// SignedURL resolves a temporary, retrievable locator for one object.
	SignedURL(ctx context.Context, path string) (string, error)
}

// TargetStore persists normalized rows idempotently.
type TargetStore interface {
	// Upsert inserts row into table, updating the existing row when one with
	// the same conflictColumn value is already present. Shape mismatches are
	// reported as [*SchemaError] so callers can dispatch fallback logic on
	// error kind rather than message text.
	Upsert(ctx context.Context, table, conflictColumn string, row Row) error

	// Count reports the number of rows in a table.
	Count(ctx context.Context, table string) (int, error)
}

// TargetBlobStore uploads binary objects and resolves their public URLs.
type TargetBlobStore interface {
	// Upload writes data to path, overwriting any existing object.
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// PublicURL returns the stable publicly resolvable URL for an uploaded
	// object. Purely computed; does not verify the object exists.
	PublicURL(path string) string
}
