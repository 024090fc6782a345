// package transform maps raw hierarchical source records onto normalized
// target rows, one strategy per entity type.
//
// Every strategy shares the same contract: map known source fields to their
// columns, bucket everything else into the metadata container verbatim, derive
// a stable natural key, and skip (never default) records that lack one.
package transform

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/storesync/internal/shared"
	"github.com/desertthunder/storesync/internal/stores"
)

// ConflictColumn is the declared upsert conflict column on every target table.
const ConflictColumn = "natural_key"

// TargetRecord is one transformed row ready for the upsert writer.
type TargetRecord struct {
	Table        string     // destination table
	NaturalKey   string     // deterministic dedup key, never empty
	Columns      stores.Row // normalized columns including natural_key and metadata
	BlobColumns  []string   // columns whose values are source blob paths
	fallbackDrop []string   // columns declared safe to drop on schema fallback
}

// Fallback returns a reduced projection of the record with the entity type's
// declared droppable columns removed. This is what the writer retries with
// when the destination schema lags the emitted shape.
func (r *TargetRecord) Fallback() stores.Row {
	reduced := make(stores.Row, len(r.Columns))
	for col, val := range r.Columns {
		reduced[col] = val
	}
	for _, col := range r.fallbackDrop {
		delete(reduced, col)
	}
	return reduced
}

// Strategy binds one entity type to its extract/transform/write triple: the
// source collection to extract, the mapping function, and the destination
// table. Adding an entity type means registering a new Strategy, not editing a
// dispatch chain.
type Strategy struct {
	// Collection is the source collection name to extract.
	Collection string

	// Table is the destination table to write.
	Table string

	// BlobPrefix is the source blob prefix owned by this entity type, empty
	// when the type carries no binary objects.
	BlobPrefix string

	// Transform maps one raw source record onto a TargetRecord. A
	// [shared.ErrMissingNaturalKey] return means skip, never abort.
	Transform func(key string, payload map[string]any) (*TargetRecord, error)
}

// registry holds one strategy per entity type tag.
var registry = map[string]Strategy{
	"catalog_entries":  catalogEntryStrategy(),
	"plans":            planStrategy(),
	"users":            userStrategy(),
	"providers":        providerStrategy(),
	"listings":         listingStrategy(),
	"service_requests": serviceRequestStrategy(),
	"conversations":    conversationStrategy(),
	"notifications":    notificationStrategy(),
}

// EntityOrder is the fixed processing order. Referenced types come before the
// types that reference them (catalog before listings, users before
// conversations), so soft references resolve within a single pass.
var EntityOrder = []string{
	"catalog_entries",
	"plans",
	"users",
	"providers",
	"listings",
	"service_requests",
	"conversations",
	"notifications",
}

// Lookup returns the strategy registered for an entity type tag.
func Lookup(entityType string) (Strategy, error) {
	s, ok := registry[entityType]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", shared.ErrUnknownEntityType, entityType)
	}
	return s, nil
}

// EntityTypes returns all registered entity type tags in processing order.
func EntityTypes() []string {
	return append([]string(nil), EntityOrder...)
}

// strippedFields are store-internal markers written back by earlier migration
// passes. They never reach the target in any form.
var strippedFields = map[string]bool{
	"sqlId":    true,
	"syncedAt": true,
}

// fieldMapping maps one known source field onto a target column.
type fieldMapping struct {
	column  string
	convert func(any) any
}

// mapPayload splits a raw payload into normalized columns and leftover fields.
// Store-internal fields are stripped; unknown fields stay verbatim in the
// leftover map so no source data is silently dropped.
func mapPayload(payload map[string]any, mappings map[string]fieldMapping) (stores.Row, map[string]any) {
	columns := make(stores.Row)
	leftover := make(map[string]any)

	for field, value := range payload {
		if strippedFields[field] {
			continue
		}
		m, ok := mappings[field]
		if !ok {
			leftover[field] = value
			continue
		}
		if m.convert != nil {
			value = m.convert(value)
		}
		columns[m.column] = value
	}

	return columns, leftover
}

// finalize stamps the shared columns every table carries and marshals the
// metadata container. Defaults follow the skip policy's counterpart: optional
// booleans default false, counters default 0, timestamps default to now.
func finalize(table, sourceKey, naturalKey string, columns stores.Row, leftover map[string]any, blobColumns, fallbackDrop []string) (*TargetRecord, error) {
	columns[ConflictColumn] = naturalKey
	columns["source_key"] = sourceKey
	if _, ok := columns["id"]; !ok {
		columns["id"] = shared.GenerateID()
	}

	now := time.Now().UTC()
	if v, ok := columns["created_at"]; !ok || v == nil {
		columns["created_at"] = now
	}
	if v, ok := columns["updated_at"]; !ok || v == nil {
		columns["updated_at"] = now
	}

	meta, err := json.Marshal(leftover)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata for %q: %w", sourceKey, err)
	}
	columns["metadata"] = string(meta)

	sort.Strings(blobColumns)
	return &TargetRecord{
		Table:        table,
		NaturalKey:   naturalKey,
		Columns:      columns,
		BlobColumns:  blobColumns,
		fallbackDrop: fallbackDrop,
	}, nil
}

// naturalKeyFrom prefers an explicit id field in the payload and falls back to
// the source collection key.
func naturalKeyFrom(payload map[string]any, key string) string {
	if id := asString(payload["id"]); id != "" {
		return id
	}
	return shared.NormalizeSourceKey(key)
}

// skipErr builds the per-record skip error carrying the source key for logs.
func skipErr(table, key, reason string) error {
	return fmt.Errorf("%w: %s record %q %s", shared.ErrMissingNaturalKey, table, key, reason)
}
