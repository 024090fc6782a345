// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/storesync/internal/stores"
)

// FakeSource is an in-memory [stores.SourceStore] test double.
type FakeSource struct {
	Collections map[string]map[string]map[string]any
	ExportErr   error
}

func (f *FakeSource) Name() string { return "fake" }

func (f *FakeSource) ExportCollection(ctx context.Context, collection string) (map[string]map[string]any, error) {
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}
	records, ok := f.Collections[collection]
	if !ok {
		return map[string]map[string]any{}, nil
	}
	return records, nil
}

// FakeSourceBlobs is an in-memory [stores.SourceBlobStore] double mapping
// paths to locator URLs (typically httptest server URLs).
type FakeSourceBlobs struct {
	Locators map[string]string
	ListErr  error
	URLErr   error
}

func (f *FakeSourceBlobs) ListBlobs(ctx context.Context, prefix string) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var paths []string
	for path := range f.Locators {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (f *FakeSourceBlobs) SignedURL(ctx context.Context, path string) (string, error) {
	if f.URLErr != nil {
		return "", f.URLErr
	}
	locator, ok := f.Locators[path]
	if !ok {
		return "", errors.New("no such blob")
	}
	return locator, nil
}

// FakeTarget is an in-memory [stores.TargetStore] double recording upserts by
// conflict-column value. UpsertHook, when set, runs before each write and may
// return a scripted error (e.g. a [*stores.SchemaError]).
type FakeTarget struct {
	mu         sync.Mutex
	Tables     map[string]map[string]stores.Row
	UpsertHook func(table string, row stores.Row) error
	Upserts    int
}

func NewFakeTarget() *FakeTarget {
	return &FakeTarget{Tables: make(map[string]map[string]stores.Row)}
}

func (f *FakeTarget) Upsert(ctx context.Context, table, conflictColumn string, row stores.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Upserts++

	if f.UpsertHook != nil {
		if err := f.UpsertHook(table, row); err != nil {
			return err
		}
	}

	key, _ := row[conflictColumn].(string)
	if key == "" {
		return fmt.Errorf("row missing conflict column %q", conflictColumn)
	}

	rows, ok := f.Tables[table]
	if !ok {
		rows = make(map[string]stores.Row)
		f.Tables[table] = rows
	}
	rows[key] = row
	return nil
}

func (f *FakeTarget) Count(ctx context.Context, table string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Tables[table]), nil
}

// Row returns the stored row for a conflict-column value, or nil.
func (f *FakeTarget) Row(table, key string) stores.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Tables[table][key]
}

// FakeTargetBlobs is an in-memory [stores.TargetBlobStore] double.
type FakeTargetBlobs struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
	Uploads int
}

func NewFakeTargetBlobs() *FakeTargetBlobs {
	return &FakeTargetBlobs{Objects: make(map[string][]byte)}
}

func (f *FakeTargetBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Uploads++
	f.Objects[path] = data
	return nil
}

func (f *FakeTargetBlobs) PublicURL(path string) string {
	return "https://cdn.test/" + path
}

// UploadCount reports the number of successful uploads.
func (f *FakeTargetBlobs) UploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Uploads
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
