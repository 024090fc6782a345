package tasks

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/desertthunder/storesync/internal/stores"
)

const fallbackContentType = "application/octet-stream"

// BlobMigrator copies binary objects from the source blob store to the target
// bucket, caching resolved URLs per job.
//
// The cache is constructed per migrator, and a migrator lives for one job, so
// concurrent or sequential jobs never share blob state. Within a job the
// per-path lock guarantees at most one download+upload per distinct source
// path even when sibling tasks race on it.
type BlobMigrator struct {
	source     stores.SourceBlobStore
	target     stores.TargetBlobStore
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger

	urls *cache.Cache // source path → public target URL

	mu       sync.Mutex
	inflight map[string]*sync.Mutex

	stats struct {
		sync.Mutex
		migrated int
		failed   int
	}
}

// BlobMigratorOpts configures a per-job BlobMigrator.
type BlobMigratorOpts struct {
	Source     stores.SourceBlobStore
	Target     stores.TargetBlobStore
	HTTPClient *http.Client
	RateLimit  float64 // downloads per second, <= 0 disables limiting
	Logger     *log.Logger
}

// NewBlobMigrator creates a BlobMigrator with a fresh cache.
func NewBlobMigrator(opts BlobMigratorOpts) *BlobMigrator {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &BlobMigrator{
		source:     opts.Source,
		target:     opts.Target,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger,
		urls:       cache.New(cache.NoExpiration, cache.NoExpiration),
		inflight:   make(map[string]*sync.Mutex),
	}
}

// Migrate copies one object and returns its public target URL. Returns "" on
// any failure: blob errors are logged, never propagated, and the caller keeps
// the original unmigrated reference for that field.
func (m *BlobMigrator) Migrate(ctx context.Context, sourcePath string) string {
	if sourcePath == "" || m.source == nil || m.target == nil {
		return ""
	}

	if url, found := m.urls.Get(sourcePath); found {
		return url.(string)
	}

	lock := m.lockFor(sourcePath)
	lock.Lock()
	defer lock.Unlock()

	// A sibling may have finished while this task waited on the lock.
	if url, found := m.urls.Get(sourcePath); found {
		return url.(string)
	}

	url, err := m.copy(ctx, sourcePath)
	if err != nil {
		m.logger.Warn("blob migration failed", "path", sourcePath, "error", err)
		m.countFailed()
		return ""
	}

	// First writer wins; concurrent inserts for the same key are refused.
	_ = m.urls.Add(sourcePath, url, cache.NoExpiration)
	m.countMigrated()
	return url
}

// MigratedCount reports distinct objects copied so far this job.
func (m *BlobMigrator) MigratedCount() int {
	m.stats.Lock()
	defer m.stats.Unlock()
	return m.stats.migrated
}

// FailedCount reports blob transfer failures so far this job.
func (m *BlobMigrator) FailedCount() int {
	m.stats.Lock()
	defer m.stats.Unlock()
	return m.stats.failed
}

func (m *BlobMigrator) countMigrated() {
	m.stats.Lock()
	m.stats.migrated++
	m.stats.Unlock()
}

func (m *BlobMigrator) countFailed() {
	m.stats.Lock()
	m.stats.failed++
	m.stats.Unlock()
}

// copy performs the full locator → download → upload → public URL pipeline.
func (m *BlobMigrator) copy(ctx context.Context, sourcePath string) (string, error) {
	locator, err := m.source.SignedURL(ctx, sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve locator: %w", err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}

	data, err := m.download(ctx, locator)
	if err != nil {
		return "", fmt.Errorf("failed to download: %w", err)
	}

	contentType := ContentTypeFor(sourcePath)
	if err := m.target.Upload(ctx, sourcePath, data, contentType); err != nil {
		return "", fmt.Errorf("failed to upload: %w", err)
	}

	return m.target.PublicURL(sourcePath), nil
}

func (m *BlobMigrator) download(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// lockFor returns the per-path mutex, creating it on first use.
func (m *BlobMigrator) lockFor(sourcePath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.inflight[sourcePath]
	if !ok {
		lock = &sync.Mutex{}
		m.inflight[sourcePath] = lock
	}
	return lock
}

// ContentTypeFor infers a content type from a path's file extension, falling
// back to a generic binary type.
func ContentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return fallbackContentType
}
