// Target object storage client.
//
// The bucket API accepts raw uploads at /object/<bucket>/<path> with an
// x-upsert header for overwrite-on-conflict semantics, and serves public
// objects at /object/public/<bucket>/<path>.
package stores

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BucketStore is an HTTP client for the target object storage. Implements
// [TargetBlobStore].
type BucketStore struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

// NewBucketStore creates a new object storage client. A nil client falls back
// to [http.DefaultClient].
func NewBucketStore(baseURL, bucket, apiKey string, client *http.Client) *BucketStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &BucketStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		apiKey:     apiKey,
		httpClient: client,
	}
}

// Upload implements [TargetBlobStore]. Re-uploading an existing path
// overwrites it, which keeps blob migration idempotent across runs.
func (b *BucketStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	uploadURL := fmt.Sprintf("%s/object/%s/%s", b.baseURL, b.bucket, strings.TrimLeft(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Store: "bucket", Op: "upload " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &ConnectivityError{
			Store: "bucket",
			Op:    "upload " + path,
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}
	return nil
}

// PublicURL implements [TargetBlobStore].
func (b *BucketStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", b.baseURL, b.bucket, strings.TrimLeft(path, "/"))
}
