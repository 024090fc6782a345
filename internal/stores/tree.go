// Legacy hierarchical store client.
//
// The source exposes a Firebase-style REST surface: GET /<collection>.json
// returns the whole subtree as {key: payload}, and a blob sidecar lists
// objects and mints temporary download locators.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/desertthunder/storesync/internal/shared"
)

// TreeStore is an HTTP client for the legacy hierarchical store. It implements
// both [SourceStore] and [SourceBlobStore].
type TreeStore struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewTreeStore creates a new source store client. A nil client falls back to
// [http.DefaultClient].
func NewTreeStore(baseURL, secret string, client *http.Client) *TreeStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &TreeStore{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: client,
	}
}

// Name implements [SourceStore].
func (s *TreeStore) Name() string { return "tree" }

// Check performs a cheap shallow read of the tree root to verify the store is
// reachable and the secret is accepted. Used as the pre-extraction preflight.
func (s *TreeStore) Check(ctx context.Context) error {
	_, err := s.get(ctx, "/.json", url.Values{"shallow": {"true"}})
	return err
}

// ExportCollection fetches the full subtree for a named collection.
//
// The export surface returns null for an empty collection; that case yields an
// empty map, not an error, so an empty entity type migrates as zero items.
func (s *TreeStore) ExportCollection(ctx context.Context, collection string) (map[string]map[string]any, error) {
	body, err := s.get(ctx, fmt.Sprintf("/%s.json", url.PathEscape(collection)), nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		// "null" or a scalar at the collection root
		var probe any
		if jsonErr := json.Unmarshal(body, &probe); jsonErr == nil && probe == nil {
			return map[string]map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: collection %q is not a tree: %v", shared.ErrSourceUnavailable, collection, err)
	}

	records := make(map[string]map[string]any, len(raw))
	for key, msg := range raw {
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			// Scalar leaves under a collection root carry no record shape.
			// Keep them addressable rather than dropping them.
			var scalar any
			if json.Unmarshal(msg, &scalar) == nil {
				payload = map[string]any{"value": scalar}
			} else {
				continue
			}
		}
		records[key] = payload
	}

	return records, nil
}

// ListBlobs implements [SourceBlobStore].
func (s *TreeStore) ListBlobs(ctx context.Context, prefix string) ([]string, error) {
	body, err := s.get(ctx, "/blobs", url.Values{"prefix": {prefix}})
	if err != nil {
		return nil, err
	}

	var listing struct {
		Items []struct {
			Path string `json:"path"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%w: failed to parse blob listing: %v", shared.ErrSourceUnavailable, err)
	}

	paths := make([]string, 0, len(listing.Items))
	for _, item := range listing.Items {
		paths = append(paths, item.Path)
	}
	return paths, nil
}

// SignedURL implements [SourceBlobStore].
func (s *TreeStore) SignedURL(ctx context.Context, path string) (string, error) {
	body, err := s.get(ctx, "/blobs/locator", url.Values{"path": {path}})
	if err != nil {
		return "", err
	}

	var locator struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &locator); err != nil {
		return "", fmt.Errorf("%w: failed to parse blob locator: %v", shared.ErrSourceUnavailable, err)
	}
	if locator.URL == "" {
		return "", fmt.Errorf("%w: empty locator for %q", shared.ErrSourceUnavailable, path)
	}
	return locator.URL, nil
}

// get performs a GET against the export surface, attaching the auth secret
// when configured.
func (s *TreeStore) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := s.baseURL + path
	if s.secret != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("auth", s.secret)
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Store: s.Name(), Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{Store: s.Name(), Op: "GET " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ConnectivityError{
			Store: s.Name(),
			Op:    "GET " + path,
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	return body, nil
}
