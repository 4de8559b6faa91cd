package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"catalog-sync-service/internal/clients"
)

// Fetcher retrieves the feed document from its configured location. Both
// HTTP endpoints and local file paths are supported so integration setups
// can point at a fixture on disk.
type Fetcher struct {
	httpClient *http.Client
	url        string
	authToken  string
}

// NewFetcher creates a feed fetcher for the given location.
func NewFetcher(url, authToken string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		url:        url,
		authToken:  authToken,
	}
}

// Fetch downloads, decodes and validates the feed document.
func (f *Fetcher) Fetch(ctx context.Context) (*Feed, error) {
	if f.url == "" {
		return nil, fmt.Errorf("no feed location configured")
	}

	data, err := f.read(ctx)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

func (f *Fetcher) read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(f.url, "http://") && !strings.HasPrefix(f.url, "https://") {
		path := strings.TrimPrefix(f.url, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read feed file: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &clients.APIError{
			Kind:       clients.ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("feed fetch failed with status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}

	return data, nil
}
