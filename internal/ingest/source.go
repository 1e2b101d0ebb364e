// Package ingest supplies laptop listings to the refresh pipeline. The
// actual marketplace crawl lives behind the Source seam; this package
// ships a JSON feed client and a static fixture source.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"laptopmcp/internal/model"
)

// Source produces a batch of listings to store.
type Source interface {
	Fetch(ctx context.Context) ([]model.Laptop, error)
}

// FeedSource pulls listings from an HTTP endpoint serving a JSON array of
// listing objects.
type FeedSource struct {
	url    string
	client *http.Client
}

func NewFeedSource(url string, timeout time.Duration) *FeedSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *FeedSource) Fetch(ctx context.Context) ([]model.Laptop, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed %s returned %d: %s", f.url, resp.StatusCode, body)
	}

	var listings []model.Laptop
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	now := time.Now().UTC()
	for i := range listings {
		// feed rows carry no storage id; the repository allocates one
		listings[i].ID = 0
		if listings[i].CrawledAt.IsZero() {
			listings[i].CrawledAt = now
		}
	}
	return listings, nil
}

// StaticSource returns a fixed batch, for offline runs and tests.
type StaticSource struct {
	Listings []model.Laptop
}

func (s *StaticSource) Fetch(_ context.Context) ([]model.Laptop, error) {
	out := make([]model.Laptop, len(s.Listings))
	copy(out, s.Listings)
	return out, nil
}
