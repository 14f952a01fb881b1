package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stwalsh4118/marquee/internal/source"
)

const maxResponseBytes = 1 << 20

// ErrNoDuration is returned when the duration endpoint has no usable value
var ErrNoDuration = errors.New("duration unavailable")

// Fetcher retrieves metadata for a platform content id from a remote service
type Fetcher interface {
	FetchInfo(ctx context.Context, id string) (Payload, error)
	FetchDuration(ctx context.Context, id string) (int64, error)
}

// oEmbedResponse is the subset of an oEmbed document that is displayed
type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// durationResponse is the document returned by the duration endpoint
type durationResponse struct {
	Duration  *float64 `json:"duration"`
	ViewCount *int64   `json:"view_count"`
}

// HTTPFetcher resolves metadata through an oEmbed endpoint and a separate
// duration endpoint. Both are queried with ?url=<watch url>&format=json.
type HTTPFetcher struct {
	client      *http.Client
	oEmbedURL   string
	durationURL string
}

// NewHTTPFetcher creates a fetcher; timeout bounds every request
func NewHTTPFetcher(oEmbedURL, durationURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:      &http.Client{Timeout: timeout},
		oEmbedURL:   oEmbedURL,
		durationURL: durationURL,
	}
}

// FetchInfo returns title, author and thumbnail for id
func (f *HTTPFetcher) FetchInfo(ctx context.Context, id string) (Payload, error) {
	var doc oEmbedResponse
	if err := f.getJSON(ctx, f.oEmbedURL, id, &doc); err != nil {
		return Payload{}, fmt.Errorf("oembed lookup for %s: %w", id, err)
	}
	if doc.Title == "" {
		return Payload{}, fmt.Errorf("oembed lookup for %s: empty title", id)
	}

	thumb := doc.ThumbnailURL
	if thumb == "" {
		thumb = source.ThumbnailURL(id)
	}
	return Payload{
		Title:        doc.Title,
		Author:       doc.AuthorName,
		ThumbnailURL: thumb,
	}, nil
}

// FetchDuration returns the duration of id in whole seconds
func (f *HTTPFetcher) FetchDuration(ctx context.Context, id string) (int64, error) {
	if f.durationURL == "" {
		return 0, ErrNoDuration
	}

	var doc durationResponse
	if err := f.getJSON(ctx, f.durationURL, id, &doc); err != nil {
		return 0, fmt.Errorf("duration lookup for %s: %w", id, err)
	}
	if doc.Duration == nil || *doc.Duration <= 0 {
		return 0, ErrNoDuration
	}
	return int64(*doc.Duration), nil
}

func (f *HTTPFetcher) getJSON(ctx context.Context, endpoint, id string, dst any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", source.WatchURL(id))
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
