package player

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/source"
)

// DirectBackend plays a single media file. It probes the source and reports
// Ready once the server confirms playable data is available.
type DirectBackend struct {
	lifecycle
	client *http.Client

	mu   sync.Mutex
	src  source.Resolved
	emit Emitter
}

// NewDirectBackend creates a direct-file backend using client for probes
func NewDirectBackend(client *http.Client) *DirectBackend {
	b := &DirectBackend{client: client}
	b.lifecycle.init()
	return b
}

// Attach sets the source and starts the probe
func (b *DirectBackend) Attach(_ context.Context, src source.Resolved, emit Emitter) error {
	if b.closed() {
		return context.Canceled
	}

	b.mu.Lock()
	b.src = src
	b.emit = emit
	b.mu.Unlock()

	go b.probe()
	return nil
}

func (b *DirectBackend) probe() {
	b.mu.Lock()
	src, emit := b.src, b.emit
	b.mu.Unlock()

	if err := probeMedia(b.ctx, b.client, src.CanonicalURL); err != nil {
		if b.closed() {
			return
		}
		logger.Log.Warn().Err(err).Str("url", src.CanonicalURL).Msg("Direct source probe failed")
		b.emitUnlessClosed(emit, FatalEvent(ClassifyError(err), err))
		return
	}
	b.emitUnlessClosed(emit, ReadyEvent())
}

// SelectLevel is only meaningful for adaptive sources
func (b *DirectBackend) SelectLevel(int) error {
	return ErrNoManifest
}

// RecoverMediaError is only meaningful for adaptive sources
func (b *DirectBackend) RecoverMediaError() error {
	return ErrNoManifest
}

// probeMedia asks for the first byte of url. A 2xx or 206 answer with a media
// or unknown content type counts as data ready.
func probeMedia(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe: unexpected status %d", resp.StatusCode)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/json") {
		return NewPlaybackError(ErrorKindMedia, true, "unsupported content type "+ct, nil)
	}
	return nil
}
