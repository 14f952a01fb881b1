package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Eyevinn/hls-m3u8/m3u8"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/source"
)

const maxManifestBytes = 4 << 20

// AdaptiveBackend loads an HLS or DASH manifest and exposes its variants as
// quality levels
type AdaptiveBackend struct {
	lifecycle
	client *http.Client

	mu      sync.Mutex
	src     source.Resolved
	emit    Emitter
	levels  []QualityLevel
	current int
}

// NewAdaptiveBackend creates an adaptive backend using client for manifest requests
func NewAdaptiveBackend(client *http.Client) *AdaptiveBackend {
	b := &AdaptiveBackend{
		client:  client,
		current: -1,
	}
	b.lifecycle.init()
	return b
}

// Attach starts loading the manifest
func (b *AdaptiveBackend) Attach(_ context.Context, src source.Resolved, emit Emitter) error {
	if b.closed() {
		return context.Canceled
	}

	b.mu.Lock()
	b.src = src
	b.emit = emit
	b.mu.Unlock()

	go b.load(false)
	return nil
}

// load fetches and decodes the manifest. A recovery reload reports Healthy
// instead of Ready.
func (b *AdaptiveBackend) load(recovery bool) {
	b.mu.Lock()
	src, emit := b.src, b.emit
	b.mu.Unlock()

	body, err := fetchManifest(b.ctx, b.client, src.CanonicalURL)
	if err != nil {
		if b.closed() {
			return
		}
		logger.Log.Warn().Err(err).Str("url", src.CanonicalURL).Msg("Manifest fetch failed")
		b.emitUnlessClosed(emit, FatalEvent(ClassifyError(err), err))
		return
	}

	levels, err := ParseManifest(src.CanonicalURL, body)
	if err != nil {
		logger.Log.Warn().Err(err).Str("url", src.CanonicalURL).Msg("Manifest decode failed")
		b.emitUnlessClosed(emit, FatalEvent(ErrorKindMedia, err))
		return
	}

	b.mu.Lock()
	b.levels = levels
	if b.current >= len(levels) {
		b.current = -1
	}
	b.mu.Unlock()

	if len(levels) > 1 {
		b.emitUnlessClosed(emit, LevelsEvent(levels))
	}
	if recovery {
		b.emitUnlessClosed(emit, HealthyEvent())
		return
	}
	b.emitUnlessClosed(emit, ReadyEvent())
}

// SelectLevel pins a level, or -1 for automatic selection
func (b *AdaptiveBackend) SelectLevel(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < -1 || index >= len(b.levels) {
		return fmt.Errorf("%w: %d", ErrInvalidQualityLevel, index)
	}
	b.current = index
	return nil
}

// CurrentLevel returns the pinned level or -1
func (b *AdaptiveBackend) CurrentLevel() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// RecoverMediaError reloads the decode pipeline by refetching the manifest
func (b *AdaptiveBackend) RecoverMediaError() error {
	if b.closed() {
		return context.Canceled
	}
	go b.load(true)
	return nil
}

func fetchManifest(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
}

// ParseManifest turns a manifest body into quality levels. HLS master
// playlists yield one level per variant; media playlists and DASH manifests
// yield a single level.
func ParseManifest(url string, body []byte) ([]QualityLevel, error) {
	trimmed := bytes.TrimSpace(body)
	if isDASH(url, trimmed) {
		if !bytes.Contains(trimmed, []byte("<MPD")) {
			return nil, errors.New("decode manifest: missing MPD element")
		}
		return []QualityLevel{{Index: 0}}, nil
	}

	if !bytes.HasPrefix(trimmed, []byte("#EXTM3U")) {
		return nil, errors.New("decode manifest: missing #EXTM3U header")
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(trimmed), false)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok || len(master.Variants) == 0 {
			return nil, errors.New("decode manifest: master playlist has no variants")
		}
		levels := make([]QualityLevel, 0, len(master.Variants))
		for i, v := range master.Variants {
			levels = append(levels, QualityLevel{
				Index:      i,
				Height:     heightOf(v.Resolution),
				BitrateBps: int(v.Bandwidth),
			})
		}
		return levels, nil
	case m3u8.MEDIA:
		return []QualityLevel{{Index: 0}}, nil
	default:
		return nil, errors.New("decode manifest: unknown playlist type")
	}
}

func isDASH(url string, body []byte) bool {
	path := strings.ToLower(url)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".mpd") || bytes.HasPrefix(body, []byte("<?xml"))
}

// heightOf extracts the height from a WIDTHxHEIGHT resolution
func heightOf(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}
