package player

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/source"
)

const (
	// FallbackTitle is displayed when platform metadata cannot be fetched
	FallbackTitle = "YouTube Video"

	metadataTimeout = 10 * time.Second
)

// EmbeddedBackend delegates playback to a platform embed. It only builds the
// embed reference and resolves display metadata; the embed itself is opaque.
type EmbeddedBackend struct {
	lifecycle
	resolver *metadata.Resolver

	mu       sync.Mutex
	embedURL string
}

// NewEmbeddedBackend creates an embedded backend. resolver may be nil.
func NewEmbeddedBackend(resolver *metadata.Resolver) *EmbeddedBackend {
	b := &EmbeddedBackend{resolver: resolver}
	b.lifecycle.init()
	return b
}

// Attach builds the embed reference and reports Ready. Metadata and duration
// are resolved in the background and fail independently.
func (b *EmbeddedBackend) Attach(_ context.Context, src source.Resolved, emit Emitter) error {
	if b.closed() {
		return context.Canceled
	}
	if src.PlatformID == "" {
		return NewPlaybackError(ErrorKindOther, true, "embedded source has no platform id", nil)
	}

	embed := source.EmbedURL(src.PlatformID, false)
	b.mu.Lock()
	b.embedURL = embed
	b.mu.Unlock()

	b.emitUnlessClosed(emit, Event{Type: EventReady, EmbedURL: embed})

	go b.resolveMetadata(src.PlatformID, emit)
	go b.resolveDuration(src.PlatformID, emit)
	return nil
}

// EmbedURL returns the embed reference built by Attach
func (b *EmbeddedBackend) EmbedURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embedURL
}

func (b *EmbeddedBackend) resolveMetadata(id string, emit Emitter) {
	fallback := metadata.Payload{
		Title:        FallbackTitle,
		ThumbnailURL: source.ThumbnailURL(id),
	}

	if b.resolver == nil {
		b.emitUnlessClosed(emit, Event{Type: EventMetadataResolved, Metadata: &fallback})
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, metadataTimeout)
	defer cancel()

	payload, cached, err := b.resolver.Lookup(ctx, id)
	if err != nil {
		if b.closed() {
			return
		}
		logger.Log.Debug().Err(err).Str("content_id", id).Msg("Using fallback metadata")
		payload = fallback
	} else if payload.ThumbnailURL == "" {
		payload.ThumbnailURL = fallback.ThumbnailURL
	}

	logger.Log.Debug().Str("content_id", id).Bool("cached", cached).Msg("Metadata resolved")
	b.emitUnlessClosed(emit, Event{Type: EventMetadataResolved, Metadata: &payload})
}

func (b *EmbeddedBackend) resolveDuration(id string, emit Emitter) {
	if b.resolver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, metadataTimeout)
	defer cancel()

	seconds, err := b.resolver.LookupDuration(ctx, id)
	if err != nil {
		return
	}
	b.emitUnlessClosed(emit, Event{Type: EventDurationResolved, DurationSeconds: seconds})
}

// SelectLevel is only meaningful for adaptive sources
func (b *EmbeddedBackend) SelectLevel(int) error {
	return ErrNoManifest
}

// RecoverMediaError is only meaningful for adaptive sources
func (b *EmbeddedBackend) RecoverMediaError() error {
	return ErrNoManifest
}
