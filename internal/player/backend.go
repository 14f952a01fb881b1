package player

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/source"
)

const defaultProbeTimeout = 10 * time.Second

// Backend plays one resolved source. Attach starts loading and must return
// quickly; results arrive through emit. Destroy releases everything and
// is safe to call more than once, including before Attach.
type Backend interface {
	Attach(ctx context.Context, src source.Resolved, emit Emitter) error
	Play() error
	Pause() error
	SelectLevel(index int) error
	RecoverMediaError() error
	Destroy()
}

// Factory creates the backend for a strategy
type Factory interface {
	New(strategy source.Strategy) (Backend, error)
}

// BackendFactory builds the HTTP-backed adaptive and direct backends and the
// metadata-backed embedded backend
type BackendFactory struct {
	client   *http.Client
	resolver *metadata.Resolver
}

// NewBackendFactory creates a factory. resolver may be nil, in which case
// embedded sources get fallback metadata only.
func NewBackendFactory(cfg config.PlaybackConfig, resolver *metadata.Resolver) *BackendFactory {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &BackendFactory{
		client:   &http.Client{Timeout: timeout},
		resolver: resolver,
	}
}

// New implements Factory
func (f *BackendFactory) New(strategy source.Strategy) (Backend, error) {
	switch strategy {
	case source.StrategyAdaptiveStream:
		return NewAdaptiveBackend(f.client), nil
	case source.StrategyDirectFile:
		return NewDirectBackend(f.client), nil
	case source.StrategyEmbeddedPlatform:
		return NewEmbeddedBackend(f.resolver), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// lifecycle is the cancellation and play-flag plumbing shared by the backends
type lifecycle struct {
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	mu      sync.Mutex
	playing bool
}

func (l *lifecycle) init() {
	l.ctx, l.cancel = context.WithCancel(context.Background())
}

// closed reports whether Destroy has run
func (l *lifecycle) closed() bool {
	return l.ctx.Err() != nil
}

// Play marks the backend as playing
func (l *lifecycle) Play() error {
	if l.closed() {
		return context.Canceled
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.playing = true
	return nil
}

// Pause marks the backend as paused
func (l *lifecycle) Pause() error {
	if l.closed() {
		return context.Canceled
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.playing = false
	return nil
}

// Playing reports the play flag
func (l *lifecycle) Playing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Destroy cancels in-flight work. Goroutines still running may emit once
// more; the controller drops those events as stale.
func (l *lifecycle) Destroy() {
	l.once.Do(func() {
		l.cancel()
		l.mu.Lock()
		l.playing = false
		l.mu.Unlock()
	})
}

// emitUnlessClosed forwards ev unless the backend has been destroyed
func (l *lifecycle) emitUnlessClosed(emit Emitter, ev Event) {
	if l.closed() {
		return
	}
	emit(ev)
}
