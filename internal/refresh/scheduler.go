// Package refresh runs a periodic refresh side effect while the page is
// visible and the device is authorized.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/logger"
)

// DefaultInterval is used when no interval is configured
const DefaultInterval = 30 * time.Second

// Tick outcomes
const (
	OutcomeRefreshed = "refreshed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Refresher performs the periodic side effect
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Authorizer reports whether identity may run the side effect
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity string) bool
}

// TickObserver receives each tick outcome
type TickObserver func(outcome string)

// Scheduler drives a Refresher on a fixed interval. Start and Stop are
// idempotent; once Stop returns no further tick runs.
type Scheduler struct {
	refresher  Refresher
	authorizer Authorizer
	identity   func(ctx context.Context) string
	interval   time.Duration
	onTick     TickObserver

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}

	mu      sync.Mutex
	visible bool
	running bool
}

// NewScheduler creates a stopped scheduler. identity is read on every tick
// so that the authorization check always sees the current device.
func NewScheduler(refresher Refresher, authorizer Authorizer, identity func(ctx context.Context) string, interval time.Duration, onTick TickObserver) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		refresher:  refresher,
		authorizer: authorizer,
		identity:   identity,
		interval:   interval,
		onTick:     onTick,
		visible:    true,
	}
}

// Start begins ticking, stopping any previous loop first
func (s *Scheduler) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx, done)

	logger.Log.Debug().Dur("interval", s.interval).Msg("Refresh scheduler started")
}

// Stop halts ticking and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopLocked() {
		logger.Log.Debug().Msg("Refresh scheduler stopped")
	}
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return true
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Visible reports the last visibility set
func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// SetVisible records page visibility. Hiding stops the loop; showing starts
// it if it is not already running. Authorization is checked per tick, not here.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()

	if !visible {
		s.Stop()
		return
	}
	if !s.Running() {
		s.Start()
	}
}

// Tick runs one refresh if the page is visible and the device is authorized
// right now. It returns the outcome.
func (s *Scheduler) Tick(ctx context.Context) string {
	outcome := s.tick(ctx)
	if s.onTick != nil {
		s.onTick(outcome)
	}
	return outcome
}

func (s *Scheduler) tick(ctx context.Context) string {
	if !s.Visible() || !s.authorized(ctx) {
		return OutcomeSkipped
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("Refresh failed")
		return OutcomeFailed
	}
	return OutcomeRefreshed
}

func (s *Scheduler) authorized(ctx context.Context) bool {
	if s.authorizer == nil {
		return false
	}
	identity := ""
	if s.identity != nil {
		identity = s.identity(ctx)
	}
	return s.authorizer.IsAuthorized(ctx, identity)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.Tick(ctx)
		}
	}
}
