package metadata

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState int

const (
	// BreakerClosed lets lookups through
	BreakerClosed BreakerState = iota
	// BreakerOpen short-circuits lookups until the cooldown elapses
	BreakerOpen
	// BreakerHalfOpen lets a probe lookup through
	BreakerHalfOpen
)

// String returns the string representation of BreakerState
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen indicates remote lookups are suspended after repeated failures
var ErrBreakerOpen = errors.New("metadata lookups suspended")

// Breaker stops hammering a failing metadata endpoint. After threshold
// consecutive failures it opens for cooldown, then allows one probe.
type Breaker struct {
	threshold   int
	cooldown    time.Duration
	now         func() time.Time
	state       BreakerState
	failures    int
	lastFailure time.Time
	mu          sync.Mutex
}

// NewBreaker creates a closed breaker
func NewBreaker(threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		state:     BreakerClosed,
	}
}

// Call runs fn unless the breaker is open, recording the outcome
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.state = BreakerOpen
		}
		return err
	}

	b.failures = 0
	b.state = BreakerClosed
	return nil
}

// State returns the current state, moving Open to HalfOpen once the cooldown elapsed
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state != BreakerOpen
}

// advanceLocked applies the cooldown transition (must hold lock)
func (b *Breaker) advanceLocked() {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.failures = 0
	}
}
