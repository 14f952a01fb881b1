package ads

import (
	"context"
	"fmt"
	"sync"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
)

// Counter increments a persisted named counter
type Counter interface {
	IncrementCounter(ctx context.Context, name string) (int64, error)
}

// ShownObserver is told how many slots a refresh put in view
type ShownObserver func(n int)

// Rotator advances one slot per placement on every refresh
type Rotator struct {
	catalog *Catalog
	counter Counter
	onShown ShownObserver

	mu      sync.RWMutex
	cursor  map[string]int
	current map[string]Slot
}

// NewRotator creates a rotator over catalog. counter and onShown may be nil.
func NewRotator(catalog *Catalog, counter Counter, onShown ShownObserver) *Rotator {
	return &Rotator{
		catalog: catalog,
		counter: counter,
		onShown: onShown,
		cursor:  make(map[string]int),
		current: make(map[string]Slot),
	}
}

// Refresh rotates every placement to its next slot and counts each slot shown
func (r *Rotator) Refresh(ctx context.Context) error {
	placements := r.catalog.Placements()

	next := make(map[string]Slot, len(placements))
	r.mu.Lock()
	for _, placement := range placements {
		slots := r.catalog.Slots(placement)
		if len(slots) == 0 {
			continue
		}
		i := r.cursor[placement] % len(slots)
		next[placement] = slots[i]
		r.cursor[placement] = i + 1
	}
	r.current = next
	r.mu.Unlock()

	if len(next) == 0 {
		return nil
	}

	if r.onShown != nil {
		r.onShown(len(next))
	}

	if r.counter != nil {
		for range next {
			if _, err := r.counter.IncrementCounter(ctx, models.CounterAdsShown); err != nil {
				return fmt.Errorf("failed to count shown ad: %w", err)
			}
		}
	}

	logger.Log.Debug().Int("placements", len(next)).Msg("Ad slots rotated")
	return nil
}

// Current returns the slot currently shown for each placement
func (r *Rotator) Current() map[string]Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Slot, len(r.current))
	for k, v := range r.current {
		out[k] = v
	}
	return out
}
