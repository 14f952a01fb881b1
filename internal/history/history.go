// Package history keeps the most recently played sources, newest first.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/kvstore"
	"github.com/stwalsh4118/marquee/internal/logger"
)

const (
	// DefaultCapacity is the maximum number of remembered plays
	DefaultCapacity = 20
	// PendingTitle is the placeholder shown until metadata resolves
	PendingTitle = "Loading..."

	storeKey       = "play_history"
	persistTimeout = 2 * time.Second
)

// Item is one remembered play
type Item struct {
	ID           string    `json:"id"`
	SourceURL    string    `json:"source_url"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store is an ordered, de-duplicated play history with a fixed capacity.
// Persistence failures are logged and otherwise ignored.
type Store struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	store    kvstore.Store
	now      func() time.Time
}

// New creates a history store and restores persisted items. store may be nil.
func New(capacity int, store kvstore.Store, now func() time.Time) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}

	s := &Store{
		capacity: capacity,
		store:    store,
		now:      now,
	}
	s.restore()
	return s
}

// RecordPlay moves id to the front with a fresh timestamp, inserting it when
// new. An empty or placeholder title never overwrites a title already known
// for id. The tail is truncated to capacity.
func (s *Store) RecordPlay(id, sourceURL, title, thumbnailURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := Item{
		ID:           id,
		SourceURL:    sourceURL,
		Title:        title,
		ThumbnailURL: thumbnailURL,
		Timestamp:    s.now(),
	}

	next := make([]Item, 0, len(s.items)+1)
	next = append(next, item)
	for _, existing := range s.items {
		if existing.ID != id {
			next = append(next, existing)
			continue
		}
		if isPlaceholder(title) && existing.Title != "" {
			next[0].Title = existing.Title
		}
		if thumbnailURL == "" {
			next[0].ThumbnailURL = existing.ThumbnailURL
		}
	}
	if next[0].Title == "" {
		next[0].Title = PendingTitle
	}
	if len(next) > s.capacity {
		next = next[:s.capacity]
	}

	s.items = next
	s.persistLocked()
}

// UpdateTitle replaces the title of id in place. It does nothing when id was
// never recorded or has already been truncated away.
func (s *Store) UpdateTitle(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Title = title
			s.persistLocked()
			return
		}
	}
}

// List returns at most limit items, most recent first. limit <= 0 returns all.
func (s *Store) List(limit int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Item, n)
	copy(out, s.items[:n])
	return out
}

// Len returns the number of remembered plays
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear removes every item. Confirming the action is the caller's job.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, storeKey); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to clear persisted history")
	}
}

func (s *Store) persistLocked() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	kvstore.SaveJSON(ctx, s.store, storeKey, s.items)
}

func (s *Store) restore() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var items []Item
	if !kvstore.LoadJSON(ctx, s.store, storeKey, &items) {
		return
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == "" || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		s.items = append(s.items, item)
		if len(s.items) == s.capacity {
			break
		}
	}
	logger.Log.Debug().Int("items", len(s.items)).Msg("Restored play history")
}

func isPlaceholder(title string) bool {
	return title == "" || title == PendingTitle
}
