package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/kvstore"
	"github.com/stwalsh4118/marquee/internal/logger"
)

const (
	// DefaultTTL is how long a cached payload may be served
	DefaultTTL = 24 * time.Hour
	// DefaultCapacity is the maximum number of cached ids
	DefaultCapacity = 50

	storeKey       = "metadata_cache"
	persistTimeout = 2 * time.Second
)

// Entry is a cached payload and the time it was last written
type Entry struct {
	Key      string    `json:"key"`
	Payload  Payload   `json:"payload"`
	CachedAt time.Time `json:"cached_at"`
}

// Stats holds cache counters
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int
}

// Options configures a Cache
type Options struct {
	TTL      time.Duration
	Capacity int
	// Store persists the cache; nil keeps it in memory only
	Store kvstore.Store
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// Cache is a bounded key→payload store with lazy TTL expiry.
// Eviction is by insertion order (FIFO), not by recency of use: overwriting or
// reading a key never moves it. Persistence failures degrade to misses.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string
	ttl      time.Duration
	capacity int
	store    kvstore.Store
	now      func() time.Time
	stats    Stats
}

// NewCache creates a cache and restores any persisted entries
func NewCache(opts Options) *Cache {
	c := &Cache{
		entries:  make(map[string]*Entry),
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		store:    opts.Store,
		now:      opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.capacity <= 0 {
		c.capacity = DefaultCapacity
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.restore()
	return c
}

// Get returns the payload for key. Entries older than the TTL are reported as
// misses but stay in place until evicted or overwritten.
func (c *Cache) Get(key string) (Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.CachedAt) > c.ttl {
		c.stats.Misses++
		return Payload{}, false
	}

	c.stats.Hits++
	return e.Payload.clone(), true
}

// Put inserts payload under key or merges it into the existing entry, and
// stamps the entry with the current time. A new key arriving at capacity
// evicts the oldest inserted key first.
func (c *Cache) Put(key string, payload Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Payload = e.Payload.merge(payload)
		e.CachedAt = c.now()
		c.persistLocked()
		return
	}

	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.stats.Evictions++
		logger.Log.Debug().Str("key", oldest).Msg("Evicted oldest metadata entry")
	}

	c.entries[key] = &Entry{
		Key:      key,
		Payload:  Payload{}.merge(payload),
		CachedAt: c.now(),
	}
	c.order = append(c.order, key)
	c.persistLocked()
}

// UpdateField sets one field of an existing entry without refreshing its
// timestamp. It does nothing when key is absent.
func (c *Cache) UpdateField(key string, field Field, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}

	updated, err := e.Payload.withField(field, value)
	if err != nil {
		return err
	}
	e.Payload = updated
	c.persistLocked()
	return nil
}

// Contains reports whether key is physically present, fresh or not
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of physically present entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CurrentSize = len(c.order)
	return s
}

// persistLocked writes the entries in insertion order (must hold lock)
func (c *Cache) persistLocked() {
	if c.store == nil {
		return
	}

	snapshot := make([]Entry, 0, len(c.order))
	for _, key := range c.order {
		snapshot = append(snapshot, *c.entries[key])
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	kvstore.SaveJSON(ctx, c.store, storeKey, snapshot)
}

// restore loads persisted entries, keeping the newest capacity entries
func (c *Cache) restore() {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var snapshot []Entry
	if !kvstore.LoadJSON(ctx, c.store, storeKey, &snapshot) {
		return
	}

	if len(snapshot) > c.capacity {
		snapshot = snapshot[len(snapshot)-c.capacity:]
	}
	for i := range snapshot {
		e := snapshot[i]
		if e.Key == "" {
			continue
		}
		if _, dup := c.entries[e.Key]; dup {
			continue
		}
		c.entries[e.Key] = &e
		c.order = append(c.order, e.Key)
	}

	logger.Log.Debug().Int("entries", len(c.order)).Msg("Restored metadata cache")
}
