package metadata

import (
	"context"
	"time"

	"github.com/stwalsh4118/marquee/internal/logger"
	"golang.org/x/sync/singleflight"
)

const (
	breakerThreshold = 3
	breakerCooldown  = 60 * time.Second
)

// Resolver answers metadata lookups from the cache, falling back to the
// remote fetcher and populating the cache on success. Concurrent lookups for
// the same id share one remote request.
type Resolver struct {
	cache   *Cache
	fetcher Fetcher
	breaker *Breaker
	group   singleflight.Group
}

// NewResolver creates a resolver over cache and fetcher
func NewResolver(cache *Cache, fetcher Fetcher) *Resolver {
	return &Resolver{
		cache:   cache,
		fetcher: fetcher,
		breaker: NewBreaker(breakerThreshold, breakerCooldown, nil),
	}
}

// Cache returns the underlying cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Lookup returns metadata for id. cached reports whether it was served from
// the cache without a remote request.
func (r *Resolver) Lookup(ctx context.Context, id string) (payload Payload, cached bool, err error) {
	if p, ok := r.cache.Get(id); ok && p.Title != "" {
		return p, true, nil
	}

	v, err, _ := r.group.Do("info:"+id, func() (any, error) {
		var fetched Payload
		callErr := r.breaker.Call(func() error {
			var fetchErr error
			fetched, fetchErr = r.fetcher.FetchInfo(ctx, id)
			return fetchErr
		})
		if callErr != nil {
			return Payload{}, callErr
		}
		r.cache.Put(id, fetched)
		return fetched, nil
	})
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Str("content_id", id).
			Str("breaker_state", r.breaker.State().String()).
			Msg("Metadata lookup failed")
		return Payload{}, false, err
	}

	p, _ := r.cache.Get(id)
	if p.Title == "" {
		p = v.(Payload)
	}
	return p, false, nil
}

// LookupDuration returns the duration of id in seconds. The result is merged
// into an existing cache entry without refreshing its timestamp. Failures here
// never affect the primary lookup.
func (r *Resolver) LookupDuration(ctx context.Context, id string) (int64, error) {
	if p, ok := r.cache.Get(id); ok && p.DurationSeconds != nil {
		return *p.DurationSeconds, nil
	}

	v, err, _ := r.group.Do("duration:"+id, func() (any, error) {
		return r.fetcher.FetchDuration(ctx, id)
	})
	if err != nil {
		logger.Log.Debug().Err(err).Str("content_id", id).Msg("Duration lookup failed")
		return 0, err
	}

	seconds := v.(int64)
	if err := r.cache.UpdateField(id, FieldDuration, seconds); err != nil {
		logger.Log.Warn().Err(err).Str("content_id", id).Msg("Failed to cache duration")
	}
	return seconds, nil
}
