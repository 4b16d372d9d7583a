/*
cache.go - Read-through cache for aggregate query results

PURPOSE:
  Aggregates are expensive and tolerate bounded staleness. Fetch returns a
  cached value when one is live and otherwise computes, stores and returns
  it. Concurrent misses on the same key share one computation.

STALENESS:
  Nothing is invalidated on writes. A value is at most its TTL old.

FAILURE MODE:
  The cache is an optimization. A backend error on read or write is logged
  and counted, and the value is computed directly. A compute error is
  returned to the caller and nothing is stored.

BACKENDS:
  - Redis (redis.go): shared across server instances
  - Memory (memory.go): single process, tests

SEE ALSO:
  - keys.go: Key names and the granularity key builder
  - analytics/engine.go: The only caller
*/
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warp/commerce-engine/logging"
	"golang.org/x/sync/singleflight"
)

// Cache stores JSON-serializable values under string keys.
type Cache interface {
	// Get decodes the value stored under key into dest. A miss is (false, nil).
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// =============================================================================
// STATS
// =============================================================================

type stats struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
	errors atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
}

func (s *stats) snapshot() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      s.sets.Load(),
		Errors:    s.errors.Load(),
		HitRate:   hitRate,
		TotalGets: total,
	}
}

// =============================================================================
// READ-THROUGH
// =============================================================================

// ReadThrough wraps a Cache with miss collapsing and hit/miss accounting.
type ReadThrough struct {
	cache Cache
	group singleflight.Group
	stats stats
}

func NewReadThrough(c Cache) *ReadThrough {
	return &ReadThrough{cache: c}
}

func (r *ReadThrough) Stats() StatsSnapshot {
	return r.stats.snapshot()
}

// Fetch returns the live cached value for key or computes and stores it.
// Callers that miss on the same key while a computation is running wait for
// it and share its result.
func Fetch[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	found, err := r.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		r.stats.errors.Add(1)
		logging.Warn(ctx).Err(err).Str("key", key).Msg("cache read failed, computing directly")
	case found:
		r.stats.hits.Add(1)
		return cached, nil
	default:
		r.stats.misses.Add(1)
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// Shared by every waiter, so one caller going away must not cancel it.
		sharedCtx := context.WithoutCancel(ctx)
		value, err := compute(sharedCtx)
		if err != nil {
			return value, err
		}
		if err := r.cache.Set(sharedCtx, key, value, ttl); err != nil {
			r.stats.errors.Add(1)
			logging.Warn(ctx).Err(err).Str("key", key).Msg("cache write failed")
		} else {
			r.stats.sets.Add(1)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	value, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: key %q shared a %T result, want %T", key, v, zero)
	}
	return value, nil
}
