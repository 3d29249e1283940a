// Package cache provides the cache abstraction handed to scorers by the host.
// The engine never requires a cache; results must be identical with or
// without one.
package cache

import (
	"sync"
	"time"
)

// Cache is a get/set/invalidate store. Implementations must be safe for
// concurrent use.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Invalidate(key K)
	InvalidateAll()
}

// sweepEvery is how many Set calls pass between sweeps of expired entries.
const sweepEvery = 64

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is an in-memory Cache whose entries expire after a fixed duration.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[K]entry[V]
	sets    uint64
	hits    uint64
	misses  uint64
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) { o.now = c }
}

// NewTTL creates a TTL cache. A non-positive ttl means entries never expire.
func NewTTL[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the cached value if present and not expired. Expired entries
// are evicted on access.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key. Every sweepEvery calls it also drops expired
// entries, so keys that are never read again do not accumulate.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sets++
	if c.ttl > 0 && c.sets%sweepEvery == 0 {
		c.evictExpired(now)
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

func (c *TTL[K, V]) evictExpired(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Invalidate removes key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *TTL[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *TTL[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

var _ Cache[string, float64] = (*TTL[string, float64])(nil)
