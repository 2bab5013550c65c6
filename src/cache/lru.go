// Package cache provides the in-process LRU caching layer the registry
// uses for entities and hot queries, plus a byte-oriented Cache interface
// with memory and Redis backings for components that want a distributed
// cache shared across instances.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// TypedLRU is a thread-safe, TTL-bounded LRU cache of a single value type,
// with get/set/delete/clear semantics. The registry's entity cache
// (500 entries / 60s) and query cache (50 entries / 30s) are both
// instances of this type.
type TypedLRU[V any] struct {
	inner *lru.LRU[string, V]
}

// NewTypedLRU creates a cache holding at most size entries, each expiring
// ttl after being set. size<=0 or ttl<=0 fall back to sane defaults so a
// zero-value Config never produces a cache that can't hold anything.
func NewTypedLRU[V any](size int, ttl time.Duration) *TypedLRU[V] {
	if size <= 0 {
		size = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TypedLRU[V]{inner: lru.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value and whether it was present and unexpired.
func (c *TypedLRU[V]) Get(key string) (V, bool) {
	return c.inner.Get(key)
}

// Set stores value under key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *TypedLRU[V]) Set(key string, value V) {
	c.inner.Add(key, value)
}

// Delete removes key, if present.
func (c *TypedLRU[V]) Delete(key string) {
	c.inner.Remove(key)
}

// Clear empties the cache. Entity and query caches are both cleared on
// any mutation and on CachingRegistry.InvalidateCaches.
func (c *TypedLRU[V]) Clear() {
	c.inner.Purge()
}

// Len returns the current number of live entries.
func (c *TypedLRU[V]) Len() int {
	return c.inner.Len()
}
