// Package cache provides a small thread-safe LRU cache used to keep hot
// per-user data in memory in front of slower storage backends.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/c360/botapi/errors"
)

// EvictCallback is invoked with the key and value of every evicted entry.
type EvictCallback[V any] func(key string, value V)

type lruEntry[V any] struct {
	key   string
	value V
}

// Statistics tracks cache effectiveness with atomic counters.
type Statistics struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Hits returns the number of cache hits.
func (s *Statistics) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of cache misses.
func (s *Statistics) Misses() uint64 { return s.misses.Load() }

// Evictions returns the number of evicted entries.
func (s *Statistics) Evictions() uint64 { return s.evictions.Load() }

// LRU is a thread-safe least-recently-used cache. It evicts the least
// recently used items when the maximum size is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> list element
	order   *list.List               // doubly-linked list for LRU ordering
	stats   *Statistics
	evictFn EvictCallback[V]
}

// NewLRU creates a new LRU cache with the specified maximum size.
func NewLRU[V any](maxSize int, evictFn EvictCallback[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU",
			"max size must be positive")
	}

	return &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   &Statistics{},
		evictFn: evictFn,
	}, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.hits.Add(1)
	return element.Value.(*lruEntry[V]).value, true
}

// Put inserts or updates a value, evicting the oldest entry if the cache
// is at capacity.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}

	element := c.order.PushFront(&lruEntry[V]{key: key, value: value})
	c.items[key] = element
}

// Remove deletes a key from the cache. It reports whether the key existed.
// The eviction callback is not invoked for explicit removals.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false
	}

	c.order.Remove(element)
	delete(c.items, key)
	return true
}

// Len returns the current number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the cache statistics.
func (c *LRU[V]) Stats() *Statistics {
	return c.stats
}

// evictOldest removes the least recently used entry. Caller must hold c.mu.
func (c *LRU[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}

	entry := oldest.Value.(*lruEntry[V])
	c.order.Remove(oldest)
	delete(c.items, entry.key)
	c.stats.evictions.Add(1)

	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
}
