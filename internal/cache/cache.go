// ABOUTME: Thread-safe TTL cache with a size bound and oldest-first eviction.
// ABOUTME: Used by the weather resolver to avoid repeated geocoding lookups.

package cache

import (
	"container/list"
	"sync"
	"time"
)

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = time.Minute

// entry stores a cached value, its write time, and its list element.
type entry[K comparable, V any] struct {
	key     K
	value   V
	written time.Time
	element *list.Element
}

// Cache provides a thread-safe, TTL-based, size-limited key/value cache.
// Uses a doubly-linked list to maintain write order for O(1) eviction.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[K, V]
	order   *list.List // keys in write order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the specified TTL and maximum size.
// A background goroutine periodically removes expired entries until Close.
func New[K comparable, V any](ttl time.Duration, maxSize int) *Cache[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the value stored for key if it has not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.written) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value for key. If the cache is at capacity, the oldest entry is
// evicted to make room.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// Existing keys are refreshed and moved to the back.
	if e, exists := c.entries[key]; exists {
		e.value = value
		e.written = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry[K, V]{key: key, value: value, written: now}
	e.element = c.order.PushBack(e)
	c.entries[key] = e
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry from the cache. Must be called with mu held.
func (c *Cache[K, V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	e, _ := front.Value.(*entry[K, V])
	c.order.Remove(front)
	if e != nil {
		delete(c.entries, e.key)
	}
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[K, V]) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[K, V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.written) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
