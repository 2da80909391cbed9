package storage

import (
	"sync"
	"time"
)

// cacheNode is one entry of the recency list. The list is circular around
// a sentinel: sentinel.next is the most recently used entry.
type cacheNode[K comparable, V any] struct {
	key        K
	value      V
	expiresAt  time.Time
	prev, next *cacheNode[K, V]
}

// LRUCache is a thread-safe LRU cache with TTL support
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*cacheNode[K, V]
	sentinel cacheNode[K, V]
	now      func() time.Time

	hits   int64
	misses int64
}

// NewLRUCache creates a new LRU cache. A non-positive capacity holds one item.
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration) *LRUCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	c := &LRUCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*cacheNode[K, V], capacity),
		now:      time.Now,
	}
	c.sentinel.prev = &c.sentinel
	c.sentinel.next = &c.sentinel
	return c
}

// Get returns the live value for key and marks it as recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if ok && c.now().After(node.expiresAt) {
		c.remove(node)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	c.unlink(node)
	c.pushFront(node)
	c.hits++
	return node.value, true
}

// Set stores value under key with a fresh TTL, evicting the least recently
// used entry when full.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if node, ok := c.items[key]; ok {
		node.value = value
		node.expiresAt = expiresAt
		c.unlink(node)
		c.pushFront(node)
		return
	}

	node := &cacheNode[K, V]{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = node
	c.pushFront(node)

	if len(c.items) > c.capacity {
		c.remove(c.sentinel.prev)
	}
}

// Delete removes key if present.
func (c *LRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.remove(node)
	}
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*cacheNode[K, V], c.capacity)
	c.sentinel.prev = &c.sentinel
	c.sentinel.next = &c.sentinel
}

// Len returns the number of entries, expired ones included.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *LRUCache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for node := c.sentinel.prev; node != &c.sentinel; {
		prev := node.prev
		if now.After(node.expiresAt) {
			c.remove(node)
			removed++
		}
		node = prev
	}
	return removed
}

func (c *LRUCache[K, V]) pushFront(node *cacheNode[K, V]) {
	node.prev = &c.sentinel
	node.next = c.sentinel.next
	c.sentinel.next.prev = node
	c.sentinel.next = node
}

func (c *LRUCache[K, V]) unlink(node *cacheNode[K, V]) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.prev, node.next = nil, nil
}

func (c *LRUCache[K, V]) remove(node *cacheNode[K, V]) {
	c.unlink(node)
	delete(c.items, node.key)
}

// CacheStats is a point-in-time view of a cache
type CacheStats struct {
	Capacity int           `json:"capacity"`
	Size     int           `json:"size"`
	TTL      time.Duration `json:"ttl"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
}

// GetStats returns current cache statistics
func (c *LRUCache[K, V]) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Capacity: c.capacity,
		Size:     len(c.items),
		TTL:      c.ttl,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}
