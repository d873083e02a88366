// Package cache provides a thread-safe in-memory cache with TTL support.
package cache

import (
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

// entry holds a cached value with expiration.
type entry[V any] struct {
	value      V
	expiration time.Time
}

// Cache provides thread-safe caching with TTL.
type Cache[V any] struct {
	entries map[string]entry[V]
	done    chan struct{}
	now     func() time.Time
	mu      sync.RWMutex
	ttl     time.Duration
	once    sync.Once
}

// New creates a new cache with the specified default TTL.
// Call Close to stop the background cleanup.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		done:    make(chan struct{}),
		now:     time.Now,
		ttl:     ttl,
	}
	go c.cleanupExpired(cleanupInterval)
	return c
}

// Get retrieves a value from cache if not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if c.now().After(e.expiration) {
		c.mu.Lock()
		// Double-check after lock upgrade to avoid racing a concurrent Set.
		if e, exists := c.entries[key]; exists && c.now().After(e.expiration) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores a value in cache with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value in cache with custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiration: c.now().Add(ttl)}
}

// Mark records key with value and reports whether an unexpired entry already existed.
// The check and the write happen under one lock, so concurrent callers see
// exactly one false per TTL window.
func (c *Cache[V]) Mark(key string, value V) (seen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.entries[key]; ok && !now.After(e.expiration) {
		return true
	}
	c.entries[key] = entry[V]{value: value, expiration: now.Add(c.ttl)}
	return false
}

// Close stops the background cleanup goroutine. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanupExpired periodically removes expired entries.
func (c *Cache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, key)
		}
	}
}
