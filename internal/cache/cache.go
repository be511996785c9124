// Package cache provides a small in-process key/value cache with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

const defaultCleanupInterval = time.Minute

// entry wraps a cached value with its expiration time
type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

func (e entry[V]) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a concurrency-safe map whose entries expire after a fixed TTL
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time

	onExpire        func(key string, value V)
	cleanupInterval time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	closeOnce       sync.Once
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithClock replaces time.Now, used by tests to move time forward
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// WithCleanupInterval sets how often expired entries are swept
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.cleanupInterval = d
	}
}

// WithOnExpire registers fn to be called for every entry dropped because it expired.
// Entries removed by Delete or overwritten by Set are not reported. fn runs without the
// cache lock held.
func WithOnExpire[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) {
		c.onExpire = fn
	}
}

// expired is an entry dropped on expiry, reported once the lock is released
type expired[V any] struct {
	key   string
	value V
}

// New creates a Cache whose entries live for ttl. A ttl <= 0 disables expiry.
// It starts a background goroutine that is stopped by Close.
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries:         make(map[string]entry[V]),
		ttl:             ttl,
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval <= 0 {
		c.cleanupInterval = defaultCleanupInterval
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

func (c *Cache[V]) newEntry(value V) entry[V] {
	e := entry[V]{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	return e
}

// lookup returns the live entry for key. An expired entry is removed and returned in
// gone for notifyExpired. c.mu must be held.
func (c *Cache[V]) lookup(key string) (value V, ok bool, gone []expired[V]) {
	e, found := c.entries[key]
	if !found {
		return value, false, nil
	}
	if e.isExpired(c.now()) {
		delete(c.entries, key)
		return value, false, []expired[V]{{key: key, value: e.value}}
	}
	return e.value, true, nil
}

func (c *Cache[V]) notifyExpired(gone []expired[V]) {
	if c.onExpire == nil {
		return
	}
	for _, g := range gone {
		c.onExpire(g.key, g.value)
	}
}

// Get returns the value stored under key if it has not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	value, ok, gone := c.lookup(key)
	c.mu.Unlock()

	c.notifyExpired(gone)
	return value, ok
}

// Set stores value under key, restarting its TTL
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.newEntry(value)
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// GetOrCreate returns the live value for key, or calls create and stores its result.
// The lookup and the store happen under one lock, so concurrent callers on a cold key
// share a single created value. Nothing is stored when create fails.
func (c *Cache[V]) GetOrCreate(key string, create func() (V, error)) (V, error) {
	c.mu.Lock()
	value, ok, gone := c.lookup(key)
	if !ok {
		var err error
		value, err = create()
		if err != nil {
			c.mu.Unlock()
			c.notifyExpired(gone)
			var zero V
			return zero, err
		}
		c.entries[key] = c.newEntry(value)
	}
	c.mu.Unlock()

	c.notifyExpired(gone)
	return value, nil
}

// Len returns the number of stored entries, including expired ones not yet swept
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *Cache[V]) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries
func (c *Cache[V]) cleanup() {
	var gone []expired[V]

	c.mu.Lock()
	now := c.now()
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
			gone = append(gone, expired[V]{key: key, value: e.value})
		}
	}
	c.mu.Unlock()

	c.notifyExpired(gone)
}
