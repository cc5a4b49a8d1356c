// Package cache implements C5: a short-TTL process-local existence
// cache with three sentinel values, never authoritative — misses and
// contradictions always fall through to the actor.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/torratdev/grace/internal/mlog"
)

// Sentinel is the three-valued cache result.
type Sentinel int

const (
	Unknown Sentinel = iota
	Exists
	DoesNotExist
)

type entry struct {
	value    Sentinel
	expireAt time.Time
}

// Cache is a thread-safe, absolute-expiration, process-local map.
// Grounded on the teacher's Redis connection-hub lazy-init texture for
// shape, but deliberately kept in-process per the concurrency model's
// "never process-wide mutable state beyond the cache and platform
// handles."
type Cache struct {
	mu     sync.RWMutex
	data   map[string]entry
	ttl    time.Duration
	logger mlog.Logger
}

// New returns a Cache with the given TTL and a background sweep
// goroutine bound to ctx's lifetime.
func New(ctx context.Context, ttl time.Duration, logger mlog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	c := &Cache{data: make(map[string]entry), ttl: ttl, logger: logger}
	c.startSweep(ctx)

	return c
}

// Get returns the cached sentinel for key, or Unknown if absent or
// expired.
func (c *Cache) Get(key string) Sentinel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || time.Now().After(e.expireAt) {
		return Unknown
	}

	return e.value
}

// Set caches value for key with the cache's configured TTL.
func (c *Cache) Set(key string, value Sentinel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry{value: value, expireAt: time.Now().Add(c.ttl)}
}

// Invalidate removes key from the cache unconditionally.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

func (c *Cache) startSweep(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Errorf("cache sweep recovered from panic: %v", r)
			}
		}()

		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	for k, e := range c.data {
		if now.After(e.expireAt) {
			delete(c.data, k)
		}
	}
}
