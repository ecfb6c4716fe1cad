package engine

import "sync"

// Cache memoizes the lookups of another engine, misses included.
type Cache struct {
	inner Engine

	mu    sync.RWMutex
	cache map[uintptr]cacheVal
}

type cacheVal struct {
	line Line
	ok   bool
}

// NewCache wraps inner with a per-address result cache.
func NewCache(inner Engine) *Cache {
	return &Cache{inner: inner, cache: make(map[uintptr]cacheVal)}
}

// Inner returns the wrapped engine.
func (c *Cache) Inner() Engine { return c.inner }

// LineForAddr implements Engine.
func (c *Cache) LineForAddr(addr uintptr) (Line, bool) {
	c.mu.RLock()
	val, ok := c.cache[addr]
	c.mu.RUnlock()
	if ok {
		return val.line, val.ok
	}
	line, found := c.inner.LineForAddr(addr)
	c.mu.Lock()
	c.cache[addr] = cacheVal{line, found}
	c.mu.Unlock()
	return line, found
}

// Close closes the wrapped engine if it holds resources.
func (c *Cache) Close() error {
	if cl, ok := c.inner.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
