package ppcache

import (
	"sync"
	"time"
)

// MemoryCache is a simple in-memory cache for preprocessed players.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]Entry)}
}

// Get retrieves a cached entry by key. Expired entries are dropped.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	v, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if v.Expired(time.Now()) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return Entry{}, false
	}
	return v, true
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value Entry) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

// Delete removes the entry for key, if any.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
