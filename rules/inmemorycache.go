package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	violations []*Violation
	storedAt   time.Time
}

// InMemoryEvaluationCache is a process-local EvaluationCache.
// Thread-safe for concurrent access.
type InMemoryEvaluationCache struct {
	entries map[CacheKey]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryEvaluationCache creates an empty cache
func NewInMemoryEvaluationCache(config CacheConfig) *InMemoryEvaluationCache {
	if config.Freshness <= 0 {
		config.Freshness = DefaultCacheConfig().Freshness
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	return &InMemoryEvaluationCache{
		entries: make(map[CacheKey]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get returns a copy of the entry if it is still within the freshness window
func (c *InMemoryEvaluationCache) Get(key CacheKey) ([]*Violation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.config.Freshness {
		return nil, false
	}
	return copyViolations(entry.violations), true
}

// Set stores a copy, first pruning stale entries and clearing the map
// if it is still at capacity
func (c *InMemoryEvaluationCache) Set(key CacheKey, violations []*Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > 2*c.config.Freshness {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.config.MaxEntries {
		c.entries = make(map[CacheKey]cacheEntry)
	}

	c.entries[key] = cacheEntry{violations: copyViolations(violations), storedAt: now}
}

func (c *InMemoryEvaluationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
}

// Len returns the number of stored entries, fresh or not
func (c *InMemoryEvaluationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
