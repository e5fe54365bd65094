package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache is a simple in-memory implementation of RulesCache
// Thread-safe for concurrent access
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

type cacheEntry struct {
	rule     *Rule
	cachedAt time.Time
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get returns the cached rule, or nil if absent or expired.
func (c *InMemoryRulesCache) Get(id string) *Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil
	}
	return entry.rule
}

// Set stores a rule, evicting the oldest entry when the cache is full.
func (c *InMemoryRulesCache) Set(rule *Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[rule.ID]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[rule.ID] = cacheEntry{rule: rule, cachedAt: c.now()}
}

func (c *InMemoryRulesCache) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, entry := range c.entries {
		if oldestID == "" || entry.cachedAt.Before(oldestAt) {
			oldestID, oldestAt = id, entry.cachedAt
		}
	}
	delete(c.entries, oldestID)
}

// Invalidate removes one entry
func (c *InMemoryRulesCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// Clear removes every entry
func (c *InMemoryRulesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries
func (c *InMemoryRulesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
