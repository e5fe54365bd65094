package rules

import "time"

// RulesCache holds active rules by id so evaluation can skip the store.
// Rule trees never change after creation, so an entry only goes stale when
// its rule is deactivated or deleted, and the engine invalidates it then.
type RulesCache interface {
	// Get returns the cached rule, or nil on a miss or an expired entry.
	Get(id string) *Rule

	// Set stores an active rule.
	Set(rule *Rule)

	// Invalidate drops the entry for id, if any.
	Invalidate(id string)

	// Clear drops every entry.
	Clear()

	// Len returns the number of entries, expired ones included.
	Len() int
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (invalidation only).
	TTL time.Duration

	// MaxEntries bounds the cache size. When full, the oldest entry is
	// evicted. Set to 0 for no bound.
	MaxEntries int
}

// DefaultCacheConfig returns the defaults used when no configuration is given.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 10000,
	}
}
