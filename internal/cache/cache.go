package cache

import (
	"encoding/json"
	"sync"
	"time"

	"valumatch/server/internal/models"
)

// Key returns the canonical serialization of search criteria. Two requests
// that normalize to the same criteria share one cache slot, so a hit is
// result-identical to a fresh computation by construction.
func Key(c *models.SearchCriteria) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// ResultCache memoizes search results for a short TTL. Invalidation is
// time-based only; a corpus rebuild mid-TTL can serve one stale window,
// which reporting tolerates.
type ResultCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]entry
}

func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for a key, if present and unexpired.
func (c *ResultCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the key for one TTL.
func (c *ResultCache) Set(key string, value interface{}) {
	if key == "" {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Purge drops every entry. Called after corpus rebuilds.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of live entries, counting expired ones not yet
// lazily collected.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
