package ai

import (
	"sync"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

type cacheEntry struct {
	expiry time.Time
	result domain.ClassificationResult
}

// resultCache keeps recent classifications so repeated descriptions in one
// statement cost a single inference call. Expired entries are dropped on
// access and swept when the cache grows.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newResultCache(ttl time.Duration, max int) *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

func (c *resultCache) get(key string) (domain.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return domain.ClassificationResult{}, false
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, key)
		return domain.ClassificationResult{}, false
	}
	return entry.result, true
}

func (c *resultCache) set(key string, result domain.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.max {
		for k, e := range c.entries {
			if now.After(e.expiry) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.max {
			c.entries = make(map[string]cacheEntry)
		}
	}
	c.entries[key] = cacheEntry{result: result, expiry: now.Add(c.ttl)}
}

func (c *resultCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
