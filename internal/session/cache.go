package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedLookup holds one vehicle's active-session lookup result, including
// the negative case (no active session) so repeated misses don't hammer
// the hot store.
type cachedLookup struct {
	meterID  string
	found    bool
	cachedAt time.Time
}

// lookupCache is a read-through LRU with a short TTL, keyed by vehicle id.
// It serves Service.Lookup; Start and End invalidate the vehicle's entry.
type lookupCache struct {
	cache *lru.Cache[string, cachedLookup]
	ttl   time.Duration
	mu    sync.RWMutex
}

func newLookupCache(maxSize int, ttl time.Duration) (*lookupCache, error) {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	c, err := lru.New[string, cachedLookup](maxSize)
	if err != nil {
		return nil, err
	}
	return &lookupCache{cache: c, ttl: ttl}, nil
}

func (c *lookupCache) get(vehicleID string) (meterID string, found, ok bool) {
	c.mu.RLock()
	entry, hit := c.cache.Get(vehicleID)
	c.mu.RUnlock()
	if !hit {
		return "", false, false
	}

	if time.Since(entry.cachedAt) > c.ttl {
		c.mu.Lock()
		current, stillExists := c.cache.Get(vehicleID)
		if stillExists && time.Since(current.cachedAt) > c.ttl {
			c.cache.Remove(vehicleID)
		}
		c.mu.Unlock()
		return "", false, false
	}

	return entry.meterID, entry.found, true
}

func (c *lookupCache) set(vehicleID, meterID string, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(vehicleID, cachedLookup{meterID: meterID, found: found, cachedAt: time.Now()})
}

// invalidate drops any cached entry for vehicleID. Called synchronously on
// Start/End so a lookup never observes a stale mapping.
func (c *lookupCache) invalidate(vehicleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(vehicleID)
}
