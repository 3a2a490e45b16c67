package gateway

import (
	"sync"
	"time"
)

// Freshness of a cache entry
type Freshness int

const (
	// Missing means no usable entry: absent or past the stale TTL
	Missing Freshness = iota
	// Fresh entries are served without touching the upstream
	Fresh
	// Stale entries are served while a background refresh runs
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	}
	return "missing"
}

// cacheEntry is a cached upstream result with its lifetime
type cacheEntry struct {
	value      any
	storedAt   time.Time
	freshUntil time.Time
	staleUntil time.Time
	hits       int
}

func (e *cacheEntry) freshness(now time.Time) Freshness {
	switch {
	case now.Before(e.freshUntil):
		return Fresh
	case now.Before(e.staleUntil):
		return Stale
	}
	return Missing
}

// ttlCache is a two-tier TTL cache. staleTTL counts from the store time, so
// an entry is fresh for freshTTL and then stale until staleTTL.
type ttlCache struct {
	mu       sync.Mutex
	freshTTL time.Duration
	staleTTL time.Duration
	entries  map[string]*cacheEntry
	now      func() time.Time
}

func newTTLCache(freshTTL, staleTTL time.Duration) *ttlCache {
	if staleTTL < freshTTL {
		staleTTL = freshTTL
	}
	return &ttlCache{
		freshTTL: freshTTL,
		staleTTL: staleTTL,
		entries:  make(map[string]*cacheEntry),
		now:      time.Now,
	}
}

// get returns the entry for key and how fresh it is. Fully expired entries
// are dropped.
func (c *ttlCache) get(key string) (any, Freshness) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, Missing
	}
	f := e.freshness(c.now())
	if f == Missing {
		delete(c.entries, key)
		return nil, Missing
	}
	e.hits++
	return e.value, f
}

// put stores value for key and sweeps entries past their stale TTL
func (c *ttlCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if e.freshness(now) == Missing {
			delete(c.entries, k)
		}
	}
	c.entries[key] = &cacheEntry{
		value:      value,
		storedAt:   now,
		freshUntil: now.Add(c.freshTTL),
		staleUntil: now.Add(c.staleTTL),
	}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// CacheStats counts entries by freshness
type CacheStats struct {
	Entries int `json:"entries"`
	Fresh   int `json:"fresh"`
	Stale   int `json:"stale"`
	Expired int `json:"expired"`
}

func (c *ttlCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := CacheStats{Entries: len(c.entries)}
	for _, e := range c.entries {
		switch e.freshness(now) {
		case Fresh:
			s.Fresh++
		case Stale:
			s.Stale++
		default:
			s.Expired++
		}
	}
	return s
}
