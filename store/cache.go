package store

import (
	"sync"
	"time"
)

// inputCache remembers which store path a fetch input produced.
type inputCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	path    Path
	pinned  bool
	fetched time.Time
}

func newInputCache(ttl time.Duration) *inputCache {
	return &inputCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *inputCache) get(key string) (Path, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return Path{}, false
	}
	if !e.pinned && c.now().Sub(e.fetched) > c.ttl {
		c.delete(key)
		return Path{}, false
	}
	return e.path, true
}

func (c *inputCache) set(key string, p Path, pinned bool) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{path: p, pinned: pinned, fetched: c.now()}
	c.mu.Unlock()
}

func (c *inputCache) delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *inputCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cached runs fetch at most once at a time per key and remembers its
// result. A remembered path whose object has since been removed from disk
// is fetched again.
func (s *Local) cached(key string, pinned bool, fetch func() (Path, error)) (Path, error) {
	if p, ok := s.cache.get(key); ok {
		if s.exists(p) {
			return p, nil
		}
		s.cache.delete(key)
	}

	v, err, _ := s.flights.Do(key, func() (any, error) {
		p, err := fetch()
		if err != nil {
			return Path{}, err
		}
		s.cache.set(key, p, pinned)
		return p, nil
	})
	if err != nil {
		return Path{}, err
	}
	return v.(Path), nil
}
