package guideline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the active rule set from storage.
type Loader func(ctx context.Context) ([]*Rule, error)

// Cache holds one snapshot of the active rules. An expired or invalidated
// snapshot is reloaded on the next read; concurrent readers share a single
// reload. Readers may observe the previous snapshot while a reload is running.
type Cache struct {
	load   Loader
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.RWMutex
	rules    []*Rule
	loadedAt time.Time
	fresh    bool
	gen      uint64

	group singleflight.Group
}

const flightKey = "rules"

func NewCache(load Loader, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{load: load, ttl: ttl, now: time.Now, logger: logger}
}

// Rules returns the current snapshot, reloading it when stale. When a reload
// fails and a previous snapshot exists, the previous snapshot is served.
func (c *Cache) Rules(ctx context.Context) ([]*Rule, error) {
	c.mu.RLock()
	rules, valid := c.rules, c.fresh && c.now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()
	if valid {
		return rules, nil
	}

	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		loaded, err := c.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.rules = loaded
			c.loadedAt = c.now()
			c.fresh = true
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		if rules != nil {
			c.logger.Warn().Err(err).Msg("guideline reload failed, serving previous snapshot")
			return rules, nil
		}
		return nil, err
	}
	return v.([]*Rule), nil
}

// Invalidate forces the next read to reload. A reload already in flight
// does not repopulate the cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fresh = false
	c.gen++
	c.mu.Unlock()
	c.group.Forget(flightKey)
}
