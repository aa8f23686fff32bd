// Package cache memoizes dashboard views per snapshot version and filter.
package cache

import (
	"context"
	"strconv"
	"time"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// ViewCache stores summarized views. Keys include the snapshot version, so a
// refresh never serves a view computed from older data.
type ViewCache struct {
	lru *LRUCache[core.View]
}

func NewViewCache(size int, ttl time.Duration) *ViewCache {
	return &ViewCache{lru: NewLRUCache[core.View](size, ttl)}
}

func viewKey(ds *core.Dataset, f core.Filter) string {
	return strconv.FormatInt(ds.Version(), 10) + "|" + f.Key()
}

// Summarize returns the cached view for f over ds, computing it on a miss.
func (c *ViewCache) Summarize(ds *core.Dataset, f core.Filter) core.View {
	key := viewKey(ds, f)
	if v, ok := c.lru.Get(key); ok {
		return v
	}
	v := core.Summarize(ds, f)
	c.lru.Set(key, v)
	return v
}

// Purge drops all views. Called after a refresh publishes a new snapshot.
func (c *ViewCache) Purge() { c.lru.Purge() }

func (c *ViewCache) CleanExpired() int { return c.lru.CleanExpired() }

func (c *ViewCache) Stats() Stats { return c.lru.Stats() }

// Manager periodically cleans registered caches.
type Manager struct {
	caches []Cleaner
	logger *applog.Logger
}

func NewManager(logger *applog.Logger) *Manager {
	return &Manager{logger: logger.WithComponent(applog.ComponentCache)}
}

func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// Clean runs one cleanup pass over every registered cache.
func (m *Manager) Clean() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run cleans every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Clean(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "removed", n)
			}
		}
	}
}
