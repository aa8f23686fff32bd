package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLRU(size int, ttl time.Duration) (*LRUCache[int], *clock) {
	c := NewLRUCache[int](size, ttl)
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUExpiry(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", 3)

	clk.t = clk.t.Add(45 * time.Second)
	assert.Equal(t, 1, c.CleanExpired())
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUStatsAndPurge(t *testing.T) {
	c, _ := newTestLRU(4, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Delete("a")
	c.Set("x", 1)
	c.Set("y", 2)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 2, st.Size)

	c.Purge()
	assert.Zero(t, c.Size())
}

func dataset(version int64, cost int64) *core.Dataset {
	return core.NewDataset(version, time.Now(), []core.Transaction{{
		ProjectID: "A",
		Date:      core.NewDate(2024, 1, 1),
		Cost:      decimal.NewFromInt(cost),
		Category:  core.Labor,
	}})
}

func TestViewCacheKeyedBySnapshotVersion(t *testing.T) {
	vc := NewViewCache(8, time.Minute)
	f := core.Filter{ProjectID: "A", Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31)}

	v1 := vc.Summarize(dataset(1, 10), f)
	again := vc.Summarize(dataset(1, 999), f)
	assert.True(t, v1.Totals.Total.Equal(again.Totals.Total), "same version served from cache")

	v2 := vc.Summarize(dataset(2, 20), f)
	assert.Equal(t, "20", v2.Totals.Total.String())
	assert.Equal(t, int64(1), vc.Stats().Hits)
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	c, clk := newTestLRU(4, time.Second)
	c.Set("a", 1)
	clk.t = clk.t.Add(2 * time.Second)

	m := NewManager(applog.New(applog.Config{Output: io.Discard}))
	m.Register(c)
	assert.Equal(t, 1, m.Clean())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Run(ctx, time.Millisecond))
}
