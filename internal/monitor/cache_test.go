package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/integrity"
)

func newTestCache(ttl time.Duration, max int) (*Cache, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(ttl, max)
	c.now = func() time.Time { return now }
	return c, &now
}

func reportWithStatus(s integrity.Status, length int) *integrity.Report {
	return &integrity.Report{OverallStatus: s, ChainLength: length}
}

func TestCache_HitAndMiss(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	key := CacheKey{Length: 3, TailHash: "abc", Level: Standard}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, reportWithStatus(integrity.Warning, 3))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, integrity.Warning, got.OverallStatus)

	_, ok = c.Get(CacheKey{Length: 3, TailHash: "abc", Level: Full})
	assert.False(t, ok, "level is part of the key")

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
	assert.InDelta(t, 1.0/3.0, st.HitRate, 1e-9)
}

func TestCache_StoresClones(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	key := CacheKey{Length: 1, TailHash: "x", Level: Minimal}
	r := reportWithStatus(integrity.Healthy, 1)
	c.Put(key, r)

	r.OverallStatus = integrity.Corrupted
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, integrity.Healthy, got.OverallStatus)

	got.OverallStatus = integrity.Critical
	again, _ := c.Get(key)
	assert.Equal(t, integrity.Healthy, again.OverallStatus)
}

func TestCache_Expires(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)
	key := CacheKey{Length: 1, TailHash: "x", Level: Minimal}
	c.Put(key, reportWithStatus(integrity.Healthy, 1))

	*now = now.Add(59 * time.Second)
	_, ok := c.Get(key)
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_EvictsOldest(t *testing.T) {
	c, now := newTestCache(time.Hour, 2)
	k1 := CacheKey{Length: 1, TailHash: "a"}
	k2 := CacheKey{Length: 2, TailHash: "b"}
	k3 := CacheKey{Length: 3, TailHash: "c"}

	c.Put(k1, reportWithStatus(integrity.Healthy, 1))
	*now = now.Add(time.Second)
	c.Put(k2, reportWithStatus(integrity.Healthy, 2))
	*now = now.Add(time.Second)
	c.Put(k3, reportWithStatus(integrity.Healthy, 3))

	_, ok := c.Get(k1)
	assert.False(t, ok)
	_, ok = c.Get(k2)
	assert.True(t, ok)
	_, ok = c.Get(k3)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache(0, 0)
	key := CacheKey{Length: 1, TailHash: "x"}
	c.Put(key, reportWithStatus(integrity.Healthy, 1))
	c.Clear()
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}
