package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

func newTestCache(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	require.NoError(t, mc.Set(ctx, "s:AAPL", sample{Symbol: "AAPL", Score: 0.35}, time.Minute))

	var got sample
	require.NoError(t, mc.Get(ctx, "s:AAPL", &got))
	assert.Equal(t, sample{Symbol: "AAPL", Score: 0.35}, got)

	require.NoError(t, mc.Set(ctx, "plain", "hello", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "hello", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	now = now.Add(59 * time.Second)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, WithMemoryMaxSize(2))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCache_TryLock(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	ok, err := mc.TryLock(ctx, "lock:p1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:p1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:p1"))
	ok, err = mc.TryLock(ctx, "lock:p1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)
	require.NoError(t, mc.Set(ctx, "sentiment:AAPL", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "sentiment:MSFT", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "other", 1, time.Hour))

	require.NoError(t, mc.DeleteByPattern(ctx, "sentiment:*"))
	assert.Equal(t, 1, mc.Len())
}

func TestLayeredCache_FillsL1FromRemote(t *testing.T) {
	ctx := context.Background()
	remote := newTestCache(t)
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.memCache.Close()

	require.NoError(t, remote.Set(ctx, "k", sample{Symbol: "MSFT"}, time.Hour))
	var got sample
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "MSFT", got.Symbol)

	require.NoError(t, remote.Delete(ctx, "k"))
	got = sample{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "MSFT", got.Symbol)
}
