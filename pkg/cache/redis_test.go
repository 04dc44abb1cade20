package cache

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newRedisPair returns two clients on one throwaway Redis, as two desk
// instances would see it.
func newRedisPair(t *testing.T) (*RedisCache, *RedisCache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	host, portStr, _ := strings.Cut(endpoint, ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	open := func() *RedisCache {
		rc, err := NewRedisCache(WithRedisAddr(host, port), WithRedisPrefix("test"), WithRedisPool(4, 1, time.Second))
		require.NoError(t, err)
		t.Cleanup(func() { _ = rc.Close() })
		return rc
	}
	return open(), open()
}

func TestRedisCache_RoundTripAndPattern(t *testing.T) {
	a, _ := newRedisPair(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "sentiment:AAPL", sample{Symbol: "AAPL", Score: 0.4}, time.Minute))
	require.NoError(t, a.Set(ctx, "sentiment:MSFT", sample{Symbol: "MSFT", Score: -0.1}, time.Minute))

	var got sample
	require.NoError(t, a.Get(ctx, "sentiment:AAPL", &got))
	assert.Equal(t, 0.4, got.Score)

	require.NoError(t, a.DeleteByPattern(ctx, "sentiment:*"))
	assert.ErrorIs(t, a.Get(ctx, "sentiment:MSFT", &got), ErrCacheMiss)
}

func TestRedisCache_LockBelongsToOwner(t *testing.T) {
	a, b := newRedisPair(t)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "lock:learning", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "lock:learning", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// b cannot release a's lock
	require.NoError(t, b.Unlock(ctx, "lock:learning"))
	held, err := a.Exists(ctx, "lock:learning")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, a.Unlock(ctx, "lock:learning"))
	ok, err = b.TryLock(ctx, "lock:learning", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
