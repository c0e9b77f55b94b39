package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vikramshenoy/faultline/internal/cache"
)

// setupTestRedis spins up a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	client := setupRedisClient(t)
	return cache.NewRedisCache(client)
}

func setupRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := cache.NewClient("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisCache_SetAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "greeting", []byte("hello"), time.Minute))

	val, found, err := c.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestRedisCache_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := setupTestRedis(t)

	val, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRedisCache_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "gone", []byte("soon"), time.Minute))
	require.NoError(t, c.Delete(ctx, "gone"))

	_, found, err := c.Get(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fleeting", []byte("x"), 500*time.Millisecond))

	require.Eventually(t, func() bool {
		_, found, err := c.Get(ctx, "fleeting")
		return err == nil && !found
	}, 3*time.Second, 100*time.Millisecond)
}

func TestRedisCache_IncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := setupTestRedis(t)
	ctx := context.Background()

	key := cache.RateLimitKey("fl_test1")
	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestRedisLocker_SerializesCriticalSections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedisClient(t)
	locker := cache.NewRedisLocker(client)
	ctx := context.Background()

	var mu sync.Mutex
	var inside, maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "lock:test", 5*time.Second, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "lock admits one holder at a time")
}

func TestRedisLocker_ReleasesOnReturn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedisClient(t)
	locker := cache.NewRedisLocker(client)
	ctx := context.Background()

	require.NoError(t, locker.WithLock(ctx, "lock:rel", time.Minute, func(ctx context.Context) error {
		return nil
	}))

	// The key must be gone immediately, not held until the TTL expires.
	n, err := client.Exists(ctx, "lock:rel").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNullCache_AlwaysMisses(t *testing.T) {
	c := cache.NullCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := c.IncrWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "rate limiting fails open without redis")
}

func TestKeyBuilders(t *testing.T) {
	id := uuid.MustParse("7b7e3c8e-8a3f-4c57-9f6e-0479e64cf3da")

	assert.Equal(t, "lock:issue:7b7e3c8e-8a3f-4c57-9f6e-0479e64cf3da:abc", cache.IssueLockKey(id, "abc"))
	assert.Equal(t, "lock:rule:7b7e3c8e-8a3f-4c57-9f6e-0479e64cf3da", cache.RuleLockKey(id))
	assert.Equal(t, "ratelimit:fl_abc12", cache.RateLimitKey("fl_abc12"))
	assert.Equal(t, "stats:7b7e3c8e-8a3f-4c57-9f6e-0479e64cf3da:h1", cache.StatsKey(id, "h1"))
}
