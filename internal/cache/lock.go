package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes check-then-act sections around a shared resource. Locks
// are advisory and best effort: when the lock service is unreachable or the
// lock stays contended past the acquisition budget, the critical section runs
// anyway. Availability is preferred over strict mutual exclusion.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

const (
	lockAcquireAttempts = 5
	lockAcquireBackoff  = 50 * time.Millisecond
)

// releaseScript deletes the lock only when it still holds our token, so an
// expired lock reacquired by another worker is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a RedisLocker on an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < lockAcquireAttempts; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			// Lock service down: proceed without the lock.
			slog.Warn("lock service unavailable, proceeding unlocked", "key", key, "error", err)
			return fn(ctx)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockAcquireBackoff):
		}
	}

	if !acquired {
		// Contended past the budget: proceed anyway rather than stall ingestion.
		slog.Debug("lock contended, proceeding unlocked", "key", key)
		return fn(ctx)
	}

	defer func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			slog.Debug("lock release failed, ttl will expire it", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

// NullLocker runs critical sections unserialized. Used when Redis is not
// configured; the documented approximate-consistency trade-off applies.
type NullLocker struct{}

var _ Locker = NullLocker{}

func (NullLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
