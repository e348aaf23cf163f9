// Package lock provides domain.Locker implementations.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"eventregistration/internal/domain"
)

// releaseScript deletes the key only while it still holds our token, so an expired lease
// re-acquired by another replica is never released by the previous holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLocker struct {
	Redis    *redis.Client
	newToken func() string
}

// NewRedisLocker returns a Locker backed by SET NX with a TTL.
func NewRedisLocker(client *redis.Client) domain.Locker {
	return &redisLocker{Redis: client, newToken: uuid.NewString}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := l.newToken()
	ok, err := l.Redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := l.Redis.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis unlock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// HealthCheck pings the Redis server.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

type localLocker struct{}

// NewLocalLocker returns a Locker that always grants the lease. Use it for a single replica.
func NewLocalLocker() domain.Locker {
	return localLocker{}
}

func (localLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
