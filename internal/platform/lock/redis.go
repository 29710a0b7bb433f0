// Package lock provides the redis-backed mutual exclusion used to serialize
// capacity mutations per schedule.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by another owner
// after the wait period.
var ErrNotAcquired = fmt.Errorf("lock not acquired")

// releaseScript deletes the key only when it still carries our token, so an
// expired lease can never release a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const pollInterval = 50 * time.Millisecond

// RedisLocker implements token-leased mutual exclusion over a shared redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:"}
}

// TryLock attempts to take key for lease, polling up to wait. On success it
// returns the release function; callers must invoke it exactly once.
func (l *RedisLocker) TryLock(ctx context.Context, key string, wait, lease time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	full := l.prefix + key
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, full, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", full, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{full}, token).Err(); err != nil && err != redis.Nil {
					return fmt.Errorf("release %s: %w", full, err)
				}
				return nil
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrNotAcquired, full, wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
