// Package redisx provides the Redis-backed sweep lock. The lock only avoids
// wasted duplicate sweeps across replicas; correctness comes from the
// conditional status updates, so losing the lock mid-sweep is harmless.
package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewLocker(client *redis.Client, key string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{client: client, key: key, ttl: ttl}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// WithLock runs fn while holding the lock. Returns ErrLockNotAcquired when
// another holder owns it. The token guard ensures an expired holder never
// deletes a successor's lock.
func (l *Locker) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer func() {
		_, _ = unlockScript.Run(ctx, l.client, []string{l.key}, token).Result()
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(lockCtx)
}
