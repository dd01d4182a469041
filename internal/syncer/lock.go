package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker guards a sync run across processes sharing one store.
type Locker interface {
	// TryLock returns ok=false without blocking when another holder owns the
	// lock. The returned unlock func is only valid when ok is true.
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

// noopLocker always grants the lock. Used when no Redis address is set.
type noopLocker struct{}

func (noopLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a single-key SET NX lock with a TTL so a crashed holder
// cannot block runs forever.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on key. A zero ttl defaults to 30 minutes.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = "voltline:sync:lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("releasing redis lock %s: %w", l.key, err)
		}
		return nil
	}
	return unlock, true, nil
}
