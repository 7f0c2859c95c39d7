package runlock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

// Deletes the key only if it still holds the caller's id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock keeps the lease as a key whose value is the holder and whose expiry is the lease ttl.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	name   string
	clock  clock.Clock
}

func NewRedisLock(client redis.UniversalClient, name string, clk clock.Clock) *RedisLock {
	return &RedisLock{client: client, key: "jobfeed:runlock:" + name, name: name, clock: clk}
}

func (l *RedisLock) Acquire(ctx context.Context, holder string, ttl time.Duration) (*Lease, error) {
	if err := validateTtl(ttl); err != nil {
		return nil, err
	}
	now := l.clock.Now()
	acquired, err := l.client.SetNX(ctx, l.key, holder, ttl).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !acquired {
		return nil, l.unavailable(ctx)
	}
	return &Lease{Name: l.name, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}, nil
}

func (l *RedisLock) unavailable(ctx context.Context) error {
	unavailable := &feederrors.ErrLockUnavailable{Name: l.name}
	holder, err := l.client.Get(ctx, l.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.WithStack(err)
	}
	unavailable.Holder = holder
	if remaining, err := l.client.PTTL(ctx, l.key).Result(); err == nil && remaining > 0 {
		unavailable.ExpiresAt = l.clock.Now().Add(remaining)
	}
	return unavailable
}

func (l *RedisLock) Release(ctx context.Context, holder string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, holder).Int()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return deleted == 1, nil
}
