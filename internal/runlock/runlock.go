// Package runlock provides the process-wide lease that keeps ingestion runs from overlapping.
//
// A lease is taken with an atomic conditional write that only succeeds when no lease exists or the existing one
// has expired, and released with a conditional delete that only removes the caller's own lease. There is no
// renewal: a holder that dies leaves its lease to expire.
package runlock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

type Lease struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

type RunLock interface {
	// Acquire takes the lease for holder. If another holder has an unexpired lease a
	// *feederrors.ErrLockUnavailable is returned.
	Acquire(ctx context.Context, holder string, ttl time.Duration) (*Lease, error)
	// Release deletes the lease if and only if it is still held by holder. It returns false when the
	// lease had already expired or been taken over.
	Release(ctx context.Context, holder string) (bool, error)
}

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

type Config struct {
	Backend    Backend `validate:"oneof=postgres redis memory"`
	Name       string  `validate:"required"`
	TtlSeconds int     `validate:"gt=0"`
}

func (c Config) Ttl() time.Duration {
	return time.Duration(c.TtlSeconds) * time.Second
}

// New builds the configured lock. db and redisClient may be nil when the backend does not need them.
func New(config Config, db *pgxpool.Pool, redisClient redis.UniversalClient, clk clock.Clock) (RunLock, error) {
	switch config.Backend {
	case BackendPostgres:
		if db == nil {
			return nil, errors.New("postgres run lock needs a postgres connection")
		}
		return NewPostgresLock(db, config.Name, clk), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis run lock needs a redis client")
		}
		return NewRedisLock(redisClient, config.Name, clk), nil
	case BackendMemory:
		return NewMemoryLock(config.Name, clk), nil
	}
	return nil, &feederrors.ErrInvalidArgument{Name: "lock.backend", Value: string(config.Backend)}
}

func validateTtl(ttl time.Duration) error {
	if ttl <= 0 {
		return &feederrors.ErrInvalidArgument{Name: "ttl", Value: ttl.String(), Message: "must be positive"}
	}
	return nil
}
