package runlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/store/postgres"
)

const ttl = 90 * time.Minute

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// lockUnderTest is a lock plus a way of moving time past its ttl.
type lockUnderTest struct {
	lock    RunLock
	advance func(d time.Duration)
}

func withLocks(t *testing.T, action func(t *testing.T, newLock func() lockUnderTest)) {
	t.Run("memory", func(t *testing.T) {
		fakeClock := clock.NewFakeClock(baseTime)
		shared := NewMemoryLock("ingest", fakeClock)
		action(t, func() lockUnderTest {
			return lockUnderTest{lock: shared, advance: fakeClock.Step}
		})
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		fakeClock := clock.NewFakeClock(baseTime)
		action(t, func() lockUnderTest {
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return lockUnderTest{
				lock: NewRedisLock(client, "ingest", fakeClock),
				advance: func(d time.Duration) {
					fakeClock.Step(d)
					mr.FastForward(d)
				},
			}
		})
	})
	t.Run("postgres", func(t *testing.T) {
		migrations, err := postgres.Migrations()
		require.NoError(t, err)
		database.WithTestDb(t, migrations, func(db *pgxpool.Pool) {
			fakeClock := clock.NewFakeClock(baseTime)
			action(t, func() lockUnderTest {
				return lockUnderTest{lock: NewPostgresLock(db, "ingest", fakeClock), advance: fakeClock.Step}
			})
		})
	})
}

func TestAcquireRelease(t *testing.T) {
	withLocks(t, func(t *testing.T, newLock func() lockUnderTest) {
		ctx := context.Background()
		l := newLock()

		lease, err := l.lock.Acquire(ctx, "run-a", ttl)
		require.NoError(t, err)
		assert.Equal(t, "run-a", lease.Holder)
		assert.Equal(t, lease.AcquiredAt.Add(ttl), lease.ExpiresAt)

		released, err := l.lock.Release(ctx, "run-a")
		require.NoError(t, err)
		assert.True(t, released)

		_, err = l.lock.Acquire(ctx, "run-b", ttl)
		assert.NoError(t, err)
	})
}

func TestAcquire_HeldLockIsUnavailable(t *testing.T) {
	withLocks(t, func(t *testing.T, newLock func() lockUnderTest) {
		ctx := context.Background()
		l := newLock()

		_, err := l.lock.Acquire(ctx, "run-a", ttl)
		require.NoError(t, err)

		l.advance(ttl - time.Minute)
		_, err = l.lock.Acquire(ctx, "run-b", ttl)
		var unavailable *feederrors.ErrLockUnavailable
		require.True(t, errors.As(err, &unavailable), "expected ErrLockUnavailable, got %v", err)
		assert.Equal(t, "run-a", unavailable.Holder)
		assert.Equal(t, "ingest", unavailable.Name)
	})
}

func TestAcquire_ExpiredLockCanBeTaken(t *testing.T) {
	withLocks(t, func(t *testing.T, newLock func() lockUnderTest) {
		ctx := context.Background()
		l := newLock()

		_, err := l.lock.Acquire(ctx, "crashed-run", ttl)
		require.NoError(t, err)

		l.advance(ttl + time.Second)
		lease, err := l.lock.Acquire(ctx, "run-b", ttl)
		require.NoError(t, err)
		assert.Equal(t, "run-b", lease.Holder)

		// The crashed run coming back late must not delete the new holder's lease.
		released, err := l.lock.Release(ctx, "crashed-run")
		require.NoError(t, err)
		assert.False(t, released)

		_, err = l.lock.Acquire(ctx, "run-c", ttl)
		assert.Error(t, err)
	})
}

func TestAcquire_ExactlyOneConcurrentWinner(t *testing.T) {
	withLocks(t, func(t *testing.T, newLock func() lockUnderTest) {
		ctx := context.Background()
		const contenders = 8
		locks := make([]lockUnderTest, contenders)
		for i := range locks {
			locks[i] = newLock()
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners, losers := 0, 0
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := locks[i].lock.Acquire(ctx, "run-"+string(rune('a'+i)), ttl)
				mu.Lock()
				defer mu.Unlock()
				var unavailable *feederrors.ErrLockUnavailable
				switch {
				case err == nil:
					winners++
				case errors.As(err, &unavailable):
					losers++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, winners)
		assert.Equal(t, contenders-1, losers)
	})
}

func TestAcquire_InvalidTtl(t *testing.T) {
	l := NewMemoryLock("ingest", clock.NewFakeClock(baseTime))
	_, err := l.Acquire(context.Background(), "run-a", 0)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	fakeClock := clock.NewFakeClock(baseTime)

	l, err := New(Config{Backend: BackendMemory, Name: "ingest", TtlSeconds: 60}, nil, nil, fakeClock)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLock{}, l)

	_, err = New(Config{Backend: BackendPostgres, Name: "ingest"}, nil, nil, fakeClock)
	assert.Error(t, err)
	_, err = New(Config{Backend: BackendRedis, Name: "ingest"}, nil, nil, fakeClock)
	assert.Error(t, err)
	_, err = New(Config{Backend: "zookeeper", Name: "ingest"}, nil, nil, fakeClock)
	assert.Error(t, err)

	assert.Equal(t, 90*time.Minute, Config{TtlSeconds: 5400}.Ttl())
}
