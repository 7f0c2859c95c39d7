package runlock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

// PostgresLock keeps the lease as a row of the run_lock table. Expiry is judged with the caller's clock,
// so hosts taking part in the same lock should keep their clocks in sync.
type PostgresLock struct {
	db    *pgxpool.Pool
	name  string
	clock clock.Clock
}

func NewPostgresLock(db *pgxpool.Pool, name string, clk clock.Clock) *PostgresLock {
	return &PostgresLock{db: db, name: name, clock: clk}
}

func (l *PostgresLock) Acquire(ctx context.Context, holder string, ttl time.Duration) (*Lease, error) {
	if err := validateTtl(ttl); err != nil {
		return nil, err
	}
	now := l.clock.Now().UTC()
	lease := &Lease{Name: l.name, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}

	var winner string
	err := l.db.QueryRow(ctx, `
		INSERT INTO run_lock (name, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			holder_id = EXCLUDED.holder_id,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE run_lock.expires_at <= EXCLUDED.acquired_at
		RETURNING holder_id`,
		lease.Name, lease.Holder, lease.AcquiredAt, lease.ExpiresAt).Scan(&winner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, l.unavailable(ctx)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return lease, nil
}

func (l *PostgresLock) unavailable(ctx context.Context) error {
	unavailable := &feederrors.ErrLockUnavailable{Name: l.name}
	err := l.db.QueryRow(ctx, `SELECT holder_id, expires_at FROM run_lock WHERE name = $1`, l.name).
		Scan(&unavailable.Holder, &unavailable.ExpiresAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return errors.WithStack(err)
	}
	return unavailable
}

func (l *PostgresLock) Release(ctx context.Context, holder string) (bool, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM run_lock WHERE name = $1 AND holder_id = $2`, l.name, holder)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return tag.RowsAffected() == 1, nil
}
