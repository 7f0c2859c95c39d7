package runlock

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

// MemoryLock only excludes runs within one process. Used for standalone mode and tests.
type MemoryLock struct {
	name  string
	clock clock.Clock
	mu    sync.Mutex
	lease *Lease
}

func NewMemoryLock(name string, clk clock.Clock) *MemoryLock {
	return &MemoryLock{name: name, clock: clk}
}

func (l *MemoryLock) Acquire(ctx context.Context, holder string, ttl time.Duration) (*Lease, error) {
	if err := validateTtl(ttl); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.lease != nil && now.Before(l.lease.ExpiresAt) {
		return nil, &feederrors.ErrLockUnavailable{Name: l.name, Holder: l.lease.Holder, ExpiresAt: l.lease.ExpiresAt}
	}
	l.lease = &Lease{Name: l.name, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	lease := *l.lease
	return &lease, nil
}

func (l *MemoryLock) Release(_ context.Context, holder string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lease == nil || l.lease.Holder != holder {
		return false, nil
	}
	l.lease = nil
	return true, nil
}
