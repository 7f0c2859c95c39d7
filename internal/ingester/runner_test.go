package ingester

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/runlock"
	"github.com/jobfeed/jobfeed/internal/source"
	"github.com/jobfeed/jobfeed/internal/source/sourcetest"
	"github.com/jobfeed/jobfeed/internal/store"
)

const testTtl = 90 * time.Minute

func newTestRunner(t *testing.T, s store.PostingStore, lock runlock.RunLock, adapters ...source.Adapter) *Runner {
	t.Helper()
	clk := clock.NewFakeClock(testNow)
	engine := NewEngine(s, testEngineConfig(), clk, nil)
	return NewRunner(engine, lock, s, adapters, testTtl, clk, nil)
}

func TestRunOnce(t *testing.T) {
	s := newMemoryStore(t)
	lock := runlock.NewMemoryLock("ingest", clock.NewFakeClock(testNow))
	runner := newTestRunner(t, s, lock,
		sourcetest.NewStaticAdapter("acme", "acme", sourcetest.Postings("acme", 20, testStart)),
		sourcetest.NewStaticAdapter("globex", "globex", sourcetest.Postings("globex", 5, testStart)),
	)

	summary, err := runner.RunOnce(testContext(), nil)
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 25, summary.Totals().New)

	// The lease was given back, so another holder can take it straight away.
	_, err = lock.Acquire(context.Background(), "someone-else", testTtl)
	assert.NoError(t, err)
}

func TestRunOnce_SkipsWhenLockIsHeld(t *testing.T) {
	s := newMemoryStore(t)
	lock := runlock.NewMemoryLock("ingest", clock.NewFakeClock(testNow))
	_, err := lock.Acquire(context.Background(), "other-run", testTtl)
	require.NoError(t, err)

	adapter := sourcetest.NewStaticAdapter("acme", "acme", sourcetest.Postings("acme", 5, testStart))
	runner := newTestRunner(t, s, lock, adapter)

	summary, err := runner.RunOnce(testContext(), nil)
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, "skipped", string(summary.Outcome()))
	assert.Equal(t, 0, adapter.Opened())
	assert.Equal(t, 0, countPostings(t, s, "acme"))

	// The other run still holds the lock.
	released, err := lock.Release(context.Background(), "other-run")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRunOnce_StoreUnreachable(t *testing.T) {
	s := newFaultyStore(newMemoryStore(t), nil)
	s.pingErr = fmt.Errorf("connection refused")
	lock := runlock.NewMemoryLock("ingest", clock.NewFakeClock(testNow))
	adapter := sourcetest.NewStaticAdapter("acme", "acme", sourcetest.Postings("acme", 5, testStart))
	runner := newTestRunner(t, s, lock, adapter)

	_, err := runner.RunOnce(testContext(), nil)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 0, adapter.Opened())

	// No lease was taken.
	_, err = lock.Acquire(context.Background(), "someone-else", testTtl)
	assert.NoError(t, err)
}

func TestRunOnce_ReleasesLockWhenRunAborts(t *testing.T) {
	s := newFaultyStore(newMemoryStore(t), nil)
	s.unavailable = fmt.Errorf("store unavailable")
	lock := runlock.NewMemoryLock("ingest", clock.NewFakeClock(testNow))
	runner := newTestRunner(t, s, lock, sourcetest.NewStaticAdapter("acme", "acme", sourcetest.Postings("acme", 5, testStart)))

	_, err := runner.RunOnce(testContext(), nil)
	assert.Error(t, err)

	_, err = lock.Acquire(context.Background(), "someone-else", testTtl)
	assert.NoError(t, err)
}

func TestRunOnce_SourceSubset(t *testing.T) {
	s := newMemoryStore(t)
	lock := runlock.NewMemoryLock("ingest", clock.NewFakeClock(testNow))
	acme := sourcetest.NewStaticAdapter("acme", "acme", sourcetest.Postings("acme", 5, testStart))
	globex := sourcetest.NewStaticAdapter("globex", "globex", sourcetest.Postings("globex", 5, testStart))
	runner := newTestRunner(t, s, lock, acme, globex)

	summary, err := runner.RunOnce(testContext(), []string{"globex"})
	require.NoError(t, err)
	require.Len(t, summary.Sources, 1)
	assert.Equal(t, "globex", summary.Sources[0].Source)
	assert.Equal(t, 0, acme.Opened())

	_, err = runner.RunOnce(testContext(), []string{"initech"})
	var notFound *feederrors.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}
