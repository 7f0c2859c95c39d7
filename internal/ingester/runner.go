package ingester

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/common/logging"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/runlock"
	"github.com/jobfeed/jobfeed/internal/source"
	"github.com/jobfeed/jobfeed/internal/store"
)

const releaseTimeout = 10 * time.Second

// Runner performs complete ingestion runs: it makes sure the store is reachable, takes the run lock, ingests and
// gives the lock back.
type Runner struct {
	engine   *Engine
	lock     runlock.RunLock
	store    store.PostingStore
	adapters []source.Adapter
	lockTtl  time.Duration
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func NewRunner(
	engine *Engine,
	lock runlock.RunLock,
	postingStore store.PostingStore,
	adapters []source.Adapter,
	lockTtl time.Duration,
	clk clock.Clock,
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		engine:   engine,
		lock:     lock,
		store:    postingStore,
		adapters: adapters,
		lockTtl:  lockTtl,
		clock:    clk,
		metrics:  m,
	}
}

// RunOnce performs one run over the named sources, or over every source when names is empty.
// If another run holds the lock, a skipped summary is returned with a nil error.
func (r *Runner) RunOnce(ctx *feedcontext.Context, names []string) (*RunSummary, error) {
	runID := util.NewULID()
	ctx = feedcontext.WithLogField(ctx, "runId", runID)

	adapters, err := source.Filter(r.adapters, names)
	if err != nil {
		return nil, err
	}

	if err := r.store.Ping(ctx); err != nil {
		r.metrics.RecordRun(metrics.RunAborted, r.clock.Now())
		return nil, errors.WithMessage(err, "store unavailable, not starting run")
	}

	lease, err := r.lock.Acquire(ctx, runID, r.lockTtl)
	if err != nil {
		var unavailable *feederrors.ErrLockUnavailable
		if errors.As(err, &unavailable) {
			r.metrics.RecordLock(metrics.LockUnavailable)
			r.metrics.RecordRun(metrics.RunSkipped, r.clock.Now())
			ctx.Log.Infof("skipping run: %s", unavailable)
			now := r.clock.Now()
			return &RunSummary{RunID: runID, Started: now, Finished: now, Skipped: true}, nil
		}
		r.metrics.RecordLock(metrics.LockError)
		r.metrics.RecordRun(metrics.RunAborted, r.clock.Now())
		return nil, errors.WithMessage(err, "acquiring run lock")
	}
	r.metrics.RecordLock(metrics.LockAcquired)
	ctx.Log.Infof("acquired run lock until %s; ingesting %d sources", lease.ExpiresAt.UTC().Format(time.RFC3339), len(adapters))
	defer r.release(ctx, runID)

	summary, err := r.engine.Ingest(ctx, runID, adapters)
	if err != nil {
		r.metrics.RecordRun(metrics.RunAborted, r.clock.Now())
		logging.WithStacktrace(ctx.Log, err).Error("run aborted")
		return summary, err
	}
	r.metrics.RecordRun(summary.Outcome(), summary.Finished)

	totals := summary.Totals()
	ctx.Log.WithFields(totals.Fields()).
		WithField("outcome", summary.Outcome()).
		WithField("duration", summary.Finished.Sub(summary.Started).String()).
		Info("run finished")
	if err := summary.Err(); err != nil {
		ctx.Log.WithError(err).Warn("some sources could not be read")
	}
	return summary, nil
}

// release uses its own context so that the lease is given back even if the run was cancelled.
func (r *Runner) release(ctx *feedcontext.Context, holder string) {
	releaseCtx, cancel := feedcontext.WithTimeout(feedcontext.New(context.Background(), ctx.Log), releaseTimeout)
	defer cancel()
	released, err := r.lock.Release(releaseCtx, holder)
	switch {
	case err != nil:
		logging.WithStacktrace(ctx.Log, err).Warn("could not release run lock; it will expire on its own")
	case !released:
		ctx.Log.Warn("run lock had already expired or been taken over")
	default:
		ctx.Log.Info("released run lock")
	}
}
