package ingester

import (
	"context"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/common/logging"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
)

// writeCounts is what a chunkWriter managed to persist.
type writeCounts struct {
	inserted  int
	refreshed int
	touched   int
	failed    int
	chunks    int
}

func (c *writeCounts) succeeded(kind model.WriteKind) {
	switch kind {
	case model.WriteInsert:
		c.inserted++
	case model.WriteRefresh:
		c.refreshed++
	case model.WriteTouch:
		c.touched++
	}
}

// chunkWriter flushes chunks of writes for one source. Items a chunk could not write are retried on their own;
// an item that still fails is counted and left for the next run, which will classify it again.
// Only an unavailable store stops the writer.
type chunkWriter struct {
	ctx     *feedcontext.Context
	source  string
	store   store.PostingStore
	retry   util.RetryConfig
	clock   clock.Clock
	metrics *metrics.Metrics
	counts  writeCounts
}

func (w *chunkWriter) flush(chunk []*model.PostingWrite) error {
	start := w.clock.Now()
	result, err := w.store.BatchUpsert(w.ctx, chunk)
	if err != nil {
		return errors.WithMessagef(err, "writing chunk of %d postings", len(chunk))
	}
	w.counts.chunks++
	w.metrics.RecordChunkFlush(w.clock.Since(start))

	byKey := make(map[model.Key]*model.PostingWrite, len(chunk))
	for _, write := range chunk {
		byKey[write.Key()] = write
	}
	for _, key := range result.Succeeded {
		if write, ok := byKey[key]; ok {
			w.counts.succeeded(write.Kind)
		}
	}
	for _, failure := range result.Failed {
		write, ok := byKey[failure.Key]
		if !ok {
			continue
		}
		if err := w.retryItem(write, failure); err != nil {
			return err
		}
	}
	w.ctx.Log.Debugf("flushed chunk of %d postings, %d failed in batch", len(chunk), len(result.Failed))
	return nil
}

// retryItem writes a single item until it succeeds or the attempts run out. It returns an error only when the
// store itself failed or the context was cancelled.
func (w *chunkWriter) retryItem(write *model.PostingWrite, batchFailure *store.WriteError) error {
	lastFailure := batchFailure
	err := util.WithRetry(w.ctx, w.retry, func() error {
		result, err := w.store.BatchUpsert(w.ctx, []*model.PostingWrite{write})
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			lastFailure = result.Failed[0]
			return lastFailure
		}
		return nil
	}, retry.RetryIf(isRetryableWriteError))

	if err == nil {
		w.counts.succeeded(write.Kind)
		return nil
	}
	var writeErr *store.WriteError
	if !errors.As(err, &writeErr) {
		return err
	}
	w.counts.failed++
	w.metrics.RecordPostings(w.source, metrics.PostingFailed, 1)
	logging.WithStacktrace(w.ctx.Log, lastFailure).
		WithField("url", write.Posting.URL).
		Warnf("giving up on %s of posting until the next run", write.Kind)
	return nil
}

// isRetryableWriteError reports whether retrying a single item could help. Postings the store rejects as invalid,
// and touches of rows that no longer exist, fail the same way every time.
func isRetryableWriteError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var writeErr *store.WriteError
	if !errors.As(err, &writeErr) {
		return false
	}
	var invalid *feederrors.ErrInvalidArgument
	if errors.As(err, &invalid) {
		return false
	}
	var notFound *feederrors.ErrNotFound
	return !errors.As(err, &notFound)
}
