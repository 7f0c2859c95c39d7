package ingester

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/common/logging"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/source"
	"github.com/jobfeed/jobfeed/internal/store"
)

type EngineConfig struct {
	MaxNewPerRun    int
	ChunkUpsertSize int
	// ChunkMaxWait flushes a partly filled chunk when a source is slow to produce more postings.
	ChunkMaxWait         time.Duration
	MaxConcurrentSources int
	Retry                util.RetryConfig
	Equality             model.EqualityPolicy
}

// Engine pulls every source, classifies what it finds against the store and writes the result in chunks.
// Sources are processed concurrently and independently: one source failing never changes what happens to another.
type Engine struct {
	store   store.PostingStore
	config  EngineConfig
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewEngine(postingStore store.PostingStore, config EngineConfig, clk clock.Clock, m *metrics.Metrics) *Engine {
	if config.ChunkMaxWait <= 0 {
		config.ChunkMaxWait = 30 * time.Second
	}
	if config.MaxConcurrentSources <= 0 {
		config.MaxConcurrentSources = 1
	}
	return &Engine{
		store:   postingStore,
		config:  config,
		clock:   clk,
		metrics: m,
	}
}

// Ingest runs every adapter once. Source failures are recorded in the returned summary; an error is returned only
// when the store became unavailable or ctx was cancelled, in which case the run was abandoned part way.
func (e *Engine) Ingest(ctx *feedcontext.Context, runID string, adapters []source.Adapter) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:   runID,
		Started: e.clock.Now(),
		Sources: make([]*SourceSummary, len(adapters)),
	}

	g, gctx := feedcontext.ErrGroup(ctx)
	g.SetLimit(e.config.MaxConcurrentSources)
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			sourceCtx := feedcontext.WithLogFields(gctx, logrus.Fields{"source": adapter.Name(), "company": adapter.Company()})
			sourceSummary, err := e.ingestSource(sourceCtx, adapter)
			summary.Sources[i] = sourceSummary
			if err != nil {
				return errors.WithMessagef(err, "ingesting source %s", adapter.Name())
			}
			sourceSummary.recordMetrics(e.metrics)
			sourceCtx.Log.WithFields(sourceSummary.Fields()).Info("source ingested")
			return nil
		})
	}
	err := g.Wait()

	summary.Finished = e.clock.Now()
	compacted := summary.Sources[:0]
	for _, s := range summary.Sources {
		if s != nil {
			compacted = append(compacted, s)
		}
	}
	summary.Sources = compacted
	summary.sortSources()
	return summary, err
}

// streamCounts is what the producer side of a source decided, before anything is written.
type streamCounts struct {
	deferred   int
	rejected   int
	duplicates int
	produced   int
}

func (e *Engine) ingestSource(ctx *feedcontext.Context, adapter source.Adapter) (*SourceSummary, error) {
	summary := &SourceSummary{Source: adapter.Name(), Company: adapter.Company()}

	known, err := e.store.KnownPostings(ctx, adapter.Company())
	if err != nil {
		return summary, errors.WithMessage(err, "loading known postings")
	}
	ctx.Log.Debugf("%d postings already known", len(known))

	stream, err := adapter.Open(ctx)
	if err != nil {
		summary.Err = &source.FetchError{Source: adapter.Name(), Cause: err}
		logging.WithStacktrace(ctx.Log, err).Warn("could not open source")
		return summary, nil
	}
	defer func() {
		if err := stream.Close(); err != nil {
			ctx.Log.WithError(err).Warn("error closing source stream")
		}
	}()

	budget := NewBudget(e.config.MaxNewPerRun, e.config.ChunkUpsertSize)
	writes := make(chan *model.PostingWrite)
	g, gctx := feedcontext.ErrGroup(ctx)

	var counts streamCounts
	var fetchErr error
	g.Go(func() error {
		defer close(writes)
		var err error
		counts, fetchErr, err = e.produce(gctx, adapter, stream, known, budget, writes)
		return err
	})

	writer := &chunkWriter{
		ctx:     gctx,
		source:  adapter.Name(),
		store:   e.store,
		retry:   e.config.Retry,
		clock:   e.clock,
		metrics: e.metrics,
	}
	batcher := NewBatcher[*model.PostingWrite](writes, budget.ChunkSize, e.config.ChunkMaxWait, e.clock, writer.flush)
	g.Go(func() error {
		return batcher.Run(gctx)
	})
	err = g.Wait()

	summary.New = writer.counts.inserted
	summary.Updated = writer.counts.refreshed
	summary.Unchanged = writer.counts.touched
	summary.Failed = writer.counts.failed
	summary.Chunks = writer.counts.chunks
	summary.Deferred = counts.deferred
	summary.Rejected = counts.rejected
	summary.Duplicates = counts.duplicates
	if fetchErr != nil {
		summary.Err = &source.FetchError{Source: adapter.Name(), Cause: fetchErr}
		logging.WithStacktrace(ctx.Log, fetchErr).Warnf("source failed after %d postings", counts.produced)
	}
	return summary, err
}

// produce reads the stream to the end and sends a write for every posting worth writing. A stream error ends the
// source early and is returned as fetchErr; what was produced before it is still written. err is set only when
// ctx was cancelled.
func (e *Engine) produce(
	ctx *feedcontext.Context,
	adapter source.Adapter,
	stream source.Stream,
	known map[string]model.Fingerprint,
	budget *Budget,
	writes chan<- *model.PostingWrite,
) (counts streamCounts, fetchErr error, err error) {
	seen := make(map[string]bool)
	for {
		raw, nextErr := stream.Next(ctx)
		if nextErr == io.EOF {
			return counts, nil, nil
		}
		if nextErr != nil {
			if ctx.Err() != nil {
				return counts, nil, ctx.Err()
			}
			return counts, nextErr, nil
		}
		counts.produced++
		if raw == nil {
			counts.rejected++
			ctx.Log.Warn("rejecting empty posting")
			continue
		}

		if raw.Company == "" {
			raw.Company = adapter.Company()
		}
		posting := model.Normalize(raw, e.clock.Now().Unix())
		if posting.Company != adapter.Company() {
			counts.rejected++
			ctx.Log.WithField("url", posting.URL).Warnf("rejecting posting of company %q", posting.Company)
			continue
		}
		if err := model.Validate(posting); err != nil {
			counts.rejected++
			ctx.Log.WithError(err).Warn("rejecting invalid posting")
			continue
		}
		if seen[posting.URL] {
			counts.duplicates++
			continue
		}
		seen[posting.URL] = true

		class, write := classify(posting, known, e.config.Equality)
		if class == ClassNew && !budget.TryTakeNew() {
			counts.deferred++
			continue
		}

		select {
		case writes <- write:
		case <-ctx.Done():
			return counts, nil, ctx.Err()
		}
	}
}
