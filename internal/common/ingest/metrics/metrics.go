package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	DBOperation    string
	PostingOutcome string
	RunOutcome     string
	LockResult     string
)

const (
	DBOperationRead            DBOperation = "read"
	DBOperationInsert          DBOperation = "insert"
	DBOperationUpdate          DBOperation = "update"
	DBOperationCreateTempTable DBOperation = "create_temp_table"
	DBOperationLock            DBOperation = "lock"
)

const (
	PostingNew       PostingOutcome = "new"
	PostingUpdated   PostingOutcome = "updated"
	PostingUnchanged PostingOutcome = "unchanged"
	PostingDeferred  PostingOutcome = "deferred"
	PostingFailed    PostingOutcome = "failed"
	PostingRejected  PostingOutcome = "rejected"
	PostingDuplicate PostingOutcome = "duplicate"
)

const (
	RunCompleted RunOutcome = "completed"
	RunPartial   RunOutcome = "partial"
	RunSkipped   RunOutcome = "skipped"
	RunAborted   RunOutcome = "aborted"
)

const (
	LockAcquired    LockResult = "acquired"
	LockUnavailable LockResult = "unavailable"
	LockError       LockResult = "error"
)

const (
	IngesterMetricsPrefix = "jobfeed_ingester_"
	QueryApiMetricsPrefix = "jobfeed_queryapi_"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	dbErrorsCounter  *prometheus.CounterVec
	postingsCounter  *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	runsCounter      *prometheus.CounterVec
	lockCounter      *prometheus.CounterVec
	queriesCounter   *prometheus.CounterVec
	chunkLatency     prometheus.Histogram
	lastRunTimestamp prometheus.Gauge
}

func NewMetrics(prefix string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		dbErrorsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "db_errors",
			Help: "Number of database errors grouped by database operation",
		}, []string{"operation"}),
		postingsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "postings",
			Help: "Number of postings processed grouped by source and outcome",
		}, []string{"source", "outcome"}),
		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "fetch_errors",
			Help: "Number of sources that failed to fetch",
		}, []string{"source"}),
		runsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "runs",
			Help: "Number of ingestion runs grouped by outcome",
		}, []string{"outcome"}),
		lockCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "lock_acquisitions",
			Help: "Number of run lock acquisition attempts grouped by result",
		}, []string{"result"}),
		queriesCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "queries",
			Help: "Number of posting queries grouped by the index used",
		}, []string{"index"}),
		chunkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "chunk_flush_seconds",
			Help:    "Time taken to upsert a chunk of postings",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "last_run_timestamp_seconds",
			Help: "Unix time at which the last ingestion run finished",
		}),
	}
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	if m == nil {
		return
	}
	m.dbErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordPostings(source string, outcome PostingOutcome, count int) {
	if m == nil || count == 0 {
		return
	}
	m.postingsCounter.With(map[string]string{"source": source, "outcome": string(outcome)}).Add(float64(count))
}

func (m *Metrics) RecordFetchError(source string) {
	if m == nil {
		return
	}
	m.fetchErrors.With(map[string]string{"source": source}).Inc()
}

func (m *Metrics) RecordRun(outcome RunOutcome, finished time.Time) {
	if m == nil {
		return
	}
	m.runsCounter.With(map[string]string{"outcome": string(outcome)}).Inc()
	m.lastRunTimestamp.Set(float64(finished.Unix()))
}

func (m *Metrics) RecordLock(result LockResult) {
	if m == nil {
		return
	}
	m.lockCounter.With(map[string]string{"result": string(result)}).Inc()
}

func (m *Metrics) RecordQuery(index string) {
	if m == nil {
		return
	}
	m.queriesCounter.With(map[string]string{"index": index}).Inc()
}

func (m *Metrics) RecordChunkFlush(duration time.Duration) {
	if m == nil {
		return
	}
	m.chunkLatency.Observe(duration.Seconds())
}
