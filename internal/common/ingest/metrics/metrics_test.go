package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("test_", prometheus.NewRegistry())

	m.RecordPostings("acme", PostingNew, 3)
	m.RecordPostings("acme", PostingNew, 2)
	m.RecordPostings("acme", PostingFailed, 0)
	m.RecordDBError(DBOperationInsert)
	m.RecordRun(RunCompleted, time.Unix(100, 0))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.postingsCounter.WithLabelValues("acme", "new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbErrorsCounter.WithLabelValues("insert")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.lastRunTimestamp))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDBError(DBOperationRead)
		m.RecordPostings("acme", PostingNew, 1)
		m.RecordFetchError("acme")
		m.RecordRun(RunSkipped, time.Now())
		m.RecordLock(LockAcquired)
		m.RecordQuery("company")
		m.RecordChunkFlush(time.Second)
	})
}
