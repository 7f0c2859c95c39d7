package ingester

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
)

// SourceSummary is the outcome of one source in one run.
type SourceSummary struct {
	Source  string
	Company string
	// New, Updated and Unchanged count postings actually written as inserts, refreshes and touches.
	New       int
	Updated   int
	Unchanged int
	// Deferred counts new postings left for a later run because the budget was used up.
	Deferred int
	// Failed counts postings that could not be written even after retrying.
	Failed int
	// Rejected counts postings that were invalid or belonged to another company.
	Rejected int
	// Duplicates counts repeats of a url already seen earlier in the same stream.
	Duplicates int
	Chunks     int
	// Err is set when the source could not be read to the end.
	Err error
}

func (s *SourceSummary) Failure() bool {
	return s.Err != nil || s.Failed > 0
}

func (s *SourceSummary) Fields() logrus.Fields {
	fields := logrus.Fields{
		"source":     s.Source,
		"company":    s.Company,
		"new":        s.New,
		"updated":    s.Updated,
		"unchanged":  s.Unchanged,
		"deferred":   s.Deferred,
		"failed":     s.Failed,
		"rejected":   s.Rejected,
		"duplicates": s.Duplicates,
		"chunks":     s.Chunks,
	}
	if s.Err != nil {
		fields["fetchError"] = s.Err.Error()
	}
	return fields
}

func (s *SourceSummary) recordMetrics(m *metrics.Metrics) {
	m.RecordPostings(s.Source, metrics.PostingNew, s.New)
	m.RecordPostings(s.Source, metrics.PostingUpdated, s.Updated)
	m.RecordPostings(s.Source, metrics.PostingUnchanged, s.Unchanged)
	m.RecordPostings(s.Source, metrics.PostingDeferred, s.Deferred)
	m.RecordPostings(s.Source, metrics.PostingRejected, s.Rejected)
	m.RecordPostings(s.Source, metrics.PostingDuplicate, s.Duplicates)
	if s.Err != nil {
		m.RecordFetchError(s.Source)
	}
}

// RunSummary is the outcome of one ingestion run. Sources are ordered by name.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// Skipped is set when another run held the lock and nothing was done.
	Skipped bool
	Sources []*SourceSummary
}

func (r *RunSummary) Source(name string) *SourceSummary {
	for _, s := range r.Sources {
		if s.Source == name {
			return s
		}
	}
	return nil
}

func (r *RunSummary) sortSources() {
	slices.SortFunc(r.Sources, func(a, b *SourceSummary) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})
}

// Err combines the errors of every source that could not be read. It is nil when all sources were read to the end.
func (r *RunSummary) Err() error {
	var result *multierror.Error
	for _, s := range r.Sources {
		if s.Err != nil {
			result = multierror.Append(result, s.Err)
		}
	}
	return result.ErrorOrNil()
}

func (r *RunSummary) Outcome() metrics.RunOutcome {
	if r.Skipped {
		return metrics.RunSkipped
	}
	for _, s := range r.Sources {
		if s.Failure() {
			return metrics.RunPartial
		}
	}
	return metrics.RunCompleted
}

func (r *RunSummary) Totals() SourceSummary {
	var total SourceSummary
	for _, s := range r.Sources {
		total.New += s.New
		total.Updated += s.Updated
		total.Unchanged += s.Unchanged
		total.Deferred += s.Deferred
		total.Failed += s.Failed
		total.Rejected += s.Rejected
		total.Duplicates += s.Duplicates
		total.Chunks += s.Chunks
	}
	return total
}
