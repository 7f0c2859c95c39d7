package queryapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
)

const (
	DefaultLimit            = 50
	MaxLimit                = 200
	DefaultMaxFullScanLimit = 100
)

// Filter is a posting query. PostedFrom and PostedTo are inclusive epoch seconds.
type Filter struct {
	Company    string
	Category   string
	Country    string
	PostedFrom *int64
	PostedTo   *int64
	Remote     *bool
	Sort       store.Direction
	Limit      int
	Cursor     string
}

type Result struct {
	Items      []*model.JobPosting `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
	Index      store.IndexName     `json:"index"`
	FullScan   bool                `json:"full_scan"`
}

type EngineConfig struct {
	DefaultLimit int
	MaxLimit     int
	// Page size cap for queries that have no indexed filter.
	MaxFullScanLimit int
	AllowFullScan    bool
}

// Engine answers posting queries. It never writes and holds no state between calls, so any number of queries may
// run alongside an ingestion run. Postings written moments ago may not be visible yet.
type Engine struct {
	store   store.PostingStore
	config  EngineConfig
	metrics *metrics.Metrics
}

func NewEngine(postingStore store.PostingStore, config EngineConfig, m *metrics.Metrics) *Engine {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = MaxLimit
	}
	if config.MaxFullScanLimit <= 0 {
		config.MaxFullScanLimit = DefaultMaxFullScanLimit
	}
	return &Engine{store: postingStore, config: config, metrics: m}
}

func (e *Engine) Query(ctx context.Context, filter *Filter) (*Result, error) {
	normalized, err := e.normalize(filter)
	if err != nil {
		return nil, err
	}
	index, value, residual := SelectIndex(normalized)
	fullScan := index == store.IndexFullScan
	if fullScan && !e.config.AllowFullScan {
		return nil, &feederrors.ErrInvalidArgument{
			Name:    "filter",
			Value:   "",
			Message: "one of company, category or country is required",
		}
	}
	limit := normalized.Limit
	if fullScan && limit > e.config.MaxFullScanLimit {
		limit = e.config.MaxFullScanLimit
	}

	query := &store.IndexQuery{
		Index:      index,
		Value:      value,
		PostedFrom: normalized.PostedFrom,
		PostedTo:   normalized.PostedTo,
		Residual:   residual,
		Direction:  normalized.Sort,
		Limit:      limit,
	}
	scope := CursorScope(value, residual)
	if normalized.Cursor != "" {
		after, err := DecodeCursor(normalized.Cursor, index, normalized.Sort, scope)
		if err != nil {
			return nil, err
		}
		query.After = after
	}

	page, err := e.store.Query(ctx, query)
	if err != nil {
		return nil, errors.WithMessagef(err, "querying index %s", index)
	}
	e.metrics.RecordQuery(string(index))

	result := &Result{Items: page.Items, Index: index, FullScan: fullScan}
	if result.Items == nil {
		result.Items = []*model.JobPosting{}
	}
	if page.Next != nil {
		token, err := EncodeCursor(index, normalized.Sort, scope, *page.Next)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result.NextCursor = token
	}
	return result, nil
}

// normalize applies defaults and brings filter values into the form they are stored in.
func (e *Engine) normalize(filter *Filter) (*Filter, error) {
	f := *filter
	f.Company = strings.TrimSpace(f.Company)
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	if country := strings.TrimSpace(f.Country); country != "" {
		f.Country = model.NormalizeCountry(country)
		if f.Country == "" {
			f.Country = strings.ToUpper(country)
		}
	}

	switch f.Sort {
	case "":
		f.Sort = store.Descending
	case store.Ascending, store.Descending:
	default:
		return nil, &feederrors.ErrInvalidArgument{Name: "sort", Value: string(f.Sort), Message: "expected asc or desc"}
	}

	switch {
	case f.Limit == 0:
		f.Limit = e.config.DefaultLimit
	case f.Limit < 1:
		f.Limit = 1
	case f.Limit > e.config.MaxLimit:
		f.Limit = e.config.MaxLimit
	}

	if f.PostedFrom != nil && f.PostedTo != nil && *f.PostedFrom > *f.PostedTo {
		return nil, &feederrors.ErrInvalidArgument{Name: "posted_from", Value: strconv.FormatInt(*f.PostedFrom, 10), Message: "after posted_to"}
	}
	return &f, nil
}
