// Package store defines the durable keyed table of job postings and its secondary indexes.
package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jobfeed/jobfeed/internal/model"
)

// IndexName names an access path over the posting table.
type IndexName string

const (
	IndexCompany  IndexName = "company_posted"
	IndexCategory IndexName = "category_posted"
	IndexCountry  IndexName = "country_posted"
	// IndexFullScan is not an index: it walks the whole table ordered by posted_at.
	IndexFullScan IndexName = "full_scan"
)

func (i IndexName) Valid() bool {
	switch i {
	case IndexCompany, IndexCategory, IndexCountry, IndexFullScan:
		return true
	}
	return false
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// CursorKey is the position of a posting in every index ordering: (posted_at, company, url).
type CursorKey struct {
	PostedAt int64
	Company  string
	URL      string
}

func KeyOf(p *model.JobPosting) CursorKey {
	return CursorKey{PostedAt: p.PostedAt, Company: p.Company, URL: p.URL}
}

// Less orders keys by posted_at, then company, then url.
func (k CursorKey) Less(other CursorKey) bool {
	if k.PostedAt != other.PostedAt {
		return k.PostedAt < other.PostedAt
	}
	if k.Company != other.Company {
		return k.Company < other.Company
	}
	return k.URL < other.URL
}

// After reports whether k comes strictly after other when walking in direction.
func (k CursorKey) After(other CursorKey, direction Direction) bool {
	if direction == Descending {
		return k.Less(other)
	}
	return other.Less(k)
}

// Residual holds predicates applied on top of the index partition.
type Residual struct {
	Company  string
	Category string
	Country  string
	Remote   *bool
}

func (r Residual) Matches(p *model.JobPosting) bool {
	if r.Company != "" && p.Company != r.Company {
		return false
	}
	if r.Category != "" && p.Category != r.Category {
		return false
	}
	if r.Country != "" && p.Location.Country != r.Country {
		return false
	}
	if r.Remote != nil && p.Remote != *r.Remote {
		return false
	}
	return true
}

// IndexQuery reads one page from an index partition. Value is the partition key (unused for a full scan),
// PostedFrom and PostedTo are inclusive bounds and After, when set, excludes everything up to and including it.
type IndexQuery struct {
	Index      IndexName
	Value      string
	PostedFrom *int64
	PostedTo   *int64
	Residual   Residual
	Direction  Direction
	After      *CursorKey
	Limit      int
}

func (q *IndexQuery) InRange(postedAt int64) bool {
	if q.PostedFrom != nil && postedAt < *q.PostedFrom {
		return false
	}
	if q.PostedTo != nil && postedAt > *q.PostedTo {
		return false
	}
	return true
}

// QueryPage is a page of postings. Next is set when more postings may follow the last item.
type QueryPage struct {
	Items []*model.JobPosting
	Next  *CursorKey
}

// WriteError reports a single item of a batch that could not be written.
type WriteError struct {
	Key   model.Key
	Kind  model.WriteKind
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Kind, e.Key, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

type UpsertResult struct {
	Succeeded []model.Key
	Failed    []*WriteError
}

type PostingStore interface {
	// Ping returns an error if the store cannot be reached.
	Ping(ctx context.Context) error
	// KnownPostings returns the url and stored fingerprint of every posting of company.
	KnownPostings(ctx context.Context, company string) (map[string]model.Fingerprint, error)
	// BatchUpsert applies writes idempotently. Items that cannot be written are reported in the result;
	// an error is returned only when the store as a whole is unavailable.
	BatchUpsert(ctx context.Context, writes []*model.PostingWrite) (*UpsertResult, error)
	// Query reads a page from an index. It never mutates.
	Query(ctx context.Context, query *IndexQuery) (*QueryPage, error)
}

// ValidateQuery checks the fields every backend relies on.
func ValidateQuery(q *IndexQuery) error {
	if !q.Index.Valid() {
		return errors.Errorf("unknown index %q", q.Index)
	}
	if q.Index != IndexFullScan && q.Value == "" {
		return errors.Errorf("index %s needs a partition value", q.Index)
	}
	if q.Direction != Ascending && q.Direction != Descending {
		return errors.Errorf("unknown direction %q", q.Direction)
	}
	if q.Limit <= 0 {
		return errors.Errorf("limit must be positive, got %d", q.Limit)
	}
	return nil
}
