// Package memory is a PostingStore held in a go-memdb database. It backs standalone runs and tests.
package memory

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
)

const postingTable = "posting"

const (
	idIndex       = "id"
	companyIndex  = "company"
	categoryIndex = "category"
	countryIndex  = "country"
)

// row is the memdb object. Index fields are flattened because memdb indexes top level fields only.
type row struct {
	Company     string
	URL         string
	Category    string
	Country     string
	Posting     *model.JobPosting
	Fingerprint model.Fingerprint
}

func newRow(p *model.JobPosting, fingerprint model.Fingerprint) *row {
	return &row{
		Company:     p.Company,
		URL:         p.URL,
		Category:    p.Category,
		Country:     p.Location.Country,
		Posting:     p,
		Fingerprint: fingerprint,
	}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			postingTable: {
				Name: postingTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Company"},
								&memdb.StringFieldIndex{Field: "URL"},
							},
						},
					},
					companyIndex: {
						Name:    companyIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Company"},
					},
					categoryIndex: {
						Name:    categoryIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Category"},
					},
					countryIndex: {
						Name:         countryIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Country"},
					},
				},
			},
		},
	}
}

var partitionIndex = map[store.IndexName]string{
	store.IndexCompany:  companyIndex,
	store.IndexCategory: categoryIndex,
	store.IndexCountry:  countryIndex,
	store.IndexFullScan: idIndex,
}

type PostingStore struct {
	db *memdb.MemDB
}

func NewPostingStore() (*PostingStore, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &PostingStore{db: db}, nil
}

func (s *PostingStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *PostingStore) KnownPostings(ctx context.Context, company string) (map[string]model.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(postingTable, companyIndex, company)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	known := make(map[string]model.Fingerprint)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := obj.(*row)
		known[r.URL] = r.Fingerprint
	}
	return known, nil
}

// BatchUpsert applies the whole chunk in one memdb transaction. Items that fail validation are left out of
// the transaction and reported individually.
func (s *PostingStore) BatchUpsert(ctx context.Context, writes []*model.PostingWrite) (*store.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	result := &store.UpsertResult{}
	for _, w := range writes {
		if err := upsert(txn, w); err != nil {
			result.Failed = append(result.Failed, &store.WriteError{Key: w.Key(), Kind: w.Kind, Cause: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, w.Key())
	}
	txn.Commit()
	return result, nil
}

func upsert(txn *memdb.Txn, w *model.PostingWrite) error {
	if w.Posting == nil {
		return errors.New("write has no posting")
	}
	var existing *model.JobPosting
	var existingFingerprint model.Fingerprint
	obj, err := txn.First(postingTable, idIndex, w.Posting.Company, w.Posting.URL)
	if err != nil {
		return errors.WithStack(err)
	}
	if obj != nil {
		existing = obj.(*row).Posting
		existingFingerprint = obj.(*row).Fingerprint
	}
	merged, fingerprint, err := store.Merge(existing, existingFingerprint, w)
	if err != nil {
		return err
	}
	return errors.WithStack(txn.Insert(postingTable, newRow(merged, fingerprint)))
}

func (s *PostingStore) Query(ctx context.Context, query *store.IndexQuery) (*store.QueryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateQuery(query); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	var it memdb.ResultIterator
	var err error
	if query.Index == store.IndexFullScan {
		it, err = txn.Get(postingTable, idIndex)
	} else {
		it, err = txn.Get(postingTable, partitionIndex[query.Index], query.Value)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var matches []*model.JobPosting
	for obj := it.Next(); obj != nil; obj = it.Next() {
		p := obj.(*row).Posting
		if !query.InRange(p.PostedAt) || !query.Residual.Matches(p) {
			continue
		}
		if query.After != nil && !store.KeyOf(p).After(*query.After, query.Direction) {
			continue
		}
		matches = append(matches, p)
	}

	sort.Slice(matches, func(i, j int) bool {
		return store.KeyOf(matches[j]).After(store.KeyOf(matches[i]), query.Direction)
	})

	page := &store.QueryPage{}
	if len(matches) > query.Limit {
		matches = matches[:query.Limit]
		last := store.KeyOf(matches[len(matches)-1])
		page.Next = &last
	}
	page.Items = make([]*model.JobPosting, len(matches))
	for i, p := range matches {
		c := *p
		page.Items[i] = &c
	}
	return page, nil
}
