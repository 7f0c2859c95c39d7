// Package postgres is the PostingStore backed by a postgres table with one btree index per access path.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
)

var dialect = goqu.Dialect("postgres")

var (
	postingTable = goqu.T("posting")

	posting_company    = goqu.C("company")
	posting_url        = goqu.C("url")
	posting_category   = goqu.C("category")
	posting_locCountry = goqu.C("loc_country")
	posting_remote     = goqu.C("remote")
	posting_postedAt   = goqu.C("posted_at")
)

var postingColumns = []string{
	"company", "url", "title", "description", "category",
	"loc_country", "loc_admin1", "loc_city", "remote", "posted_at", "last_seen_at",
}

// DefaultRetry is used for transient database errors such as dropped connections.
var DefaultRetry = util.RetryConfig{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second}

type PostingStore struct {
	db      *pgxpool.Pool
	metrics *metrics.Metrics
	retry   util.RetryConfig
}

func NewPostingStore(db *pgxpool.Pool, m *metrics.Metrics) *PostingStore {
	return &PostingStore{db: db, metrics: m, retry: DefaultRetry}
}

func (s *PostingStore) Ping(ctx context.Context) error {
	return errors.WithStack(s.db.Ping(ctx))
}

func (s *PostingStore) KnownPostings(ctx context.Context, company string) (map[string]model.Fingerprint, error) {
	known := make(map[string]model.Fingerprint)
	err := s.withDatabaseRetry(ctx, func() error {
		rows, err := s.db.Query(ctx, `SELECT url, content_hash FROM posting WHERE company = $1`, company)
		if err != nil {
			s.metrics.RecordDBError(metrics.DBOperationRead)
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var url, hash string
			if err := rows.Scan(&url, &hash); err != nil {
				return err
			}
			known[url] = model.Fingerprint(hash)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return known, nil
}

// BatchUpsert first tries to write the whole chunk in one transaction using the postgres copy protocol. If
// this fails then each item is written on its own and the items that cannot be written are reported.
func (s *PostingStore) BatchUpsert(ctx context.Context, writes []*model.PostingWrite) (*store.UpsertResult, error) {
	result := &store.UpsertResult{}
	valid := make([]*model.PostingWrite, 0, len(writes))
	for _, w := range writes {
		if err := validateWrite(w); err != nil {
			result.Failed = append(result.Failed, &store.WriteError{Key: keyOf(w), Kind: w.Kind, Cause: err})
			continue
		}
		valid = append(valid, w)
	}
	if len(valid) == 0 {
		return result, nil
	}

	missing, err := s.upsertBatch(ctx, valid)
	if err != nil {
		if isTransient(err) {
			return nil, errors.WithMessage(err, "store unavailable")
		}
		log.Warnf("Upserting %d postings via batch failed, will attempt to write serially (this might be slow).  Error was %+v", len(valid), err)
		return s.upsertScalar(ctx, valid, result)
	}
	for _, w := range valid {
		if _, ok := missing[w.Key()]; ok {
			result.Failed = append(result.Failed, &store.WriteError{Key: w.Key(), Kind: w.Kind, Cause: notFound(w)})
			continue
		}
		result.Succeeded = append(result.Succeeded, w.Key())
	}
	return result, nil
}

// upsertBatch returns the keys of touched postings that do not exist.
func (s *PostingStore) upsertBatch(ctx context.Context, writes []*model.PostingWrite) (map[model.Key]struct{}, error) {
	var missing map[model.Key]struct{}
	err := s.withDatabaseRetry(ctx, func() error {
		tmpTable := database.UniqueTableName("posting")
		return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{
			IsoLevel:   pgx.ReadCommitted,
			AccessMode: pgx.ReadWrite,
		}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s
				(
					company      text,
					url          text,
					title        text,
					description  text,
					category     text,
					loc_country  text,
					loc_admin1   text,
					loc_city     text,
					remote       boolean,
					posted_at    bigint,
					last_seen_at bigint,
					content_hash text,
					kind         smallint
				) ON COMMIT DROP;`, tmpTable))
			if err != nil {
				s.metrics.RecordDBError(metrics.DBOperationCreateTempTable)
				return err
			}

			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{tmpTable},
				append(append([]string{}, postingColumns...), "content_hash", "kind"),
				pgx.CopyFromSlice(len(writes), func(i int) ([]interface{}, error) {
					return append(postingValues(writes[i].Posting), string(writes[i].Fingerprint), int16(writes[i].Kind)), nil
				}),
			)
			if err != nil {
				s.metrics.RecordDBError(metrics.DBOperationInsert)
				return err
			}

			_, err = tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO posting (company, url, title, description, category, loc_country, loc_admin1, loc_city, remote, posted_at, last_seen_at, content_hash)
				SELECT company, url, title, description, category, loc_country, loc_admin1, loc_city, remote, posted_at, last_seen_at, content_hash
				FROM %s WHERE kind <> $1
				%s`, tmpTable, onConflictRefresh), int16(model.WriteTouch))
			if err != nil {
				s.metrics.RecordDBError(metrics.DBOperationInsert)
				return err
			}

			rows, err := tx.Query(ctx, fmt.Sprintf(`
				UPDATE posting p SET last_seen_at = GREATEST(p.last_seen_at, t.last_seen_at)
				FROM %s t
				WHERE t.kind = $1 AND p.company = t.company AND p.url = t.url
				RETURNING p.company, p.url`, tmpTable), int16(model.WriteTouch))
			if err != nil {
				s.metrics.RecordDBError(metrics.DBOperationUpdate)
				return err
			}
			touched := make(map[model.Key]struct{})
			for rows.Next() {
				var key model.Key
				if err := rows.Scan(&key.Company, &key.URL); err != nil {
					rows.Close()
					return err
				}
				touched[key] = struct{}{}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			missing = make(map[model.Key]struct{})
			for _, w := range writes {
				if w.Kind != model.WriteTouch {
					continue
				}
				if _, ok := touched[w.Key()]; !ok {
					missing[w.Key()] = struct{}{}
				}
			}
			return nil
		})
	})
	return missing, err
}

const onConflictRefresh = `ON CONFLICT (company, url) DO UPDATE SET
					title = EXCLUDED.title,
					description = EXCLUDED.description,
					category = EXCLUDED.category,
					loc_country = EXCLUDED.loc_country,
					loc_admin1 = EXCLUDED.loc_admin1,
					loc_city = EXCLUDED.loc_city,
					remote = EXCLUDED.remote,
					last_seen_at = GREATEST(posting.last_seen_at, EXCLUDED.last_seen_at),
					content_hash = EXCLUDED.content_hash`

// upsertScalar writes items one by one, appending to result.
func (s *PostingStore) upsertScalar(ctx context.Context, writes []*model.PostingWrite, result *store.UpsertResult) (*store.UpsertResult, error) {
	upsertStatement := `INSERT INTO posting (company, url, title, description, category, loc_country, loc_admin1, loc_city, remote, posted_at, last_seen_at, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		` + onConflictRefresh
	touchStatement := `UPDATE posting SET last_seen_at = GREATEST(last_seen_at, $3) WHERE company = $1 AND url = $2`

	for _, w := range writes {
		w := w
		err := s.withDatabaseRetry(ctx, func() error {
			if w.Kind == model.WriteTouch {
				tag, err := s.db.Exec(ctx, touchStatement, w.Posting.Company, w.Posting.URL, w.Posting.LastSeenAt)
				if err != nil {
					s.metrics.RecordDBError(metrics.DBOperationUpdate)
					return err
				}
				if tag.RowsAffected() == 0 {
					return notFound(w)
				}
				return nil
			}
			args := append(postingValues(w.Posting), string(w.Fingerprint))
			_, err := s.db.Exec(ctx, upsertStatement, args...)
			if err != nil {
				s.metrics.RecordDBError(metrics.DBOperationInsert)
			}
			return err
		})
		switch {
		case err == nil:
			result.Succeeded = append(result.Succeeded, w.Key())
		case isTransient(err):
			return nil, errors.WithMessage(err, "store unavailable")
		default:
			log.Warnf("Upsert of posting %s failed with error %+v", w.Key(), err)
			result.Failed = append(result.Failed, &store.WriteError{Key: w.Key(), Kind: w.Kind, Cause: err})
		}
	}
	return result, nil
}

func (s *PostingStore) Query(ctx context.Context, query *store.IndexQuery) (*store.QueryPage, error) {
	if err := store.ValidateQuery(query); err != nil {
		return nil, err
	}
	sql, args, err := buildQuery(query)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var items []*model.JobPosting
	err = s.withDatabaseRetry(ctx, func() error {
		items = items[:0]
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			s.metrics.RecordDBError(metrics.DBOperationRead)
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p := &model.JobPosting{}
			err := rows.Scan(&p.Company, &p.URL, &p.Title, &p.Description, &p.Category,
				&p.Location.Country, &p.Location.Admin1, &p.Location.City, &p.Remote, &p.PostedAt, &p.LastSeenAt)
			if err != nil {
				return err
			}
			items = append(items, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	page := &store.QueryPage{Items: items}
	if len(items) > query.Limit {
		page.Items = items[:query.Limit]
		last := store.KeyOf(page.Items[len(page.Items)-1])
		page.Next = &last
	}
	return page, nil
}

// buildQuery selects one more row than the limit so that the caller can tell whether another page exists.
func buildQuery(query *store.IndexQuery) (string, []interface{}, error) {
	var where []exp.Expression
	switch query.Index {
	case store.IndexCompany:
		where = append(where, posting_company.Eq(query.Value))
	case store.IndexCategory:
		where = append(where, posting_category.Eq(query.Value))
	case store.IndexCountry:
		where = append(where, posting_locCountry.Eq(query.Value))
	}
	if query.PostedFrom != nil {
		where = append(where, posting_postedAt.Gte(*query.PostedFrom))
	}
	if query.PostedTo != nil {
		where = append(where, posting_postedAt.Lte(*query.PostedTo))
	}
	if query.Residual.Company != "" {
		where = append(where, posting_company.Eq(query.Residual.Company))
	}
	if query.Residual.Category != "" {
		where = append(where, posting_category.Eq(query.Residual.Category))
	}
	if query.Residual.Country != "" {
		where = append(where, posting_locCountry.Eq(query.Residual.Country))
	}
	if query.Residual.Remote != nil {
		where = append(where, posting_remote.Eq(*query.Residual.Remote))
	}

	comparison := ">"
	order := []exp.OrderedExpression{posting_postedAt.Asc(), posting_company.Asc(), posting_url.Asc()}
	if query.Direction == store.Descending {
		comparison = "<"
		order = []exp.OrderedExpression{posting_postedAt.Desc(), posting_company.Desc(), posting_url.Desc()}
	}
	if query.After != nil {
		where = append(where, goqu.L(
			fmt.Sprintf("(posted_at, company, url) %s (?, ?, ?)", comparison),
			query.After.PostedAt, query.After.Company, query.After.URL))
	}

	columns := make([]interface{}, len(postingColumns))
	for i, c := range postingColumns {
		columns[i] = c
	}
	ds := dialect.From(postingTable).
		Prepared(true).
		Select(columns...).
		Where(where...).
		Order(order...).
		Limit(uint(query.Limit + 1))
	return ds.ToSQL()
}

func (s *PostingStore) withDatabaseRetry(ctx context.Context, action func() error) error {
	return util.WithRetry(ctx, s.retry, action,
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("Retryable error encountered executing sql (attempt %d).  Error was %v", n+1, err)
		}))
}

func isTransient(err error) bool {
	return feederrors.IsNetworkError(err) || feederrors.IsRetryablePostgresError(err)
}

func postingValues(p *model.JobPosting) []interface{} {
	return []interface{}{
		p.Company,
		p.URL,
		p.Title,
		p.Description,
		p.Category,
		p.Location.Country,
		p.Location.Admin1,
		p.Location.City,
		p.Remote,
		p.PostedAt,
		p.LastSeenAt,
	}
}

func validateWrite(w *model.PostingWrite) error {
	if w.Posting == nil {
		return errors.New("write has no posting")
	}
	if w.Kind == model.WriteTouch {
		if w.Posting.Company == "" || w.Posting.URL == "" {
			return &feederrors.ErrInvalidArgument{Name: "key", Value: w.Key().String()}
		}
		return nil
	}
	return model.Validate(w.Posting)
}

func keyOf(w *model.PostingWrite) model.Key {
	if w.Posting == nil {
		return model.Key{}
	}
	return w.Key()
}

func notFound(w *model.PostingWrite) error {
	return &feederrors.ErrNotFound{Type: "posting", Value: w.Key().String()}
}
