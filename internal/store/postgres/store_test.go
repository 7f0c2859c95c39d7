package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
	"github.com/jobfeed/jobfeed/internal/store/storetest"
)

func withTestStore(t *testing.T, action func(s *PostingStore, db *pgxpool.Pool)) {
	migrations, err := Migrations()
	require.NoError(t, err)
	database.WithTestDb(t, migrations, func(db *pgxpool.Pool) {
		action(NewPostingStore(db, nil), db)
	})
}

func TestPostingStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, action func(s store.PostingStore)) {
		withTestStore(t, func(s *PostingStore, _ *pgxpool.Pool) {
			action(s)
		})
	})
}

func TestBatchUpsert_DuplicateKeysFallBackToScalar(t *testing.T) {
	withTestStore(t, func(s *PostingStore, db *pgxpool.Pool) {
		first := storetest.Posting("acme", 1, 100)
		second := *first
		second.Title = "Renamed"
		second.LastSeenAt = 200

		// Two rows with the same key make the set based upsert fail.
		result, err := s.BatchUpsert(context.Background(), []*model.PostingWrite{
			storetest.Insert(first),
			{Kind: model.WriteRefresh, Posting: &second, Fingerprint: "f"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Succeeded, 2)
		assert.Empty(t, result.Failed)

		var title string
		var lastSeen int64
		err = db.QueryRow(context.Background(), `SELECT title, last_seen_at FROM posting WHERE company = 'acme'`).Scan(&title, &lastSeen)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", title)
		assert.Equal(t, int64(200), lastSeen)
	})
}

func TestMigrations(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	assert.Len(t, migrations, 2)
}

func TestBuildQuery(t *testing.T) {
	from := int64(100)
	remote := true
	sql, args, err := buildQuery(&store.IndexQuery{
		Index:      store.IndexCategory,
		Value:      "it",
		PostedFrom: &from,
		Residual:   store.Residual{Country: "US", Remote: &remote},
		Direction:  store.Descending,
		After:      &store.CursorKey{PostedAt: 500, Company: "acme", URL: "https://a/1"},
		Limit:      10,
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `FROM "posting"`)
	assert.Contains(t, sql, `("category" = $1)`)
	assert.Contains(t, sql, `("posted_at" >= $2)`)
	assert.Contains(t, sql, `("loc_country" = $3)`)
	assert.Contains(t, sql, `(posted_at, company, url) < ($4, $5, $6)`)
	assert.Contains(t, sql, `ORDER BY "posted_at" DESC, "company" DESC, "url" DESC`)
	assert.Contains(t, sql, `LIMIT $7`)
	assert.Equal(t, []interface{}{"it", int64(100), "US", int64(500), "acme", "https://a/1"}, args[:6])
}

func TestBuildQuery_FullScanAscending(t *testing.T) {
	sql, _, err := buildQuery(&store.IndexQuery{
		Index:     store.IndexFullScan,
		Direction: store.Ascending,
		Limit:     5,
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, `ORDER BY "posted_at" ASC, "company" ASC, "url" ASC`)
}
