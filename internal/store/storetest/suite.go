// Package storetest holds behaviour every PostingStore implementation must share.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
)

// WithStore runs action against an empty store.
type WithStore func(t *testing.T, action func(s store.PostingStore))

func Posting(company string, n int, postedAt int64) *model.JobPosting {
	return &model.JobPosting{
		Company:    company,
		URL:        fmt.Sprintf("https://%s.example/jobs/%d", company, n),
		Title:      fmt.Sprintf("Engineer %d", n),
		Category:   model.CategoryIT,
		Location:   model.Location{Country: "US"},
		PostedAt:   postedAt,
		LastSeenAt: postedAt,
	}
}

func Insert(p *model.JobPosting) *model.PostingWrite {
	return &model.PostingWrite{Kind: model.WriteInsert, Posting: p, Fingerprint: model.DefaultEqualityPolicy().Fingerprint(p)}
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return c
}

func Run(t *testing.T, withStore WithStore) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIsIdempotent(t, withStore) })
	t.Run("PostedAtImmutableAndLastSeenMonotone", func(t *testing.T) { testPostedAtImmutable(t, withStore) })
	t.Run("TouchMissingFails", func(t *testing.T) { testTouchMissing(t, withStore) })
	t.Run("MalformedItemFailsAlone", func(t *testing.T) { testMalformedItem(t, withStore) })
	t.Run("KnownPostings", func(t *testing.T) { testKnownPostings(t, withStore) })
	t.Run("QueryPagination", func(t *testing.T) { testQueryPagination(t, withStore) })
	t.Run("QueryFilters", func(t *testing.T) { testQueryFilters(t, withStore) })
}

func testUpsertIsIdempotent(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		writes := []*model.PostingWrite{Insert(Posting("acme", 1, 100)), Insert(Posting("acme", 2, 200))}
		for i := 0; i < 2; i++ {
			result, err := s.BatchUpsert(ctx(t), writes)
			require.NoError(t, err)
			assert.Len(t, result.Succeeded, 2)
			assert.Empty(t, result.Failed)
		}
		page, err := s.Query(ctx(t), &store.IndexQuery{Index: store.IndexCompany, Value: "acme", Direction: store.Descending, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, Posting("acme", 2, 200), page.Items[0])
		assert.Equal(t, Posting("acme", 1, 100), page.Items[1])
		assert.Nil(t, page.Next)
	})
}

func testPostedAtImmutable(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		original := Posting("acme", 1, 100)
		_, err := s.BatchUpsert(ctx(t), []*model.PostingWrite{Insert(original)})
		require.NoError(t, err)

		refreshed := *original
		refreshed.Title = "Staff Engineer"
		refreshed.PostedAt = 300
		refreshed.LastSeenAt = 300
		result, err := s.BatchUpsert(ctx(t), []*model.PostingWrite{{Kind: model.WriteRefresh, Posting: &refreshed, Fingerprint: "f2"}})
		require.NoError(t, err)
		require.Empty(t, result.Failed)

		stale := *original
		stale.LastSeenAt = 200
		result, err = s.BatchUpsert(ctx(t), []*model.PostingWrite{{Kind: model.WriteTouch, Posting: &stale}})
		require.NoError(t, err)
		require.Empty(t, result.Failed)

		page, err := s.Query(ctx(t), &store.IndexQuery{Index: store.IndexCompany, Value: "acme", Direction: store.Descending, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Staff Engineer", page.Items[0].Title)
		assert.Equal(t, int64(100), page.Items[0].PostedAt)
		assert.Equal(t, int64(300), page.Items[0].LastSeenAt)

		known, err := s.KnownPostings(ctx(t), "acme")
		require.NoError(t, err)
		assert.Equal(t, map[string]model.Fingerprint{original.URL: "f2"}, known)
	})
}

func testTouchMissing(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		result, err := s.BatchUpsert(ctx(t), []*model.PostingWrite{
			{Kind: model.WriteTouch, Posting: Posting("acme", 1, 100)},
			Insert(Posting("acme", 2, 100)),
		})
		require.NoError(t, err)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, Posting("acme", 1, 100).Key(), result.Failed[0].Key)
		assert.Equal(t, []model.Key{Posting("acme", 2, 100).Key()}, result.Succeeded)
	})
}

func testMalformedItem(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		writes := make([]*model.PostingWrite, 0, 100)
		for i := 0; i < 100; i++ {
			writes = append(writes, Insert(Posting("acme", i, int64(1000+i))))
		}
		writes[42].Posting.URL = "https://acme.example/" + strings.Repeat("x", model.MaxURLLength)

		result, err := s.BatchUpsert(ctx(t), writes)
		require.NoError(t, err)
		assert.Len(t, result.Succeeded, 99)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, writes[42].Key(), result.Failed[0].Key)

		known, err := s.KnownPostings(ctx(t), "acme")
		require.NoError(t, err)
		assert.Len(t, known, 99)
	})
}

func testKnownPostings(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		a := Insert(Posting("acme", 1, 100))
		b := Insert(Posting("globex", 1, 100))
		_, err := s.BatchUpsert(ctx(t), []*model.PostingWrite{a, b})
		require.NoError(t, err)

		known, err := s.KnownPostings(ctx(t), "acme")
		require.NoError(t, err)
		assert.Equal(t, map[string]model.Fingerprint{a.Posting.URL: a.Fingerprint}, known)

		known, err = s.KnownPostings(ctx(t), "initech")
		require.NoError(t, err)
		assert.Empty(t, known)
	})
}

func testQueryPagination(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		var writes []*model.PostingWrite
		for i := 0; i < 25; i++ {
			// Pairs share posted_at so that ties are broken by url.
			writes = append(writes, Insert(Posting("acme", i, int64(1000+i/2))))
		}
		_, err := s.BatchUpsert(ctx(t), writes)
		require.NoError(t, err)

		for _, direction := range []store.Direction{store.Descending, store.Ascending} {
			var seen []store.CursorKey
			var after *store.CursorKey
			for pages := 0; ; pages++ {
				require.Less(t, pages, 10)
				page, err := s.Query(ctx(t), &store.IndexQuery{
					Index:     store.IndexCompany,
					Value:     "acme",
					Direction: direction,
					After:     after,
					Limit:     10,
				})
				require.NoError(t, err)
				for _, p := range page.Items {
					seen = append(seen, store.KeyOf(p))
				}
				if page.Next == nil {
					break
				}
				after = page.Next
			}
			require.Len(t, seen, 25, "direction %s", direction)
			for i := 1; i < len(seen); i++ {
				assert.True(t, seen[i].After(seen[i-1], direction), "direction %s position %d", direction, i)
			}
		}
	})
}

func testQueryFilters(t *testing.T, withStore WithStore) {
	withStore(t, func(s store.PostingStore) {
		remote := true
		us := Posting("acme", 1, 100)
		de := Posting("acme", 2, 200)
		de.Location.Country = "DE"
		de.Remote = true
		sales := Posting("globex", 3, 300)
		sales.Category = "other"
		_, err := s.BatchUpsert(ctx(t), []*model.PostingWrite{Insert(us), Insert(de), Insert(sales)})
		require.NoError(t, err)

		from, to := int64(150), int64(250)
		tests := map[string]struct {
			query    store.IndexQuery
			expected []*model.JobPosting
		}{
			"category": {
				query:    store.IndexQuery{Index: store.IndexCategory, Value: model.CategoryIT},
				expected: []*model.JobPosting{de, us},
			},
			"country": {
				query:    store.IndexQuery{Index: store.IndexCountry, Value: "DE"},
				expected: []*model.JobPosting{de},
			},
			"company with posted range": {
				query:    store.IndexQuery{Index: store.IndexCompany, Value: "acme", PostedFrom: &from, PostedTo: &to},
				expected: []*model.JobPosting{de},
			},
			"category with residual country": {
				query:    store.IndexQuery{Index: store.IndexCategory, Value: model.CategoryIT, Residual: store.Residual{Country: "US"}},
				expected: []*model.JobPosting{us},
			},
			"full scan remote only": {
				query:    store.IndexQuery{Index: store.IndexFullScan, Residual: store.Residual{Remote: &remote}},
				expected: []*model.JobPosting{de},
			},
			"full scan": {
				query:    store.IndexQuery{Index: store.IndexFullScan},
				expected: []*model.JobPosting{sales, de, us},
			},
		}
		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				query := tc.query
				query.Direction = store.Descending
				query.Limit = 10
				page, err := s.Query(ctx(t), &query)
				require.NoError(t, err)
				assert.Equal(t, tc.expected, page.Items)
			})
		}
	})
}
