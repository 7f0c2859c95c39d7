package queryapi

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
	"github.com/jobfeed/jobfeed/internal/store/memory"
)

const baseTime = int64(1_700_000_000)

func posting(company string, n int, category string, country string, remote bool) *model.JobPosting {
	return &model.JobPosting{
		Company:    company,
		URL:        fmt.Sprintf("https://%s.example/jobs/%d", company, n),
		Title:      fmt.Sprintf("Job %d", n),
		Category:   category,
		Location:   model.Location{Country: country},
		Remote:     remote,
		PostedAt:   baseTime + int64(n),
		LastSeenAt: baseTime + int64(n),
	}
}

// newTestStore holds 10 acme postings (it, DE, even ones remote) and 5 globex postings (other, US).
func newTestStore(t *testing.T) store.PostingStore {
	s, err := memory.NewPostingStore()
	require.NoError(t, err)
	var writes []*model.PostingWrite
	for i := 0; i < 10; i++ {
		writes = append(writes, &model.PostingWrite{Kind: model.WriteInsert, Posting: posting("acme", i, "it", "DE", i%2 == 0)})
	}
	for i := 0; i < 5; i++ {
		writes = append(writes, &model.PostingWrite{Kind: model.WriteInsert, Posting: posting("globex", i, "other", "US", false)})
	}
	result, err := s.BatchUpsert(context.Background(), writes)
	require.NoError(t, err)
	require.Empty(t, result.Failed)
	return s
}

func urls(items []*model.JobPosting) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.URL
	}
	return out
}

func TestQuery_PaginatesNewestFirst(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)

	var seen []string
	filter := &Filter{Company: "acme", Limit: 4}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		result, err := engine.Query(context.Background(), filter)
		require.NoError(t, err)
		assert.Equal(t, store.IndexCompany, result.Index)
		assert.False(t, result.FullScan)
		seen = append(seen, urls(result.Items)...)
		if result.NextCursor == "" {
			break
		}
		filter.Cursor = result.NextCursor
	}
	require.Len(t, seen, 10)
	assert.Equal(t, "https://acme.example/jobs/9", seen[0])
	assert.Equal(t, "https://acme.example/jobs/0", seen[9])
}

func TestQuery_Ascending(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	result, err := engine.Query(context.Background(), &Filter{Category: "other", Sort: store.Ascending})
	require.NoError(t, err)
	assert.Equal(t, store.IndexCategory, result.Index)
	require.Len(t, result.Items, 5)
	assert.Equal(t, "https://globex.example/jobs/0", result.Items[0].URL)
	assert.Empty(t, result.NextCursor)
}

func TestQuery_ResidualFilters(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	remote := true
	from := baseTime + 4
	result, err := engine.Query(context.Background(), &Filter{Country: "germany", Remote: &remote, PostedFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, store.IndexCountry, result.Index)
	assert.Equal(t, []string{
		"https://acme.example/jobs/8",
		"https://acme.example/jobs/6",
		"https://acme.example/jobs/4",
	}, urls(result.Items))
}

func TestQuery_CursorFromAnotherIndexIsRejected(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	result, err := engine.Query(context.Background(), &Filter{Company: "acme", Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, result.NextCursor)

	_, err = engine.Query(context.Background(), &Filter{Category: "it", Limit: 2, Cursor: result.NextCursor})
	var invalid *feederrors.ErrInvalidCursor
	assert.ErrorAs(t, err, &invalid)
}

func TestQuery_CursorFromAnotherPartitionIsRejected(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	result, err := engine.Query(context.Background(), &Filter{Company: "acme", Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, result.NextCursor)

	tests := map[string]*Filter{
		"other company":   {Company: "globex", Limit: 2, Cursor: result.NextCursor},
		"extra residual":  {Company: "acme", Country: "DE", Limit: 2, Cursor: result.NextCursor},
		"remote residual": {Company: "acme", Remote: pointerTo(true), Limit: 2, Cursor: result.NextCursor},
	}
	for name, filter := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Query(context.Background(), filter)
			var invalid *feederrors.ErrInvalidCursor
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestQuery_CursorSurvivesMovingPostedRange(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	from := baseTime
	result, err := engine.Query(context.Background(), &Filter{Company: "acme", PostedFrom: &from, Limit: 4})
	require.NoError(t, err)
	require.NotEmpty(t, result.NextCursor)

	later := baseTime + 1
	next, err := engine.Query(context.Background(), &Filter{Company: "acme", PostedFrom: &later, Limit: 4, Cursor: result.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://acme.example/jobs/5",
		"https://acme.example/jobs/4",
		"https://acme.example/jobs/3",
		"https://acme.example/jobs/2",
	}, urls(next.Items))
}

func pointerTo[T any](v T) *T {
	return &v
}

func TestQuery_FullScan(t *testing.T) {
	disabled := NewEngine(newTestStore(t), EngineConfig{}, nil)
	_, err := disabled.Query(context.Background(), &Filter{})
	var invalid *feederrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)

	enabled := NewEngine(newTestStore(t), EngineConfig{AllowFullScan: true, MaxFullScanLimit: 6}, nil)
	result, err := enabled.Query(context.Background(), &Filter{Limit: 100})
	require.NoError(t, err)
	assert.True(t, result.FullScan)
	assert.Equal(t, store.IndexFullScan, result.Index)
	assert.Len(t, result.Items, 6)
	assert.NotEmpty(t, result.NextCursor)
}

func TestQuery_Limits(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	tests := map[string]struct {
		limit    int
		expected int
	}{
		"default":  {limit: 0, expected: 10},
		"negative": {limit: -5, expected: 1},
		"huge":     {limit: 10_000, expected: 10},
		"small":    {limit: 3, expected: 3},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := engine.Query(context.Background(), &Filter{Company: "acme", Limit: tc.limit})
			require.NoError(t, err)
			assert.Len(t, result.Items, tc.expected)
		})
	}
}

func TestQuery_InvalidArguments(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	from, to := baseTime+10, baseTime

	_, err := engine.Query(context.Background(), &Filter{Company: "acme", Sort: "sideways"})
	assert.True(t, feederrors.IsClientError(err))

	_, err = engine.Query(context.Background(), &Filter{Company: "acme", PostedFrom: &from, PostedTo: &to})
	assert.True(t, feederrors.IsClientError(err))
}

func TestQuery_EmptyResultIsNotNil(t *testing.T) {
	engine := NewEngine(newTestStore(t), EngineConfig{}, nil)
	result, err := engine.Query(context.Background(), &Filter{Company: "initech"})
	require.NoError(t, err)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
}
