package ingester

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/logging"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/store"
	"github.com/jobfeed/jobfeed/internal/store/memory"
)

var (
	testNow   = time.Unix(1_800_000_000, 0)
	testStart = int64(1_700_000_000)
)

func testContext() *feedcontext.Context {
	return feedcontext.New(context.Background(), logging.NullEntry())
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		MaxNewPerRun:         300,
		ChunkUpsertSize:      100,
		ChunkMaxWait:         time.Hour,
		MaxConcurrentSources: 4,
		Retry:                util.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		Equality:             model.DefaultEqualityPolicy(),
	}
}

func newMemoryStore(t *testing.T) *memory.PostingStore {
	s, err := memory.NewPostingStore()
	require.NoError(t, err)
	return s
}

func newTestEngine(s store.PostingStore, config EngineConfig) *Engine {
	return NewEngine(s, config, clock.NewFakeClock(testNow), nil)
}

// faultyStore wraps a real store and fails chosen urls, or the whole store.
type faultyStore struct {
	store.PostingStore
	mu sync.Mutex
	// url to the number of times writes of it fail; negative fails forever.
	failures    map[string]int
	cause       error
	unavailable error
	pingErr     error
	attempts    map[string]int
}

func newFaultyStore(inner store.PostingStore, cause error) *faultyStore {
	return &faultyStore{
		PostingStore: inner,
		failures:     map[string]int{},
		cause:        cause,
		attempts:     map[string]int{},
	}
}

func (s *faultyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.PostingStore.Ping(ctx)
}

func (s *faultyStore) BatchUpsert(ctx context.Context, writes []*model.PostingWrite) (*store.UpsertResult, error) {
	s.mu.Lock()
	if s.unavailable != nil {
		s.mu.Unlock()
		return nil, s.unavailable
	}
	result := &store.UpsertResult{}
	passed := make([]*model.PostingWrite, 0, len(writes))
	for _, w := range writes {
		s.attempts[w.Posting.URL]++
		if remaining := s.failures[w.Posting.URL]; remaining != 0 {
			if remaining > 0 {
				s.failures[w.Posting.URL]--
			}
			result.Failed = append(result.Failed, &store.WriteError{Key: w.Key(), Kind: w.Kind, Cause: s.cause})
			continue
		}
		passed = append(passed, w)
	}
	s.mu.Unlock()

	inner, err := s.PostingStore.BatchUpsert(ctx, passed)
	if err != nil {
		return nil, err
	}
	result.Succeeded = append(result.Succeeded, inner.Succeeded...)
	result.Failed = append(result.Failed, inner.Failed...)
	return result, nil
}

func (s *faultyStore) attemptsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[url]
}

func countPostings(t *testing.T, s store.PostingStore, company string) int {
	known, err := s.KnownPostings(context.Background(), company)
	require.NoError(t, err)
	return len(known)
}
