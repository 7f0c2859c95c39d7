// Package sourcetest provides in-memory adapters for exercising code that consumes sources.
package sourcetest

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/source"
)

// StaticAdapter replays a fixed list of postings. If FailAfter is non-negative, the stream returns
// FailWith once that many postings have been produced. If OpenErr is set, Open fails. A nil entry in Postings
// is handed out as a nil posting.
type StaticAdapter struct {
	SourceName    string
	SourceCompany string
	Postings      []*model.RawPosting
	FailAfter     int
	FailWith      error
	OpenErr       error
	opened        atomic.Int32
}

func NewStaticAdapter(name string, company string, postings []*model.RawPosting) *StaticAdapter {
	return &StaticAdapter{
		SourceName:    name,
		SourceCompany: company,
		Postings:      postings,
		FailAfter:     -1,
	}
}

func (a *StaticAdapter) Name() string    { return a.SourceName }
func (a *StaticAdapter) Company() string { return a.SourceCompany }

// Opened returns how many times Open has been called.
func (a *StaticAdapter) Opened() int {
	return int(a.opened.Load())
}

func (a *StaticAdapter) Open(_ context.Context) (source.Stream, error) {
	a.opened.Add(1)
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}
	return &staticStream{adapter: a}, nil
}

type staticStream struct {
	adapter *StaticAdapter
	pos     int
}

func (s *staticStream) Next(ctx context.Context) (*model.RawPosting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.adapter.FailAfter >= 0 && s.pos >= s.adapter.FailAfter {
		return nil, s.adapter.FailWith
	}
	if s.pos >= len(s.adapter.Postings) {
		return nil, io.EOF
	}
	raw := s.adapter.Postings[s.pos]
	s.pos++
	if raw == nil {
		return nil, nil
	}
	p := *raw
	return &p, nil
}

func (s *staticStream) Close() error {
	return nil
}

// Postings generates n distinct raw postings for company, with posted_at counting up from postedAt.
func Postings(company string, n int, postedAt int64) []*model.RawPosting {
	postings := make([]*model.RawPosting, n)
	for i := 0; i < n; i++ {
		postings[i] = &model.RawPosting{
			Company:  company,
			URL:      fmt.Sprintf("https://jobs.example.com/%s/%d", company, i),
			Title:    fmt.Sprintf("Software Engineer %d", i),
			Category: model.CategoryIT,
			Location: model.Location{Country: "US"},
			PostedAt: postedAt + int64(i),
		}
	}
	return postings
}
