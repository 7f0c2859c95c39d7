package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
)

const (
	DefaultPageSize  = 100
	DefaultMaxPages  = 50
	DefaultUserAgent = "jobfeed-ingester/1.0"
	defaultTimeout   = 30 * time.Second
)

var defaultFetchRetry = util.RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// feedPage is the response body of a paged json feed.
type feedPage struct {
	Jobs []*model.RawPosting `json:"jobs"`
}

// HTTPJSONAdapter pages through a json feed using offset and limit query parameters.
// Paging stops at the first short page, or after MaxPages pages.
type HTTPJSONAdapter struct {
	config Config
	client *http.Client
}

func NewHTTPJSONAdapter(config Config, client *http.Client) *HTTPJSONAdapter {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = defaultFetchRetry
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPJSONAdapter{config: config, client: client}
}

func (a *HTTPJSONAdapter) Name() string    { return a.config.Name }
func (a *HTTPJSONAdapter) Company() string { return a.config.Company }

func (a *HTTPJSONAdapter) Open(_ context.Context) (Stream, error) {
	base, err := url.Parse(a.config.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing url of source %s", a.config.Name)
	}
	return &httpStream{adapter: a, base: base}, nil
}

type httpStream struct {
	adapter *HTTPJSONAdapter
	base    *url.URL
	buffer  []*model.RawPosting
	pages   int
	offset  int
	done    bool
}

func (s *httpStream) Next(ctx context.Context) (*model.RawPosting, error) {
	for len(s.buffer) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchNextPage(ctx); err != nil {
			return nil, err
		}
	}
	next := s.buffer[0]
	s.buffer = s.buffer[1:]
	return next, nil
}

func (s *httpStream) fetchNextPage(ctx context.Context) error {
	config := s.adapter.config
	if s.pages > 0 && config.RequestDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.RequestDelay):
		}
	}

	var page *feedPage
	err := util.WithRetry(ctx, config.Retry, func() error {
		p, err := s.getPage(ctx)
		if err != nil {
			return err
		}
		page = p
		return nil
	}, retry.RetryIf(isRetryableFetchError), retry.OnRetry(func(n uint, err error) {
		feedcontext.FromContext(ctx).Log.
			WithField("source", config.Name).
			WithField("offset", s.offset).
			WithError(err).
			Warnf("fetch attempt %d failed, retrying", n+1)
	}))
	if err != nil {
		return err
	}

	s.pages++
	s.offset += len(page.Jobs)
	s.buffer = make([]*model.RawPosting, 0, len(page.Jobs))
	for _, raw := range page.Jobs {
		// A null entry still takes up a slot of the page.
		if raw != nil {
			s.buffer = append(s.buffer, raw)
		}
	}
	if len(page.Jobs) < config.PageSize || s.pages >= config.MaxPages {
		s.done = true
	}
	return nil
}

func (s *httpStream) getPage(ctx context.Context) (*feedPage, error) {
	config := s.adapter.config
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	u := *s.base
	query := u.Query()
	query.Set("offset", strconv.Itoa(s.offset))
	query.Set("limit", strconv.Itoa(config.PageSize))
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.adapter.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{StatusCode: resp.StatusCode, URL: u.String()}
	}
	var page feedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrapf(err, "decoding page at offset %d", s.offset)
	}
	return &page, nil
}

func (s *httpStream) Close() error {
	s.buffer = nil
	s.done = true
	return nil
}

type statusError struct {
	StatusCode int
	URL        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// isRetryableFetchError reports whether a failed page request is worth repeating:
// rate limiting, server errors and network failures are, anything else is not.
func isRetryableFetchError(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || feederrors.IsNetworkError(err)
}
