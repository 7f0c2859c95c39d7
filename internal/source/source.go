// Package source defines how postings are pulled from external job boards.
package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
)

// Adapter produces the postings of one source. Every call to Open restarts the sequence from the beginning,
// and postings come back in the same order on every call.
type Adapter interface {
	Name() string
	// Company is the company every posting of this source belongs to.
	Company() string
	Open(ctx context.Context) (Stream, error)
}

// Stream is a lazy, finite sequence of postings. Next returns io.EOF once the sequence is exhausted.
type Stream interface {
	Next(ctx context.Context) (*model.RawPosting, error)
	Close() error
}

// FetchError reports that a source could not be read. It never affects other sources.
type FetchError struct {
	Source string
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching source %s: %v", e.Source, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

type Kind string

const (
	KindHTTPJSON Kind = "httpjson"
	KindFile     Kind = "file"
)

type Config struct {
	Name    string `validate:"required"`
	Company string `validate:"required"`
	Kind    Kind   `validate:"oneof=httpjson file"`
	// Feed url for httpjson sources.
	URL string
	// JSON lines file for file sources.
	Path         string
	PageSize     int
	MaxPages     int
	RequestDelay time.Duration
	UserAgent    string
	Timeout      time.Duration
	// Zero attempts means the adapter default.
	Retry util.RetryConfig `validate:"-"`
}

// Build creates the adapters described by configs. Source names must be unique.
func Build(configs []Config, client *http.Client) ([]Adapter, error) {
	seen := make(map[string]bool, len(configs))
	adapters := make([]Adapter, 0, len(configs))
	for _, c := range configs {
		if c.Name == "" || c.Company == "" {
			return nil, &feederrors.ErrInvalidArgument{Name: "sources", Value: c.Name, Message: "name and company are required"}
		}
		if seen[c.Name] {
			return nil, &feederrors.ErrInvalidArgument{Name: "sources.name", Value: c.Name, Message: "duplicate source"}
		}
		seen[c.Name] = true

		switch c.Kind {
		case KindHTTPJSON:
			if c.URL == "" {
				return nil, &feederrors.ErrInvalidArgument{Name: "sources.url", Value: c.Name, Message: "httpjson sources need a url"}
			}
			adapters = append(adapters, NewHTTPJSONAdapter(c, client))
		case KindFile:
			if c.Path == "" {
				return nil, &feederrors.ErrInvalidArgument{Name: "sources.path", Value: c.Name, Message: "file sources need a path"}
			}
			adapters = append(adapters, NewFileAdapter(c.Name, c.Company, c.Path))
		default:
			return nil, &feederrors.ErrInvalidArgument{Name: "sources.kind", Value: string(c.Kind)}
		}
	}
	return adapters, nil
}

// Filter keeps the adapters whose name is in names. An empty names keeps everything.
func Filter(adapters []Adapter, names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return adapters, nil
	}
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	filtered := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, ok := byName[name]
		if !ok {
			return nil, &feederrors.ErrNotFound{Type: "source", Value: name}
		}
		filtered = append(filtered, a)
	}
	return filtered, nil
}
