package model

import (
	"fmt"
	"unicode/utf8"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
)

const (
	MaxURLLength      = 2048
	MaxTitleLength    = 1024
	DefaultCategory   = "other"
	CategoryIT        = "it"
	maxCompanyLength  = 256
	maxCategoryLength = 64
)

type Location struct {
	Country string `json:"country,omitempty"`
	Admin1  string `json:"admin1,omitempty"`
	City    string `json:"city,omitempty"`
}

// Key identifies a posting. Company and URL are unique together.
type Key struct {
	Company string
	URL     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Company, k.URL)
}

// JobPosting is a posting as held by the store. Timestamps are epoch seconds.
// PostedAt is set at first observation and never rewritten; LastSeenAt only moves forward.
type JobPosting struct {
	Company     string   `json:"company"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Location    Location `json:"location"`
	Remote      bool     `json:"remote"`
	PostedAt    int64    `json:"posted_at"`
	LastSeenAt  int64    `json:"last_seen_at"`
}

func (p *JobPosting) Key() Key {
	return Key{Company: p.Company, URL: p.URL}
}

// RawPosting is a posting as produced by a source adapter, before normalisation.
// A zero PostedAt means the source did not say.
type RawPosting struct {
	Company     string   `json:"company"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Location    Location `json:"location"`
	Remote      bool     `json:"remote"`
	PostedAt    int64    `json:"posted_at"`
}

// Validate checks the constraints the store enforces on every row.
func Validate(p *JobPosting) error {
	switch {
	case p.Company == "":
		return &feederrors.ErrInvalidArgument{Name: "company", Value: p.Company, Message: "company is required"}
	case utf8.RuneCountInString(p.Company) > maxCompanyLength:
		return &feederrors.ErrInvalidArgument{Name: "company", Value: p.Company, Message: "too long"}
	case p.URL == "":
		return &feederrors.ErrInvalidArgument{Name: "url", Value: p.URL, Message: "url is required"}
	case len(p.URL) > MaxURLLength:
		return &feederrors.ErrInvalidArgument{Name: "url", Value: p.URL[:64] + "...", Message: fmt.Sprintf("longer than %d bytes", MaxURLLength)}
	case utf8.RuneCountInString(p.Title) > MaxTitleLength:
		return &feederrors.ErrInvalidArgument{Name: "title", Value: p.Key().String(), Message: fmt.Sprintf("longer than %d characters", MaxTitleLength)}
	case p.Category == "" || len(p.Category) > maxCategoryLength:
		return &feederrors.ErrInvalidArgument{Name: "category", Value: p.Category}
	case p.LastSeenAt < p.PostedAt:
		return &feederrors.ErrInvalidArgument{Name: "last_seen_at", Value: p.LastSeenAt, Message: "before posted_at"}
	}
	return nil
}
