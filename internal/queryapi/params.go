package queryapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/store"
)

const dateLayout = "2006-01-02"

// DefaultSince is the look-back applied when a request bounds posted_at in no other way.
const DefaultSince = "30d"

var knownParams = map[string]bool{
	"company":     true,
	"category":    true,
	"country":     true,
	"remote":      true,
	"posted_from": true,
	"posted_to":   true,
	"since":       true,
	"sort":        true,
	"limit":       true,
	"cursor":      true,
}

// parseFilter turns query parameters into a Filter. now resolves relative "since" values.
func parseFilter(values url.Values, now time.Time) (*Filter, error) {
	var unknown []string
	for _, name := range maps.Keys(values) {
		if !knownParams[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, &feederrors.ErrInvalidArgument{Name: "query", Value: strings.Join(unknown, ","), Message: "unknown parameter"}
	}

	filter := &Filter{
		Company:  values.Get("company"),
		Category: values.Get("category"),
		Country:  values.Get("country"),
		Sort:     store.Direction(strings.ToLower(values.Get("sort"))),
		Cursor:   values.Get("cursor"),
	}

	if raw := values.Get("remote"); raw != "" {
		remote, err := parseRemote(raw)
		if err != nil {
			return nil, err
		}
		filter.Remote = &remote
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &feederrors.ErrInvalidArgument{Name: "limit", Value: raw, Message: "expected an integer"}
		}
		filter.Limit = limit
	}

	var err error
	if filter.PostedFrom, err = parseTimestamp("posted_from", values.Get("posted_from")); err != nil {
		return nil, err
	}
	if filter.PostedTo, err = parseTimestamp("posted_to", values.Get("posted_to")); err != nil {
		return nil, err
	}
	sinceValue := values.Get("since")
	if sinceValue == "" && filter.PostedFrom == nil && filter.PostedTo == nil {
		sinceValue = DefaultSince
	}
	if sinceValue != "" {
		since, err := parseSince(sinceValue, now)
		if err != nil {
			return nil, err
		}
		if filter.PostedFrom == nil || *filter.PostedFrom < since {
			filter.PostedFrom = &since
		}
	}
	return filter, nil
}

func parseRemote(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, &feederrors.ErrInvalidArgument{Name: "remote", Value: raw, Message: "expected one of 1, true, yes, y, 0, false, no, n"}
}

// parseTimestamp accepts epoch seconds, RFC3339 or a plain date.
func parseTimestamp(name string, raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &seconds, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		seconds := t.Unix()
		return &seconds, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		seconds := t.Unix()
		return &seconds, nil
	}
	return nil, &feederrors.ErrInvalidArgument{Name: name, Value: raw, Message: "expected epoch seconds, RFC3339 or YYYY-MM-DD"}
}

// parseSince accepts a look-back such as 30d or 12h, or an absolute RFC3339 or YYYY-MM-DD time.
func parseSince(raw string, now time.Time) (int64, error) {
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.Add(-time.Duration(n) * 24 * time.Hour).Unix(), nil
		}
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return now.Add(-d).Unix(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.Unix(), nil
	}
	return 0, &feederrors.ErrInvalidArgument{Name: "since", Value: raw, Message: "expected e.g. 30d, 12h, RFC3339 or YYYY-MM-DD"}
}
