package model

import (
	"regexp"
	"strings"
	"unicode"
)

var itCategoryRegex = regexp.MustCompile(`(?i)\b(software|developer|engineer|sde|swe|frontend|back[- ]?end|full[- ]?stack|ios|android|` +
	`devops|sre|site reliability|platform|infra|cloud|security engineer|secops|` +
	`data engineer|data scientist|ml engineer|machine learning|ai|qa|test|automation|` +
	`systems engineer|network engineer|sysadmin|it support|help ?desk)\b`)

var trailingParenthesis = regexp.MustCompile(`\s+\(.*\)$`)

var countryAliases = map[string]string{
	"united states of america": "US",
	"united states":            "US",
	"u.s.":                     "US",
	"u.s.a.":                   "US",
	"usa":                      "US",
	"united kingdom":           "GB",
	"uk":                       "GB",
	"england":                  "GB",
	"scotland":                 "GB",
	"wales":                    "GB",
	"ireland":                  "IE",
	"canada":                   "CA",
	"australia":                "AU",
	"germany":                  "DE",
	"france":                   "FR",
	"spain":                    "ES",
	"italy":                    "IT",
	"netherlands":              "NL",
	"sweden":                   "SE",
	"norway":                   "NO",
	"denmark":                  "DK",
	"switzerland":              "CH",
	"japan":                    "JP",
	"korea, republic of":       "KR",
	"south korea":              "KR",
	"india":                    "IN",
	"brazil":                   "BR",
	"mexico":                   "MX",
	"singapore":                "SG",
	"united arab emirates":     "AE",
	"uae":                      "AE",
}

// ClassifyCategory returns "it" for technology roles and "other" for everything else.
func ClassifyCategory(title string, description string) string {
	if itCategoryRegex.MatchString(title + " " + description) {
		return CategoryIT
	}
	return DefaultCategory
}

// NormalizeCountry maps a country name or code to an upper-case ISO 3166 alpha-2 code.
// Unknown names map to the empty string.
func NormalizeCountry(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) == 2 && isLetters(trimmed) {
		return strings.ToUpper(trimmed)
	}
	key := trailingParenthesis.ReplaceAllString(strings.ToLower(trimmed), "")
	return countryAliases[key]
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Normalize turns a raw posting into the stored form. now (epoch seconds) becomes last_seen_at and,
// when the source gave none, posted_at. A posted_at in the future is clamped to now.
func Normalize(raw *RawPosting, now int64) *JobPosting {
	p := &JobPosting{
		Company:     strings.TrimSpace(raw.Company),
		URL:         strings.TrimSpace(raw.URL),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Category:    strings.ToLower(strings.TrimSpace(raw.Category)),
		Location: Location{
			Country: NormalizeCountry(raw.Location.Country),
			Admin1:  strings.TrimSpace(raw.Location.Admin1),
			City:    strings.TrimSpace(raw.Location.City),
		},
		Remote:     raw.Remote,
		PostedAt:   raw.PostedAt,
		LastSeenAt: now,
	}
	if p.Category == "" {
		p.Category = ClassifyCategory(p.Title, p.Description)
	}
	if p.PostedAt <= 0 || p.PostedAt > now {
		p.PostedAt = now
	}
	return p
}
