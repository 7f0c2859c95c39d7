package queryapi

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/store"
)

const cursorVersion = 2

// cursor is the decoded form of a continuation token. It names the index and the filter scope it was issued for so
// that it cannot be replayed against another access path or another partition.
type cursor struct {
	Version   int             `json:"v"`
	Index     store.IndexName `json:"idx"`
	Direction store.Direction `json:"dir"`
	Scope     string          `json:"sc"`
	PostedAt  int64           `json:"pa"`
	Company   string          `json:"co"`
	URL       string          `json:"u"`
}

// CursorScope digests the partition value and the residual predicates of a query. The posted_at range is left
// out: a since window slides between requests for consecutive pages.
func CursorScope(value string, residual store.Residual) string {
	remote := ""
	if residual.Remote != nil {
		remote = strconv.FormatBool(*residual.Remote)
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{value, residual.Company, residual.Category, residual.Country, remote}, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

func EncodeCursor(index store.IndexName, direction store.Direction, scope string, key store.CursorKey) (string, error) {
	payload, err := json.Marshal(cursor{
		Version:   cursorVersion,
		Index:     index,
		Direction: direction,
		Scope:     scope,
		PostedAt:  key.PostedAt,
		Company:   key.Company,
		URL:       key.URL,
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor checks that token was issued for index, direction and scope and returns the position it holds.
func DecodeCursor(token string, index store.IndexName, direction store.Direction, scope string) (*store.CursorKey, error) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &feederrors.ErrInvalidCursor{Reason: "not base64url"}
	}
	var c cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, &feederrors.ErrInvalidCursor{Reason: "malformed payload"}
	}
	switch {
	case c.Version != cursorVersion:
		return nil, &feederrors.ErrInvalidCursor{Reason: "unsupported version"}
	case c.Index != index:
		return nil, &feederrors.ErrInvalidCursor{Reason: "issued for index " + string(c.Index) + ", request uses " + string(index)}
	case c.Direction != direction:
		return nil, &feederrors.ErrInvalidCursor{Reason: "issued for another sort direction"}
	case c.Scope != scope:
		return nil, &feederrors.ErrInvalidCursor{Reason: "issued for other filter values"}
	case c.URL == "" || c.Company == "":
		return nil, &feederrors.ErrInvalidCursor{Reason: "missing position"}
	}
	return &store.CursorKey{PostedAt: c.PostedAt, Company: c.Company, URL: c.URL}, nil
}
