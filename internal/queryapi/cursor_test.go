package queryapi

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/store"
)

func TestCursor_RoundTrip(t *testing.T) {
	key := store.CursorKey{PostedAt: 1700000000, Company: "acme", URL: "https://acme.example/jobs/1?ref=feed"}
	scope := CursorScope("acme", store.Residual{})
	token, err := EncodeCursor(store.IndexCompany, store.Descending, scope, key)
	require.NoError(t, err)

	decoded, err := DecodeCursor(token, store.IndexCompany, store.Descending, scope)
	require.NoError(t, err)
	assert.Equal(t, key, *decoded)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	key := store.CursorKey{PostedAt: 1700000000, Company: "acme", URL: "https://acme.example/jobs/1"}
	acme := CursorScope("acme", store.Residual{})
	companyToken, err := EncodeCursor(store.IndexCompany, store.Descending, acme, key)
	require.NoError(t, err)

	tests := map[string]struct {
		token     string
		index     store.IndexName
		direction store.Direction
		scope     string
	}{
		"other index":     {token: companyToken, index: store.IndexCategory, direction: store.Descending, scope: acme},
		"other direction": {token: companyToken, index: store.IndexCompany, direction: store.Ascending, scope: acme},
		"other partition": {token: companyToken, index: store.IndexCompany, direction: store.Descending, scope: CursorScope("globex", store.Residual{})},
		"not base64":      {token: "%%%", index: store.IndexCompany, direction: store.Descending, scope: acme},
		"not json":        {token: base64.RawURLEncoding.EncodeToString([]byte("hello")), index: store.IndexCompany, direction: store.Descending, scope: acme},
		"wrong version": {
			token:     base64.RawURLEncoding.EncodeToString([]byte(`{"v":9,"idx":"company_posted","dir":"desc","pa":1,"co":"a","u":"b"}`)),
			index:     store.IndexCompany,
			direction: store.Descending,
			scope:     acme,
		},
		"no position": {
			token:     base64.RawURLEncoding.EncodeToString([]byte(`{"v":2,"idx":"company_posted","dir":"desc","sc":"`+acme+`"}`)),
			index:     store.IndexCompany,
			direction: store.Descending,
			scope:     acme,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor(tc.token, tc.index, tc.direction, tc.scope)
			var invalid *feederrors.ErrInvalidCursor
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestCursorScope(t *testing.T) {
	remote := true
	notRemote := false
	base := CursorScope("it", store.Residual{Country: "DE"})

	assert.Equal(t, base, CursorScope("it", store.Residual{Country: "DE"}))
	assert.NotEqual(t, base, CursorScope("other", store.Residual{Country: "DE"}))
	assert.NotEqual(t, base, CursorScope("it", store.Residual{Country: "US"}))
	assert.NotEqual(t, CursorScope("it", store.Residual{Remote: &remote}), CursorScope("it", store.Residual{Remote: &notRemote}))
	assert.NotEqual(t, CursorScope("it", store.Residual{}), CursorScope("it", store.Residual{Remote: &notRemote}))
}
