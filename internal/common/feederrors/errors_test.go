package feederrors

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected int
	}{
		"nil": {
			err:      nil,
			expected: http.StatusOK,
		},
		"invalid argument": {
			err:      &ErrInvalidArgument{Name: "limit", Value: "x"},
			expected: http.StatusBadRequest,
		},
		"wrapped invalid cursor": {
			err:      errors.WithMessage(&ErrInvalidCursor{Reason: "index mismatch"}, "decoding"),
			expected: http.StatusBadRequest,
		},
		"not found": {
			err:      errors.WithStack(&ErrNotFound{Type: "posting", Value: "x"}),
			expected: http.StatusNotFound,
		},
		"lock unavailable": {
			err:      &ErrLockUnavailable{Name: "ingest"},
			expected: http.StatusConflict,
		},
		"unknown": {
			err:      fmt.Errorf("boom"),
			expected: http.StatusInternalServerError,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, HTTPStatusFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `value "0" is invalid for field "limit"`, (&ErrInvalidArgument{Name: "limit", Value: "0"}).Error())
	assert.Equal(t, `value "0" is invalid for field "limit"; too small`, (&ErrInvalidArgument{Name: "limit", Value: "0", Message: "too small"}).Error())
	assert.Equal(t, `resource "x" of type "posting" does not exist`, (&ErrNotFound{Type: "posting", Value: "x"}).Error())
	assert.Equal(t, `lock "ingest" is held by another run`, (&ErrLockUnavailable{Name: "ingest"}).Error())
	assert.Equal(t, "invalid cursor: bad", (&ErrInvalidCursor{Reason: "bad"}).Error())
}

func TestErrMaxRetriesExceeded_Unwrap(t *testing.T) {
	cause := fmt.Errorf("cause")
	err := &ErrMaxRetriesExceeded{Message: "gave up", LastError: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gave up; last error: cause", err.Error())
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(fmt.Errorf("plain")))
	assert.True(t, IsNetworkError(errors.WithStack(io.ErrUnexpectedEOF)))
	assert.True(t, IsNetworkError(&net.OpError{Op: "dial", Err: fmt.Errorf("refused")}))
}

func TestIsRetryablePostgresError(t *testing.T) {
	assert.False(t, IsRetryablePostgresError(nil))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.StringDataRightTruncationDataException}))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, IsRetryablePostgresError(errors.WithStack(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})))
	assert.True(t, IsRetryablePostgresError(&pgconn.PgError{Code: pgerrcode.TooManyConnections}))
}
