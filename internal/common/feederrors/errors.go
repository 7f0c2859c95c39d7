// Package feederrors contains the generic errors returned by the ingester and the query api.
// The http layer looks for the error types defined in this file to choose a status code.
//
// If multiple errors occur in some function (e.g., several sources failed in one run), that
// function should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package feederrors

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "limit"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrLockUnavailable is returned when the run lock is held by another, unexpired holder.
// It is not a failure: the caller should skip this cycle.
type ErrLockUnavailable struct {
	Name      string
	Holder    string
	ExpiresAt time.Time
}

func (err *ErrLockUnavailable) Error() string {
	if err.Holder == "" {
		return fmt.Sprintf("lock %q is held by another run", err.Name)
	}
	return fmt.Sprintf("lock %q is held by %s until %s", err.Name, err.Holder, err.ExpiresAt.UTC().Format(time.RFC3339))
}

// ErrInvalidCursor is returned when a continuation token cannot be decoded or was issued for another index.
type ErrInvalidCursor struct {
	Reason string
}

func (err *ErrInvalidCursor) Error() string {
	return fmt.Sprintf("invalid cursor: %s", err.Reason)
}

// ErrMaxRetriesExceeded is returned when an operation has been retried until the attempt limit.
type ErrMaxRetriesExceeded struct {
	Message   string
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("exceeded maximum number of retries; last error: %s", err.LastError)
	}
	return fmt.Sprintf("%s; last error: %s", err.Message, err.LastError)
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// IsClientError reports whether err was caused by the caller supplying a bad request.
func IsClientError(err error) bool {
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrInvalidCursor
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}

// HTTPStatusFromError maps error types to http status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsClientError(err) {
		return http.StatusBadRequest
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrLockUnavailable
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// IsNetworkError returns true if err is a network error that may go away if retried.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	{
		var e net.Error
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *net.OpError
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}

// IsRetryablePostgresError returns true if err is a postgres error that may go away if retried,
// e.g. a dropped connection, a serialization failure or the server running out of resources.
func IsRetryablePostgresError(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsTransactionRollback(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	return false
}
