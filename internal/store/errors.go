package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeFatal means the store could not be opened, destroyed or recreated.
	// Callers treat it as a failed process start.
	ErrCodeFatal ErrorCode = "FATAL"

	// ErrCodeCommit means a change set was rejected. Nothing from it was persisted.
	ErrCodeCommit ErrorCode = "COMMIT"

	// ErrCodeQuery means a read failed.
	ErrCodeQuery ErrorCode = "QUERY"

	// ErrCodeClosed means the store was closed or destroyed.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// StoreError is returned by every Store operation that fails.
type StoreError struct {
	Code ErrorCode
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store %s: %s", e.Op, e.Code)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func fatal(op, path string, err error) *StoreError {
	return &StoreError{Code: ErrCodeFatal, Op: op, Path: path, Err: err}
}

func queryErr(op string, err error) *StoreError {
	return &StoreError{Code: ErrCodeQuery, Op: op, Err: err}
}

func commitErr(op string, err error) *StoreError {
	return &StoreError{Code: ErrCodeCommit, Op: op, Err: err}
}

var errClosed = errors.New("store is closed")

func closedErr(op string) *StoreError {
	return &StoreError{Code: ErrCodeClosed, Op: op, Err: errClosed}
}

func hasCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsFatal reports whether err is a fatal lifecycle error.
func IsFatal(err error) bool { return hasCode(err, ErrCodeFatal) }

// IsCommitError reports whether err is a rejected commit.
func IsCommitError(err error) bool { return hasCode(err, ErrCodeCommit) }

// IsClosed reports whether err came from using a closed store.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }
