package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers timeouts, refused connections and 4xx/5xx responses.
	ErrNetwork = errors.New("network failure")
	// ErrParse covers malformed feeds and pages.
	ErrParse = errors.New("parse failure")
	// ErrValidation covers entries without URL or with too little content. Expected, not an error
	// for the operator.
	ErrValidation = errors.New("validation failure")
)

// StoreError wraps persistence failures. It is the only error that stops a run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err (or anything it wraps) is a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
