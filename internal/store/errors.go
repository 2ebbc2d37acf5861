package store

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure. Downstream behavior branches on the
// kind, so adapters must map their backend's raw errors onto exactly one.
type Kind int

const (
	// KindSchemaMissing means the target relation does not exist. The
	// pipeline writes to the fallback store instead of failing the request.
	KindSchemaMissing Kind = iota
	// KindDuplicateKey means the uniqueness constraint on email was
	// violated. Idempotent from the caller's point of view.
	KindDuplicateKey
	// KindConnectionFailure means the backend was unreachable before any
	// operation executed. The only kind surfaced as a hard failure.
	KindConnectionFailure
	// KindOther covers every remaining backend failure. Logged; the
	// request still reports success with a warning.
	KindOther
)

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindSchemaMissing:
		return "schema_missing"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindConnectionFailure:
		return "connection_failure"
	default:
		return "other"
	}
}

// Error is the classified store failure exposed to the pipeline.
type Error struct {
	Kind  Kind
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("store %s", e.Kind)
}

// Unwrap returns the underlying backend error for error chain support.
func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the classification from an error returned by a Backend.
// Unclassified errors are reported as KindOther.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}
