// Package fault provides single instances of the errors surfaced by
// the graph store, so callers can classify failures with errors.Is
// instead of string matching.
//
// The four classes are deliberately kept apart: a transport failure is
// retryable, a denied key is not, a malformed envelope is never either
// of those, and a path error is local to one call.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks content store failures (unreachable,
	// timeout). Retrying is safe: content addressing guarantees
	// identical bytes for identical hashes.
	ErrTransport = errors.New("content store transport failure")

	// ErrAccessDenied marks a key the resolver could not provide.
	// Reads surface the affected branch as absent; writes into such a
	// branch fail with this error.
	ErrAccessDenied = errors.New("access denied")

	// ErrMalformedEnvelope marks stored bytes that do not parse or
	// decrypt as a valid envelope. Never conflated with ErrAccessDenied.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrPath marks a path that references a missing key or descends
	// into a scalar or sequence.
	ErrPath = errors.New("invalid path")
)

// Transport wraps err as a retryable transport failure.
func Transport(err error) error {
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Malformed wraps err as an envelope parsing or decryption failure.
func Malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
}

// Pathf builds a path error with call-site detail.
func Pathf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPath, fmt.Sprintf(format, args...))
}

// Retryable reports whether err may succeed on retry with the same
// inputs and credentials.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
