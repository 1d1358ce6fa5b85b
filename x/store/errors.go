package store

import (
	"errors"
	"fmt"
)

// ErrNotFound marks absence of a record (including TTL expiry). It is a
// normal outcome, not a failure.
var ErrNotFound = errors.New("store: not found")

// TransportError wraps connectivity failures. Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("store: %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports that the operation may be safely retried.
func (e *TransportError) Retryable() bool { return true }

// SerializationError wraps corrupt or incompatible stored payloads.
// Non-retryable; the record needs manual remediation.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: %s: serialization: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Retryable reports that retrying cannot help.
func (e *SerializationError) Retryable() bool { return false }

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func serializationErr(op string, err error) error {
	return &SerializationError{Op: op, Err: err}
}
