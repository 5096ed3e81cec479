package t8n

import (
	"errors"
	"fmt"
)

var (
	// ErrToolFailed is returned when the transition tool exits with an error
	// or writes output that cannot be read.
	ErrToolFailed = errors.New("transition tool failed")

	// ErrTxRejected is matched by RejectedError.
	ErrTxRejected = errors.New("transaction rejected")

	// ErrMismatch is matched by MismatchError.
	ErrMismatch = errors.New("transition result does not match header")
)

// RejectedError reports a transaction the tool refused to apply. A block
// with a rejected transaction is invalid.
type RejectedError struct {
	Index  int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: tx %d: %s", ErrTxRejected, e.Index, e.Reason)
}

// Is reports whether target is ErrTxRejected.
func (e *RejectedError) Is(target error) bool { return target == ErrTxRejected }

// MismatchError reports a commitment computed by the tool that differs from
// the one in the block header.
type MismatchError struct {
	Field string
	Got   string
	Want  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s: got %s, want %s", ErrMismatch, e.Field, e.Got, e.Want)
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }
