package fixture

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoTestsFound means a file has no test object for the requested
	// network. The Discoverer skips such files.
	ErrNoTestsFound = errors.New("no tests found for network")

	// ErrMissingPostState means the test object has no postState, so its
	// outcome cannot be verified end to end.
	ErrMissingPostState = errors.New("fixture has no post state")

	// ErrMalformedFixture means a required field is absent or ill-typed.
	ErrMalformedFixture = errors.New("malformed fixture")
)

// DecodeError reports a malformed field of a test object. It matches
// ErrMalformedFixture with errors.Is.
type DecodeError struct {
	Ref   TestCaseRef
	Field string
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedFixture, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: %s: field %s: %v", ErrMalformedFixture, e.Ref, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedFixture.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformedFixture }

// BlockDecodingError reports a block whose RLP does not decode. Fixtures
// that test invalid block encodings carry only the rlp field, so the
// failure is expected when ExpectException is set.
type BlockDecodingError struct {
	Ref             TestCaseRef
	Index           int
	ExpectException string
	Err             error
}

// Error implements the error interface.
func (e *BlockDecodingError) Error() string {
	return fmt.Sprintf("%s: block %d: rlp decoding failed: %v", e.Ref, e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BlockDecodingError) Unwrap() error { return e.Err }

func malformed(ref TestCaseRef, field string, err error) error {
	return &DecodeError{Ref: ref, Field: field, Err: err}
}
