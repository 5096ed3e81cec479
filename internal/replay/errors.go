package replay

import (
	"errors"
	"fmt"
)

// Kind identifies which check of a replay failed.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindGenesisHashMismatch
	KindGenesisEncodingMismatch
	KindBlockHashMismatch
	KindBlockEncodingMismatch
	KindStateTransitionFailed
	KindPoWHookMismatch
	KindFinalHashMismatch
	KindPostStateMismatch
	KindStateSetup
)

var kindNames = map[Kind]string{
	KindUnknown:                 "Unknown",
	KindGenesisHashMismatch:     "GenesisHashMismatch",
	KindGenesisEncodingMismatch: "GenesisEncodingMismatch",
	KindBlockHashMismatch:       "BlockHashMismatch",
	KindBlockEncodingMismatch:   "BlockEncodingMismatch",
	KindStateTransitionFailed:   "StateTransitionFailed",
	KindPoWHookMismatch:         "PoWHookMismatch",
	KindFinalHashMismatch:       "FinalHashMismatch",
	KindPostStateMismatch:       "PostStateMismatch",
	KindStateSetup:              "StateSetup",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown failure kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Positional reports whether errors of this kind refer to a block index.
func (k Kind) Positional() bool {
	switch k {
	case KindBlockHashMismatch, KindBlockEncodingMismatch, KindStateTransitionFailed:
		return true
	default:
		return false
	}
}

// Error is a failed replay check. Index is the position of the offending
// block in the fixture's block list, or -1 when the check is not about a
// single block.
type Error struct {
	Kind   Kind
	Index  int
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind.Positional() {
		msg = fmt.Sprintf("%s(%d)", msg, e.Index)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause, the engine's error for StateTransitionFailed.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IndexOf returns the block index of the first *Error in err's chain, or -1.
func IndexOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Index
	}
	return -1
}

// IsKind reports whether err is a replay error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func newError(kind Kind, index int, detail string, err error) *Error {
	return &Error{Kind: kind, Index: index, Detail: detail, Err: err}
}
