package replay

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/ethconform/internal/types"
)

// RecordingValidator logs every seal check it is asked for and delegates to
// an inner validator. With a nil inner validator every check succeeds, which
// is how the seal check is bypassed for NoProof fixtures.
type RecordingValidator struct {
	inner PoWValidator

	mu    sync.Mutex
	calls []common.Hash
}

// NewRecordingValidator returns a validator that records calls and
// delegates to inner, or accepts everything if inner is nil.
func NewRecordingValidator(inner PoWValidator) *RecordingValidator {
	return &RecordingValidator{inner: inner}
}

// ValidateProofOfWork implements PoWValidator.
func (v *RecordingValidator) ValidateProofOfWork(header *types.Header) error {
	v.mu.Lock()
	v.calls = append(v.calls, header.Hash())
	v.mu.Unlock()
	if v.inner == nil {
		return nil
	}
	return v.inner.ValidateProofOfWork(header)
}

// Calls returns the hashes of the headers validated so far, in call order.
func (v *RecordingValidator) Calls() []common.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]common.Hash(nil), v.calls...)
}

// Bypassed reports whether the validator accepts every seal.
func (v *RecordingValidator) Bypassed() bool {
	return v.inner == nil
}
