// Package replaytest provides a scripted in-process engine for testing code
// that drives replays.
package replaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

// ErrInvalidBlock is returned for blocks listed in Engine.Reject.
var ErrInvalidBlock = errors.New("invalid block")

// Engine is a replay.Engine that executes nothing. It routes every block
// through the chain's seal check, rejects the block numbers listed in
// Reject and records what it saw.
type Engine struct {
	// PoS makes the engine report proof-of-stake operation.
	PoS bool
	// SealErr is returned by the engine's own seal check.
	SealErr error
	// Reject maps block numbers to the error StateTransition returns.
	Reject map[uint64]error
	// SkipSealCheck makes StateTransition bypass chain.PoW entirely.
	SkipSealCheck bool
	// Apply, if set, runs after the seal check for accepted blocks.
	Apply func(ctx context.Context, chain *replay.Chain, block *types.Block) error

	mu      sync.Mutex
	applied []common.Hash
	seen    []replay.PoWValidator
	closed  int
}

// RejectAt returns an engine that rejects the block with the given number.
func RejectAt(number uint64) *Engine {
	return &Engine{Reject: map[uint64]error{number: ErrInvalidBlock}}
}

// ProofOfStake implements replay.Engine.
func (e *Engine) ProofOfStake() bool { return e.PoS }

// PoWValidator implements replay.Engine.
func (e *Engine) PoWValidator() replay.PoWValidator {
	return replay.PoWValidatorFunc(func(*types.Header) error { return e.SealErr })
}

// StateTransition implements replay.Engine.
func (e *Engine) StateTransition(ctx context.Context, chain *replay.Chain, block *types.Block) error {
	e.mu.Lock()
	e.seen = append(e.seen, chain.PoW)
	e.mu.Unlock()

	if !e.PoS && !e.SkipSealCheck {
		if err := chain.PoW.ValidateProofOfWork(block.Header); err != nil {
			return err
		}
	}
	if err, ok := e.Reject[block.Number()]; ok {
		return err
	}
	if e.Apply != nil {
		if err := e.Apply(ctx, chain, block); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.applied = append(e.applied, block.Hash())
	e.mu.Unlock()
	return nil
}

// CloseState implements replay.Engine.
func (e *Engine) CloseState(st *state.Store) error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return st.Close()
}

// Applied returns the hashes of the accepted blocks in order.
func (e *Engine) Applied() []common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]common.Hash(nil), e.applied...)
}

// Calls returns the number of StateTransition calls.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// Validator returns the seal check the engine was handed on its last call,
// nil if it was never called.
func (e *Engine) Validator() replay.PoWValidator {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.seen) == 0 {
		return nil
	}
	return e.seen[len(e.seen)-1]
}

// Closed returns the number of CloseState calls.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
