// Package replay drives the blocks of a decoded test through a
// state-transition engine and checks every commitment the fixture records:
// the genesis hash and encoding, each block's hash and encoding, the last
// block hash and the post state.
//
// The engine is injected. The package never executes transactions itself;
// it only decides what the engine is given and what its results must be.
package replay

import (
	"context"

	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

// PoWValidator checks the proof-of-work seal of a header.
type PoWValidator interface {
	ValidateProofOfWork(header *types.Header) error
}

// PoWValidatorFunc adapts a function to PoWValidator.
type PoWValidatorFunc func(header *types.Header) error

// ValidateProofOfWork calls f(header).
func (f PoWValidatorFunc) ValidateProofOfWork(header *types.Header) error {
	return f(header)
}

// Engine is the state-transition engine under test.
type Engine interface {
	// ProofOfStake reports whether the engine runs without proof-of-work
	// seals. Such engines never need the seal check bypassed.
	ProofOfStake() bool

	// PoWValidator returns the engine's own seal check. It is used unless
	// the fixture asks for the check to be bypassed.
	PoWValidator() PoWValidator

	// StateTransition applies block on top of chain. It must validate the
	// block's seal through chain.PoW when the engine is not proof-of-stake,
	// update chain.State, and return an error if the block is invalid. It
	// must not append to chain.Blocks.
	StateTransition(ctx context.Context, chain *Chain, block *types.Block) error

	// CloseState releases a state store created for a replay.
	CloseState(st *state.Store) error
}

// Chain is the replay-time chain. It is owned by a single replay.
type Chain struct {
	// Blocks holds the genesis block followed by every applied block.
	Blocks []*types.Block
	// State is the current account state.
	State   *state.Store
	ChainID uint64
	// PoW is the seal check the engine must route through.
	PoW PoWValidator
}

// Head returns the last applied block.
func (c *Chain) Head() *types.Block {
	return c.Blocks[len(c.Blocks)-1]
}

// Ancestors returns up to n most recent blocks, oldest first.
func (c *Chain) Ancestors(n int) []*types.Block {
	if n > len(c.Blocks) {
		n = len(c.Blocks)
	}
	return c.Blocks[len(c.Blocks)-n:]
}
