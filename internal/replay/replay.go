package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/roach88/ethconform/internal/fixture"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

// GenesisRLPMode decides whether the genesis block encoding is compared
// byte for byte with the fixture.
type GenesisRLPMode string

const (
	// GenesisRLPAuto checks the encoding for every header format except
	// FormatShanghai, whose fixture genesis encodings are known to disagree
	// with the canonical encoding of an empty withdrawals list.
	GenesisRLPAuto GenesisRLPMode = "auto"
	// GenesisRLPAlways checks the encoding for every format.
	GenesisRLPAlways GenesisRLPMode = "always"
	// GenesisRLPNever never checks the encoding.
	GenesisRLPNever GenesisRLPMode = "never"
)

// ParseGenesisRLPMode parses a mode name; the empty string is GenesisRLPAuto.
func ParseGenesisRLPMode(s string) (GenesisRLPMode, error) {
	switch GenesisRLPMode(s) {
	case "", GenesisRLPAuto:
		return GenesisRLPAuto, nil
	case GenesisRLPAlways, GenesisRLPNever:
		return GenesisRLPMode(s), nil
	default:
		return "", fmt.Errorf("invalid genesis rlp mode %q (want auto, always or never)", s)
	}
}

func (m GenesisRLPMode) check(format types.HeaderFormat) bool {
	switch m {
	case GenesisRLPAlways:
		return true
	case GenesisRLPNever:
		return false
	default:
		return !format.HasWithdrawals()
	}
}

// Options configures a replay.
type Options struct {
	GenesisRLP GenesisRLPMode
	// SkipPostState skips the final state comparison. Used when the engine
	// does not execute transactions and only the codec is under test.
	SkipPostState bool
}

// Run replays test through eng. It returns nil if every check passes and a
// *Error naming the first failed check otherwise. The state stores it opens
// are released before Run returns, whatever the outcome.
func Run(ctx context.Context, test *fixture.Test, eng Engine, opts Options) (err error) {
	logger := log.WithField("test", test.Ref.Name())

	genesis := types.NewGenesisBlock(test.GenesisHeader)
	if got := genesis.Hash(); got != test.GenesisHash {
		return newError(KindGenesisHashMismatch, -1, fmt.Sprintf("got %s, want %s", got, test.GenesisHash), nil)
	}
	if opts.GenesisRLP.check(test.GenesisHeader.Format) {
		enc, err := types.EncodeBlock(genesis)
		if err != nil {
			return newError(KindGenesisEncodingMismatch, -1, "encode genesis", err)
		}
		if !bytes.Equal(enc, test.GenesisRLP) {
			return newError(KindGenesisEncodingMismatch, -1, fmt.Sprintf("got %x, want %x", enc, test.GenesisRLP), nil)
		}
	} else {
		logger.Debug("Skipping genesis encoding check")
	}

	chainState, err := state.Open(state.MemoryPath)
	if err != nil {
		return newError(KindStateSetup, -1, "open chain state", err)
	}
	expected, err := state.Open(state.MemoryPath)
	if err != nil {
		return errors.Join(newError(KindStateSetup, -1, "open expected state", err), eng.CloseState(chainState))
	}
	chain := &Chain{
		Blocks:  []*types.Block{genesis},
		State:   chainState,
		ChainID: test.ChainID,
	}
	defer func() {
		closeErr := errors.Join(eng.CloseState(chain.State), expected.Close())
		if err == nil && closeErr != nil {
			err = newError(KindStateSetup, -1, "release state", closeErr)
		}
	}()

	if err := chainState.Load(ctx, test.Pre); err != nil {
		return newError(KindStateSetup, -1, "load pre state", err)
	}
	if err := expected.Load(ctx, test.Post); err != nil {
		return newError(KindStateSetup, -1, "load post state", err)
	}

	bypass := test.ConsensusBypass && !eng.ProofOfStake()
	var pow *RecordingValidator
	if bypass {
		pow = NewRecordingValidator(nil)
	} else {
		pow = NewRecordingValidator(eng.PoWValidator())
	}
	chain.PoW = pow

	for i, block := range test.Blocks {
		if got := block.Hash(); got != test.BlockHashes[i] {
			return newError(KindBlockHashMismatch, i, fmt.Sprintf("got %s, want %s", got, test.BlockHashes[i]), nil)
		}
		enc, err := types.EncodeBlock(block)
		if err != nil {
			return newError(KindBlockEncodingMismatch, i, "encode block", err)
		}
		if !bytes.Equal(enc, test.BlockRLPs[i]) {
			return newError(KindBlockEncodingMismatch, i, fmt.Sprintf("got %x, want %x", enc, test.BlockRLPs[i]), nil)
		}
		if err := eng.StateTransition(ctx, chain, block); err != nil {
			return newError(KindStateTransitionFailed, i, "", err)
		}
		chain.Blocks = append(chain.Blocks, block)
		logger.WithFields(logrus.Fields{
			"index":  i,
			"number": block.Number(),
			"hash":   block.Hash(),
		}).Debug("Applied block")
	}

	if bypass {
		if err := checkHookCalls(pow.Calls(), test.Blocks); err != nil {
			return err
		}
	}

	if got := chain.Head().Hash(); got != test.LastBlockHash {
		return newError(KindFinalHashMismatch, -1, fmt.Sprintf("got %s, want %s", got, test.LastBlockHash), nil)
	}
	if opts.SkipPostState {
		return nil
	}
	diff, err := chain.State.Diff(ctx, expected)
	if err != nil {
		return newError(KindStateSetup, -1, "compare post state", err)
	}
	if diff != "" {
		return newError(KindPostStateMismatch, -1, diff, nil)
	}
	return nil
}

// checkHookCalls verifies that the seal check was routed through the hook
// once per block, in block order, with each block's own header.
func checkHookCalls(calls []common.Hash, blocks []*types.Block) error {
	if len(calls) != len(blocks) {
		return newError(KindPoWHookMismatch, -1, fmt.Sprintf("%d seal checks for %d blocks", len(calls), len(blocks)), nil)
	}
	for i, block := range blocks {
		if calls[i] != block.Hash() {
			return newError(KindPoWHookMismatch, -1, fmt.Sprintf("seal check %d was for header %s, want %s", i, calls[i], block.Hash()), nil)
		}
	}
	return nil
}
