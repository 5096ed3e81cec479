// Package t8n implements replay.Engine on top of an external transition
// tool such as `evm t8n`.
//
// For every block the engine writes the current state, the block
// environment and the transactions to a scratch directory, runs the tool
// and checks the commitments it reports against the block header. The
// tool's output state then replaces the chain state.
package t8n

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File names inside the scratch directory.
const (
	allocFile    = "alloc.json"
	envFile      = "env.json"
	txsFile      = "txs.rlp"
	outAllocFile = "alloc.out.json"
	resultFile   = "result.json"
)

// DefaultCommand is the tool run when Config.Command is empty.
const DefaultCommand = "evm"

// Config configures an Engine.
type Config struct {
	// Command and Args start the tool, e.g. "evm" and ["t8n"]. The engine
	// appends the input and output flags.
	Command string
	Args    []string
	// Fork is passed as --state.fork and decides the block reward.
	Fork fork.Fork
	// WorkDir holds the scratch directories. Empty means os.TempDir().
	WorkDir string
}

// Engine runs blocks through a transition tool. It keeps no state between
// blocks other than the chain it is given, so one Engine may serve several
// replays at once.
type Engine struct {
	cfg Config
}

// New returns an Engine for cfg.
func New(cfg Config) *Engine {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	return &Engine{cfg: cfg}
}

// NewFactory returns a constructor of engines for any fork, sharing the
// tool settings of base.
func NewFactory(base Config) func(fork.Fork) (replay.Engine, error) {
	return func(f fork.Fork) (replay.Engine, error) {
		cfg := base
		cfg.Fork = f
		return New(cfg), nil
	}
}

// ProofOfStake implements replay.Engine.
func (e *Engine) ProofOfStake() bool {
	return e.cfg.Fork.ProofOfStake
}

// PoWValidator implements replay.Engine. Transition tools do not verify
// ethash seals, so every seal is accepted.
func (e *Engine) PoWValidator() replay.PoWValidator {
	return replay.PoWValidatorFunc(func(*types.Header) error { return nil })
}

// CloseState implements replay.Engine.
func (e *Engine) CloseState(st *state.Store) error {
	return st.Close()
}

// StateTransition implements replay.Engine.
func (e *Engine) StateTransition(ctx context.Context, chain *replay.Chain, block *types.Block) error {
	if !e.ProofOfStake() {
		if err := chain.PoW.ValidateProofOfWork(block.Header); err != nil {
			return errors.Wrap(err, "seal")
		}
	}

	dir, err := os.MkdirTemp(e.cfg.WorkDir, "t8n-")
	if err != nil {
		return errors.Wrap(err, "create scratch directory")
	}
	defer os.RemoveAll(dir)

	if err := e.writeInputs(ctx, dir, chain, block); err != nil {
		return err
	}
	if err := e.run(ctx, dir, chain.ChainID, block); err != nil {
		return err
	}

	var res result
	if err := readJSON(filepath.Join(dir, resultFile), &res); err != nil {
		return err
	}
	if err := res.verify(block.Header); err != nil {
		return err
	}
	var post state.Alloc
	if err := readJSON(filepath.Join(dir, outAllocFile), &post); err != nil {
		return err
	}
	return errors.Wrap(chain.State.Load(ctx, post), "replace state")
}

func (e *Engine) writeInputs(ctx context.Context, dir string, chain *replay.Chain, block *types.Block) error {
	alloc, err := chain.State.Dump(ctx)
	if err != nil {
		return errors.Wrap(err, "dump state")
	}
	if err := writeJSON(filepath.Join(dir, allocFile), alloc); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, envFile), newEnv(chain, block, e.ProofOfStake())); err != nil {
		return err
	}
	txs, err := rlp.EncodeToBytes(block.Transactions)
	if err != nil {
		return errors.Wrap(err, "encode transactions")
	}
	return writeJSON(filepath.Join(dir, txsFile), hexutil.Bytes(txs))
}

// reward returns the --state.reward value; -1 disables rewards.
func (e *Engine) reward() string {
	if e.cfg.Fork.BlockReward == nil {
		return "-1"
	}
	return e.cfg.Fork.BlockReward.String()
}

func (e *Engine) run(ctx context.Context, dir string, chainID uint64, block *types.Block) error {
	args := append(append([]string(nil), e.cfg.Args...),
		"--input.alloc", filepath.Join(dir, allocFile),
		"--input.env", filepath.Join(dir, envFile),
		"--input.txs", filepath.Join(dir, txsFile),
		"--output.basedir", dir,
		"--output.alloc", outAllocFile,
		"--output.result", resultFile,
		"--state.fork", e.cfg.Fork.Name,
		"--state.chainid", strconv.FormatUint(chainID, 10),
		"--state.reward", e.reward(),
	)
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.WithFields(logrus.Fields{
		"number": block.Number(),
		"txs":    len(block.Transactions),
		"fork":   e.cfg.Fork.Name,
	}).Debug("Running transition tool")

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return errors.Wrapf(ErrToolFailed, "%s: %v", e.cfg.Command, err)
		}
		return errors.Wrapf(ErrToolFailed, "%s: %v: %s", e.cfg.Command, err, msg)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", filepath.Base(path))
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", filepath.Base(path))
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(ErrToolFailed, "read %s: %v", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrToolFailed, "parse %s: %v", filepath.Base(path), err)
	}
	return nil
}
