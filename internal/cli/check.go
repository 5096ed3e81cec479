package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/ethconform/internal/fork"
	"github.com/roach88/ethconform/internal/replay"
	"github.com/roach88/ethconform/internal/state"
	"github.com/roach88/ethconform/internal/types"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [root]",
		Short: "Check hashes and encodings of the selected test cases",
		Long: `Decode every selected test case and check the genesis hash, the
genesis encoding, every block hash and every block encoding, without
executing any transaction.

The post state is not compared. Cases that expect a block to be rejected
are skipped, since only an executing engine can reject them.

Example:
  ethconform check --network Shanghai ./BlockchainTests`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts.RootOptions, &opts.Selection, args)
			if err != nil {
				return reportError(newFormatter(cmd, opts.RootOptions), CodeConfig, err)
			}
			hc := cfg.HarnessConfig(newCodecEngine)
			hc.CodecOnly = true
			return executeRun(cmd, opts, hc)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

// codecEngine accepts every block without executing it. It still routes
// each block through the chain's seal check so that consensus bypass is
// verified.
type codecEngine struct {
	proofOfStake bool
}

func newCodecEngine(f fork.Fork) (replay.Engine, error) {
	return &codecEngine{proofOfStake: f.ProofOfStake}, nil
}

func (e *codecEngine) ProofOfStake() bool { return e.proofOfStake }

// PoWValidator accepts every seal; verifying ethash is out of reach
// without executing the chain.
func (e *codecEngine) PoWValidator() replay.PoWValidator {
	return replay.PoWValidatorFunc(func(*types.Header) error { return nil })
}

func (e *codecEngine) StateTransition(_ context.Context, chain *replay.Chain, block *types.Block) error {
	if e.proofOfStake {
		return nil
	}
	return chain.PoW.ValidateProofOfWork(block.Header)
}

func (e *codecEngine) CloseState(st *state.Store) error {
	return st.Close()
}
