package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ethconform/internal/config"
)

// SelectionOptions holds the flags shared by every command that selects
// fixtures. Scalar flags override the config file when set; list flags
// add to the file's lists.
type SelectionOptions struct {
	Network    string
	OnlyIn     []string
	Ignore     []string
	Slow       []string
	BigMemory  []string
	Parallel   int
	RunSlow    bool
	GenesisRLP string
}

func (o *SelectionOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.Network, "network", "n", "", "fixture network to select, e.g. Shanghai")
	flags.StringSliceVar(&o.OnlyIn, "only-in", nil, "run only these fixture files, relative to the root")
	flags.StringSliceVar(&o.Ignore, "ignore", nil, "drop cases whose identifier matches this pattern")
	flags.StringSliceVar(&o.Slow, "slow", nil, "tag cases matching this pattern as slow")
	flags.StringSliceVar(&o.BigMemory, "big-memory", nil, "tag cases matching this pattern as big-memory")
	flags.IntVarP(&o.Parallel, "parallel", "p", 0, "number of cases replayed at once (default GOMAXPROCS)")
	flags.BoolVar(&o.RunSlow, "run-slow", false, "run cases tagged slow instead of skipping them")
	flags.StringVar(&o.GenesisRLP, "genesis-rlp", "", "genesis encoding check: auto, always or never")
}

// loadConfig builds the validated configuration of a command from the
// config file, the optional root argument and the selection flags.
func loadConfig(cmd *cobra.Command, rootOpts *RootOptions, sel *SelectionOptions, args []string) (*config.Config, error) {
	cfg := config.Default()
	if rootOpts.Config != "" {
		loaded, err := config.Load(rootOpts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.Root = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("network") {
		cfg.Network = sel.Network
	}
	if flags.Changed("parallel") {
		cfg.Parallel = sel.Parallel
	}
	if flags.Changed("run-slow") {
		cfg.RunSlow = sel.RunSlow
	}
	if flags.Changed("genesis-rlp") {
		cfg.GenesisRLP = sel.GenesisRLP
	}
	cfg.OnlyIn = append(cfg.OnlyIn, sel.OnlyIn...)
	cfg.Ignore = append(cfg.Ignore, sel.Ignore...)
	cfg.Slow = append(cfg.Slow, sel.Slow...)
	cfg.BigMemory = append(cfg.BigMemory, sel.BigMemory...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	log.WithField("root", cfg.Root).WithField("network", cfg.Network).Debug("Loaded configuration")
	return cfg, nil
}
