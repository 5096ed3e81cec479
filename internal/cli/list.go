package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ethconform/internal/fixture"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Selection SelectionOptions
}

// ListedCase is one entry of the list command's JSON output.
type ListedCase struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Tag  string `json:"tag,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [root]",
		Short: "List the selected test cases",
		Long: `List the test cases a run would select, without decoding them.

Each case is printed as its reporting name followed by its tag, if any.

Example:
  ethconform list --network Shanghai ./BlockchainTests
  ethconform list --config ethconform.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args)
		},
	}
	opts.Selection.addFlags(cmd)

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions, args []string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(cmd, opts.RootOptions, &opts.Selection, args)
	if err != nil {
		return reportError(formatter, CodeConfig, err)
	}
	discoverer, err := fixture.NewDiscoverer(cfg.DiscoverConfig())
	if err != nil {
		return reportError(formatter, CodeConfig, WrapExitError(ExitCommandError, "invalid configuration", err))
	}

	cases := []ListedCase{}
	for c, err := range discoverer.Discover() {
		if err != nil {
			return reportError(formatter, CodeDiscovery, WrapExitError(ExitCommandError, "discovery failed", err))
		}
		cases = append(cases, ListedCase{Name: c.Ref.Name(), ID: c.Ref.ID(), Tag: c.Tag.String()})
	}
	formatter.VerboseLog("Found %d cases for %s", len(cases), discoverer.Network())

	if opts.Format == "json" {
		return formatter.Success(cases)
	}
	for _, c := range cases {
		if c.Tag == "" {
			fmt.Fprintln(formatter.Writer, c.Name)
			continue
		}
		fmt.Fprintf(formatter.Writer, "%s [%s]\n", c.Name, c.Tag)
	}
	return nil
}

// reportError writes err as a JSON error response when the output is JSON
// and returns it unchanged. Text mode leaves printing to main.
func reportError(formatter *OutputFormatter, code string, err error) error {
	if formatter.Format == "json" {
		if werr := formatter.Error(code, err.Error(), nil); werr != nil {
			return werr
		}
	}
	return err
}
