package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/ethconform/internal/harness"
	"github.com/roach88/ethconform/internal/t8n"
)

// ReplayOptions holds the flags shared by check and run.
type ReplayOptions struct {
	*RootOptions
	Selection   SelectionOptions
	MetricsFile string
	NoProgress  bool
}

func (o *ReplayOptions) addFlags(cmd *cobra.Command) {
	o.Selection.addFlags(cmd)
	cmd.Flags().StringVar(&o.MetricsFile, "metrics-file", "", "write prometheus metrics of the run to this file")
	cmd.Flags().BoolVar(&o.NoProgress, "no-progress", false, "do not show a progress spinner")
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	ReplayOptions
	Command string
	Args    []string
	WorkDir string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{ReplayOptions: ReplayOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run [root]",
		Short: "Replay the selected test cases through a transition tool",
		Long: `Replay every selected test case block by block through an external
transition tool and compare the result with the fixture.

The tool is started once per block with the geth t8n flags. Failed cases
are listed with their failure kind; the exit code is 1 if any case failed.

Example:
  ethconform run --network London ./BlockchainTests
  ethconform run --config ethconform.yaml --t8n /usr/local/bin/evm --parallel 8
  ethconform run -n Shanghai --only-in ValidBlocks/bcStateTests/simpleSuicide.json .`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts.RootOptions, &opts.Selection, args)
			if err != nil {
				return reportError(newFormatter(cmd, opts.RootOptions), CodeConfig, err)
			}
			tool := t8n.Config{
				Command: cfg.T8N.Command,
				Args:    cfg.T8N.Args,
				WorkDir: opts.WorkDir,
			}
			if cmd.Flags().Changed("t8n") {
				tool.Command = opts.Command
			}
			if cmd.Flags().Changed("t8n-args") {
				tool.Args = opts.Args
			}
			hc := cfg.HarnessConfig(t8n.NewFactory(tool))
			return executeRun(cmd, &opts.ReplayOptions, hc)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Command, "t8n", t8n.DefaultCommand, "transition tool executable")
	cmd.Flags().StringSliceVar(&opts.Args, "t8n-args", []string{"t8n"}, "arguments placed before the tool's input and output flags")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", "", "directory for per-block scratch files (default system temp)")

	return cmd
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// executeRun drives one harness run and renders its report.
func executeRun(cmd *cobra.Command, opts *ReplayOptions, hc harness.Config) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	text := opts.Format != "json"

	var bar *progressbar.ProgressBar
	if text && !opts.NoProgress {
		bar = newProgressBar(formatter.GetErrWriter(), hc.Discover.Network)
	}
	printer := newCasePrinter(formatter)
	hc.OnResult = func(res harness.CaseResult) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if text {
			printer.print(res)
		}
	}

	driver, err := harness.New(hc)
	if err != nil {
		return reportError(formatter, CodeConfig, WrapExitError(ExitCommandError, "invalid configuration", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, runErr := driver.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	log.WithFields(logrus.Fields{
		"run":      report.RunID,
		"cases":    report.Total(),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Run complete")

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, driver.Gatherer()); err != nil {
			return reportError(formatter, CodeMetrics, WrapExitError(ExitCommandError, "failed to write metrics", err))
		}
		formatter.VerboseLog("Wrote metrics to %s", opts.MetricsFile)
	}

	if runErr != nil {
		if text {
			_ = formatter.Success(summary(report))
		}
		if errors.Is(runErr, context.Canceled) {
			return reportError(formatter, CodeDiscovery, WrapExitError(ExitCommandError, "run interrupted", runErr))
		}
		return reportError(formatter, CodeDiscovery, WrapExitError(ExitCommandError, "run aborted", runErr))
	}

	if text {
		if err := formatter.Success(summary(report)); err != nil {
			return err
		}
	} else if err := formatter.Success(report); err != nil {
		return err
	}
	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d cases failed", report.Failed, report.Total()))
	}
	return nil
}

func summary(r *harness.Report) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped, %d inconclusive",
		r.Passed, r.Failed, r.Skipped, r.Inconclusive)
}

// newProgressBar returns a spinner counting finished cases. The total is
// unknown because discovery is lazy.
func newProgressBar(w io.Writer, network string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(network),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// casePrinter writes one line per finished case. Failures are always
// printed; other outcomes only in verbose mode.
type casePrinter struct {
	f     *OutputFormatter
	pass  func(a ...interface{}) string
	fail  func(a ...interface{}) string
	muted func(a ...interface{}) string
}

func newCasePrinter(f *OutputFormatter) *casePrinter {
	return &casePrinter{
		f:     f,
		pass:  color.New(color.FgGreen).SprintFunc(),
		fail:  color.New(color.FgRed, color.Bold).SprintFunc(),
		muted: color.New(color.FgYellow).SprintFunc(),
	}
}

func (p *casePrinter) print(res harness.CaseResult) {
	switch res.Outcome {
	case harness.OutcomeFail:
		line := p.fail("✗") + " " + res.Name
		if res.Kind != "" {
			line += " [" + res.Kind + "]"
		}
		if res.Reason != "" {
			line += ": " + res.Reason
		}
		fmt.Fprintln(p.f.Writer, line)
		if res.Error != "" {
			fmt.Fprintf(p.f.Writer, "    %s\n", res.Error)
		}
	case harness.OutcomePass:
		if p.f.Verbose {
			fmt.Fprintf(p.f.Writer, "%s %s\n", p.pass("✓"), res.Name)
		}
	default:
		if p.f.Verbose {
			fmt.Fprintf(p.f.Writer, "%s %s (%s: %s)\n", p.muted("-"), res.Name, res.Outcome, res.Reason)
		}
	}
}
