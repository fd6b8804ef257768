package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ground/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Metrics prints the operation counters after the scenario.
	Metrics bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against the store",
		Long: `Run a YAML scenario of store operations against the configured store
and check its expectations.

Source keys must be unique per item type, so scenarios that create items
are usually run against a fresh database.

Example:
  ground run --db ./ground.db scenario.yaml
  ground run --db /tmp/test.db scenario.yaml --format json --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print operation counters after the run")

	return cmd
}

// runReport is the output of the run command.
type runReport struct {
	Scenario string             `json:"scenario"`
	Result   *harness.Result    `json:"result"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	sess, err := openSession(opts.Config, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			sess.log.Error().Err(closeErr).Msg("error closing store")
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter.VerboseLog("running scenario %s (%d steps)", scenario.Name, len(scenario.Steps))
	result, err := harness.Run(ctx, sess.store, scenario, harness.WithLogger(sess.log))
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario is invalid", err)
	}

	report := runReport{Scenario: scenario.Name, Result: result}
	if opts.Metrics {
		report.Metrics, err = gatherCounters(sess)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		writeRunText(cmd.OutOrStdout(), report)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func writeRunText(w io.Writer, report runReport) {
	fmt.Fprintf(w, "Scenario: %s\n", report.Scenario)
	for _, ev := range report.Result.Trace {
		line := fmt.Sprintf("  [%d] %s", ev.Seq, ev.Op)
		if ev.As != "" {
			line += " as " + ev.As
		}
		if ev.Error != "" {
			line += " -> " + ev.Error
		}
		fmt.Fprintln(w, line)
	}
	for _, name := range slices.Sorted(maps.Keys(report.Metrics)) {
		fmt.Fprintf(w, "  %s %g\n", name, report.Metrics[name])
	}
	if report.Result.Pass {
		fmt.Fprintln(w, "PASS")
		return
	}
	fmt.Fprintf(w, "FAIL (%d errors)\n", len(report.Result.Errors))
	for _, e := range report.Result.Errors {
		fmt.Fprintf(w, "  - %s\n", strings.ReplaceAll(strings.TrimSpace(e), "\n", "\n    "))
	}
}

// gatherCounters sums every counter the store registered, by metric name.
func gatherCounters(sess *session) (map[string]float64, error) {
	families, err := sess.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				out[mf.GetName()] += c.GetValue()
			}
		}
	}
	return out, nil
}
