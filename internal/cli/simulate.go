package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klikkflow/collab/internal/harness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Snapshot bool
}

// SimulateResult holds the outcome of one scenario execution.
type SimulateResult struct {
	Scenario   string          `json:"scenario"`
	Deliveries int             `json:"deliveries"`
	Resolved   []int           `json:"resolved"`
	Hash       string          `json:"hash"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a convergence scenario",
		Long: `Run a convergence scenario: stamp its operations, finalize them through
a fresh pipeline per delivery order, and verify that every order reaches
the same graph.

Exit codes:
  0 - Scenario converged
  1 - Delivery orders diverged
  2 - Command error (scenario not found or invalid)

Examples:
  collab simulate scenarios/label_race.yaml
  collab simulate scenarios/label_race.yaml --snapshot --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "include the converged snapshot in the output")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	formatter.VerboseLog("scenario %s: %d setup, %d race, %d deliveries",
		scenario.Name, len(scenario.Setup), len(scenario.Race), len(scenario.Deliveries))

	result, err := harness.Execute(scenario)
	if err != nil {
		var divergence *harness.ConvergenceError
		if errors.As(err, &divergence) {
			_ = formatter.Error("E_DIVERGED", divergence.Error(), divergence.Hashes)
			return NewExitError(ExitFailure, "delivery orders diverged")
		}
		return WrapExitError(ExitCommandError, "failed to execute scenario", err)
	}

	out := SimulateResult{
		Scenario:   scenario.Name,
		Deliveries: len(scenario.Deliveries),
		Resolved:   result.Resolved,
		Hash:       result.Hash,
	}
	if opts.Snapshot {
		out.Snapshot = json.RawMessage(result.Snapshots[0])
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}
	return outputSimulateText(formatter, out)
}

func outputSimulateText(formatter *OutputFormatter, out SimulateResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s converged across %d delivery orders\n", out.Scenario, out.Deliveries)
	fmt.Fprintf(w, "  hash: %s\n", out.Hash)
	for i, n := range out.Resolved {
		fmt.Fprintf(w, "  delivery %d: %d conflict-resolved operation(s)\n", i, n)
	}
	if out.Snapshot != nil {
		fmt.Fprintf(w, "  snapshot: %s\n", out.Snapshot)
	}
	return nil
}
