package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klikkflow/collab/internal/journal"
	"github.com/klikkflow/collab/internal/op"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Room     string
	Target   string // optional filter to one node or edge
}

// TraceEntry is one journaled operation in the trace timeline.
type TraceEntry struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Target      string   `json:"target"`
	Session     string   `json:"session"`
	ClockSum    int64    `json:"clock_sum"`
	DerivedFrom []string `json:"derived_from,omitempty"`
}

// TraceResult holds the trace output for a room.
type TraceResult struct {
	Room     string         `json:"room"`
	Timeline []TraceEntry   `json:"timeline"`
	ByKind   map[string]int `json:"by_kind"`
	Derived  int            `json:"derived"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List a room's journaled operations",
		Long: `List a room's journaled operations in finalization order.

Shows each operation's kind, target, authoring session, and clock depth,
and marks resolver-derived operations with the ids they reconciled.

Exit codes:
  0 - Trace printed
  2 - Command error (journal not found, unknown room)

Examples:
  collab trace --db ./collab.db --room design-review
  collab trace --db ./collab.db --room design-review --target n1
  collab trace --db ./collab.db --room design-review --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room id to trace (required)")
	_ = cmd.MarkFlagRequired("room")
	cmd.Flags().StringVar(&opts.Target, "target", "", "filter to one node or edge id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	jnl, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer jnl.Close()

	ops, err := jnl.ForRoom(opts.Room).Operations(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if len(ops) == 0 {
		return WrapExitError(ExitCommandError, "no operations journaled", fmt.Errorf("room %s", opts.Room))
	}

	result := TraceResult{Room: opts.Room, ByKind: make(map[string]int)}
	for _, o := range ops {
		if opts.Target != "" && !touchesTarget(o, opts.Target) {
			continue
		}
		result.Timeline = append(result.Timeline, TraceEntry{
			ID:          o.ID,
			Kind:        string(o.Kind),
			Target:      o.TargetID,
			Session:     o.OriginSession,
			ClockSum:    o.Clock.Sum(),
			DerivedFrom: o.DerivedFrom,
		})
		result.ByKind[string(o.Kind)]++
		if len(o.DerivedFrom) > 0 {
			result.Derived++
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

// touchesTarget reports whether an operation affects the given id directly
// or as an edge endpoint.
func touchesTarget(o op.Operation, target string) bool {
	if o.TargetID == target {
		return true
	}
	switch p := o.Payload.(type) {
	case op.ConnectPayload:
		return p.From == target || p.To == target
	case op.DisconnectPayload:
		return p.From == target || p.To == target
	default:
		return false
	}
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Room: %s (%d operation(s))\n", result.Room, len(result.Timeline))
	fmt.Fprintln(w)

	for i, e := range result.Timeline {
		fmt.Fprintf(w, "%4d  %-10s  %-12s  session=%s  depth=%d\n",
			i+1, e.Kind, e.Target, e.Session, e.ClockSum)
		if len(e.DerivedFrom) > 0 {
			fmt.Fprintf(w, "      resolved from %s\n", strings.Join(e.DerivedFrom, ", "))
		}
		if formatter.Verbose {
			fmt.Fprintf(w, "      id=%s\n", e.ID)
		}
	}

	fmt.Fprintln(w)
	for kind, n := range result.ByKind {
		fmt.Fprintf(w, "  %s: %d\n", kind, n)
	}
	if result.Derived > 0 {
		fmt.Fprintf(w, "  resolver-derived: %d\n", result.Derived)
	}
	return nil
}
