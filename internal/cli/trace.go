package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/simulate"
	"github.com/roach88/rxnsim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Model    string // optional - restrict the run listing to one model
	Event    string // optional - filter events to one event ID
}

// RunInfo is a stored run's metadata as printed by trace and replay.
type RunInfo struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"seq"`
	ModelID        string          `json:"model_id"`
	ModelHash      string          `json:"model_hash"`
	ModelSource    string          `json:"model_source"`
	Config         simulate.Config `json:"config"`
	Columns        []string        `json:"columns"`
	TrajectoryHash string          `json:"trajectory_hash"`
	EngineVersion  string          `json:"engine_version"`
}

func newRunInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:             r.ID,
		Seq:            r.Seq,
		ModelID:        r.ModelID,
		ModelHash:      r.ModelHash,
		ModelSource:    r.ModelSource,
		Config:         r.Config,
		Columns:        r.Columns,
		TrajectoryHash: r.TrajectoryHash,
		EngineVersion:  r.EngineVersion,
	}
}

// TraceResult holds the complete trace output of one run.
type TraceResult struct {
	Run         RunInfo                     `json:"run"`
	Events      []simulate.EventRecord      `json:"events"`
	Constraints []simulate.ConstraintRecord `json:"constraints"`
	Stats       TraceStats                  `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Samples    int `json:"samples"`
	Fired      int `json:"fired"`
	Aborted    int `json:"aborted"`
	Executed   int `json:"executed"`
	Violations int `json:"violations"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show stored runs and their event history",
		Long: `Inspect runs stored by "rxnsim run --db".

Without a run ID, lists the stored runs in the order they were written.
With a run ID, shows the run's event firings, aborts and executions and
its constraint violations and recoveries.

Example:
  rxnsim trace --db runs.db
  rxnsim trace --db runs.db --model decay
  rxnsim trace --db runs.db 0190a1b2-... --event refill`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "list only runs of this model")
	cmd.Flags().StringVar(&opts.Event, "event", "", "show only this event")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openExistingStore opens a database that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := newFormatter(opts.RootOptions, cmd)
	runs, err := st.ListRuns(commandContext(cmd), opts.Model)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = newRunInfo(r)
	}
	return formatter.Result(true, infos, func(w io.Writer) {
		if len(infos) == 0 {
			fmt.Fprintln(w, "No runs stored.")
			return
		}
		for _, r := range infos {
			fmt.Fprintf(w, "%4d  %s  %s  t=[%g, %g] %s  %s\n",
				r.Seq, r.ID, r.ModelID, r.Config.Start, r.Config.End, r.Config.Method, shortHash(r.TrajectoryHash))
		}
	})
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitFailure, ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", runID), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	tr, err := st.ReadTrajectory(ctx, runID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	result := buildTrace(run, tr, opts.Event)
	return formatter.Result(true, result, func(w io.Writer) {
		printTrace(w, result)
	})
}

func buildTrace(run store.Run, tr *simulate.Trajectory, eventFilter string) TraceResult {
	result := TraceResult{
		Run:         newRunInfo(run),
		Events:      []simulate.EventRecord{},
		Constraints: []simulate.ConstraintRecord{},
		Stats:       TraceStats{Samples: len(tr.Samples)},
	}
	for _, e := range tr.Events {
		if eventFilter != "" && e.EventID != eventFilter {
			continue
		}
		result.Events = append(result.Events, e)
		switch e.Kind {
		case engine.EffectFire.String():
			result.Stats.Fired++
		case engine.EffectAbort.String():
			result.Stats.Aborted++
		case engine.EffectExecute.String():
			result.Stats.Executed++
		}
	}
	for _, c := range tr.Constraints {
		result.Constraints = append(result.Constraints, c)
		if c.Violated {
			result.Stats.Violations++
		}
	}
	return result
}

func printTrace(w io.Writer, t TraceResult) {
	fmt.Fprintf(w, "Run %s (seq %d)\n", t.Run.ID, t.Run.Seq)
	fmt.Fprintf(w, "  model: %s (%s) from %s\n", t.Run.ModelID, shortHash(t.Run.ModelHash), t.Run.ModelSource)
	fmt.Fprintf(w, "  config: t=[%g, %g] step=%g method=%s seed=%d\n",
		t.Run.Config.Start, t.Run.Config.End, t.Run.Config.Step, t.Run.Config.Method, t.Run.Config.Seed)
	fmt.Fprintf(w, "  %d sample(s), trajectory %s\n", t.Stats.Samples, shortHash(t.Run.TrajectoryHash))

	if len(t.Events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
		for _, e := range t.Events {
			line := fmt.Sprintf("  t=%-10g %-8s %s", e.Time, e.Kind, e.EventID)
			if e.Kind == engine.EffectFire.String() && e.ExecTime != e.Time {
				line += fmt.Sprintf(" (due t=%g)", e.ExecTime)
			}
			if e.Aborted > 0 {
				line += fmt.Sprintf(" (%d pending discarded)", e.Aborted)
			}
			if len(e.Assignments) > 0 {
				parts := make([]string, len(e.Assignments))
				for i, a := range e.Assignments {
					parts[i] = fmt.Sprintf("%s=%s", a.Variable, formatValue(a.Value))
				}
				line += " " + strings.Join(parts, " ")
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(t.Constraints) > 0 {
		fmt.Fprintln(w, "\nConstraints:")
		for _, c := range t.Constraints {
			state := "recovered"
			if c.Violated {
				state = "violated"
			}
			desc := c.Math
			if c.Message != "" {
				desc = c.Message
			}
			fmt.Fprintf(w, "  t=%-10g #%d %-9s %s\n", c.Time, c.Index, state, desc)
		}
	}

	fmt.Fprintf(w, "\n%d fired, %d aborted, %d executed, %d violation(s)\n",
		t.Stats.Fired, t.Stats.Aborted, t.Stats.Executed, t.Stats.Violations)
}
