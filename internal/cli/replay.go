package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rxnsim/internal/simulate"
	"github.com/roach88/rxnsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Model    string // overrides the stored model source
	All      bool
}

// ReplayReport is the outcome of replaying one stored run.
type ReplayReport struct {
	RunID        string `json:"run_id"`
	ModelID      string `json:"model_id"`
	Identical    bool   `json:"identical"`
	ModelChanged bool   `json:"model_changed"`
	StoredHash   string `json:"stored_hash"`
	ReplayedHash string `json:"replayed_hash,omitempty"`
	Divergence   string `json:"divergence,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ReplayResult holds the replay output.
type ReplayResult struct {
	Runs      []ReplayReport `json:"runs"`
	Identical int            `json:"identical"`
	Diverged  int            `json:"diverged"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-simulate stored runs and check determinism",
		Long: `Re-simulate stored runs and compare the result with what was stored.

The model is reloaded from the path recorded with the run (or --model)
and simulated with the stored config. The replay passes only if the new
trajectory is bit-identical to the stored one.

Exit codes:
  0 - All replays identical
  1 - A replay diverged or could not be run
  2 - Command error (database not found, etc.)

Example:
  rxnsim replay --db runs.db 0190a1b2-...
  rxnsim replay --db runs.db --all`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.All == (len(args) == 1) {
				return NewExitError(ExitCommandError, "give either a run ID or --all")
			}
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "replay against this model instead of the stored source")
	cmd.Flags().BoolVar(&opts.All, "all", false, "replay every stored run")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	var runs []store.Run
	if opts.All {
		runs, err = st.ListRuns(ctx, "")
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	} else {
		run, err := st.ReadRun(ctx, args[0])
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitFailure, ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", args[0]), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		runs = []store.Run{run}
	}

	result := ReplayResult{Runs: make([]ReplayReport, 0, len(runs))}
	for _, run := range runs {
		report := replayRun(opts, st, run, cmd)
		formatter.VerboseLog("replayed %s: identical=%t", run.ID, report.Identical)
		result.Runs = append(result.Runs, report)
		if report.Identical {
			result.Identical++
		} else {
			result.Diverged++
		}
	}

	err = formatter.Result(result.Diverged == 0, result, func(w io.Writer) {
		if len(result.Runs) == 0 {
			fmt.Fprintln(w, "No runs stored.")
			return
		}
		for _, r := range result.Runs {
			printReplayReport(w, r)
		}
	})
	if err != nil {
		return err
	}
	if result.Diverged > 0 {
		return reportedExit(ExitFailure, fmt.Sprintf("%d run(s) did not replay identically", result.Diverged))
	}
	return nil
}

func replayRun(opts *ReplayOptions, st *store.Store, run store.Run, cmd *cobra.Command) ReplayReport {
	report := ReplayReport{RunID: run.ID, ModelID: run.ModelID, StoredHash: run.TrajectoryHash}

	source := run.ModelSource
	if opts.Model != "" {
		source = opts.Model
	}
	loaded, err := LoadModel(source)
	if err != nil {
		report.Error = fmt.Sprintf("load model: %v", err)
		return report
	}
	model, err := compileRuntime(opts.RootOptions, loaded.Model, run.Config.Options()...)
	if err != nil {
		report.Error = fmt.Sprintf("compile model: %v", err)
		return report
	}

	ctx := commandContext(cmd)
	tr, err := simulate.RunWithLogger(ctx, model, run.Config, opts.logger())
	if err != nil {
		report.Error = fmt.Sprintf("simulate: %v", err)
		return report
	}

	cmp, err := st.CompareRun(ctx, run.ID, loaded.Hash, tr)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.ReplayedHash = cmp.ReplayedHash
	report.ModelChanged = cmp.ModelChanged
	report.Identical = cmp.Identical()
	if cmp.Divergence != nil {
		report.Divergence = cmp.Divergence.String()
	} else if !report.Identical {
		report.Divergence = "trajectory hashes differ"
	}
	return report
}

func printReplayReport(w io.Writer, r ReplayReport) {
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "✗ %s (%s): %s\n", r.RunID, r.ModelID, r.Error)
	case r.Identical:
		fmt.Fprintf(w, "✓ %s (%s): identical %s\n", r.RunID, r.ModelID, shortHash(r.StoredHash))
	default:
		fmt.Fprintf(w, "✗ %s (%s): diverged: %s\n", r.RunID, r.ModelID, r.Divergence)
	}
	if r.ModelChanged {
		fmt.Fprintln(w, "  model changed since the run was stored")
	}
}
