package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/harness"
	"github.com/roach88/rxnsim/internal/simulate"
	"github.com/roach88/rxnsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Output     string // canonical trajectory JSON; single runs only
	Metrics    string // Prometheus text exposition, "-" for stderr

	// Overrides applied on top of the config file.
	Start      float64
	End        float64
	Step       float64
	Method     string
	Seed       uint64
	EventQuota int

	// Ensemble runs Ensemble members with seeds Seed, Seed+1, ...
	Ensemble int
	Parallel int

	// RunIDs overrides the store's run ID generator (for testing).
	RunIDs store.RunIDGenerator
}

// RunSummary describes one finished simulation.
type RunSummary struct {
	RunID          string        `json:"run_id,omitempty"`
	ModelID        string        `json:"model_id"`
	ModelHash      string        `json:"model_hash"`
	Seed           uint64        `json:"seed"`
	Samples        int           `json:"samples"`
	Events         int           `json:"events"`
	Violations     int           `json:"violations"`
	TrajectoryHash string        `json:"trajectory_hash"`
	Final          []ColumnValue `json:"final"`
	Error          string        `json:"error,omitempty"`
}

// ColumnValue is a state value rendered for output. Values are strings so
// NaN and infinities survive JSON.
type ColumnValue struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <model>",
		Short: "Simulate a model",
		Long: `Simulate a CUE model over a time interval.

Settings come from --config (YAML) and are overridden by the individual
flags. With --db the trajectory is stored in SQLite and can later be
inspected with trace and checked with replay.

Example:
  rxnsim run ./models/decay.cue --end 50 --step 0.01
  rxnsim run ./models/decay.cue --config run.yaml --db runs.db
  rxnsim run ./models/noisy.cue --ensemble 8 --parallel 4 --db runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "simulation config YAML")
	f.StringVar(&opts.Database, "db", "", "store the trajectory in this SQLite database")
	f.StringVarP(&opts.Output, "output", "o", "", "write the trajectory as canonical JSON")
	f.StringVar(&opts.Metrics, "metrics", "", `write engine metrics to this file ("-" for stderr)`)
	f.Float64Var(&opts.Start, "start", 0, "start time")
	f.Float64Var(&opts.End, "end", 0, "end time")
	f.Float64Var(&opts.Step, "step", 0, "step size")
	f.StringVar(&opts.Method, "method", "", "stepper (euler|rk4)")
	f.Uint64Var(&opts.Seed, "seed", 0, "seed for event tie breaking")
	f.IntVar(&opts.EventQuota, "event-quota", 0, "maximum event executions per time point")
	f.IntVar(&opts.Ensemble, "ensemble", 1, "number of runs with consecutive seeds")
	f.IntVar(&opts.Parallel, "parallel", 0, "maximum concurrent ensemble runs (0 = unlimited)")

	return cmd
}

// buildConfig loads the config file and applies the flags that were set.
func buildConfig(opts *RunOptions, cmd *cobra.Command) (simulate.Config, error) {
	cfg := simulate.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = simulate.LoadConfig(opts.ConfigPath); err != nil {
			return simulate.Config{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("start") {
		cfg.Start = opts.Start
	}
	if f.Changed("end") {
		cfg.End = opts.End
	}
	if f.Changed("step") {
		cfg.Step = opts.Step
	}
	if f.Changed("method") {
		cfg.Method = simulate.Method(opts.Method)
	}
	if f.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if f.Changed("event-quota") {
		cfg.EventQuota = opts.EventQuota
	}
	return cfg, cfg.Validate()
}

func runSimulation(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	if opts.Ensemble < 1 {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "--ensemble must be at least 1", nil)
	}
	if opts.Ensemble > 1 && opts.Output != "" {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "--output cannot be combined with --ensemble", nil)
	}

	cfg, err := buildConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	source, err := filepath.Abs(path)
	if err != nil {
		source = path
	}

	var st *store.Store
	if opts.Database != "" {
		var storeOpts []store.Option
		if opts.RunIDs != nil {
			storeOpts = append(storeOpts, store.WithRunIDs(opts.RunIDs))
		}
		st, err = store.Open(opts.Database, storeOpts...)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		defer st.Close()
	}

	var registry *prometheus.Registry
	var metrics *engine.Metrics
	if opts.Metrics != "" {
		registry = prometheus.NewRegistry()
		metrics = engine.NewMetrics(registry)
	}

	ctx := commandContext(cmd)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	compile := func(cfg simulate.Config) (simulate.System, error) {
		extra := cfg.Options()
		if metrics != nil {
			extra = append(extra, engine.WithMetrics(metrics))
		}
		return compileRuntime(opts.RootOptions, loaded.Model, extra...)
	}

	cfgs := make([]simulate.Config, opts.Ensemble)
	for i := range cfgs {
		cfgs[i] = cfg
		cfgs[i].Seed = cfg.Seed + uint64(i)
	}

	logger.Info("simulating", "model", loaded.Model.ID, "members", len(cfgs), "end", cfg.End, "method", cfg.Method)

	var members []simulate.Member
	if len(cfgs) == 1 {
		m := simulate.Member{Config: cfg}
		sys, err := compile(cfg)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeCompileFailed, err.Error(), nil)
		}
		m.Trajectory, m.Err = simulate.RunWithLogger(ctx, sys, cfg, logger)
		members = []simulate.Member{m}
	} else {
		members, err = simulate.RunEnsembleWithLogger(ctx, compile, cfgs, opts.Parallel, logger)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeSimulation, err.Error(), nil)
		}
	}

	summaries := make([]RunSummary, len(members))
	failed := 0
	for i, m := range members {
		summary := RunSummary{ModelID: loaded.Model.ID, ModelHash: loaded.Hash, Seed: m.Config.Seed}
		if m.Err != nil {
			summary.Error = m.Err.Error()
			summaries[i] = summary
			failed++
			continue
		}
		if err := summarize(&summary, m.Trajectory); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
		if st != nil {
			runID, err := st.WriteTrajectory(ctx, store.RunMeta{
				ModelHash:   loaded.Hash,
				ModelSource: source,
				Config:      m.Config,
			}, m.Trajectory)
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeStore, fmt.Sprintf("failed to store run: %v", err), nil)
			}
			summary.RunID = runID
			logger.Debug("run stored", "run_id", runID, "db", opts.Database)
		}
		summaries[i] = summary
	}

	if opts.Output != "" && failed == 0 {
		data, err := harness.MarshalSnapshot(loaded.Model.ID, members[0].Trajectory)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("failed to write output: %v", err), nil)
		}
	}

	if registry != nil {
		if err := writeMetrics(registry, opts.Metrics, formatter.GetErrWriter()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}

	var data any = summaries
	if len(summaries) == 1 {
		data = summaries[0]
	}
	err = formatter.Result(failed == 0, data, func(w io.Writer) {
		for _, s := range summaries {
			printRunSummary(w, s)
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return reportedExit(ExitFailure, fmt.Sprintf("%d of %d run(s) failed", failed, len(summaries)))
	}
	return nil
}

func summarize(s *RunSummary, tr *simulate.Trajectory) error {
	hash, err := tr.Hash()
	if err != nil {
		return err
	}
	s.TrajectoryHash = hash
	s.Samples = len(tr.Samples)
	for _, e := range tr.Events {
		if e.Kind == engine.EffectExecute.String() {
			s.Events++
		}
	}
	for _, c := range tr.Constraints {
		if c.Violated {
			s.Violations++
		}
	}
	if last, ok := tr.Final(); ok {
		for i, col := range tr.Columns {
			s.Final = append(s.Final, ColumnValue{Column: col, Value: formatValue(last.State[i])})
		}
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func printRunSummary(w io.Writer, s RunSummary) {
	if s.Error != "" {
		fmt.Fprintf(w, "✗ %s seed=%d: %s\n", s.ModelID, s.Seed, s.Error)
		return
	}
	fmt.Fprintf(w, "✓ %s seed=%d: %d sample(s), %d event execution(s), %d violation(s)\n",
		s.ModelID, s.Seed, s.Samples, s.Events, s.Violations)
	if s.RunID != "" {
		fmt.Fprintf(w, "  run: %s\n", s.RunID)
	}
	fmt.Fprintf(w, "  trajectory: %s\n", shortHash(s.TrajectoryHash))
	for _, v := range s.Final {
		fmt.Fprintf(w, "  %s = %s\n", v.Column, v.Value)
	}
}

// writeMetrics writes the registry in the Prometheus text format.
func writeMetrics(registry *prometheus.Registry, dest string, stderr io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	w := stderr
	if dest != "-" {
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		defer f.Close()
		w = f
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
