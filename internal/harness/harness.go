package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/ir"
	"github.com/roach88/rxnsim/internal/simulate"
	"github.com/roach88/rxnsim/internal/store"
	"github.com/roach88/rxnsim/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// RunID is the ID of the run in the scenario's store.
	RunID string `json:"run_id"`

	ModelHash string `json:"model_hash"`

	// Trajectory is the run as read back from the store.
	Trajectory *simulate.Trajectory `json:"trajectory"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Harness runs scenarios against one store.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// Run executes a scenario in a fresh in-memory store and returns the
// result. Assertion failures are reported in the result; err is only set
// when the scenario could not be run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithRunIDs(testutil.NewSequentialIDs(scenario.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.Run(ctx, scenario)
}

// New creates a harness writing runs to st.
func New(st *store.Store, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{store: st, logger: logger}
}

// Run executes scenario, stores the run and evaluates assertions against
// the stored trajectory.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	src, err := compiler.Load(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	modelHash, err := ir.ModelHash(src)
	if err != nil {
		return nil, fmt.Errorf("failed to hash model: %w", err)
	}

	opts := append(scenario.Config.Options(),
		engine.WithLogger(h.logger),
		engine.WithAlgebraicConverter(compiler.NewAlgebraicConverter()))
	model, err := engine.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}

	tr, err := simulate.RunWithLogger(ctx, model, scenario.Config, h.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate: %w", err)
	}

	runID, err := h.store.WriteTrajectory(ctx, store.RunMeta{
		ModelHash:   modelHash,
		ModelSource: scenario.Model,
		Config:      scenario.Config,
	}, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}
	stored, err := h.store.ReadTrajectory(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back run: %w", err)
	}

	result := &Result{
		Pass:       true,
		RunID:      runID,
		ModelHash:  modelHash,
		Trajectory: stored,
	}

	// the stored run must reproduce the simulation exactly
	cmp, err := h.store.CompareRun(ctx, runID, modelHash, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to compare stored run: %w", err)
	}
	if !cmp.Identical() {
		result.AddError(fmt.Sprintf("stored run differs from simulation: %s", cmp.Divergence))
	}

	for _, msg := range EvaluateAssertions(stored, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"run_id", runID,
		"pass", result.Pass,
		"samples", len(stored.Samples))
	return result, nil
}
