package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/roach88/rxnsim/internal/engine"
)

// System is what Run drives. *engine.Model implements it.
type System interface {
	Derivative

	ID() string
	Layout() *engine.Layout
	ReactionIDs() []string

	Initialize() []float64
	PollEvents(t, prevT float64, y []float64) *engine.EventOutcome
	NextEventTime() (float64, bool)
	CheckConstraints(t float64, y []float64) []engine.ConstraintViolation
	ResolveState(t float64, y []float64) []float64
	ReactionVelocities() []float64

	HasFastReactions() bool
	SetProcessingFastReactions(fast bool)
}

var _ System = (*engine.Model)(nil)

// Options returns the engine options a config implies.
func (c Config) Options() []engine.Option {
	opts := []engine.Option{engine.WithSeed(c.Seed)}
	if c.EventQuota > 0 {
		opts = append(opts, engine.WithEventQuota(c.EventQuota))
	}
	return opts
}

// runner holds the state of one Run call.
type runner struct {
	sys     System
	cfg     Config
	stepper Stepper
	logger  *slog.Logger
	tr      *Trajectory

	violated map[int]engine.ConstraintViolation
}

// Run integrates sys from cfg.Start to cfg.End.
//
// The system is initialized first, so a System can be run repeatedly. On
// cancellation Run returns the trajectory recorded so far together with
// the context error.
func Run(ctx context.Context, sys System, cfg Config) (*Trajectory, error) {
	return RunWithLogger(ctx, sys, cfg, slog.Default())
}

// RunWithLogger is Run with an explicit logger.
func RunWithLogger(ctx context.Context, sys System, cfg Config, logger *slog.Logger) (*Trajectory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	stepper, err := NewStepper(cfg.Method)
	if err != nil {
		return nil, err
	}

	r := &runner{
		sys:     sys,
		cfg:     cfg,
		stepper: stepper,
		logger:  logger,
		tr: &Trajectory{
			ModelID:   sys.ID(),
			Columns:   sys.Layout().IDs(),
			Reactions: sys.ReactionIDs(),
		},
		violated: make(map[int]engine.ConstraintViolation),
	}
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (*Trajectory, error) {
	cfg := r.cfg
	t := cfg.Start
	y := r.sys.Initialize()

	y = r.settle(t, t, y)
	r.record(t, y)

	logger := r.logger.With("model", r.tr.ModelID)
	logger.Debug("simulation started", "start", cfg.Start, "end", cfg.End, "step", cfg.Step, "method", cfg.Method)

	// Grid points are computed from the start time rather than accumulated,
	// so long runs do not drift.
	step := 0
	for t < cfg.End {
		if err := ctx.Err(); err != nil {
			return r.tr, fmt.Errorf("simulation of %s cut at t=%g: %w", r.tr.ModelID, t, err)
		}

		next := math.Min(cfg.Start+float64(step+1)*cfg.Step, cfg.End)
		if exec, ok := r.sys.NextEventTime(); ok && exec > t && exec < next {
			next = exec
		} else {
			step++
		}

		prevT := t
		y = r.stepper.Step(r.sys, t, next-t, y)
		t = next

		y = r.settle(t, prevT, y)
		r.record(t, y)
	}

	logger.Debug("simulation finished",
		"samples", len(r.tr.Samples),
		"events", len(r.tr.Events),
		"constraint_transitions", len(r.tr.Constraints))
	return r.tr, nil
}

// settle brings the state at t into a consistent form: fast reactions at
// equilibrium, events applied, constraints checked.
func (r *runner) settle(t, prevT float64, y []float64) []float64 {
	y = r.equilibrate(t, y)
	if out := r.sys.PollEvents(t, prevT, y); out != nil {
		r.recordEffects(out.Effects)
		y = out.State
		if out.Executed() {
			y = r.equilibrate(t, y)
		}
	}
	r.checkConstraints(t, y)
	return y
}

// equilibrate integrates only the fast reactions in pseudo-time until the
// largest rate of change drops below the tolerance.
func (r *runner) equilibrate(t float64, y []float64) []float64 {
	if !r.sys.HasFastReactions() {
		return y
	}
	r.sys.SetProcessingFastReactions(true)
	defer r.sys.SetProcessingFastReactions(false)

	for i := 0; i < r.cfg.FastMaxIterations; i++ {
		d := r.sys.ComputeDerivative(t, y)
		largest := 0.0
		for _, v := range d {
			largest = math.Max(largest, math.Abs(v))
		}
		if largest <= r.cfg.FastTolerance {
			return y
		}
		y = axpy(y, r.cfg.FastStep, d)
	}
	r.logger.Warn("fast reactions did not reach equilibrium",
		"model", r.tr.ModelID,
		"time", t,
		"iterations", r.cfg.FastMaxIterations)
	return y
}

func (r *runner) record(t float64, y []float64) {
	// refresh velocities at this exact point; an RK4 first stage at the
	// same (t, y) is then served from the model's memo
	r.sys.ComputeDerivative(t, y)
	r.tr.Samples = append(r.tr.Samples, Sample{
		Time:       t,
		State:      r.sys.ResolveState(t, y),
		Velocities: r.sys.ReactionVelocities(),
	})
}

func (r *runner) recordEffects(effects []engine.Effect) {
	for _, fx := range effects {
		r.tr.Events = append(r.tr.Events, EventRecord{
			Time:        fx.Time,
			EventID:     fx.EventID,
			Kind:        fx.Kind.String(),
			ExecTime:    fx.ExecTime,
			Aborted:     fx.Aborted,
			Assignments: slices.Clone(fx.Assignments),
		})
	}
}

// checkConstraints records transitions against the previous check.
func (r *runner) checkConstraints(t float64, y []float64) {
	now := make(map[int]bool)
	for _, v := range r.sys.CheckConstraints(t, y) {
		now[v.Index] = true
		if _, was := r.violated[v.Index]; !was {
			r.violated[v.Index] = v
			r.tr.Constraints = append(r.tr.Constraints, ConstraintRecord{
				Time: t, Index: v.Index, Message: v.Message, Math: v.Math, Violated: true,
			})
		}
	}
	for _, idx := range slices.Sorted(maps.Keys(r.violated)) {
		if now[idx] {
			continue
		}
		v := r.violated[idx]
		delete(r.violated, idx)
		r.tr.Constraints = append(r.tr.Constraints, ConstraintRecord{
			Time: t, Index: idx, Message: v.Message, Math: v.Math, Violated: false,
		})
	}
}
