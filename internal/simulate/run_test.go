package simulate

import (
	"context"
	"errors"
	"math"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/engine"
)

const decayModel = `
id: "decay"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 100}
	B: {compartment: "cell", initialAmount: 0}
}
parameters: k: 0.1
reactions: r1: {reactants: ["A"], products: ["B"], kineticLaw: "k * A"}
`

func compileSystem(t *testing.T, src string, cfg Config) *engine.Model {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	m, err := compiler.CompileModel(v)
	require.NoError(t, err)
	sys, err := engine.Compile(m, cfg.Options()...)
	require.NoError(t, err)
	return sys
}

func config(end, step float64) Config {
	cfg := DefaultConfig()
	cfg.End = end
	cfg.Step = step
	return cfg
}

func TestRun_ExponentialDecay(t *testing.T) {
	cfg := config(10, 0.1)
	tr, err := Run(context.Background(), compileSystem(t, decayModel, cfg), cfg)
	require.NoError(t, err)

	assert.Equal(t, "decay", tr.ModelID)
	assert.Equal(t, []string{"cell", "A", "B", "k"}, tr.Columns)
	assert.Equal(t, []string{"r1"}, tr.Reactions)
	assert.Len(t, tr.Samples, 101)

	a, err := tr.FinalValue("A")
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Exp(-1), a, 1e-6)

	final, _ := tr.Final()
	assert.Equal(t, 10.0, final.Time)
	for _, s := range tr.Samples {
		assert.InDelta(t, 100, s.State[1]+s.State[2], 1e-9, "mass is conserved at t=%g", s.Time)
	}
	assert.InDelta(t, 0.1*a, final.Velocities[0], 1e-9)
}

func TestRun_Euler(t *testing.T) {
	cfg := config(1, 0.5)
	cfg.Method = MethodEuler
	tr, err := Run(context.Background(), compileSystem(t, decayModel, cfg), cfg)
	require.NoError(t, err)

	a, err := tr.FinalValue("A")
	require.NoError(t, err)
	assert.InDelta(t, 100*0.95*0.95, a, 1e-9)
}

// Each grid point computes the derivative once for the recorded velocities;
// the stepper's first stage at the same point reuses it.
func TestRun_FirstStageReusesRecordedDerivative(t *testing.T) {
	cfg := config(1, 0.5)
	cfg.Method = MethodEuler

	metrics := engine.NewMetrics(prometheus.NewRegistry())
	v := cuecontext.New().CompileString(decayModel)
	require.NoError(t, v.Err())
	m, err := compiler.CompileModel(v)
	require.NoError(t, err)
	sys, err := engine.Compile(m, append(cfg.Options(), engine.WithMetrics(metrics))...)
	require.NoError(t, err)

	_, err = Run(context.Background(), sys, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Derivatives), "one evaluation per recorded sample")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DerivativeReuses), "one reuse per Euler step")
}

func TestRun_LandsOnEventTimes(t *testing.T) {
	src := `
id: "pulse"
parameters: x: {value: 0, constant: false}
events: e: {
	trigger: {math: "time >= 1", initialValue: false}
	delay: "0.25"
	assignments: x: "1"
}
`
	cfg := config(2, 0.5)
	tr, err := Run(context.Background(), compileSystem(t, src, cfg), cfg)
	require.NoError(t, err)

	var times []float64
	for _, s := range tr.Samples {
		times = append(times, s.Time)
	}
	assert.Equal(t, []float64{0, 0.5, 1, 1.25, 1.5, 2}, times)
	assert.Equal(t, 1, tr.EventCount("e"))

	require.Len(t, tr.Events, 2)
	assert.Equal(t, "fire", tr.Events[0].Kind)
	assert.Equal(t, 1.0, tr.Events[0].Time)
	assert.Equal(t, "execute", tr.Events[1].Kind)
	assert.Equal(t, 1.25, tr.Events[1].Time)

	x, err := tr.ValueAt("x", 1.25)
	require.NoError(t, err)
	assert.Equal(t, 1.0, x)
	x, err = tr.ValueAt("x", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, x)
}

func TestRun_EventResetsState(t *testing.T) {
	src := `
id: "refill"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 10}
parameters: k: 1
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
events: refill: {
	trigger: "A < 5"
	assignments: A: "10"
}
`
	cfg := config(3, 0.01)
	tr, err := Run(context.Background(), compileSystem(t, src, cfg), cfg)
	require.NoError(t, err)

	// A halves in ln 2, so the refill happens at least four times
	assert.GreaterOrEqual(t, tr.EventCount("refill"), 4)
	for _, s := range tr.Samples {
		assert.GreaterOrEqual(t, s.State[1], 4.9)
	}
}

func TestRun_ConstraintTransitions(t *testing.T) {
	src := `
id: "ramp"
parameters: x: {value: 0, constant: false}
rules: [{kind: "rate", variable: "x", math: "piecewise(1, time < 3, -1)"}]
constraints: [{math: "x < 2", message: "x stays below 2"}]
`
	cfg := config(6, 0.5)
	cfg.Method = MethodEuler
	tr, err := Run(context.Background(), compileSystem(t, src, cfg), cfg)
	require.NoError(t, err)

	require.Len(t, tr.Constraints, 2)
	assert.True(t, tr.Constraints[0].Violated)
	assert.Equal(t, 2.0, tr.Constraints[0].Time)
	assert.Equal(t, "x stays below 2", tr.Constraints[0].Message)
	assert.False(t, tr.Constraints[1].Violated)
	assert.Equal(t, 4.5, tr.Constraints[1].Time)
	assert.True(t, tr.Violated(0))
	assert.False(t, tr.Violated(1))
}

func TestRun_FastReactionsEquilibrate(t *testing.T) {
	src := `
id: "fast"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 10}
	B: {compartment: "cell", initialAmount: 0}
	C: {compartment: "cell", initialAmount: 0}
}
parameters: k: 0
reactions: {
	forward: {reactants: ["A"], products: ["B"], kineticLaw: "10 * A", fast: true}
	backward: {reactants: ["B"], products: ["A"], kineticLaw: "10 * B", fast: true}
	leak: {reactants: ["B"], products: ["C"], kineticLaw: "k * B"}
}
`
	cfg := config(1, 0.5)
	tr, err := Run(context.Background(), compileSystem(t, src, cfg), cfg)
	require.NoError(t, err)

	first := tr.Samples[0]
	assert.InDelta(t, 5, first.State[tr.Column("A")], 1e-6)
	assert.InDelta(t, 5, first.State[tr.Column("B")], 1e-6)
	assert.Equal(t, 0.0, first.State[tr.Column("C")])
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config(10, 0.1)
	tr, err := Run(ctx, compileSystem(t, decayModel, cfg), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, tr)
	assert.Len(t, tr.Samples, 1, "only the start point was recorded")
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := config(-1, 0.1)
	_, err := Run(context.Background(), compileSystem(t, decayModel, DefaultConfig()), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_Deterministic(t *testing.T) {
	src := `
id: "ties"
parameters: x: {value: 0, constant: false}
events: {
	a: {trigger: {math: "time >= 1", initialValue: false}, assignments: x: "1"}
	b: {trigger: {math: "time >= 1", initialValue: false}, assignments: x: "2"}
	c: {trigger: {math: "time >= 1", initialValue: false}, assignments: x: "3"}
}
`
	cfg := config(2, 0.5)
	cfg.Seed = 99
	sys := compileSystem(t, src, cfg)

	first, err := Run(context.Background(), sys, cfg)
	require.NoError(t, err)
	second, err := Run(context.Background(), sys, cfg)
	require.NoError(t, err)

	h1, err := first.Hash()
	require.NoError(t, err)
	h2, err := second.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, first.Events, second.Events)
}

func TestTrajectory_ValueAt(t *testing.T) {
	tr := &Trajectory{
		Columns: []string{"x"},
		Samples: []Sample{
			{Time: 0, State: []float64{0}},
			{Time: 1, State: []float64{10}},
			{Time: 1, State: []float64{20}},
			{Time: 2, State: []float64{40}},
		},
	}

	v, err := tr.ValueAt("x", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, err = tr.ValueAt("x", 1)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v, "the post-event sample wins")

	v, err = tr.ValueAt("x", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	v, err = tr.ValueAt("x", 2)
	require.NoError(t, err)
	assert.Equal(t, 40.0, v)

	_, err = tr.ValueAt("x", 3)
	assert.Error(t, err)
	_, err = tr.ValueAt("y", 1)
	assert.Error(t, err)
}
