package engine

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
)

func TestCompile_Layout(t *testing.T) {
	m := compileSource(t, decayModel)

	assert.Equal(t, 4, m.Dimension())
	assert.Equal(t, []string{"cell", "A", "B", "k"}, m.Layout().IDs())
	assert.Equal(t, "decay", m.ID())
	assert.Equal(t, []string{"r1"}, m.ReactionIDs())
}

func TestComputeDerivative_MassBalance(t *testing.T) {
	m := compileSource(t, decayModel)
	y := m.Initialize()
	require.Equal(t, []float64{1, 100, 0, 0.1}, y)

	dY := m.ComputeDerivative(0, y)
	assert.InDelta(t, -10, dY[slot(t, m, "A")], 1e-12)
	assert.InDelta(t, 10, dY[slot(t, m, "B")], 1e-12)
	assert.Zero(t, dY[slot(t, m, "cell")])
	assert.Zero(t, dY[slot(t, m, "k")])
	assert.Equal(t, []float64{10}, m.ReactionVelocities())
}

func TestComputeDerivative_DoesNotMutateInput(t *testing.T) {
	m := compileSource(t, `
id: "ruled"
parameters: {
	k: 2
	p: {value: 0, constant: false}
}
rules: [{variable: "p", math: "k * 3"}]
`)
	y := []float64{2, 0}
	m.ComputeDerivative(0, y)
	assert.Equal(t, []float64{2, 0}, y, "assignment rules must not write into the caller's state")
}

func TestComputeDerivative_Deterministic(t *testing.T) {
	m := compileSource(t, decayModel)
	y := m.Initialize()

	first := m.ComputeDerivative(1, y)
	y[1] = 50
	m.ComputeDerivative(1, y)
	y[1] = 100
	again := m.ComputeDerivative(1, y)

	assert.Equal(t, first, again)
}

func TestComputeDerivative_RequeryIsMemoized(t *testing.T) {
	m := compileSource(t, decayModel)
	y := m.Initialize()

	first := m.ComputeDerivative(0, y)
	evals := m.Graph().Evaluations()

	second := m.ComputeDerivative(0, y)
	assert.Equal(t, first, second)
	assert.Equal(t, evals, m.Graph().Evaluations(), "identical (t, y) must not evaluate any node")

	// the returned slice is a copy
	second[1] = 42
	assert.Equal(t, first, m.ComputeDerivative(0, y))

	y[1] = 90
	m.ComputeDerivative(0, y)
	assert.Greater(t, m.Graph().Evaluations(), evals)
}

func TestComputeDerivative_MemoSurvivesReadOnlyQueries(t *testing.T) {
	m := compileSource(t, decayModel)
	y := m.Initialize()

	first := m.ComputeDerivative(0, y)
	velocities := m.ReactionVelocities()
	evals := m.Graph().Evaluations()

	resolved := m.ResolveState(0, y)
	assert.Equal(t, y, resolved)
	assert.Equal(t, first, m.ComputeDerivative(0, y))
	assert.Equal(t, evals, m.Graph().Evaluations(), "ResolveState keeps the memo")

	m.CheckConstraints(0, y)
	evals = m.Graph().Evaluations()
	assert.Equal(t, first, m.ComputeDerivative(0, y))
	assert.Equal(t, evals, m.Graph().Evaluations(), "CheckConstraints keeps the memo")
	assert.Equal(t, velocities, m.ReactionVelocities())
}

func TestComputeDerivative_MemoDroppedAfterEventExecution(t *testing.T) {
	m := compileSource(t, `
id: "bump"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 10}
parameters: k: {value: 1, constant: false}
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
events: e: {
	trigger: {math: "time >= 1", initialValue: false}
	assignments: k: "2"
}
`)
	y := m.Initialize()
	before := m.ComputeDerivative(1, y)

	out := m.PollEvents(1, 0, y)
	require.NotNil(t, out)
	require.True(t, out.Executed())

	after := m.ComputeDerivative(1, out.State)
	assert.InDelta(t, 2*before[slot(t, m, "A")], after[slot(t, m, "A")], 1e-12)
}

func TestComputeDerivative_ConstantNodesEvaluatedOnce(t *testing.T) {
	m := compileSource(t, `
id: "consts"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 10}
parameters: {k1: 2, k2: 3}
reactions: r1: {reactants: ["A"], kineticLaw: "(k1 * k2 + pi) * A"}
`)
	y := m.Initialize()
	g := m.Graph()

	before := g.Evaluations()
	m.ComputeDerivative(0, y)
	firstCall := g.Evaluations() - before

	y[1] = 5
	before = g.Evaluations()
	m.ComputeDerivative(0, y)
	secondCall := g.Evaluations() - before

	assert.Less(t, secondCall, firstCall, "k1 * k2 + pi is constant and stays cached")
}

func TestComputeDerivative_ConcentrationSpecies(t *testing.T) {
	m := compileSource(t, `
id: "conc"
compartments: cell: {size: 2}
species: {
	A: {compartment: "cell", initialConcentration: 5}
	B: {compartment: "cell", initialConcentration: 0}
}
parameters: k: 0.1
reactions: r1: {reactants: ["A"], products: ["B"], kineticLaw: "k * A"}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	// velocity 0.5 in amount per time, spread over a volume of 2
	assert.InDelta(t, 0.5, m.ReactionVelocities()[0], 1e-12)
	assert.InDelta(t, -0.25, dY[slot(t, m, "A")], 1e-12)
	assert.InDelta(t, 0.25, dY[slot(t, m, "B")], 1e-12)
}

func TestComputeDerivative_AmountReadAsConcentration(t *testing.T) {
	m := compileSource(t, `
id: "amount"
compartments: cell: {size: 4}
species: A: {compartment: "cell", initialAmount: 8}
parameters: k: 1
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	// math sees [A] = 8 / 4
	assert.InDelta(t, 2, m.ReactionVelocities()[0], 1e-12)
	assert.InDelta(t, -2, dY[slot(t, m, "A")], 1e-12)
}

func TestComputeDerivative_ZeroSizeCompartment(t *testing.T) {
	m := compileSource(t, `
id: "empty"
compartments: cell: {size: 0}
species: A: {compartment: "cell", initialAmount: 4}
parameters: k: 1
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	assert.False(t, math.IsNaN(dY[slot(t, m, "A")]))
	assert.InDelta(t, -4, dY[slot(t, m, "A")], 1e-12, "size 0 reads the raw stored value")
}

func TestComputeDerivative_BoundaryAndConstantSpecies(t *testing.T) {
	m := compileSource(t, `
id: "boundary"
compartments: cell: 1
species: {
	S: {compartment: "cell", initialAmount: 10, boundaryCondition: true}
	E: {compartment: "cell", initialAmount: 1, constant: true}
	P: {compartment: "cell", initialAmount: 0}
}
parameters: k: 1
reactions: r1: {reactants: ["S", "E"], products: ["P"], kineticLaw: "k * S * E"}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	assert.Zero(t, dY[slot(t, m, "S")])
	assert.Zero(t, dY[slot(t, m, "E")])
	assert.InDelta(t, 10, dY[slot(t, m, "P")], 1e-12)
}

func TestComputeDerivative_Stoichiometry(t *testing.T) {
	m := compileSource(t, `
id: "dimer"
compartments: cell: 1
species: {
	M: {compartment: "cell", initialAmount: 10}
	D: {compartment: "cell", initialAmount: 0}
}
parameters: k: 0.5
reactions: r1: {
	reactants: [{species: "M", stoichiometry: 2}]
	products: ["D"]
	kineticLaw: "k"
}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	assert.InDelta(t, -1, dY[slot(t, m, "M")], 1e-12)
	assert.InDelta(t, 0.5, dY[slot(t, m, "D")], 1e-12)
}

func TestComputeDerivative_ConversionFactor(t *testing.T) {
	m := compileSource(t, `
id: "converted"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 10, conversionFactor: "cf"}
	B: {compartment: "cell", initialAmount: 0}
}
parameters: {k: 1, cf: 3}
reactions: r1: {reactants: ["A"], products: ["B"], kineticLaw: "k * A"}
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	assert.InDelta(t, -30, dY[slot(t, m, "A")], 1e-12)
	assert.InDelta(t, 10, dY[slot(t, m, "B")], 1e-12)
}

func TestComputeDerivative_FastPartition(t *testing.T) {
	m := compileSource(t, `
id: "fastslow"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 10}
	B: {compartment: "cell", initialAmount: 0}
	C: {compartment: "cell", initialAmount: 0}
}
parameters: {kslow: 1, kfast: 100}
reactions: {
	slow: {reactants: ["A"], products: ["B"], kineticLaw: "kslow * A"}
	fast: {reactants: ["B"], products: ["C"], kineticLaw: "kfast * A", fast: true}
}
`)
	require.True(t, m.HasFastReactions())
	y := m.Initialize()

	dY := m.ComputeDerivative(0, y)
	assert.Equal(t, []float64{10, 0}, m.ReactionVelocities())
	assert.InDelta(t, 0, dY[slot(t, m, "C")], 1e-12)

	m.SetProcessingFastReactions(true)
	dY = m.ComputeDerivative(0, y)
	assert.Equal(t, []float64{0, 1000}, m.ReactionVelocities())
	assert.InDelta(t, 0, dY[slot(t, m, "A")], 1e-12)
	assert.InDelta(t, 1000, dY[slot(t, m, "C")], 1e-12)
}

func TestComputeDerivative_AllFastIsNotMixed(t *testing.T) {
	m := compileSource(t, `
id: "allfast"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"], kineticLaw: "A", fast: true}
`)
	assert.False(t, m.HasFastReactions())
	dY := m.ComputeDerivative(0, m.Initialize())
	assert.InDelta(t, -1, dY[slot(t, m, "A")], 1e-12)
}

func TestLocalParameters(t *testing.T) {
	m := compileSource(t, `
id: "locals"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 10}
parameters: k: 100
reactions: {
	r1: {reactants: ["A"], kineticLaw: {math: "k * A", localParameters: k: 0.1}}
	r2: {reactants: ["A"], kineticLaw: {math: "k * A", localParameters: k: 0.2}}
	r3: {reactants: ["A"], kineticLaw: "k * A"}
}
`)
	y := m.Initialize()
	m.ComputeDerivative(0, y)
	v := m.ReactionVelocities()
	assert.InDelta(t, 1, v[0], 1e-12)
	assert.InDelta(t, 2, v[1], 1e-12)
	assert.InDelta(t, 1000, v[2], 1e-12, "the global k is untouched by the locals")

	require.NoError(t, m.SetLocalParameter("r1", "k", 0.5))
	m.ComputeDerivative(0, y)
	assert.InDelta(t, 5, m.ReactionVelocities()[0], 1e-12)
	assert.InDelta(t, 2, m.ReactionVelocities()[1], 1e-12)

	got, ok := m.LocalParameter("r1", "k")
	assert.True(t, ok)
	assert.Equal(t, 0.5, got)

	err := m.SetLocalParameter("r3", "k", 1)
	assert.True(t, IsModelError(err, ErrCodeUnknownSymbol))
}

func TestReactionReference(t *testing.T) {
	m := compileSource(t, `
id: "flux"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 4}
parameters: {
	k: 0.5
	flux: {value: 0, constant: false}
}
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
rules: [{variable: "flux", math: "r1 * 10"}]
`)
	y := m.ResolveState(0, m.Initialize())
	assert.InDelta(t, 20, y[slot(t, m, "flux")], 1e-12)
}

func TestInitialize_InitialAssignments(t *testing.T) {
	m := compileSource(t, `
id: "ia"
compartments: cell: {size: 2}
species: A: {compartment: "cell", initialAmount: 0}
parameters: {
	total: 10
	half: {constant: true}
}
initialAssignments: {
	half: "total / 2"
	A: "half"
}
`)
	y := m.Initialize()
	assert.InDelta(t, 5, y[slot(t, m, "half")], 1e-12)
	// A is stored as an amount; the assignment gives a concentration
	assert.InDelta(t, 10, y[slot(t, m, "A")], 1e-12)

	// a second Initialize yields the same start state
	assert.Equal(t, y, m.Initialize())
}

func TestInitialize_SpeciesWithOnlyAnInitialAssignment(t *testing.T) {
	m := compileSource(t, `
id: "ia_only"
compartments: cell: {size: 2}
species: {
	A: {compartment: "cell"}
	B: {compartment: "cell", initialConcentration: 1}
}
initialAssignments: A: "3"
`)
	y := m.Initialize()
	assert.InDelta(t, 3, y[slot(t, m, "A")], 1e-12)
	assert.False(t, m.Layout().Slots[slot(t, m, "A")].IsAmount)
}

func TestInitialize_InitialAssignmentStoredInMathForm(t *testing.T) {
	// B votes for concentration storage and for substance units; A follows
	// the substance-units vote, so it is stored as an amount.
	m := compileSource(t, `
id: "ia_amount"
compartments: cell: {size: 2}
species: {
	A: {compartment: "cell"}
	B: {compartment: "cell", initialConcentration: 1, hasOnlySubstanceUnits: true}
}
initialAssignments: A: "3"
`)
	y := m.Initialize()
	a := m.Layout().Slots[slot(t, m, "A")]
	assert.True(t, a.HasOnlySubstanceUnits)
	assert.True(t, a.IsAmount)
	assert.InDelta(t, 3, y[slot(t, m, "A")], 1e-12)
}

func TestPowerSignConvention(t *testing.T) {
	m := compileSource(t, `
id: "pow"
parameters: {
	p: {value: 0, constant: false}
	q: {value: 0, constant: false}
}
rules: [
	{variable: "p", math: "pow(-8, 1/3)"},
	{variable: "q", math: "pow(-2, 2)"},
]
`)
	y := m.Initialize()
	assert.InDelta(t, -2, y[0], 1e-12)
	assert.InDelta(t, 4, y[1], 1e-12)
}

func TestResolveState(t *testing.T) {
	m := compileSource(t, `
id: "resolve"
parameters: {
	x: {value: 1, constant: false}
	y2: {value: 0, constant: false}
}
rules: [{variable: "y2", math: "x * x"}]
`)
	y := []float64{3, 0}
	resolved := m.ResolveState(0, y)
	assert.Equal(t, []float64{3, 9}, resolved)
	assert.Equal(t, []float64{3, 0}, y)
}

func TestAlgebraicRules(t *testing.T) {
	src := `
id: "algebraic"
parameters: {
	x: {value: 0, constant: false}
	y: {value: 0, constant: false}
}
rules: [
	{variable: "y", math: "1"},
	{kind: "algebraic", math: "x + y - 3"},
]
`
	err := compileError(t, src)
	assert.True(t, IsModelError(err, ErrCodeAlgebraicUnconverted))

	m := compileSource(t, src, WithAlgebraicConverter(compiler.NewAlgebraicConverter()))
	y := m.Initialize()
	assert.InDelta(t, 2, y[slot(t, m, "x")], 1e-12)
	assert.InDelta(t, 1, y[slot(t, m, "y")], 1e-12)
}

func TestConstraints(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &recordingListener{}

	m := compileSource(t, `
id: "bounded"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 5}
constraints: [{math: "A < 10", message: "A must stay below 10"}]
`, WithLogger(logger), WithConstraintListener(rec))

	y := m.Initialize()
	assert.Empty(t, m.CheckConstraints(0, y))

	y[1] = 12
	violated := m.CheckConstraints(1, y)
	require.Len(t, violated, 1)
	assert.Equal(t, "A must stay below 10", violated[0].Message)
	assert.Equal(t, "(A < 10)", violated[0].Math)

	// still violated: reported, but the listener is not called again
	assert.Len(t, m.CheckConstraints(2, y), 1)
	assert.Equal(t, 1, rec.violated)

	y[1] = 3
	assert.Empty(t, m.CheckConstraints(3, y))
	assert.Equal(t, 1, rec.recovered)

	assert.Contains(t, buf.String(), "constraint violated")
	assert.Contains(t, buf.String(), "constraint recovered")
}

type recordingListener struct {
	violated  int
	recovered int
}

func (r *recordingListener) ConstraintViolated(ConstraintViolation)  { r.violated++ }
func (r *recordingListener) ConstraintRecovered(ConstraintViolation) { r.recovered++ }

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := compileSource(t, decayModel, WithMetrics(metrics))

	y := m.Initialize()
	m.ComputeDerivative(0, y)
	m.ComputeDerivative(0, y)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Derivatives))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DerivativeReuses))
	assert.Greater(t, testutil.ToFloat64(metrics.NodeEvaluations), 0.0)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		code    ErrorCode
		element string
	}{
		{
			name: "missing kinetic law",
			src: `
id: "m"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"]}
`,
			code:    ErrCodeMissingMath,
			element: "r1",
		},
		{
			name: "unknown symbol",
			src: `
id: "m"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
`,
			code:    ErrCodeUnknownSymbol,
			element: "r1",
		},
		{
			name: "constant rule target",
			src: `
id: "m"
parameters: k: 1
rules: [{variable: "k", math: "2"}]
`,
			code:    ErrCodeConstantTarget,
			element: "k",
		},
		{
			name: "two rules for one variable",
			src: `
id: "m"
parameters: p: {value: 0, constant: false}
rules: [{variable: "p", math: "1"}, {kind: "rate", variable: "p", math: "2"}]
`,
			code:    ErrCodeOverdetermined,
			element: "p",
		},
		{
			name: "initial assignment and assignment rule",
			src: `
id: "m"
parameters: p: {value: 0, constant: false}
rules: [{variable: "p", math: "1"}]
initialAssignments: p: "2"
`,
			code:    ErrCodeOverdetermined,
			element: "p",
		},
		{
			name: "function arity",
			src: `
id: "m"
functions: double: {args: ["x"], body: "x * 2"}
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"], kineticLaw: "double(A, A)"}
`,
			code:    ErrCodeArity,
			element: "r1",
		},
		{
			name: "delay",
			src: `
id: "m"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"], kineticLaw: "delay(A, 2)"}
`,
			code:    ErrCodeUnsupportedSymbol,
			element: "r1",
		},
		{
			name: "self-referencing reaction",
			src: `
id: "m"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 1}
reactions: r1: {reactants: ["A"], kineticLaw: "r1 + A"}
`,
			code:    ErrCodeUnsupportedSymbol,
			element: "r1",
		},
		{
			name: "duplicate identifier",
			src: `
id: "m"
compartments: A: 1
parameters: A: 2
`,
			code:    ErrCodeDuplicateID,
			element: "A",
		},
		{
			name: "event without trigger",
			src: `
id: "m"
parameters: p: {value: 0, constant: false}
events: e1: {assignments: {p: "1"}}
`,
			code:    ErrCodeMissingMath,
			element: "e1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileError(t, tt.src)
			var me *ModelError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.code, me.Code, me.Error())
			assert.Equal(t, tt.element, me.ElementID)
		})
	}
}

func TestCompile_TooManySymbols(t *testing.T) {
	saved := maxSlots
	maxSlots = 2
	t.Cleanup(func() { maxSlots = saved })

	err := compileError(t, decayModel)
	assert.True(t, IsModelError(err, ErrCodeTooManySymbols))
}
