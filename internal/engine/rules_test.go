package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentRules_DependencyOrder(t *testing.T) {
	m := compileSource(t, `
id: "chain"
parameters: {
	k: 1
	z: {value: 0, constant: false}
	y: {value: 0, constant: false}
	x: {value: 0, constant: false}
}
rules: [
	{variable: "z", math: "y + 1"},
	{variable: "y", math: "x * 2"},
	{variable: "x", math: "k + 1"},
]
`)
	y := m.Initialize()
	assert.Equal(t, []float64{1, 5, 4, 2}, y)
	assert.False(t, m.rules.Cyclic())

	var order []string
	for _, r := range m.rules.ordered {
		order = append(order, r.target.id)
	}
	assert.Equal(t, []string{"x", "y", "z"}, order)
}

func TestAssignmentRules_ReadThroughReaction(t *testing.T) {
	m := compileSource(t, `
id: "through"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 2}
parameters: {
	rate: {value: 0, constant: false}
	k: {value: 0, constant: false}
}
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
rules: [
	{variable: "rate", math: "r1"},
	{variable: "k", math: "3"},
]
`)
	y := m.Initialize()
	assert.InDelta(t, 6, y[slot(t, m, "rate")], 1e-12, "k must be assigned before the rule reading r1")
}

func TestAssignmentRules_CycleTerminates(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m := compileSource(t, `
id: "cycle"
parameters: {
	a: {value: 1, constant: false}
	b: {value: 0, constant: false}
}
rules: [
	{variable: "a", math: "b + 1"},
	{variable: "b", math: "a + 1"},
]
`, WithLogger(logger))

	require.True(t, m.rules.Cyclic())
	assert.Equal(t, 2, m.rules.passes)
	assert.Contains(t, buf.String(), "assignment rules form a cycle")

	// Never converges. Each evaluation runs two passes of a = b + 1,
	// b = a + 1; Initialize evaluates twice starting from a=1, b=0.
	y := m.Initialize()
	assert.Equal(t, []float64{7, 8}, y)

	resolved := m.ResolveState(0, y)
	assert.Equal(t, []float64{11, 12}, resolved)
	assert.Equal(t, resolved, m.ResolveState(0, y), "same input state, same result")
	assert.Equal(t, []float64{7, 8}, y, "input state is not modified")
}

func TestAssignmentRules_FixedPointCycle(t *testing.T) {
	m := compileSource(t, `
id: "fixed"
parameters: {
	a: {value: 0, constant: false}
	b: {value: 0, constant: false}
}
rules: [
	{variable: "a", math: "b * 0 + 4"},
	{variable: "b", math: "a / 2"},
]
`)
	y := m.Initialize()
	assert.Equal(t, []float64{4, 2}, y)
}

func TestAssignmentRules_SpeciesTargetIsConverted(t *testing.T) {
	m := compileSource(t, `
id: "conv"
compartments: cell: {size: 2}
species: A: {compartment: "cell", initialAmount: 0}
rules: [{variable: "A", math: "3"}]
`)
	y := m.Initialize()
	assert.InDelta(t, 6, y[slot(t, m, "A")], 1e-12, "a concentration of 3 in volume 2 is stored as amount 6")
}

func TestRateRules(t *testing.T) {
	m := compileSource(t, `
id: "rates"
parameters: {
	p: {value: 1, constant: false}
	k: 0.5
}
rules: [{kind: "rate", variable: "p", math: "-k * p"}]
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)
	assert.InDelta(t, -0.5, dY[0], 1e-12)
}

func TestRateRules_GrowingCompartmentDilutes(t *testing.T) {
	m := compileSource(t, `
id: "dilution"
compartments: V: {size: 2, constant: false}
species: {
	S: {compartment: "V", initialConcentration: 4}
	N: {compartment: "V", initialAmount: 4}
}
rules: [{kind: "rate", variable: "V", math: "1"}]
`)
	y := m.Initialize()
	dY := m.ComputeDerivative(0, y)

	assert.InDelta(t, 1, dY[slot(t, m, "V")], 1e-12)
	assert.InDelta(t, -2, dY[slot(t, m, "S")], 1e-12, "-dV * [S] / V")
	assert.Zero(t, dY[slot(t, m, "N")], "amounts are not diluted")
}

func TestRateRules_Stoichiometry(t *testing.T) {
	m := compileSource(t, `
id: "ratestoich"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 10}
	B: {compartment: "cell", initialAmount: 0}
}
parameters: k: 1
reactions: r1: {
	reactants: ["A"]
	products: [{id: "s", species: "B", stoichiometry: 2, constant: false}]
	kineticLaw: "k"
}
rules: [{kind: "rate", variable: "s", math: "0.5"}]
`)
	s := slot(t, m, "s")
	assert.Equal(t, SlotStoichiometry, m.Layout().Slots[s].Kind)

	y := m.Initialize()
	assert.Equal(t, 2.0, y[s])

	dY := m.ComputeDerivative(0, y)
	assert.InDelta(t, 0.5, dY[s], 1e-12)
	assert.InDelta(t, 2, dY[slot(t, m, "B")], 1e-12)

	y[s] = 5
	assert.InDelta(t, 5, m.ComputeDerivative(0, y)[slot(t, m, "B")], 1e-12)
}
