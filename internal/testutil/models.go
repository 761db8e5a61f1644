// Package testutil provides model fixtures and deterministic helpers for
// tests across packages.
package testutil

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/ir"
)

// DecayModel is A -> B with mass-action rate k*A, k = 0.1, A(0) = 100.
const DecayModel = `
id: "decay"
compartments: cell: 1
species: {
	A: {compartment: "cell", initialAmount: 100}
	B: {compartment: "cell", initialAmount: 0}
}
parameters: k: 0.1
reactions: r1: {reactants: ["A"], products: ["B"], kineticLaw: "k * A"}
`

// RefillModel decays A and resets it to 10 whenever it drops below 5. A
// constraint flags A above 9.5, which every refill violates.
const RefillModel = `
id: "refill"
compartments: cell: 1
species: A: {compartment: "cell", initialAmount: 10}
parameters: k: 1
reactions: r1: {reactants: ["A"], kineticLaw: "k * A"}
events: refill: {
	trigger: "A < 5"
	assignments: A: "10"
}
constraints: [{math: "A <= 9.5", message: "A above 9.5"}]
`

// Parse compiles CUE source into a symbolic model.
func Parse(t testing.TB, src string) *ir.Model {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	m, err := compiler.CompileModel(v)
	require.NoError(t, err)
	return m
}

// Compile compiles CUE source into a runnable model.
func Compile(t testing.TB, src string, opts ...engine.Option) *engine.Model {
	t.Helper()
	m, err := engine.Compile(Parse(t, src), opts...)
	require.NoError(t, err)
	return m
}
