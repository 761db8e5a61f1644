package engine

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/ir"
)

// decayModel is A → B with mass-action rate k·A.
//
// Slots: cell=0, A=1, B=2, k=3.
const decayModel = `
id: "decay"
compartments: cell: {size: 1}
species: {
	A: {compartment: "cell", initialAmount: 100}
	B: {compartment: "cell", initialAmount: 0}
}
parameters: k: 0.1
reactions: r1: {reactants: ["A"], products: ["B"], kineticLaw: "k * A"}
`

func parseSource(t *testing.T, src string) *ir.Model {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	m, err := compiler.CompileModel(v)
	require.NoError(t, err)
	return m
}

func compileSource(t *testing.T, src string, opts ...Option) *Model {
	t.Helper()
	m, err := Compile(parseSource(t, src), opts...)
	require.NoError(t, err)
	return m
}

func compileError(t *testing.T, src string, opts ...Option) error {
	t.Helper()
	m, err := Compile(parseSource(t, src), opts...)
	require.Error(t, err)
	require.Nil(t, m, "a failed compile must not return a model")
	return err
}

func slot(t *testing.T, m *Model, id string) int {
	t.Helper()
	i, ok := m.SlotIndex(id)
	require.True(t, ok, "no slot %q", id)
	return i
}
