package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decayModel(k float64) *Model {
	return &Model{
		ID:           "decay",
		Compartments: []Compartment{{ID: "cell", Size: Float(1), SpatialDimensions: 3, Constant: true}},
		Species:      []Species{{ID: "A", Compartment: "cell", InitialAmount: Float(10)}},
		Parameters:   []Parameter{{ID: "k", Value: Float(k), Constant: true}},
		Reactions: []Reaction{{
			ID:         "r",
			Reactants:  []SpeciesReference{{Species: "A", Stoichiometry: Float(1), Constant: true}},
			KineticLaw: &KineticLaw{Math: Op(ASTTimes, Sym("k"), Sym("A"))},
		}},
	}
}

func TestModelHashDeterministic(t *testing.T) {
	h1, err := ModelHash(decayModel(0.5))
	require.NoError(t, err)
	h2, err := ModelHash(decayModel(0.5))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestModelHashChangesWithContent(t *testing.T) {
	base := MustModelHash(decayModel(0.5))
	assert.NotEqual(t, base, MustModelHash(decayModel(0.25)), "parameter value")

	renamed := decayModel(0.5)
	renamed.ID = "decay2"
	assert.NotEqual(t, base, MustModelHash(renamed), "model id")

	law := decayModel(0.5)
	law.Reactions[0].KineticLaw.Math = Op(ASTTimes, Sym("A"), Sym("k"))
	assert.NotEqual(t, base, MustModelHash(law), "operand order is significant")
}

func TestModelHashIgnoresExplicitNulls(t *testing.T) {
	a := decayModel(0.5)
	a.Events = []Event{{ID: "e", Trigger: &Trigger{Math: Op(ASTLt, Sym("A"), Num(1))}}}

	b := decayModel(0.5)
	b.Events = []Event{{ID: "e", Trigger: &Trigger{Math: Op(ASTLt, Sym("A"), Num(1))}, Delay: nil, Priority: nil}}

	assert.Equal(t, MustModelHash(a), MustModelHash(b))
}

func TestModelHashHandlesNilMath(t *testing.T) {
	m := decayModel(0.5)
	m.Rules = []Rule{{Kind: RuleAlgebraic}}

	_, err := ModelHash(m)
	require.NoError(t, err)
}

func TestCanonicalModelShape(t *testing.T) {
	data, err := CanonicalModel(&Model{ID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"empty"}`, string(data))
}

func TestCanonicalModelNormalizesIdentifiers(t *testing.T) {
	a, err := CanonicalModel(&Model{ID: "cafe\u0301"})
	require.NoError(t, err)
	b, err := CanonicalModel(&Model{ID: "caf\u00e9"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDropNulls(t *testing.T) {
	in := map[string]any{
		"a": nil,
		"b": []any{1.0, nil, map[string]any{"c": nil, "d": "x"}},
	}
	out := dropNulls(in)
	assert.Equal(t, map[string]any{
		"b": []any{1.0, map[string]any{"d": "x"}},
	}, out)
}

func TestMustModelHashPanicsOnInvalidModel(t *testing.T) {
	m := &Model{ID: "bad", Parameters: []Parameter{{ID: "p", Value: Float(math.NaN())}}}
	assert.Panics(t, func() { MustModelHash(m) })
}

func TestTrajectoryHash(t *testing.T) {
	times := []float64{0, 0.5, 1}
	values := [][]float64{{1, 2}, {1.5, 2}, {2, 2}}

	h1, err := TrajectoryHash(times, values)
	require.NoError(t, err)
	h2, err := TrajectoryHash(times, values)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := [][]float64{{1, 2}, {1.5, 2}, {2, 2.0000000001}}
	h3, err := TrajectoryHash(times, changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "any bit of any value changes the hash")
}

func TestTrajectoryHashNonFinite(t *testing.T) {
	h1, err := TrajectoryHash([]float64{0}, [][]float64{{math.NaN()}})
	require.NoError(t, err)
	h2, err := TrajectoryHash([]float64{0}, [][]float64{{math.Inf(1)}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte(`[]`)
	assert.NotEqual(t, hashWithDomain(DomainModel, data), hashWithDomain(DomainTrajectory, data))

	empty, err := TrajectoryHash(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, hashWithDomain(DomainTrajectory, data), empty)
}
