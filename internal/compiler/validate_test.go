package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/ir"
)

// baseModel is a valid A -> B model the tests mutate.
func baseModel() *ir.Model {
	return &ir.Model{
		ID:           "base",
		Compartments: []ir.Compartment{{ID: "cell", Size: ir.Float(1), SpatialDimensions: 3, Constant: true}},
		Species: []ir.Species{
			{ID: "A", Compartment: "cell", InitialAmount: ir.Float(10)},
			{ID: "B", Compartment: "cell", InitialAmount: ir.Float(0)},
		},
		Parameters: []ir.Parameter{
			{ID: "k", Value: ir.Float(0.1), Constant: true},
			{ID: "x", Value: ir.Float(0)},
		},
		Reactions: []ir.Reaction{{
			ID:         "r1",
			Reactants:  []ir.SpeciesReference{{Species: "A", Constant: true}},
			Products:   []ir.SpeciesReference{{Species: "B", Constant: true}},
			KineticLaw: &ir.KineticLaw{Math: MustParseFormula("k * A")},
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValidModel(t *testing.T) {
	assert.Empty(t, Validate(baseModel()))
}

func TestValidateMissingID(t *testing.T) {
	m := baseModel()
	m.ID = ""
	assert.Contains(t, codes(Validate(m)), ErrModelIDEmpty)
}

func TestValidateDuplicateID(t *testing.T) {
	m := baseModel()
	m.Parameters = append(m.Parameters, ir.Parameter{ID: "A", Value: ir.Float(1)})

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateID, errs[0].Code)
	assert.Equal(t, "parameters.A", errs[0].Field)
}

func TestValidateUnknownSymbol(t *testing.T) {
	m := baseModel()
	m.Reactions[0].KineticLaw.Math = MustParseFormula("kf * A")

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownSymbol, errs[0].Code)
	assert.Contains(t, errs[0].Message, "kf")
}

func TestValidateLocalParametersAreInScope(t *testing.T) {
	m := baseModel()
	m.Reactions[0].KineticLaw = &ir.KineticLaw{
		Math:            MustParseFormula("kf * A"),
		LocalParameters: []ir.Parameter{{ID: "kf", Value: ir.Float(2), Constant: true}},
	}
	assert.Empty(t, Validate(m))
}

func TestValidateMissingKineticLaw(t *testing.T) {
	m := baseModel()
	m.Reactions[0].KineticLaw = nil
	assert.Equal(t, []string{ErrMissingMath}, codes(Validate(m)))
}

func TestValidateRuleTargets(t *testing.T) {
	tests := []struct {
		name  string
		rules []ir.Rule
		want  string
	}{
		{
			name:  "constant target",
			rules: []ir.Rule{{Kind: ir.RuleAssignment, Variable: "k", Math: ir.Num(1)}},
			want:  ErrConstantTarget,
		},
		{
			name:  "reaction target",
			rules: []ir.Rule{{Kind: ir.RuleAssignment, Variable: "r1", Math: ir.Num(1)}},
			want:  ErrNotAssignable,
		},
		{
			name: "two rules for one variable",
			rules: []ir.Rule{
				{Kind: ir.RuleAssignment, Variable: "x", Math: ir.Num(1)},
				{Kind: ir.RuleRate, Variable: "x", Math: ir.Num(2)},
			},
			want: ErrOverdetermined,
		},
		{
			name:  "rate rule on reacting species",
			rules: []ir.Rule{{Kind: ir.RuleRate, Variable: "A", Math: ir.Num(1)}},
			want:  ErrRateRuleReacted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := baseModel()
			m.Rules = tt.rules
			assert.Contains(t, codes(Validate(m)), tt.want)
		})
	}
}

func TestValidateAssignmentRuleWithInitialAssignment(t *testing.T) {
	m := baseModel()
	m.Rules = []ir.Rule{{Kind: ir.RuleAssignment, Variable: "x", Math: ir.Num(1)}}
	m.InitialAssignments = []ir.InitialAssignment{{Symbol: "x", Math: ir.Num(2)}}
	assert.Equal(t, []string{ErrOverdetermined}, codes(Validate(m)))
}

func TestValidateFunctions(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		m := baseModel()
		m.Reactions[0].KineticLaw.Math = MustParseFormula("hill(A, 2)")
		assert.Contains(t, codes(Validate(m)), ErrUnknownFunction)
	})

	t.Run("arity", func(t *testing.T) {
		m := baseModel()
		m.FunctionDefs = []ir.FunctionDefinition{{ID: "sq", Args: []string{"v"}, Body: MustParseFormula("v * v")}}
		m.Reactions[0].KineticLaw.Math = MustParseFormula("sq(A, 2)")
		assert.Equal(t, []string{ErrFunctionArity}, codes(Validate(m)))
	})

	t.Run("free name in body", func(t *testing.T) {
		m := baseModel()
		m.FunctionDefs = []ir.FunctionDefinition{{ID: "f", Args: []string{"v"}, Body: MustParseFormula("v * k")}}
		assert.Equal(t, []string{ErrUnknownSymbol}, codes(Validate(m)))
	})

	t.Run("mutual recursion", func(t *testing.T) {
		m := baseModel()
		m.FunctionDefs = []ir.FunctionDefinition{
			{ID: "f", Args: []string{"v"}, Body: MustParseFormula("g(v)")},
			{ID: "g", Args: []string{"v"}, Body: MustParseFormula("f(v) + 1")},
		}
		assert.Equal(t, []string{ErrRecursiveFunc, ErrRecursiveFunc}, codes(Validate(m)))
	})
}

func TestValidateEvents(t *testing.T) {
	m := baseModel()
	m.Events = []ir.Event{
		{ID: "noTrigger"},
		{
			ID:          "toConstant",
			Trigger:     &ir.Trigger{Math: MustParseFormula("time > 1")},
			Assignments: []ir.EventAssignment{{Variable: "k", Math: ir.Num(0)}},
		},
	}
	assert.Equal(t, []string{ErrEventNoTrigger, ErrConstantTarget}, codes(Validate(m)))
}

func TestValidateDelayUnsupported(t *testing.T) {
	m := baseModel()
	m.Reactions[0].KineticLaw.Math = MustParseFormula("k * delay(A, 1)")
	assert.Equal(t, []string{ErrDelayUnsupported}, codes(Validate(m)))
}

func TestValidateConversionFactor(t *testing.T) {
	m := baseModel()
	m.ConversionFactor = "cell"
	assert.Equal(t, []string{ErrBadConversion}, codes(Validate(m)))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "rules[0]", Message: "bad", Code: ErrMissingMath}
	assert.Equal(t, "[E120] rules[0]: bad", e.Error())
}
