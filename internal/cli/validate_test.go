package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
)

func TestValidateValidModel(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "reset.cue", resetModel)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), model)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reset is valid")
}

func TestValidateReportsAllErrors(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "bad.cue", `model: {
	id: "bad"
	compartments: cell: 1
	species: A: {compartment: "cell", initialAmount: 1}
	reactions: r: {reactants: ["A"], kineticLaw: "kk * A"}
	events: e: {
		trigger: "A < 0.5"
		assignments: Z: "1"
	}
}
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), model)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 2, "both the kinetic law and the event target are reported")

	codes := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, compiler.ErrUnknownSymbol)
}

func TestValidateWarnsOnRuleCycle(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "loop.cue", `model: {
	id: "loop"
	parameters: {
		x: {value: 1, constant: false}
		y: {value: 1, constant: false}
	}
	rules: [
		{kind: "assignment", variable: "x", math: "y / 2"},
		{kind: "assignment", variable: "y", math: "x / 2"},
	]
}
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), model)
	require.NoError(t, err, "cycles are warnings: %s", out)
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "x -> y -> x")
	assert.Contains(t, out, "✓ loop is valid")
}

func TestValidateMissingModel(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateRequiresArgument(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
