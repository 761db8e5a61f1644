package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/store"
)

const resetScenario = `name: reset_pulse
description: "Zero-order production is reset by an event at t=1.5"
model: ../models/reset.cue
config:
  end: 2
  step: 0.5
  method: euler
assertions:
  - type: final_value
    variable: A
    expect: 1
  - type: event_count
    event: reset
    count: 1
`

// setupScenarios lays out models/reset.cue and scenarios/reset.yaml and
// returns the scenarios directory.
func setupScenarios(t *testing.T, scenario string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "models/reset.cue", resetModel)
	writeFile(t, dir, "scenarios/reset.yaml", scenario)
	return filepath.Join(dir, "scenarios")
}

func TestTestCommandPasses(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reset_pulse")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandSingleFile(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(scenarios, "reset.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reset_pulse")
}

func TestTestCommandFailingAssertion(t *testing.T) {
	scenario := strings.Replace(resetScenario, "expect: 1", "expect: 5", 1)
	scenarios := setupScenarios(t, scenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "✗ reset_pulse")
	assert.Contains(t, out, "Expected: A = 5")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandGoldenUpdateAndMatch(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)
	goldenPath := filepath.Join(scenarios, "golden", "reset_pulse.golden")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reset_pulse (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"reset_pulse"`)
	assert.Contains(t, string(golden), `{"t":1.5,"v":[2],"y":[1,0,2]}`)

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenarios)
	require.NoError(t, err)

	var result TestResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)
	assert.Equal(t, "reset_pulse-0001", result.Scenarios[0].RunID)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)
	writeFile(t, scenarios, "golden/reset_pulse.golden", `{"scenario_name":"reset_pulse"}`)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Scenarios[0].Errors[0], "does not match golden file")
}

func TestTestCommandGoldenDirFlag(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)
	goldenDir := filepath.Join(t.TempDir(), "snapshots")

	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--update", "--golden", goldenDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(goldenDir, "reset_pulse.golden"))
}

func TestTestCommandFilter(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--filter", "decay*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--filter", "res*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ reset_pulse")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, result.Scenarios)
	assert.Zero(t, result.Total)
}

func TestTestCommandMalformedScenario(t *testing.T) {
	scenarios := setupScenarios(t, "name: broken\nunknown_field: 1\n")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandStoresRuns(t *testing.T) {
	scenarios := setupScenarios(t, resetScenario)
	dbPath := filepath.Join(t.TempDir(), "scenarios.db")

	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarios, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), "reset")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios path not found")
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
