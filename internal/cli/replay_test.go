package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayIdentical(t *testing.T) {
	dbPath, _ := storeRuns(t, 1)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-0001")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ run-0001 (reset): identical")
	assert.NotContains(t, out, "model changed")
}

func TestReplayAll(t *testing.T) {
	dbPath, _ := storeRuns(t, 3)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--all")
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, result.Identical)
	assert.Zero(t, result.Diverged)
	for _, r := range result.Runs {
		assert.True(t, r.Identical)
		assert.Equal(t, r.StoredHash, r.ReplayedHash)
	}
}

func TestReplayDetectsChangedModel(t *testing.T) {
	dbPath, model := storeRuns(t, 1)

	// k is part of the state, so the trajectories differ from the start
	changed := strings.Replace(resetModel, "parameters: k: 2", "parameters: k: 4", 1)
	require.NoError(t, os.WriteFile(model, []byte(changed), 0644))

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath, "run-0001")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.Len(t, result.Runs, 1)
	r := result.Runs[0]
	assert.False(t, r.Identical)
	assert.True(t, r.ModelChanged)
	assert.Equal(t, "sample 0 at t=0: k stored 2, replayed 4", r.Divergence)
}

func TestReplayModelOverride(t *testing.T) {
	dbPath, model := storeRuns(t, 1)

	moved := model + ".moved.cue"
	require.NoError(t, os.Rename(model, moved))

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-0001")
	require.Error(t, err)
	assert.Contains(t, out, "load model")

	out, err = execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--model", moved, "run-0001")
	require.NoError(t, err)
	assert.Contains(t, out, "identical")
}

func TestReplayArguments(t *testing.T) {
	dbPath, _ := storeRuns(t, 1)

	_, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--all", "run-0001")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayRunNotFound(t *testing.T) {
	dbPath, _ := storeRuns(t, 1)

	_, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-0404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
