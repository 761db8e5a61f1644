package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden files live in testdata/golden. Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_Reset(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/reset.yaml")
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, s))
}

func TestSnapshot_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/refill.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first.Trajectory)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second.Trajectory)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_OmitsEmptySections(t *testing.T) {
	snap := Snapshot("x", testTrajectory())
	assert.Contains(t, snap, "events")
	assert.Contains(t, snap, "constraints")

	tr := testTrajectory()
	tr.Events = nil
	tr.Constraints = nil
	snap = Snapshot("x", tr)
	assert.NotContains(t, snap, "events")
	assert.NotContains(t, snap, "constraints")
}
