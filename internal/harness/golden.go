package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rxnsim/internal/ir"
	"github.com/roach88/rxnsim/internal/simulate"
)

// Snapshot renders a trajectory as a canonical JSON tree. Constraint math
// and run IDs are left out so snapshots only change with the numbers.
func Snapshot(scenarioName string, tr *simulate.Trajectory) map[string]any {
	samples := make([]any, len(tr.Samples))
	for i, s := range tr.Samples {
		m := map[string]any{
			"t": s.Time,
			"y": s.State,
		}
		if len(s.Velocities) > 0 {
			m["v"] = s.Velocities
		}
		samples[i] = m
	}

	result := map[string]any{
		"scenario_name": scenarioName,
		"model":         tr.ModelID,
		"columns":       tr.Columns,
		"samples":       samples,
	}

	if len(tr.Events) > 0 {
		events := make([]any, len(tr.Events))
		for i, e := range tr.Events {
			m := map[string]any{
				"t":         e.Time,
				"event":     e.EventID,
				"kind":      e.Kind,
				"exec_time": e.ExecTime,
			}
			if e.Aborted > 0 {
				m["aborted"] = e.Aborted
			}
			if len(e.Assignments) > 0 {
				as := make([]any, len(e.Assignments))
				for j, a := range e.Assignments {
					as[j] = map[string]any{
						"variable": a.Variable,
						"slot":     a.Slot,
						"value":    a.Value,
					}
				}
				m["assignments"] = as
			}
			events[i] = m
		}
		result["events"] = events
	}

	if len(tr.Constraints) > 0 {
		constraints := make([]any, len(tr.Constraints))
		for i, c := range tr.Constraints {
			m := map[string]any{
				"t":        c.Time,
				"index":    c.Index,
				"violated": c.Violated,
			}
			if c.Message != "" {
				m["message"] = c.Message
			}
			constraints[i] = m
		}
		result["constraints"] = constraints
	}

	return result
}

// MarshalSnapshot renders Snapshot as canonical JSON.
func MarshalSnapshot(scenarioName string, tr *simulate.Trajectory) ([]byte, error) {
	return ir.MarshalCanonical(Snapshot(scenarioName, tr))
}

// RunWithGolden executes a scenario and compares the trajectory against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trajectory doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result.Trajectory)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
