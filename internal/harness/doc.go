// Package harness runs simulation scenarios and checks their outcomes.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: models/decay.cue
//	config:
//	  end: 10
//	  step: 0.1
//	  method: rk4
//	assertions:
//	  - type: final_value
//	    variable: A
//	    expect: 36.79
//	    tolerance: 0.01
//	  - type: value_at
//	    variable: A
//	    time: 5
//	    expect: 60.65
//	    tolerance: 0.01
//	  - type: event_count
//	    event: refill
//	    count: 4
//	  - type: constraint_violated
//	    constraint: 0
//	    violated: true
//
// The model path is relative to the scenario file. Config fields not given
// keep the simulate.DefaultConfig values.
//
// # Assertion Types
//
//   - final_value: a column's value in the last sample
//   - value_at: a column's value at a time, interpolated between samples
//   - event_count: the number of executions of an event
//   - constraint_violated: whether a constraint was ever violated
//
// # Deterministic Testing
//
// Each scenario runs with its configured seed into a fresh in-memory store
// with sequential run IDs. Assertions are evaluated against the trajectory
// read back from the store, so a scenario also checks that the stored run
// reproduces what was simulated.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/decay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
