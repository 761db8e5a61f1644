package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxnsim/internal/simulate"
)

// Scenario defines one simulation and the outcomes it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the CUE model file or package directory.
	// Relative paths are resolved against the scenario file location.
	Model string `yaml:"model"`

	// Config controls the simulation. Absent fields keep the defaults.
	Config simulate.Config `yaml:"config"`

	// Assertions validate the recorded trajectory.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of a trajectory.
type Assertion struct {
	// Type is one of final_value, value_at, event_count,
	// constraint_violated.
	Type string `yaml:"type"`

	// Variable is the column checked by final_value and value_at.
	Variable string `yaml:"variable,omitempty"`

	// Time is the sample time for value_at.
	Time *float64 `yaml:"time,omitempty"`

	// Expect is the expected value for final_value and value_at.
	Expect *float64 `yaml:"expect,omitempty"`

	// Tolerance is the allowed absolute difference from Expect.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Event and Count are used by event_count.
	Event string `yaml:"event,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// Constraint is the constraint's declaration index; Violated is the
	// expected outcome (default true). Used by constraint_violated.
	Constraint *int  `yaml:"constraint,omitempty"`
	Violated   *bool `yaml:"violated,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalValue         = "final_value"
	AssertValueAt            = "value_at"
	AssertEventCount         = "event_count"
	AssertConstraintViolated = "constraint_violated"
)

// LoadScenario reads and parses a scenario YAML file, resolving the model
// path relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the model path BEFORE validation
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}
	if _, err := os.Stat(scenario.Model); err != nil {
		return nil, fmt.Errorf("invalid scenario: model not found: %s", scenario.Model)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML with strict field validation. The
// model path is not checked.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario := Scenario{Config: simulate.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}

	switch a.Type {
	case AssertFinalValue, AssertValueAt:
		if a.Variable == "" {
			return fmt.Errorf("assertions[%d]: variable is required for %s", index, a.Type)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
		if a.Type == AssertValueAt && a.Time == nil {
			return fmt.Errorf("assertions[%d]: time is required for value_at", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be given and non-negative for event_count", index)
		}
	case AssertConstraintViolated:
		if a.Constraint == nil || *a.Constraint < 0 {
			return fmt.Errorf("assertions[%d]: constraint index is required for constraint_violated", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
