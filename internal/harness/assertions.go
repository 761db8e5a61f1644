package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/rxnsim/internal/simulate"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome

	// Context lists nearby trajectory facts (event executions, constraint
	// transitions) for debugging.
	Context []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nContext:\n")
		for i, line := range e.Context {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

func withinTolerance(got, want, tol float64) bool {
	if math.IsNaN(want) {
		return math.IsNaN(got)
	}
	if math.IsInf(want, 0) {
		return got == want
	}
	return math.Abs(got-want) <= tol
}

// assertFinalValue checks a column's value in the last sample.
func assertFinalValue(tr *simulate.Trajectory, a Assertion) error {
	got, err := tr.FinalValue(a.Variable)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %g ± %g", a.Variable, *a.Expect, a.Tolerance),
			Actual:   err.Error(),
		}
	}
	if !withinTolerance(got, *a.Expect, a.Tolerance) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %g ± %g", a.Variable, *a.Expect, a.Tolerance),
			Actual:   fmt.Sprintf("%s = %.17g", a.Variable, got),
			Context:  eventContext(tr, ""),
		}
	}
	return nil
}

// assertValueAt checks a column's value at a time.
func assertValueAt(tr *simulate.Trajectory, a Assertion) error {
	expected := fmt.Sprintf("%s(%g) = %g ± %g", a.Variable, *a.Time, *a.Expect, a.Tolerance)
	got, err := tr.ValueAt(a.Variable, *a.Time)
	if err != nil {
		return &AssertionError{Type: AssertValueAt, Expected: expected, Actual: err.Error()}
	}
	if !withinTolerance(got, *a.Expect, a.Tolerance) {
		return &AssertionError{
			Type:     AssertValueAt,
			Expected: expected,
			Actual:   fmt.Sprintf("%s(%g) = %.17g", a.Variable, *a.Time, got),
			Context:  eventContext(tr, ""),
		}
	}
	return nil
}

// assertEventCount checks the number of executions of an event.
func assertEventCount(tr *simulate.Trajectory, a Assertion) error {
	got := tr.EventCount(a.Event)
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%s executed %d times", a.Event, *a.Count),
			Actual:   fmt.Sprintf("%s executed %d times", a.Event, got),
			Context:  eventContext(tr, a.Event),
		}
	}
	return nil
}

// assertConstraintViolated checks whether a constraint was ever violated.
func assertConstraintViolated(tr *simulate.Trajectory, a Assertion) error {
	want := a.Violated == nil || *a.Violated
	got := tr.Violated(*a.Constraint)
	if got != want {
		return &AssertionError{
			Type:     AssertConstraintViolated,
			Expected: fmt.Sprintf("constraint %d violated: %t", *a.Constraint, want),
			Actual:   fmt.Sprintf("constraint %d violated: %t", *a.Constraint, got),
			Context:  constraintContext(tr),
		}
	}
	return nil
}

// eventContext lists event executions, restricted to eventID if non-empty.
func eventContext(tr *simulate.Trajectory, eventID string) []string {
	var out []string
	for _, e := range tr.Events {
		if eventID != "" && e.EventID != eventID {
			continue
		}
		out = append(out, fmt.Sprintf("t=%g %s %s", e.Time, e.Kind, e.EventID))
	}
	return out
}

func constraintContext(tr *simulate.Trajectory) []string {
	var out []string
	for _, c := range tr.Constraints {
		state := "recovered"
		if c.Violated {
			state = "violated"
		}
		out = append(out, fmt.Sprintf("t=%g constraint %d %s: %s", c.Time, c.Index, state, c.Math))
	}
	return out
}

// EvaluateAssertion evaluates a single assertion.
func EvaluateAssertion(tr *simulate.Trajectory, a Assertion) error {
	switch a.Type {
	case AssertFinalValue:
		return assertFinalValue(tr, a)
	case AssertValueAt:
		return assertValueAt(tr, a)
	case AssertEventCount:
		return assertEventCount(tr, a)
	case AssertConstraintViolated:
		return assertConstraintViolated(tr, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// EvaluateAssertions evaluates all assertions and returns error messages.
// Returns an empty slice if all assertions pass.
func EvaluateAssertions(tr *simulate.Trajectory, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		if err := EvaluateAssertion(tr, a); err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errors
}
