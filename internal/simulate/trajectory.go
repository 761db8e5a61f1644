package simulate

import (
	"fmt"
	"slices"

	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/ir"
)

// Sample is the state at one visited time point.
type Sample struct {
	Time       float64   `json:"t"`
	State      []float64 `json:"y"`
	Velocities []float64 `json:"v,omitempty"`
}

// EventRecord is one event state machine transition.
type EventRecord struct {
	Time        float64             `json:"t"`
	EventID     string              `json:"event"`
	Kind        string              `json:"kind"`
	ExecTime    float64             `json:"exec_time"`
	Aborted     int                 `json:"aborted,omitempty"`
	Assignments []engine.Assignment `json:"assignments,omitempty"`
}

// ConstraintRecord is one constraint violation or recovery.
type ConstraintRecord struct {
	Time     float64 `json:"t"`
	Index    int     `json:"index"`
	Message  string  `json:"message,omitempty"`
	Math     string  `json:"math"`
	Violated bool    `json:"violated"`
}

// Trajectory is the recorded output of one run.
type Trajectory struct {
	ModelID     string             `json:"model"`
	Columns     []string           `json:"columns"`
	Reactions   []string           `json:"reactions,omitempty"`
	Samples     []Sample           `json:"samples"`
	Events      []EventRecord      `json:"events,omitempty"`
	Constraints []ConstraintRecord `json:"constraints,omitempty"`
}

// Column returns the state index of id, or -1.
func (tr *Trajectory) Column(id string) int {
	return slices.Index(tr.Columns, id)
}

// Final returns the last sample.
func (tr *Trajectory) Final() (Sample, bool) {
	if len(tr.Samples) == 0 {
		return Sample{}, false
	}
	return tr.Samples[len(tr.Samples)-1], true
}

// FinalValue returns id's value in the last sample.
func (tr *Trajectory) FinalValue(id string) (float64, error) {
	col := tr.Column(id)
	if col < 0 {
		return 0, fmt.Errorf("no column %q", id)
	}
	s, ok := tr.Final()
	if !ok {
		return 0, fmt.Errorf("trajectory has no samples")
	}
	return s.State[col], nil
}

// ValueAt returns id's value at time t. Between samples the value is
// interpolated linearly; when several samples share t (an event changed
// the state there) the last one wins.
func (tr *Trajectory) ValueAt(id string, t float64) (float64, error) {
	col := tr.Column(id)
	if col < 0 {
		return 0, fmt.Errorf("no column %q", id)
	}
	n := len(tr.Samples)
	if n == 0 {
		return 0, fmt.Errorf("trajectory has no samples")
	}
	if t < tr.Samples[0].Time || t > tr.Samples[n-1].Time {
		return 0, fmt.Errorf("time %g outside [%g, %g]", t, tr.Samples[0].Time, tr.Samples[n-1].Time)
	}

	// first sample strictly after t
	i, _ := slices.BinarySearchFunc(tr.Samples, t, func(s Sample, t float64) int {
		if s.Time <= t {
			return -1
		}
		return 1
	})
	prev := tr.Samples[i-1]
	if prev.Time == t || i == n {
		return prev.State[col], nil
	}
	next := tr.Samples[i]
	w := (t - prev.Time) / (next.Time - prev.Time)
	return prev.State[col] + w*(next.State[col]-prev.State[col]), nil
}

// EventCount counts executions of eventID.
func (tr *Trajectory) EventCount(eventID string) int {
	n := 0
	for _, e := range tr.Events {
		if e.EventID == eventID && e.Kind == engine.EffectExecute.String() {
			n++
		}
	}
	return n
}

// Violated reports whether constraint index was ever violated.
func (tr *Trajectory) Violated(index int) bool {
	for _, c := range tr.Constraints {
		if c.Index == index && c.Violated {
			return true
		}
	}
	return false
}

// Hash is a content hash of the sampled times and states, stable across
// runs that are bit-identical.
func (tr *Trajectory) Hash() (string, error) {
	times := make([]float64, len(tr.Samples))
	values := make([][]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		times[i] = s.Time
		values[i] = s.State
	}
	return ir.TrajectoryHash(times, values)
}
