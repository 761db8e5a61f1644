package store

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/rxnsim/internal/simulate"
)

// Divergence locates the first difference between a stored and a replayed
// trajectory.
type Divergence struct {
	Sample int
	Time   float64

	// Column is empty when the sample times differ or one trajectory has
	// no sample at this index.
	Column   string
	Stored   float64
	Replayed float64
}

func (d Divergence) String() string {
	if d.Column == "" {
		return fmt.Sprintf("sample %d: stored t=%g, replayed t=%g", d.Sample, d.Stored, d.Replayed)
	}
	return fmt.Sprintf("sample %d at t=%g: %s stored %g, replayed %g", d.Sample, d.Time, d.Column, d.Stored, d.Replayed)
}

// ReplayResult is the outcome of comparing a re-simulation with a stored run.
type ReplayResult struct {
	RunID        string
	StoredHash   string
	ReplayedHash string

	// ModelChanged is set when the replayed model's hash differs from the
	// one recorded with the run.
	ModelChanged bool

	StoredSamples   int
	ReplayedSamples int

	// Divergence is nil when the trajectories are identical.
	Divergence *Divergence
}

// Identical reports whether the replay reproduced the stored trajectory.
func (r ReplayResult) Identical() bool {
	return r.StoredHash == r.ReplayedHash && r.Divergence == nil
}

// CompareRun compares replayed, produced from a model with hash modelHash,
// against stored run runID.
func (s *Store) CompareRun(ctx context.Context, runID, modelHash string, replayed *simulate.Trajectory) (ReplayResult, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("compare run: %w", err)
	}
	samples, err := s.ReadSamples(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("compare run %s: %w", runID, err)
	}
	replayedHash, err := replayed.Hash()
	if err != nil {
		return ReplayResult{}, fmt.Errorf("compare run %s: %w", runID, err)
	}

	return ReplayResult{
		RunID:           runID,
		StoredHash:      run.TrajectoryHash,
		ReplayedHash:    replayedHash,
		ModelChanged:    modelHash != run.ModelHash,
		StoredSamples:   len(samples),
		ReplayedSamples: len(replayed.Samples),
		Divergence:      firstDivergence(run.Columns, samples, replayed.Samples),
	}, nil
}

// sameValue compares the way the canonical encoding does: NaNs are equal
// and -0 equals 0.
func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func firstDivergence(columns []string, stored, replayed []simulate.Sample) *Divergence {
	n := min(len(stored), len(replayed))
	for i := 0; i < n; i++ {
		a, b := stored[i], replayed[i]
		if !sameValue(a.Time, b.Time) {
			return &Divergence{Sample: i, Time: a.Time, Stored: a.Time, Replayed: b.Time}
		}
		for j := range a.State {
			if j >= len(b.State) {
				break
			}
			if !sameValue(a.State[j], b.State[j]) {
				col := fmt.Sprintf("#%d", j)
				if j < len(columns) {
					col = columns[j]
				}
				return &Divergence{Sample: i, Time: a.Time, Column: col, Stored: a.State[j], Replayed: b.State[j]}
			}
		}
	}
	switch {
	case len(stored) > n:
		return &Divergence{Sample: n, Time: stored[n].Time, Stored: stored[n].Time, Replayed: math.NaN()}
	case len(replayed) > n:
		return &Divergence{Sample: n, Time: replayed[n].Time, Stored: math.NaN(), Replayed: replayed[n].Time}
	}
	return nil
}
