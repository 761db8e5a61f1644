package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rxnsim/internal/simulate"
)

// ErrRunNotFound is returned when a run ID is not stored.
var ErrRunNotFound = errors.New("run not found")

// Run is a stored run's metadata.
type Run struct {
	ID             string
	Seq            int64
	ModelID        string
	ModelHash      string
	ModelSource    string
	Config         simulate.Config
	Columns        []string
	Reactions      []string
	TrajectoryHash string
	EngineVersion  string
	IRVersion      string
}

const runColumns = `id, seq, model_id, model_hash, model_source, config, columns, reactions, trajectory_hash, engine_version, ir_version`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                          Run
		cfg, columns, reactionsStr string
	)
	err := row.Scan(
		&r.ID,
		&r.Seq,
		&r.ModelID,
		&r.ModelHash,
		&r.ModelSource,
		&cfg,
		&columns,
		&reactionsStr,
		&r.TrajectoryHash,
		&r.EngineVersion,
		&r.IRVersion,
	)
	if err != nil {
		return Run{}, err
	}

	if r.Config, err = unmarshalConfig(cfg); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if r.Columns, err = unmarshalStrings(columns); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if r.Reactions, err = unmarshalStrings(reactionsStr); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return r, nil
}

// ReadRun retrieves a run's metadata.
// Returns an error wrapping ErrRunNotFound if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns all runs ordered by seq ASC, id ASC. A non-empty
// modelID restricts the listing to runs of that model.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, modelID string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if modelID != "" {
		query += ` WHERE model_id = ?`
		args = append(args, modelID)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSamples returns a run's samples in recorded order.
func (s *Store) ReadSamples(ctx context.Context, runID string) ([]simulate.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t, state, velocities
		FROM samples
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []simulate.Sample{}
	for rows.Next() {
		var (
			smp        simulate.Sample
			state, vel string
		)
		if err := rows.Scan(&smp.Time, &state, &vel); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if smp.State, err = unmarshalFloats(state); err != nil {
			return nil, fmt.Errorf("sample at t=%g: %w", smp.Time, err)
		}
		if smp.Velocities, err = unmarshalFloats(vel); err != nil {
			return nil, fmt.Errorf("sample at t=%g: %w", smp.Time, err)
		}
		if len(smp.Velocities) == 0 {
			smp.Velocities = nil
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// ReadEvents returns a run's event transitions in recorded order.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]simulate.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t, event_id, kind, exec_time, aborted, assignments
		FROM event_executions
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []simulate.EventRecord{}
	for rows.Next() {
		var (
			ev                    simulate.EventRecord
			execTime, assignments string
		)
		if err := rows.Scan(&ev.Time, &ev.EventID, &ev.Kind, &execTime, &ev.Aborted, &assignments); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.ExecTime, err = unmarshalFloat(execTime); err != nil {
			return nil, fmt.Errorf("event %s at t=%g: %w", ev.EventID, ev.Time, err)
		}
		if ev.Assignments, err = unmarshalAssignments(assignments); err != nil {
			return nil, fmt.Errorf("event %s at t=%g: %w", ev.EventID, ev.Time, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadConstraintEvents returns a run's constraint transitions in recorded
// order.
func (s *Store) ReadConstraintEvents(ctx context.Context, runID string) ([]simulate.ConstraintRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t, constraint_index, message, math, violated
		FROM constraint_events
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query constraint events: %w", err)
	}
	defer rows.Close()

	records := []simulate.ConstraintRecord{}
	for rows.Next() {
		var c simulate.ConstraintRecord
		if err := rows.Scan(&c.Time, &c.Index, &c.Message, &c.Math, &c.Violated); err != nil {
			return nil, fmt.Errorf("scan constraint event: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate constraint events: %w", err)
	}
	return records, nil
}

// ReadTrajectory reassembles a stored run's trajectory.
func (s *Store) ReadTrajectory(ctx context.Context, runID string) (*simulate.Trajectory, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	samples, err := s.ReadSamples(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read trajectory %s: %w", runID, err)
	}
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read trajectory %s: %w", runID, err)
	}
	constraints, err := s.ReadConstraintEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read trajectory %s: %w", runID, err)
	}

	tr := &simulate.Trajectory{
		ModelID:   run.ModelID,
		Columns:   run.Columns,
		Samples:   samples,
		Reactions: run.Reactions,
	}
	if len(tr.Reactions) == 0 {
		tr.Reactions = nil
	}
	if len(events) > 0 {
		tr.Events = events
	}
	if len(constraints) > 0 {
		tr.Constraints = constraints
	}
	return tr, nil
}

// CountEventExecutions counts the stored executions of eventID in a run.
func (s *Store) CountEventExecutions(ctx context.Context, runID, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_executions
		WHERE run_id = ? AND event_id = ? AND kind = 'execute'
	`, runID, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count event executions: %w", err)
	}
	return n, nil
}
