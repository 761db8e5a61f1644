package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rxnsim/internal/ir"
	"github.com/roach88/rxnsim/internal/simulate"
)

// RunMeta describes how a trajectory was produced.
type RunMeta struct {
	// ModelHash is ir.ModelHash of the simulated model.
	ModelHash string

	// ModelSource is where the model was loaded from, for replay.
	ModelSource string

	Config simulate.Config
}

// WriteTrajectory stores tr as a new run and returns the run ID.
//
// The run and all of its rows are written in one transaction. The run's seq
// is one past the largest stored seq.
func (s *Store) WriteTrajectory(ctx context.Context, meta RunMeta, tr *simulate.Trajectory) (string, error) {
	trajHash, err := tr.Hash()
	if err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	cfg, err := marshalConfig(meta.Config)
	if err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	columns, err := marshalStrings(tr.Columns)
	if err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	reactions, err := marshalStrings(tr.Reactions)
	if err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write trajectory: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write trajectory: next seq: %w", err)
	}

	id := s.runID.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, model_id, model_hash, model_source, config, columns, reactions, trajectory_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		tr.ModelID,
		meta.ModelHash,
		meta.ModelSource,
		cfg,
		columns,
		reactions,
		trajHash,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return "", fmt.Errorf("write trajectory: insert run: %w", err)
	}

	if err := writeSamples(ctx, tx, id, tr.Samples); err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	if err := writeEvents(ctx, tx, id, tr.Events); err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	if err := writeConstraintEvents(ctx, tx, id, tr.Constraints); err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write trajectory: commit: %w", err)
	}
	return id, nil
}

func writeSamples(ctx context.Context, tx *sql.Tx, runID string, samples []simulate.Sample) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, idx, t, state, velocities)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare samples: %w", err)
	}
	defer stmt.Close()

	for i, smp := range samples {
		state, err := marshalFloats(smp.State)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		vel, err := marshalFloats(smp.Velocities)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, i, smp.Time, state, vel); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	return nil
}

func writeEvents(ctx context.Context, tx *sql.Tx, runID string, events []simulate.EventRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_executions (run_id, idx, t, event_id, kind, exec_time, aborted, assignments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		execTime, err := marshalFloat(ev.ExecTime)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		assignments, err := marshalAssignments(ev.Assignments)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, i, ev.Time, ev.EventID, ev.Kind, execTime, ev.Aborted, assignments); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	return nil
}

func writeConstraintEvents(ctx context.Context, tx *sql.Tx, runID string, records []simulate.ConstraintRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO constraint_events (run_id, idx, t, constraint_index, message, math, violated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare constraint events: %w", err)
	}
	defer stmt.Close()

	for i, c := range records {
		if _, err := stmt.ExecContext(ctx, runID, i, c.Time, c.Index, c.Message, c.Math, c.Violated); err != nil {
			return fmt.Errorf("insert constraint event %d: %w", i, err)
		}
	}
	return nil
}

// DeleteRun removes a run and its rows. Deleting an unknown run is not an
// error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
