package simulate

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// CompileFunc builds a fresh System for one ensemble member. It is called
// once per member, from the member's goroutine.
type CompileFunc func(cfg Config) (System, error)

// Member is the outcome of one ensemble run.
type Member struct {
	Index      int
	Config     Config
	Trajectory *Trajectory
	Err        error
}

// RunEnsemble runs one simulation per config, each on its own compiled
// System, with at most limit running at once (limit <= 0 means no limit).
//
// Member failures are reported per member; the returned error is only set
// when ctx is cancelled.
func RunEnsemble(ctx context.Context, compile CompileFunc, cfgs []Config, limit int) ([]Member, error) {
	return RunEnsembleWithLogger(ctx, compile, cfgs, limit, slog.Default())
}

// RunEnsembleWithLogger is RunEnsemble with an explicit logger.
func RunEnsembleWithLogger(ctx context.Context, compile CompileFunc, cfgs []Config, limit int, logger *slog.Logger) ([]Member, error) {
	members := make([]Member, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, cfg := range cfgs {
		members[i] = Member{Index: i, Config: cfg}
		g.Go(func() error {
			m := &members[i]
			sys, err := compile(cfg)
			if err != nil {
				m.Err = fmt.Errorf("member %d: compile: %w", i, err)
				return nil
			}
			m.Trajectory, m.Err = RunWithLogger(gctx, sys, cfg, logger.With("member", i))
			if m.Err != nil {
				logger.Warn("ensemble member failed", "member", i, "error", m.Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return members, err
	}
	return members, ctx.Err()
}
