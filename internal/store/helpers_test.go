package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/ir"
	"github.com/roach88/rxnsim/internal/simulate"
	"github.com/roach88/rxnsim/internal/testutil"
)

// createTestStore creates a new store in a temp dir with sequential run IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithRunIDs(testutil.NewSequentialIDs("run")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// simulateFixture runs a fixture model and returns its trajectory and meta.
func simulateFixture(t *testing.T, src string, cfg simulate.Config) (*simulate.Trajectory, RunMeta) {
	t.Helper()
	m := testutil.Parse(t, src)
	sys := testutil.Compile(t, src, cfg.Options()...)
	tr, err := simulate.Run(context.Background(), sys, cfg)
	require.NoError(t, err)
	return tr, RunMeta{
		ModelHash:   ir.MustModelHash(m),
		ModelSource: "fixture.cue",
		Config:      cfg,
	}
}

func decayConfig() simulate.Config {
	cfg := simulate.DefaultConfig()
	cfg.End = 2
	cfg.Step = 0.25
	return cfg
}
