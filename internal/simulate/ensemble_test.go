package simulate

import (
	"context"
	"errors"
	"math"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/engine"
)

func compileFunc(t *testing.T, src string) CompileFunc {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	m, err := compiler.CompileModel(v)
	require.NoError(t, err)

	return func(cfg Config) (System, error) {
		return engine.Compile(m, cfg.Options()...)
	}
}

func TestRunEnsemble(t *testing.T) {
	var cfgs []Config
	for _, end := range []float64{1, 2, 3, 4} {
		cfgs = append(cfgs, config(end, 0.1))
	}

	members, err := RunEnsemble(context.Background(), compileFunc(t, decayModel), cfgs, 2)
	require.NoError(t, err)
	require.Len(t, members, 4)

	for i, m := range members {
		require.NoError(t, m.Err)
		assert.Equal(t, i, m.Index)
		a, err := m.Trajectory.FinalValue("A")
		require.NoError(t, err)
		assert.InDelta(t, 100*math.Exp(-0.1*cfgs[i].End), a, 1e-6)
	}
}

func TestRunEnsemble_MembersAreIndependent(t *testing.T) {
	cfg := config(5, 0.1)
	members, err := RunEnsemble(context.Background(), compileFunc(t, decayModel), []Config{cfg, cfg, cfg}, 0)
	require.NoError(t, err)

	var hashes []string
	for _, m := range members {
		require.NoError(t, m.Err)
		h, err := m.Trajectory.Hash()
		require.NoError(t, err)
		hashes = append(hashes, h)
	}
	assert.Equal(t, hashes[0], hashes[1])
	assert.Equal(t, hashes[0], hashes[2])
}

func TestRunEnsemble_CompileFailure(t *testing.T) {
	boom := errors.New("boom")
	compile := func(cfg Config) (System, error) {
		return nil, boom
	}

	members, err := RunEnsemble(context.Background(), compile, []Config{config(1, 0.1)}, 1)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.ErrorIs(t, members[0].Err, boom)
	assert.Nil(t, members[0].Trajectory)
}

func TestRunEnsemble_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	members, err := RunEnsemble(ctx, compileFunc(t, decayModel), []Config{config(1, 0.1)}, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, members, 1)
	assert.ErrorIs(t, members[0].Err, context.Canceled)
}
