package Channel2D

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/fieldsplit"
	"github.com/notargets/gopcd/krylov"
	"github.com/notargets/gopcd/leafsolver"
	"github.com/notargets/gopcd/operators"
	"github.com/notargets/gopcd/pcd"
	"github.com/notargets/gopcd/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder logs the block requests made against a channel
type recorder struct {
	*Channel2D
	requested map[operators.BlockName]int
}

func (r *recorder) Block(name operators.BlockName) (utils.CSR, error) {
	r.requested[name]++
	return r.Channel2D.Block(name)
}

func directConfig() fieldsplit.Config {
	cfg := fieldsplit.DefaultConfig()
	cfg.VelocitySolver = leafsolver.Direct
	cfg.PressureSolver = leafsolver.Direct
	cfg.MassSolver = leafsolver.Direct
	return cfg
}

func TestChannelOperators(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	c := NewChannel2D(ctx, 8, 4, 2, 0.1)
	assert.Equal(t, 56, c.Nu)
	assert.Equal(t, 32, c.Np)
	assert.Equal(t, 0.25, c.Hx)
	assert.Equal(t, 0.25, c.Hy)
	require.NoError(t, operators.CheckConformal(c, false))
	{ // Stable pair: there is no stabilization block
		_, err := c.Block(operators.Stabilization)
		assert.True(t, errors.Is(err, operators.ErrMissingOperator))
		assert.True(t, errors.Is(operators.CheckConformal(c, true), operators.ErrMissingOperator))
	}
	{ // The gradient is the transpose of the divergence
		B, _ := c.Block(operators.Divergence)
		Bt, _ := c.Block(operators.Gradient)
		assert.InDeltaSlice(t, B.Transpose().ToMatrix().Data(), Bt.ToMatrix().Data(), 0)
	}
	{ // Pressure operators
		Mp, _ := c.Block(operators.PressureMass)
		Ap, _ := c.Block(operators.PressureLaplacian)
		assert.Equal(t, utils.ConstArray(32, c.Area), Mp.Diagonal())
		assert.True(t, Ap.IsSymmetric(utils.SYMTOL))
		// Pure Neumann: constants are in the nullspace
		r := make([]float64, 32)
		Ap.MulVec(r, utils.ConstArray(32, 1))
		assert.InDeltaSlice(t, make([]float64, 32), r, 1.e-14)
		pb := c.PressureBoundary()
		assert.Equal(t, []int{0, 8, 16, 24}, pb.Dofs(utils.BCInflow))
		assert.Equal(t, []int{7, 15, 23, 31}, pb.Free())
	}
	{ // Continuity data carries the inflow flux
		assert.InDelta(t, -c.InflowFlux(), floats.Sum(c.F.P), 1.e-14)
		assert.InDelta(t, 2./3., c.InflowFlux(), 0.03)
	}
	{ // Convection makes A and F_p non-symmetric and marks reassembly
		A, _ := c.Block(operators.Velocity)
		Fp, _ := c.Block(operators.PressureConvDiff)
		assert.True(t, A.IsSymmetric(utils.SYMTOL))
		assert.True(t, Fp.IsSymmetric(utils.SYMTOL))
		// Stokes flow has no inflow term
		R, _ := c.Block(operators.InflowBoundary)
		assert.Zero(t, R.NNZ())
		rev := c.Revision()
		w := utils.ConstArray(c.Nu, 1)
		c.Assemble(w)
		assert.Equal(t, rev+3, c.Revision())
		R, _ = c.Block(operators.InflowBoundary)
		for j := 0; j < c.Ny; j++ {
			p := c.PIndex(0, j)
			assert.InDelta(t, c.Hy*InflowProfile(c.yc(j)), R.At(p, p), 1.e-14)
			assert.Zero(t, R.At(c.PIndex(1, j), c.PIndex(1, j)))
		}
		A, _ = c.Block(operators.Velocity)
		Fp, _ = c.Block(operators.PressureConvDiff)
		assert.False(t, A.IsSymmetric(utils.SYMTOL))
		assert.False(t, Fp.IsSymmetric(utils.SYMTOL))
		assert.Panics(t, func() { c.Assemble(w[1:]) })
	}
	{ // Missing blocks are reported, not read as empty operators
		bare := &Channel2D{Blocks: operators.NewBlocks(), ctx: ctx, Nu: c.Nu, Np: c.Np}
		assert.Panics(t, func() { bare.MulVec(make([]float64, 88), make([]float64, 88)) })
	}
	assert.Panics(t, func() { NewChannel2D(ctx, 1, 4, 1, 1) })
	assert.Panics(t, func() { NewChannel2D(ctx, 4, 4, 1, 0) })
}

func TestStokesSolve(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	c := NewChannel2D(ctx, 16, 8, 2, 0.1)
	settings := krylov.Settings{Tolerance: 1.e-10, Restart: 400}
	r := &recorder{Channel2D: c, requested: make(map[operators.BlockName]int)}
	pc, err := fieldsplit.New(ctx, r, directConfig())
	require.NoError(t, err)
	require.NoError(t, pc.Assemble())
	// The stable pair never requests stabilization
	assert.Zero(t, r.requested[operators.Stabilization])
	assert.NotZero(t, r.requested[operators.PressureConvDiff])

	x, stats, err := c.Oseen(pc, settings)
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	// Mass is conserved through the channel
	assert.InDelta(t, c.InflowFlux(), c.OutflowFlux(x), 1.e-6)
	// The pressure drops along the centreline
	mid := c.Ny / 2
	assert.Greater(t, x.P[c.PIndex(0, mid)], x.P[c.PIndex(c.Nx-1, mid)])
	// The outflow profile stays near the inflow parabola
	for j := 0; j < c.Ny; j++ {
		assert.InDelta(t, InflowProfile(c.yc(j)), x.U[c.UIndex(c.Nx, j)], 0.1)
	}

	// Preconditioning pays for itself
	xf := make([]float64, c.Nu+c.Np)
	plain, err := krylov.GMRES(ctx, c.MulVec, c.F.Flatten(), xf, settings)
	require.NoError(t, err)
	assert.Less(t, stats.Iterations, plain.Iterations)
	pc.Destroy()

	// Every variant, with either pressure treatment, converges well ahead of
	// unpreconditioned GMRES
	for _, v := range []pcd.Variant{pcd.PCD, pcd.BRM1, pcd.BRM2} {
		for _, neumann := range []bool{false, true} {
			cfg := directConfig()
			cfg.PCDVariant, cfg.NeumannPressure = v, neumann
			pc, err := fieldsplit.New(ctx, c, cfg)
			require.NoError(t, err)
			require.NoError(t, pc.Assemble())
			x, stats, err := c.Oseen(pc, settings)
			require.NoError(t, err)
			assert.True(t, stats.Converged, "%s neumann=%v: %s", v, neumann, stats)
			assert.Less(t, stats.Iterations, plain.Iterations, "%s neumann=%v", v, neumann)
			assert.InDelta(t, c.InflowFlux(), c.OutflowFlux(x), 1.e-6)
			pc.Destroy()
		}
	}
	assert.Zero(t, c.Subscribers())
}

func TestConfigurations(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	c := NewChannel2D(ctx, 12, 6, 2, 0.1)
	w := make([]float64, c.Nu)
	for j := 0; j < c.Ny; j++ {
		for i := 1; i <= c.Nx; i++ {
			w[c.UIndex(i, j)] = InflowProfile(c.yc(j))
		}
	}
	c.Assemble(w)
	settings := krylov.Settings{Tolerance: 1.e-9, Restart: 400}
	for _, v := range []pcd.Variant{pcd.PCD, pcd.BRM1, pcd.BRM2} {
		for _, f := range []fieldsplit.Factorization{fieldsplit.Upper, fieldsplit.Lower, fieldsplit.Diagonal} {
			for _, neumann := range []bool{false, true} {
				cfg := directConfig()
				cfg.PCDVariant, cfg.Factorization, cfg.NeumannPressure = v, f, neumann
				pc, err := fieldsplit.New(ctx, c, cfg)
				require.NoError(t, err)
				require.NoError(t, pc.Assemble())
				x, stats, err := c.Oseen(pc, settings)
				require.NoError(t, err)
				assert.True(t, stats.Converged, "%s %s neumann=%v", v, f, neumann)
				assert.InDelta(t, c.InflowFlux(), c.OutflowFlux(x), 1.e-5)
				pc.Destroy()
			}
		}
	}
	{ // Multigrid and Chebyshev leaves
		cfg := fieldsplit.DefaultConfig()
		pc, err := fieldsplit.New(ctx, c, cfg)
		require.NoError(t, err)
		require.NoError(t, pc.Assemble())
		_, stats, err := c.Oseen(pc, settings)
		require.NoError(t, err)
		assert.True(t, stats.Converged)
	}
}

func TestPicard(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	c := NewChannel2D(ctx, 16, 8, 2, 0.1)
	pc, err := fieldsplit.New(ctx, c, directConfig())
	require.NoError(t, err)
	{ // Reassembly of the blocks marks the preconditioner stale
		require.NoError(t, pc.Assemble())
		assert.Equal(t, fieldsplit.Assembled, pc.State())
		c.Assemble(nil)
		assert.Equal(t, fieldsplit.Stale, pc.State())
		_, _, err = c.Oseen(pc, krylov.Settings{})
		assert.True(t, errors.Is(err, fieldsplit.ErrStalePreconditioner))
		require.NoError(t, pc.Reassemble())
		_, _, err = c.Oseen(pc, krylov.Settings{Restart: 400})
		assert.NoError(t, err)
	}
	{ // Picard iteration
		before := pc.Assemblies
		x, stats, err := c.Picard(pc, PicardSettings{
			Tolerance:     1.e-6,
			MaxIterations: 40,
			Linear:        krylov.Settings{Tolerance: 1.e-9, Restart: 400},
		})
		require.NoError(t, err)
		assert.True(t, stats.Converged, stats.String())
		assert.True(t, stats.Iterations > 1)
		assert.Len(t, stats.Linear, stats.Iterations)
		total := 0
		for _, ls := range stats.Linear {
			assert.True(t, ls.Converged)
			total += ls.Iterations
		}
		assert.Equal(t, total, stats.KrylovIterations)
		// One reassembly per linear solve, each forced by a stale transition
		assert.Equal(t, stats.Iterations, pc.Assemblies-before)
		assert.Equal(t, fieldsplit.Stale, pc.State())
		assert.InDelta(t, c.InflowFlux(), c.OutflowFlux(x), 1.e-5)
		assert.False(t, utils.IsNan(x))
	}
	{ // Hitting the iteration limit is reported, not an error
		_, stats, err := c.Picard(pc, PicardSettings{Tolerance: 1.e-14, MaxIterations: 2,
			Linear: krylov.Settings{Tolerance: 1.e-9, Restart: 400}})
		require.NoError(t, err)
		assert.False(t, stats.Converged)
		assert.Equal(t, 2, stats.Iterations)
	}
}
