package leafsolver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// laplacian2D is the 5 point Dirichlet Laplacian on an n x n grid
func laplacian2D(n int) utils.CSR {
	D := utils.NewDOK(n*n, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			k := i + j*n
			D.Set(k, k, 4)
			if i > 0 {
				D.Set(k, k-1, -1)
			}
			if i < n-1 {
				D.Set(k, k+1, -1)
			}
			if j > 0 {
				D.Set(k, k-n, -1)
			}
			if j < n-1 {
				D.Set(k, k+n, -1)
			}
		}
	}
	A := D.ToCSR()
	return A.SetReadOnly("laplacian")
}

// neumann1D has constants in its nullspace
func neumann1D(n int) utils.CSR {
	D := utils.NewDOK(n, n)
	for i := 0; i < n-1; i++ {
		D.Add(i, i, 1)
		D.Add(i+1, i+1, 1)
		D.Add(i, i+1, -1)
		D.Add(i+1, i, -1)
	}
	return D.ToCSR()
}

func mass1D(n int) utils.CSR {
	D := utils.NewDOK(n, n)
	for i := 0; i < n; i++ {
		D.Set(i, i, 4./6.)
		if i > 0 {
			D.Set(i, i-1, 1./6.)
		}
		if i < n-1 {
			D.Set(i, i+1, 1./6.)
		}
	}
	return D.ToCSR()
}

func energyNorm(A utils.CSR, x []float64) float64 {
	ax := make([]float64, len(x))
	A.MulVec(ax, x)
	return floats.Dot(x, ax)
}

func TestKindNames(t *testing.T) {
	for i, name := range KindPrintNames {
		k, err := NewKind(name)
		assert.NoError(t, err)
		assert.Equal(t, Kind(i), k)
		assert.Equal(t, name, k.String())
	}
	k, err := NewKind("LU")
	assert.NoError(t, err)
	assert.Equal(t, Direct, k)
	_, err = NewKind("ilu")
	assert.Error(t, err)
	assert.Panics(t, func() { New(comm.NewContext(), Kind(9), Options{}) })
}

func TestLeafSolvers(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	A := laplacian2D(20)
	n, _ := A.Dims()
	xTrue := make([]float64, n)
	for i := range xTrue {
		xTrue[i] = float64(i%11) - 5
	}
	b := make([]float64, n)
	A.MulVec(b, xTrue)
	{ // Direct
		s := New(ctx, Direct, Options{})
		require.NoError(t, s.Setup(A))
		x := make([]float64, n)
		require.NoError(t, s.Solve(x, b))
		assert.InDeltaSlice(t, xTrue, x, 1.e-10)
		s.Destroy()
		assert.Error(t, s.Solve(x, b))
	}
	{ // Jacobi CG
		s := New(ctx, JacobiCG, Options{Tolerance: 1.e-12, MaxIterations: 1000})
		require.NoError(t, s.Setup(A))
		x := make([]float64, n)
		require.NoError(t, s.Solve(x, b))
		assert.InDeltaSlice(t, xTrue, x, 1.e-8)
		assert.True(t, s.(*JacobiCGSolver).LastStats.Converged)
	}
	{ // AMG builds a hierarchy and contracts the error in the energy norm
		s := New(ctx, AMG, Options{Cycles: 20})
		require.NoError(t, s.Setup(A))
		assert.True(t, s.(*AMGSolver).Levels() > 1)
		x := make([]float64, n)
		require.NoError(t, s.Solve(x, b))
		floats.Sub(x, xTrue)
		assert.Less(t, energyNorm(A, x), 0.25*energyNorm(A, xTrue))
		// A repeated Setup rebuilds from scratch
		require.NoError(t, s.Setup(A))
		y := make([]float64, n)
		require.NoError(t, s.Solve(y, b))
		floats.Sub(y, xTrue)
		assert.InDeltaSlice(t, x, y, 1.e-12)
	}
	{ // Small operators are solved exactly on a single AMG level
		B := laplacian2D(6)
		s := New(ctx, AMG, Options{})
		require.NoError(t, s.Setup(B))
		assert.Equal(t, 1, s.(*AMGSolver).Levels())
		bb := utils.ConstArray(36, 1)
		x := make([]float64, 36)
		require.NoError(t, s.Solve(x, bb))
		r := make([]float64, 36)
		B.MulVec(r, x)
		assert.InDeltaSlice(t, bb, r, 1.e-10)
	}
	{ // Chebyshev on a mass matrix, five iterations with bounds [0.5, 2]
		M := mass1D(50)
		xm := make([]float64, 50)
		for i := range xm {
			xm[i] = 1 + float64(i%3)
		}
		bm := make([]float64, 50)
		M.MulVec(bm, xm)
		s := New(ctx, Chebyshev, Options{})
		require.NoError(t, s.Setup(M))
		x := make([]float64, 50)
		require.NoError(t, s.Solve(x, bm))
		floats.Sub(x, xm)
		assert.Less(t, floats.Norm(x, 2), 0.01*floats.Norm(xm, 2))

		bad := New(ctx, Chebyshev, Options{EigenBounds: [2]float64{2, 1}})
		assert.Error(t, bad.Setup(M))
	}
}

func TestSingularOperators(t *testing.T) {
	ctx := comm.NewContext(comm.WithParallelDegree(2))
	zero := utils.NewDOK(10, 10).ToCSR()
	zero.SetReadOnly("pressure_convdiff")
	for _, kind := range []Kind{Direct, AMG, JacobiCG, Chebyshev} {
		s := New(ctx, kind, Options{})
		err := s.Setup(zero)
		require.Error(t, err, kind.String())
		assert.True(t, errors.Is(err, ErrSingularOperator), kind.String())
		var se *SingularOperatorError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, kind, se.Kind)
		assert.Equal(t, "pressure_convdiff", se.Operator)
		// A failed setup never hands back NaNs
		x := make([]float64, 10)
		assert.Error(t, s.Solve(x, utils.ConstArray(10, 1)))
		assert.False(t, utils.IsNan(x))
	}
	{ // Rank deficient operators
		for _, n := range []int{20, 200} {
			for _, kind := range []Kind{Direct, AMG} {
				err := New(ctx, kind, Options{}).Setup(neumann1D(n))
				assert.True(t, errors.Is(err, ErrSingularOperator), "%s n = %d", kind, n)
			}
			// The iterative leaves accept the operator and fail in Solve
			for _, kind := range []Kind{JacobiCG, Chebyshev} {
				s := New(ctx, kind, Options{})
				require.NoError(t, s.Setup(neumann1D(n)), "%s n = %d", kind, n)
				x := make([]float64, n)
				err := s.Solve(x, utils.ConstArray(n, 1))
				assert.True(t, errors.Is(err, ErrSingularOperator), "%s n = %d", kind, n)
				var se *SingularOperatorError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, kind, se.Kind)
			}
		}
		// A singular mass with a unit diagonal
		D := utils.NewDOK(10, 10)
		for i := 0; i < 10; i++ {
			D.Set(i, i, 1)
		}
		D.Set(0, 1, 1).Set(1, 0, 1)
		M := D.ToCSR()
		e0 := make([]float64, 10)
		e0[0] = 1
		for _, kind := range []Kind{JacobiCG, Chebyshev} {
			s := New(ctx, kind, Options{})
			require.NoError(t, s.Setup(M))
			x := make([]float64, 10)
			assert.True(t, errors.Is(s.Solve(x, e0), ErrSingularOperator), kind.String())
		}
		// A consistent right-hand side still solves
		s := New(ctx, JacobiCG, Options{Tolerance: 1.e-10})
		require.NoError(t, s.Setup(M))
		b := make([]float64, 10)
		b[0], b[1], b[2] = 1, 1, 1
		x := make([]float64, 10)
		require.NoError(t, s.Solve(x, b))
		r := make([]float64, 10)
		M.MulVec(r, x)
		assert.InDeltaSlice(t, b, r, 1.e-8)
	}
	{ // Non-finite entries
		D := utils.NewDOK(3, 3)
		D.Set(0, 0, 1).Set(1, 1, 1).Set(2, 2, 1).Set(0, 2, math.NaN())
		err := New(ctx, Direct, Options{}).Setup(D.ToCSR())
		assert.True(t, errors.Is(err, ErrSingularOperator))
	}
}
