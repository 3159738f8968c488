package leafsolver

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/krylov"
	"github.com/notargets/gopcd/utils"
)

// JacobiCGSolver runs diagonally preconditioned CG to a relative tolerance.
// Reaching the iteration limit is logged and the iterate is returned, unless
// the residual never dropped below that of the zero guess. That, and a CG
// breakdown, mark the operator singular.
type JacobiCGSolver struct {
	ctx       *comm.Context
	opts      Options
	A         utils.CSR
	dinv      []float64
	LastStats krylov.Stats
}

func (s *JacobiCGSolver) Kind() Kind { return JacobiCG }

func (s *JacobiCGSolver) Setup(A utils.CSR) (err error) {
	if err = checkSquare(JacobiCG, A); err != nil {
		return
	}
	s.A = A
	s.dinv, err = inverseDiagonal(JacobiCG, A)
	return
}

func (s *JacobiCGSolver) Solve(dst, rhs []float64) (err error) {
	if s.dinv == nil {
		return notSetUp(JacobiCG)
	}
	for i := range dst {
		dst[i] = 0
	}
	s.LastStats, err = krylov.CG(s.ctx, s.matVec, rhs, dst, krylov.Settings{
		Tolerance:     s.opts.Tolerance,
		MaxIterations: s.opts.MaxIterations,
		PSolve:        s.jacobi,
	})
	if errors.Is(err, krylov.ErrBreakdown) {
		return &SingularOperatorError{Kind: JacobiCG, Operator: s.A.Name(), Reason: err.Error()}
	}
	if err != nil {
		return
	}
	if !s.LastStats.Converged && !(s.LastStats.ResidualNorm < 1) {
		return &SingularOperatorError{Kind: JacobiCG, Operator: s.A.Name(),
			Reason: fmt.Sprintf("residual did not contract in %d iterations, relative residual %8.3e",
				s.LastStats.Iterations, s.LastStats.ResidualNorm)}
	}
	if !s.LastStats.Converged {
		s.ctx.Logger("jacobi-cg").Debug("leaf solve not converged",
			zap.String("operator", s.A.Name()),
			zap.Int("iterations", s.LastStats.Iterations),
			zap.Float64("residual", s.LastStats.ResidualNorm))
	}
	return checkFinite(JacobiCG, s.A, dst)
}

func (s *JacobiCGSolver) matVec(dst, x []float64) { s.ctx.MulVec(s.A, dst, x) }

func (s *JacobiCGSolver) jacobi(dst, rhs []float64) error {
	floats.MulTo(dst, s.dinv, rhs)
	return nil
}

func (s *JacobiCGSolver) Destroy() {
	s.dinv = nil
	s.A = utils.CSR{}
}

// ChebyshevSlack multiplies the residual reduction guaranteed for a spectrum
// inside the eigenvalue bounds; a residual above it fails the solve
const ChebyshevSlack = 10.

// ChebyshevSolver applies a fixed number of Jacobi preconditioned Chebyshev
// iterations for an assumed spectrum of D^-1 A. It is a fixed linear operator,
// which suits the mass matrix where D^-1 M is spectrally equivalent to I.
// Nullspace components are never reduced, so a residual that has not
// contracted as the bounds predict marks the operator singular.
type ChebyshevSolver struct {
	ctx     *comm.Context
	opts    Options
	A       utils.CSR
	dinv    []float64
	r, d, z []float64
	limit   float64 // Largest accepted relative residual
}

func (s *ChebyshevSolver) Kind() Kind { return Chebyshev }

func (s *ChebyshevSolver) Setup(A utils.CSR) (err error) {
	if err = checkSquare(Chebyshev, A); err != nil {
		return
	}
	lmin, lmax := s.opts.EigenBounds[0], s.opts.EigenBounds[1]
	if !(lmin > 0 && lmax > lmin) {
		return fmt.Errorf("leafsolver: invalid chebyshev eigenvalue bounds [%g, %g]", lmin, lmax)
	}
	n, _ := A.Dims()
	s.A = A
	s.r, s.d, s.z = make([]float64, n), make([]float64, n), make([]float64, n)
	if s.dinv, err = inverseDiagonal(Chebyshev, A); err != nil {
		return
	}
	s.limit = chebyshevLimit(s.opts.MaxIterations, lmin, lmax, s.dinv)
	return
}

// chebyshevLimit is the residual reduction 1/T_k(sigma) of k iterations on
// [lmin, lmax], scaled by sqrt(cond(D)) for the Euclidean norm and by the slack
func chebyshevLimit(k int, lmin, lmax float64, dinv []float64) float64 {
	var (
		sigma      = (lmax + lmin) / (lmax - lmin)
		dmin, dmax = math.Inf(1), 0.
	)
	for _, di := range dinv {
		dmin, dmax = math.Min(dmin, math.Abs(di)), math.Max(dmax, math.Abs(di))
	}
	bound := 1 / math.Cosh(float64(k)*math.Acosh(sigma))
	return math.Max(ChebyshevSlack*math.Sqrt(dmax/dmin)*bound, 1.e-10)
}

func (s *ChebyshevSolver) Solve(dst, rhs []float64) (err error) {
	if s.dinv == nil {
		return notSetUp(Chebyshev)
	}
	var (
		lmin, lmax = s.opts.EigenBounds[0], s.opts.EigenBounds[1]
		theta      = 0.5 * (lmax + lmin)
		delta      = 0.5 * (lmax - lmin)
		sigma      = theta / delta
		rho        = 1 / sigma
		r, d, z    = s.r, s.d, s.z
	)
	for i := range dst {
		dst[i] = 0
	}
	copy(r, rhs)
	floats.MulTo(d, s.dinv, r)
	floats.Scale(1/theta, d)
	for k := 0; k < s.opts.MaxIterations; k++ {
		floats.Add(dst, d)
		s.ctx.MulVec(s.A, z, d)
		floats.Sub(r, z)
		rhoNew := 1 / (2*sigma - rho)
		floats.MulTo(z, s.dinv, r)
		floats.AddScaledTo(d, floats.ScaleTo(d, rhoNew*rho, d), 2*rhoNew/delta, z)
		rho = rhoNew
	}
	if err = checkFinite(Chebyshev, s.A, dst); err != nil {
		return
	}
	// r holds the residual of dst
	if bnorm := floats.Norm(rhs, 2); bnorm > 0 {
		if rel := floats.Norm(r, 2) / bnorm; !(rel <= s.limit) {
			return &SingularOperatorError{Kind: Chebyshev, Operator: s.A.Name(),
				Reason: fmt.Sprintf("relative residual %8.3e after %d iterations, expected below %8.3e",
					rel, s.opts.MaxIterations, s.limit)}
		}
	}
	return nil
}

func (s *ChebyshevSolver) Destroy() {
	s.dinv, s.r, s.d, s.z = nil, nil, nil, nil
	s.A = utils.CSR{}
}

func checkSquare(kind Kind, A utils.CSR) error {
	if nr, nc := A.Dims(); nr != nc {
		return fmt.Errorf("leafsolver: %s solve of non-square %dx%d operator \"%s\"", kind, nr, nc, A.Name())
	}
	return nil
}
