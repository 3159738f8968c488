package krylov

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
)

// CurvatureRatio bounds p.Ap/p.p from below, relative to the largest value
// seen in the solve. Smaller curvature is taken for a nullspace direction.
const CurvatureRatio = 1.e-13

// CG solves A*x = b for symmetric positive definite A with the
// preconditioned conjugate gradient method. x holds the initial guess.
// A direction of zero or negative curvature, or an indefinite
// preconditioner, stops the solve with a BreakdownError.
func CG(ctx *comm.Context, A MatVec, b, x []float64, s Settings) (stats Stats, err error) {
	checkDims(b, x)
	var (
		n     = len(b)
		start = time.Now()
	)
	defaultSettings(&s, n)
	defer func() { stats.Runtime = time.Since(start) }()
	var (
		r     = make([]float64, n)
		z     = make([]float64, n)
		p     = make([]float64, n)
		ap    = make([]float64, n)
		bnorm = ctx.Norm(b)
		rho   float64
		qmax  float64
	)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		stats.Converged = true
		return
	}
	A(r, x)
	stats.MatVec++
	floats.SubTo(r, b, r)
	stats.ResidualNorm = ctx.Norm(r) / bnorm
	for stats.Iterations < s.MaxIterations {
		if stats.ResidualNorm <= s.Tolerance {
			stats.Converged = true
			break
		}
		if s.PSolve != nil {
			if err = s.PSolve(z, r); err != nil {
				return
			}
			stats.PSolve++
		} else {
			copy(z, r)
		}
		rhoNew := ctx.Dot(r, z)
		if !(rhoNew > 0) {
			err = &BreakdownError{Method: "cg", Iteration: stats.Iterations,
				Reason: fmt.Sprintf("preconditioned residual product %g is not positive", rhoNew)}
			return
		}
		if stats.Iterations == 0 {
			copy(p, z)
		} else {
			floats.AddScaledTo(p, z, rhoNew/rho, p)
		}
		rho = rhoNew
		A(ap, p)
		stats.MatVec++
		var (
			pap = ctx.Dot(p, ap)
			q   = pap / ctx.Dot(p, p)
		)
		if !(q > CurvatureRatio*qmax) || !(pap > 0) {
			err = &BreakdownError{Method: "cg", Iteration: stats.Iterations,
				Reason: fmt.Sprintf("direction curvature %g against %g", q, qmax)}
			return
		}
		qmax = math.Max(qmax, q)
		alpha := rho / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		stats.Iterations++
		stats.ResidualNorm = ctx.Norm(r) / bnorm
	}
	if stats.ResidualNorm <= s.Tolerance {
		stats.Converged = true
	}
	return
}
