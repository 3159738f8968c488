// Package krylov contains the iterative drivers: right-preconditioned
// restarted GMRES for the outer saddle-point solve and preconditioned CG for
// symmetric positive definite leaf operators.
package krylov

import (
	"errors"
	"fmt"
	"time"
)

// MatVec computes dst = A*x
type MatVec func(dst, x []float64)

// PSolve stores into dst an approximate solution of M*dst = rhs
type PSolve func(dst, rhs []float64) error

type Settings struct {
	// Tolerance on the relative residual |b - A*x| / |b|. Defaults to 1e-8.
	Tolerance float64
	// Defaults to twice the dimension of the system.
	MaxIterations int
	// Krylov subspace size between GMRES restarts, ignored by CG. Defaults to 150.
	Restart int
	// Nil means no preconditioning.
	PSolve PSolve
}

func defaultSettings(s *Settings, dim int) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-8
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 2 * dim
	}
	if s.Restart == 0 {
		s.Restart = 150
	}
	if s.Restart > dim && dim > 0 {
		s.Restart = dim
	}
}

// Stats is what a solve reports. Non-convergence is not an error; callers
// decide what to do with Converged == false.
type Stats struct {
	Iterations   int
	MatVec       int
	PSolve       int
	ResidualNorm float64 // Final relative residual
	Converged    bool
	Runtime      time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("iterations = %d, relative residual = %8.3e, converged = %v, matvecs = %d, psolves = %d, time = %v",
		s.Iterations, s.ResidualNorm, s.Converged, s.MatVec, s.PSolve, s.Runtime)
}

var ErrBreakdown = errors.New("krylov: breakdown")

// BreakdownError reports an operator or preconditioner that violates the
// assumptions of the method, e.g. a CG direction of zero curvature
type BreakdownError struct {
	Method    string
	Iteration int
	Reason    string
}

func (e *BreakdownError) Error() string {
	return fmt.Sprintf("krylov: %s breakdown at iteration %d: %s", e.Method, e.Iteration, e.Reason)
}

func (e *BreakdownError) Is(target error) bool { return target == ErrBreakdown }

func checkDims(b, x []float64) {
	if len(b) != len(x) {
		panic(fmt.Errorf("dimension mismatch: len(b) = %d, len(x) = %d", len(b), len(x)))
	}
}
