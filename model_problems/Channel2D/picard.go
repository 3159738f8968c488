package Channel2D

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/fieldsplit"
	"github.com/notargets/gopcd/krylov"
	"github.com/notargets/gopcd/utils"
)

type PicardSettings struct {
	Tolerance     float64 // Relative nonlinear residual, default 1e-6
	MaxIterations int     // Default 25
	// Linear is the setting of each outer GMRES solve; PSolve is supplied
	Linear krylov.Settings
}

type PicardStats struct {
	Iterations       int // Linear solves performed
	KrylovIterations int // Cumulative over all linear solves
	Residual         float64
	Converged        bool
	Linear           []krylov.Stats
	Runtime          time.Duration
}

func (s PicardStats) String() string {
	return fmt.Sprintf("picard iterations = %d, krylov iterations = %d, residual = %8.3e, converged = %v, time = %v",
		s.Iterations, s.KrylovIterations, s.Residual, s.Converged, s.Runtime)
}

// Picard solves the Navier-Stokes problem by fixed point iteration on the
// convection velocity. Each step reassembles A and F_p around the current
// iterate, which makes pc stale, then reassembles pc and solves the Oseen
// system with right-preconditioned GMRES. Linear non-convergence is
// recorded and the iteration continues; errors from the preconditioner stop it.
func (c *Channel2D) Picard(pc *fieldsplit.Preconditioner, s PicardSettings) (x utils.BlockVector, stats PicardStats, err error) {
	var (
		start = time.Now()
		xf    = make([]float64, c.Nu+c.Np)
		r     = make([]float64, c.Nu+c.Np)
	)
	if s.Tolerance == 0 {
		s.Tolerance = 1.e-6
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 25
	}
	defer func() {
		stats.Runtime = time.Since(start)
		x = utils.View(xf, c.Nu)
	}()
	for {
		if stats.Iterations == 0 {
			c.Assemble(nil)
		} else {
			c.Assemble(xf[:c.Nu])
		}
		b := c.F.Flatten()
		c.MulVec(r, xf)
		floats.SubTo(r, b, r)
		stats.Residual = floats.Norm(r, 2) / floats.Norm(b, 2)
		c.logger.Info("picard",
			zap.Int("iteration", stats.Iterations),
			zap.Int("krylov iterations", stats.KrylovIterations),
			zap.Float64("residual", stats.Residual))
		if stats.Residual <= s.Tolerance {
			stats.Converged = true
			return
		}
		if stats.Iterations == s.MaxIterations {
			return
		}
		if err = pc.Reassemble(); err != nil {
			return
		}
		ls := s.Linear
		ls.PSolve = pc.PSolve
		var lstats krylov.Stats
		if lstats, err = krylov.GMRES(c.ctx, c.MulVec, b, xf, ls); err != nil {
			return
		}
		stats.Iterations++
		stats.KrylovIterations += lstats.Iterations
		stats.Linear = append(stats.Linear, lstats)
	}
}

// Oseen solves the linear system for the current blocks once, with pc
// assembled by the caller
func (c *Channel2D) Oseen(pc *fieldsplit.Preconditioner, s krylov.Settings) (x utils.BlockVector, stats krylov.Stats, err error) {
	xf := make([]float64, c.Nu+c.Np)
	s.PSolve = pc.PSolve
	stats, err = krylov.GMRES(c.ctx, c.MulVec, c.F.Flatten(), xf, s)
	x = utils.View(xf, c.Nu)
	return
}
