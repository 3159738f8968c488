package krylov

import (
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
)

// GMRES solves A*x = b with restarted, right-preconditioned GMRES. x holds
// the initial guess on entry. The preconditioned directions are kept, the
// flexible variant, so preconditioners built on inner iterations are safe.
func GMRES(ctx *comm.Context, A MatVec, b, x []float64, s Settings) (stats Stats, err error) {
	checkDims(b, x)
	var (
		n      = len(b)
		logger = ctx.Logger("gmres")
		start  = time.Now()
	)
	defaultSettings(&s, n)
	defer func() { stats.Runtime = time.Since(start) }()
	var (
		m     = s.Restart
		V     = make([][]float64, m+1)
		Z     = make([][]float64, m)
		H     = make([][]float64, m+1) // H[i][j], Hessenberg reduced in place to R
		cs    = make([]float64, m)
		sn    = make([]float64, m)
		g     = make([]float64, m+1)
		r     = make([]float64, n)
		w     = make([]float64, n)
		bnorm = ctx.Norm(b)
	)
	for i := range V {
		V[i] = make([]float64, n)
		H[i] = make([]float64, m)
	}
	for i := range Z {
		Z[i] = make([]float64, n)
	}
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		stats.Converged = true
		return
	}
	residual := func() float64 {
		A(r, x)
		stats.MatVec++
		floats.SubTo(r, b, r)
		return ctx.Norm(r)
	}
	beta := residual()
	stats.ResidualNorm = beta / bnorm
	for stats.Iterations < s.MaxIterations {
		if stats.ResidualNorm <= s.Tolerance {
			stats.Converged = true
			break
		}
		floats.ScaleTo(V[0], 1/beta, r)
		for i := range g {
			g[i] = 0
		}
		g[0] = beta
		var k int
		for k = 0; k < m && stats.Iterations < s.MaxIterations; {
			j := k
			if s.PSolve != nil {
				if err = s.PSolve(Z[j], V[j]); err != nil {
					return
				}
				stats.PSolve++
			} else {
				copy(Z[j], V[j])
			}
			A(w, Z[j])
			stats.MatVec++
			// Modified Gram-Schmidt
			for i := 0; i <= j; i++ {
				H[i][j] = ctx.Dot(w, V[i])
				floats.AddScaled(w, -H[i][j], V[i])
			}
			H[j+1][j] = ctx.Norm(w)
			breakdown := H[j+1][j] <= 1.e-14*beta
			if !breakdown {
				floats.ScaleTo(V[j+1], 1/H[j+1][j], w)
			}
			for i := 0; i < j; i++ {
				H[i][j], H[i+1][j] = cs[i]*H[i][j]+sn[i]*H[i+1][j], -sn[i]*H[i][j]+cs[i]*H[i+1][j]
			}
			cs[j], sn[j] = givens(H[j][j], H[j+1][j])
			H[j][j] = cs[j]*H[j][j] + sn[j]*H[j+1][j]
			H[j+1][j] = 0
			g[j+1] = -sn[j] * g[j]
			g[j] = cs[j] * g[j]
			k++
			stats.Iterations++
			if math.Abs(g[j+1])/bnorm <= s.Tolerance || breakdown {
				break
			}
		}
		// Back substitution on R y = g, then x += Z y
		y := make([]float64, k)
		for i := k - 1; i >= 0; i-- {
			sum := g[i]
			for l := i + 1; l < k; l++ {
				sum -= H[i][l] * y[l]
			}
			if H[i][i] != 0 {
				y[i] = sum / H[i][i]
			}
		}
		for i := 0; i < k; i++ {
			floats.AddScaled(x, y[i], Z[i])
		}
		beta = residual()
		stats.ResidualNorm = beta / bnorm
		logger.Debug("restart",
			zap.Int("iterations", stats.Iterations),
			zap.Float64("residual", stats.ResidualNorm))
		if stats.ResidualNorm <= s.Tolerance {
			stats.Converged = true
			break
		}
		if beta == 0 {
			break
		}
	}
	return
}

// givens returns the rotation zeroing b in (a, b)
func givens(a, b float64) (c, s float64) {
	switch {
	case b == 0:
		return 1, 0
	case math.Abs(b) > math.Abs(a):
		t := a / b
		s = 1 / math.Sqrt(1+t*t)
		c = s * t
	default:
		t := b / a
		c = 1 / math.Sqrt(1+t*t)
		s = c * t
	}
	return
}
