package leafsolver

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/utils"
)

const (
	// StrengthThreshold selects strong couplings |a_ij| >= theta*sqrt(|a_ii*a_jj|)
	StrengthThreshold = 0.08
	MaxLevels         = 12
	JacobiWeight      = 2. / 3.
	SmoothingSweeps   = 2
)

type amgLevel struct {
	A    utils.CSR
	P, R utils.CSR // Prolongation to this level from the next coarser, and its transpose
	Dinv []float64
	x, b []float64
	r    []float64
}

// AMGSolver applies a fixed number of V-cycles of unsmoothed aggregation
// multigrid with damped Jacobi smoothing and a direct coarse solve.
type AMGSolver struct {
	ctx    *comm.Context
	opts   Options
	levels []*amgLevel
	coarse *DirectSolver
}

func (s *AMGSolver) Kind() Kind { return AMG }

func (s *AMGSolver) Levels() int { return len(s.levels) }

func (s *AMGSolver) Setup(A utils.CSR) (err error) {
	var (
		nr, nc = A.Dims()
		logger = s.ctx.Logger("amg")
	)
	if nr != nc {
		return fmt.Errorf("leafsolver: amg solve of non-square %dx%d operator \"%s\"", nr, nc, A.Name())
	}
	s.levels = s.levels[:0]
	Ak := A
	for {
		lev := &amgLevel{A: Ak}
		s.levels = append(s.levels, lev)
		n, _ := Ak.Dims()
		if n <= s.opts.CoarseSize || len(s.levels) == MaxLevels {
			break
		}
		agg, nAgg := aggregate(Ak)
		if nAgg == n || nAgg == 0 {
			break
		}
		lev.P = tentativeProlongation(agg, nAgg)
		lev.R = lev.P.Transpose()
		Ak = lev.R.Mul(Ak).Mul(lev.P)
		Ak.SetReadOnly(fmt.Sprintf("%s (level %d)", A.Name(), len(s.levels)))
	}
	// Smoother diagonals and the coarse factorization are independent
	var (
		eg     errgroup.Group
		last   = len(s.levels) - 1
		coarse = &DirectSolver{ctx: s.ctx}
	)
	for l := 0; l < last; l++ {
		lev := s.levels[l]
		eg.Go(func() (err error) {
			n, _ := lev.A.Dims()
			lev.x, lev.b, lev.r = make([]float64, n), make([]float64, n), make([]float64, n)
			lev.Dinv, err = inverseDiagonal(AMG, lev.A)
			return
		})
	}
	eg.Go(func() error {
		lev := s.levels[last]
		n, _ := lev.A.Dims()
		lev.x, lev.b = make([]float64, n), make([]float64, n)
		return coarse.Setup(lev.A)
	})
	if err = eg.Wait(); err != nil {
		if se, ok := err.(*SingularOperatorError); ok {
			se.Kind, se.Operator = AMG, A.Name()
		}
		s.levels, s.coarse = nil, nil
		return
	}
	s.coarse = coarse
	logger.Debug("hierarchy",
		zap.String("operator", A.Name()),
		zap.Int("levels", len(s.levels)),
		zap.Int("coarse size", len(s.levels[last].x)))
	return
}

func (s *AMGSolver) Solve(dst, rhs []float64) (err error) {
	if s.coarse == nil {
		return notSetUp(AMG)
	}
	top := s.levels[0]
	for i := range dst {
		dst[i] = 0
	}
	copy(top.b, rhs)
	copy(top.x, dst)
	for c := 0; c < s.opts.Cycles; c++ {
		if err = s.vcycle(0); err != nil {
			return
		}
	}
	copy(dst, top.x)
	return checkFinite(AMG, top.A, dst)
}

func (s *AMGSolver) vcycle(l int) (err error) {
	lev := s.levels[l]
	if l == len(s.levels)-1 {
		return s.coarse.Solve(lev.x, lev.b)
	}
	s.smooth(lev)
	// Restrict the residual, solve for the coarse correction from zero
	s.ctx.MulVec(lev.A, lev.r, lev.x)
	floats.SubTo(lev.r, lev.b, lev.r)
	next := s.levels[l+1]
	lev.R.MulVec(next.b, lev.r)
	for i := range next.x {
		next.x[i] = 0
	}
	if err = s.vcycle(l + 1); err != nil {
		return
	}
	// Prolongate and correct
	lev.P.MulVec(lev.r, next.x)
	floats.Add(lev.x, lev.r)
	s.smooth(lev)
	return
}

func (s *AMGSolver) smooth(lev *amgLevel) {
	for sweep := 0; sweep < SmoothingSweeps; sweep++ {
		s.ctx.MulVec(lev.A, lev.r, lev.x)
		for i := range lev.x {
			lev.x[i] += JacobiWeight * lev.Dinv[i] * (lev.b[i] - lev.r[i])
		}
	}
}

func (s *AMGSolver) Destroy() {
	if s.coarse != nil {
		s.coarse.Destroy()
	}
	s.levels, s.coarse = nil, nil
}

// aggregate groups strongly connected nodes. Pass one seeds aggregates at
// nodes whose strong neighbourhood is untouched, pass two attaches the rest
// to a neighbouring aggregate, pass three makes leftovers into singletons.
func aggregate(A utils.CSR) (agg []int, nAgg int) {
	var (
		n, _   = A.Dims()
		diag   = A.Diagonal()
		strong = make([][]int, n)
	)
	A.DoNonZero(func(i, j int, v float64) {
		if i != j && math.Abs(v) >= StrengthThreshold*math.Sqrt(math.Abs(diag[i]*diag[j])) {
			strong[i] = append(strong[i], j)
		}
	})
	agg = make([]int, n)
	for i := range agg {
		agg[i] = -1
	}
	for i := 0; i < n; i++ {
		if agg[i] != -1 || len(strong[i]) == 0 {
			continue
		}
		free := true
		for _, j := range strong[i] {
			if agg[j] != -1 {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		agg[i] = nAgg
		for _, j := range strong[i] {
			agg[j] = nAgg
		}
		nAgg++
	}
	pass2 := make([]int, n)
	copy(pass2, agg)
	for i := 0; i < n; i++ {
		if agg[i] != -1 {
			continue
		}
		for _, j := range strong[i] {
			if pass2[j] != -1 {
				agg[i] = pass2[j]
				break
			}
		}
	}
	for i := 0; i < n; i++ {
		if agg[i] == -1 {
			agg[i] = nAgg
			nAgg++
		}
	}
	return
}

func tentativeProlongation(agg []int, nAgg int) (P utils.CSR) {
	var (
		n      = len(agg)
		indptr = make([]int, n+1)
		ind    = make([]int, n)
		data   = make([]float64, n)
	)
	for i, a := range agg {
		indptr[i+1] = i + 1
		ind[i] = a
		data[i] = 1
	}
	return utils.NewCSR(n, nAgg, indptr, ind, data)
}
