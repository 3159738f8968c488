package leafsolver

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/utils"
)

// CondLimit is the largest LU condition estimate accepted by the direct solver
const CondLimit = 1.e14

// DirectSolver factors the operator densely with partial pivoting
type DirectSolver struct {
	ctx *comm.Context
	A   utils.CSR
	lu  *mat.LU
}

func (s *DirectSolver) Kind() Kind { return Direct }

func (s *DirectSolver) Setup(A utils.CSR) (err error) {
	var (
		nr, nc = A.Dims()
		lu     = &mat.LU{}
	)
	if nr != nc {
		return fmt.Errorf("leafsolver: direct solve of non-square %dx%d operator \"%s\"", nr, nc, A.Name())
	}
	s.A, s.lu = A, nil
	if nr == 0 {
		s.lu = lu
		return
	}
	if utils.IsNan(A) {
		return &SingularOperatorError{Kind: Direct, Operator: A.Name(), Reason: "operator has non-finite entries"}
	}
	lu.Factorize(A.ToDense())
	if cond := lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > CondLimit {
		return &SingularOperatorError{Kind: Direct, Operator: A.Name(),
			Reason: fmt.Sprintf("LU condition estimate %8.3e", cond)}
	}
	s.ctx.Logger("direct").Debug("factorized",
		zap.String("operator", A.Name()), zap.Int("n", nr))
	s.lu = lu
	return
}

func (s *DirectSolver) Solve(dst, rhs []float64) (err error) {
	var (
		cond mat.Condition
	)
	if s.lu == nil {
		return notSetUp(Direct)
	}
	if len(rhs) == 0 {
		return
	}
	x := mat.NewVecDense(len(dst), dst)
	if err = s.lu.SolveVecTo(x, false, mat.NewVecDense(len(rhs), rhs)); err != nil {
		// Ill-conditioning was already screened in Setup
		if !errors.As(err, &cond) {
			return
		}
		err = nil
	}
	return checkFinite(Direct, s.A, dst)
}

func (s *DirectSolver) Destroy() {
	s.lu = nil
	s.A = utils.CSR{}
}
