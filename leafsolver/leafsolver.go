// Package leafsolver provides the approximate inverses used inside the
// field-split preconditioner: one per velocity block, and one each for the
// pressure mass and pressure Laplacian operators.
package leafsolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/utils"
)

type Kind uint8

const (
	Direct    Kind = iota // Dense LU, for small blocks and coarse levels
	AMG                   // Aggregation multigrid V-cycles
	JacobiCG              // Jacobi preconditioned conjugate gradients, SPD operators only
	Chebyshev             // Jacobi preconditioned Chebyshev iteration
)

var (
	KindNames = map[string]Kind{
		"direct":    Direct,
		"lu":        Direct,
		"amg":       AMG,
		"jacobi-cg": JacobiCG,
		"cg":        JacobiCG,
		"chebyshev": Chebyshev,
	}
	KindPrintNames = []string{"direct", "amg", "jacobi-cg", "chebyshev"}
)

func (k Kind) String() string {
	if int(k) < len(KindPrintNames) {
		return KindPrintNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func NewKind(label string) (k Kind, err error) {
	var (
		ok bool
	)
	if k, ok = KindNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown leaf solver %s, choose from %v", label, KindPrintNames)
	}
	return
}

var ErrSingularOperator = errors.New("leafsolver: singular operator")

// SingularOperatorError reports a leaf operator that cannot be factorized or
// whose solve produced non-finite values. It is never retried.
type SingularOperatorError struct {
	Kind     Kind
	Operator string
	Reason   string
}

func (e *SingularOperatorError) Error() string {
	return fmt.Sprintf("leafsolver: %s solve of operator \"%s\" failed: %s", e.Kind, e.Operator, e.Reason)
}

func (e *SingularOperatorError) Is(target error) bool { return target == ErrSingularOperator }

// Solver is an approximate inverse of one operator block. Setup may be
// called again after the operator is reassembled.
type Solver interface {
	Setup(A utils.CSR) error
	// Solve overwrites dst with an approximation of A^-1 * rhs
	Solve(dst, rhs []float64) error
	Kind() Kind
	Destroy()
}

type Options struct {
	Tolerance     float64    // Relative tolerance of jacobi-cg, default 1e-8
	MaxIterations int        // Iterations of jacobi-cg (default 200) and chebyshev (default 5)
	Cycles        int        // V-cycles per amg solve, default 2
	EigenBounds   [2]float64 // Bounds on the spectrum of D^-1 A for chebyshev, default [0.5, 2]
	CoarseSize    int        // AMG levels stop coarsening below this size, default 64
}

func (o *Options) setDefaults(k Kind) {
	if o.Tolerance == 0 {
		o.Tolerance = 1.e-8
	}
	if o.MaxIterations == 0 {
		switch k {
		case Chebyshev:
			o.MaxIterations = 5
		default:
			o.MaxIterations = 200
		}
	}
	if o.Cycles == 0 {
		o.Cycles = 2
	}
	if o.EigenBounds == [2]float64{} {
		o.EigenBounds = [2]float64{0.5, 2.0}
	}
	if o.CoarseSize == 0 {
		o.CoarseSize = 64
	}
}

func New(ctx *comm.Context, kind Kind, opts Options) (s Solver) {
	opts.setDefaults(kind)
	switch kind {
	case Direct:
		s = &DirectSolver{ctx: ctx}
	case AMG:
		s = &AMGSolver{ctx: ctx, opts: opts}
	case JacobiCG:
		s = &JacobiCGSolver{ctx: ctx, opts: opts}
	case Chebyshev:
		s = &ChebyshevSolver{ctx: ctx, opts: opts}
	default:
		panic(fmt.Errorf("unimplemented leaf solver kind %v", kind))
	}
	return
}

// inverseDiagonal fails on a zero diagonal, which makes Jacobi scaling impossible
func inverseDiagonal(kind Kind, A utils.CSR) (dinv []float64, err error) {
	dinv = A.Diagonal()
	for i, d := range dinv {
		if d == 0 || utils.IsNan(d) {
			return nil, &SingularOperatorError{Kind: kind, Operator: A.Name(),
				Reason: fmt.Sprintf("zero diagonal in row %d", i)}
		}
		dinv[i] = 1 / d
	}
	return
}

func checkFinite(kind Kind, A utils.CSR, x []float64) error {
	if utils.IsNan(x) {
		return &SingularOperatorError{Kind: kind, Operator: A.Name(), Reason: "solution is not finite"}
	}
	return nil
}

func notSetUp(kind Kind) error {
	return fmt.Errorf("leafsolver: %s solve called before Setup", kind)
}
