package pcd

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/leafsolver"
	"github.com/notargets/gopcd/operators"
	"github.com/notargets/gopcd/utils"
)

type Options struct {
	Variant        Variant
	PressureSolver leafsolver.Kind // Laplacian solve
	MassSolver     leafsolver.Kind
	Leaf           leafsolver.Options
	// NeumannPressure keeps the pure Neumann Laplacian and pins one dof of
	// the free boundary instead of the artificial Dirichlet condition
	NeumannPressure bool
	// AllowEnclosedNeumann accepts NeumannPressure without a free boundary;
	// constants are projected out of every Laplacian solve
	AllowEnclosedNeumann bool
	Stabilized           bool
}

// Approximation is the Schur complement approximation for one outer
// iteration. It exclusively owns its two leaf solvers.
type Approximation struct {
	ctx        *comm.Context
	logger     *zap.Logger
	opts       Options
	Mp, Fp, Ap utils.CSR // Fp and Ap with the boundary treatment applied
	pinned     []int
	enclosed   bool
	massSolver leafsolver.Solver
	lapSolver  leafsolver.Solver
	t1, t2     []float64
	built      bool
}

func NewApproximation(ctx *comm.Context, opts Options) (a *Approximation) {
	a = &Approximation{
		ctx:        ctx,
		logger:     ctx.Logger("pcd"),
		opts:       opts,
		massSolver: leafsolver.New(ctx, opts.MassSolver, opts.Leaf),
		lapSolver:  leafsolver.New(ctx, opts.PressureSolver, opts.Leaf),
	}
	return
}

func (a *Approximation) Variant() Variant { return a.opts.Variant }
func (a *Approximation) Pinned() []int    { return a.pinned }
func (a *Approximation) Enclosed() bool   { return a.enclosed }

// Build fetches the pressure-space operators, applies the boundary
// treatment and sets up both leaf solvers. The stabilization and inflow
// blocks are requested only when the configuration calls for them.
func (a *Approximation) Build(p operators.Provider) (err error) {
	var (
		pb = operators.NewPressureBoundary()
	)
	a.built = false
	if a.Mp, err = p.Block(operators.PressureMass); err != nil {
		return
	}
	if a.Fp, err = p.Block(operators.PressureConvDiff); err != nil {
		return
	}
	if a.Ap, err = p.Block(operators.PressureLaplacian); err != nil {
		return
	}
	np, _ := a.Mp.Dims()
	for _, add := range []struct {
		name operators.BlockName
		use  bool
	}{
		{operators.Stabilization, a.opts.Stabilized},
		{operators.InflowBoundary, a.opts.Variant.InflowCorrection()},
	} {
		if !add.use {
			continue
		}
		var C utils.CSR
		if C, err = p.Block(add.name); err != nil {
			return
		}
		if nr, nc := C.Dims(); nr != np || nc != np {
			return fmt.Errorf("%w: block %s is %dx%d, want %dx%d",
				operators.ErrNonConformal, add.name, nr, nc, np, np)
		}
		a.Fp = a.Fp.AddScaled(1, C)
	}
	if bp, ok := p.(operators.BoundaryProvider); ok {
		pb = bp.PressureBoundary()
	}
	if err = a.boundaryTreatment(pb); err != nil {
		return
	}
	a.Ap = EliminateSymmetric(a.Ap, a.pinned)
	a.Fp = EliminateRows(a.Fp, a.pinned)
	if err = a.massSolver.Setup(a.Mp); err != nil {
		return fmt.Errorf("pcd: pressure mass setup: %w", err)
	}
	if err = a.lapSolver.Setup(a.Ap); err != nil {
		return fmt.Errorf("pcd: pressure laplacian setup: %w", err)
	}
	a.t1, a.t2 = make([]float64, np), make([]float64, np)
	a.built = true
	a.logger.Debug("built",
		zap.Stringer("variant", a.opts.Variant),
		zap.Int("np", np),
		zap.Ints("pinned", a.pinned),
		zap.Bool("enclosed", a.enclosed))
	return
}

func (a *Approximation) boundaryTreatment(pb operators.PressureBoundary) error {
	a.enclosed = false
	if !a.opts.NeumannPressure {
		bc := a.opts.Variant.PinnedBoundary()
		if a.pinned = pb.Dofs(bc); len(a.pinned) == 0 {
			return &operators.MissingOperatorError{Block: operators.PressureLaplacian,
				Reason: fmt.Sprintf("%s needs pressure dofs on the %s boundary", a.opts.Variant, bc)}
		}
		return nil
	}
	if free := pb.Free(); len(free) != 0 {
		a.pinned = free[:1]
		return nil
	}
	if !a.opts.AllowEnclosedNeumann {
		return &operators.MissingOperatorError{Block: operators.PressureLaplacian,
			Reason: "neumann pressure requested on an enclosed pressure space with no free boundary"}
	}
	a.enclosed = true
	a.pinned = []int{0}
	return nil
}

// Apply computes dst = -S~^-1 src. The leaf order of each variant is fixed.
func (a *Approximation) Apply(dst, src []float64) (err error) {
	if !a.built {
		return fmt.Errorf("pcd: Apply before Build")
	}
	var (
		t1, t2 = a.t1, a.t2
	)
	switch a.opts.Variant {
	case PCD:
		// Mass solve, convection-diffusion multiply, Laplacian solve
		if err = a.massSolver.Solve(t1, src); err != nil {
			return
		}
		a.ctx.MulVec(a.Fp, t2, t1)
		if err = a.laplacianSolve(dst, t2); err != nil {
			return
		}
	case BRM1:
		if err = a.laplacianSolve(t1, src); err != nil {
			return
		}
		a.ctx.MulVec(a.Fp, t2, t1)
		floats.Add(t2, src)
		if err = a.massSolver.Solve(dst, t2); err != nil {
			return
		}
	case BRM2:
		if err = a.massSolver.Solve(t1, src); err != nil {
			return
		}
		a.ctx.MulVec(a.Fp, t2, t1)
		if err = a.laplacianSolve(dst, t2); err != nil {
			return
		}
		floats.Add(dst, t1)
	default:
		panic(fmt.Errorf("unimplemented pcd variant %v", a.opts.Variant))
	}
	floats.Scale(-1, dst)
	return
}

// laplacianSolve inverts the eliminated A_p. Its identity rows return the
// pinned entries of rhs unchanged, so the approximation stays nonsingular.
func (a *Approximation) laplacianSolve(dst, rhs []float64) (err error) {
	b := rhs
	if a.enclosed {
		b = make([]float64, len(rhs))
		copy(b, rhs)
		removeMean(b)
	}
	if err = a.lapSolver.Solve(dst, b); err != nil {
		return
	}
	if a.enclosed {
		removeMean(dst)
	}
	return
}

func removeMean(x []float64) {
	if len(x) == 0 {
		return
	}
	floats.AddConst(-floats.Sum(x)/float64(len(x)), x)
}

func (a *Approximation) Destroy() {
	a.massSolver.Destroy()
	a.lapSolver.Destroy()
	a.built = false
}
