// Package fieldsplit composes the velocity solver and the Schur complement
// approximation into one block preconditioner for the saddle-point system.
package fieldsplit

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/comm"
	"github.com/notargets/gopcd/leafsolver"
	"github.com/notargets/gopcd/operators"
	"github.com/notargets/gopcd/pcd"
	"github.com/notargets/gopcd/utils"
)

type State uint8

const (
	Uninitialized State = iota
	Assembled
	Stale
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Assembled:
		return "Assembled"
	case Stale:
		return "Stale"
	}
	return fmt.Sprintf("State(%d)", s)
}

var ErrStalePreconditioner = errors.New("fieldsplit: preconditioner is not assembled")

// StalePreconditionerError is returned by Apply in any state but Assembled.
// Reassemble before applying again.
type StalePreconditionerError struct {
	State State
}

func (e *StalePreconditionerError) Error() string {
	return fmt.Sprintf("fieldsplit: apply on a preconditioner in state %s, reassemble first", e.State)
}

func (e *StalePreconditionerError) Is(target error) bool { return target == ErrStalePreconditioner }

// subscriber is implemented by providers that announce reassembly
type subscriber interface {
	Subscribe(fn func(name operators.BlockName)) (unsubscribe func())
}

type Preconditioner struct {
	ctx      *comm.Context
	logger   *zap.Logger
	cfg      Config
	provider operators.Provider
	mu       sync.Mutex
	state    State
	nu, np   int
	A, B, Bt utils.CSR
	C        utils.CSR // Only with Config.Stabilized
	velocity leafsolver.Solver
	schur    *pcd.Approximation
	wu, wp   []float64
	// unsubscribe detaches from the provider, nil while detached
	unsubscribe func()
	// Assemblies counts transitions into Assembled
	Assemblies int
}

// New validates cfg and binds the preconditioner to p. From the first
// Assemble until Destroy, reassembly announced by p marks it stale.
func New(ctx *comm.Context, p operators.Provider, cfg Config) (pc *Preconditioner, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	pc = &Preconditioner{
		ctx:      ctx,
		logger:   ctx.Logger("fieldsplit"),
		cfg:      cfg,
		provider: p,
		velocity: leafsolver.New(ctx, cfg.VelocitySolver, cfg.leafOptions()),
		schur:    pcd.NewApproximation(ctx, cfg.pcdOptions()),
	}
	return
}

func (pc *Preconditioner) subscribe() {
	if pc.unsubscribe != nil {
		return
	}
	if s, ok := pc.provider.(subscriber); ok {
		pc.unsubscribe = s.Subscribe(func(name operators.BlockName) { pc.MarkStale() })
	}
}

func (pc *Preconditioner) Config() Config { return pc.cfg }

func (pc *Preconditioner) State() State {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

func (pc *Preconditioner) Dims() (nu, np int) { return pc.nu, pc.np }

// MarkStale invalidates an assembled preconditioner
func (pc *Preconditioner) MarkStale() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.state == Assembled {
		pc.state = Stale
		pc.logger.Debug("marked stale")
	}
}

// Assemble fetches the current blocks and sets up every leaf. On failure
// the preconditioner is left Uninitialized.
func (pc *Preconditioner) Assemble() (err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.state = Uninitialized
	pc.subscribe()
	if err = operators.CheckConformal(pc.provider, pc.cfg.Stabilized); err != nil {
		return
	}
	if pc.nu, pc.np, err = operators.SystemDims(pc.provider); err != nil {
		return
	}
	for _, b := range []struct {
		name operators.BlockName
		dst  *utils.CSR
	}{
		{operators.Velocity, &pc.A},
		{operators.Divergence, &pc.B},
		{operators.Gradient, &pc.Bt},
	} {
		if *b.dst, err = pc.provider.Block(b.name); err != nil {
			return
		}
	}
	if pc.cfg.Stabilized {
		if pc.C, err = pc.provider.Block(operators.Stabilization); err != nil {
			return
		}
	}
	if err = pc.velocity.Setup(pc.A); err != nil {
		return fmt.Errorf("fieldsplit: velocity setup: %w", err)
	}
	if err = pc.schur.Build(pc.provider); err != nil {
		return fmt.Errorf("fieldsplit: schur complement approximation: %w", err)
	}
	pc.wu, pc.wp = make([]float64, pc.nu), make([]float64, pc.np)
	pc.state = Assembled
	pc.Assemblies++
	pc.logger.Debug("assembled",
		zap.Int("nu", pc.nu), zap.Int("np", pc.np),
		zap.Stringer("factorization", pc.cfg.Factorization),
		zap.Int("assemblies", pc.Assemblies))
	return
}

// Reassemble returns a stale preconditioner to Assembled
func (pc *Preconditioner) Reassemble() error { return pc.Assemble() }

// Apply computes one sweep of the block factorization, dst ~= K^-1 src
func (pc *Preconditioner) Apply(dst, src utils.BlockVector) (err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.state != Assembled {
		return &StalePreconditionerError{State: pc.state}
	}
	if nu, np := src.Dims(); nu != pc.nu || np != pc.np {
		return fmt.Errorf("fieldsplit: block vector [%d,%d] does not match system [%d,%d]", nu, np, pc.nu, pc.np)
	}
	if nu, np := dst.Dims(); nu != pc.nu || np != pc.np {
		return fmt.Errorf("fieldsplit: block vector [%d,%d] does not match system [%d,%d]", nu, np, pc.nu, pc.np)
	}
	switch pc.cfg.Factorization {
	case Upper:
		if err = pc.schur.Apply(dst.P, src.P); err != nil {
			return
		}
		pc.ctx.MulVec(pc.Bt, pc.wu, dst.P)
		floats.SubTo(pc.wu, src.U, pc.wu)
		err = pc.velocity.Solve(dst.U, pc.wu)
	case Lower:
		if err = pc.velocity.Solve(dst.U, src.U); err != nil {
			return
		}
		pc.ctx.MulVec(pc.B, pc.wp, dst.U)
		floats.SubTo(pc.wp, src.P, pc.wp)
		err = pc.schur.Apply(dst.P, pc.wp)
	case Diagonal:
		if err = pc.velocity.Solve(dst.U, src.U); err != nil {
			return
		}
		err = pc.schur.Apply(dst.P, src.P)
	default:
		panic(fmt.Errorf("unimplemented factorization %v", pc.cfg.Factorization))
	}
	return
}

// PSolve adapts Apply to flat [u;p] vectors for the Krylov drivers
func (pc *Preconditioner) PSolve(dst, rhs []float64) error {
	return pc.Apply(utils.View(dst, pc.nu), utils.View(rhs, pc.nu))
}

// Operator returns the matvec of the block system [A B^T; B -C] on flat
// [u;p] vectors, bound to the blocks of the last Assemble
func (pc *Preconditioner) Operator() func(dst, x []float64) {
	var (
		A, B, Bt, C = pc.A, pc.B, pc.Bt, pc.C
		stabilized  = pc.cfg.Stabilized
		nu, np      = pc.nu, pc.np
		tu          = make([]float64, nu)
		tp          = make([]float64, np)
	)
	return func(dst, x []float64) {
		xv, dv := utils.View(x, nu), utils.View(dst, nu)
		pc.ctx.MulVec(A, dv.U, xv.U)
		pc.ctx.MulVec(Bt, tu, xv.P)
		floats.Add(dv.U, tu)
		pc.ctx.MulVec(B, dv.P, xv.U)
		if stabilized {
			pc.ctx.MulVec(C, tp, xv.P)
			floats.Sub(dv.P, tp)
		}
	}
}

// Destroy releases both leaf solvers and detaches from the provider. The
// preconditioner must be reassembled before further use.
func (pc *Preconditioner) Destroy() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.unsubscribe != nil {
		pc.unsubscribe()
		pc.unsubscribe = nil
	}
	pc.velocity.Destroy()
	pc.schur.Destroy()
	pc.state = Uninitialized
	pc.wu, pc.wp = nil, nil
}
