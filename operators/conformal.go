package operators

import (
	"errors"
	"fmt"

	"github.com/notargets/gopcd/utils"
)

var ErrNonConformal = errors.New("operators: block dimensions are not conformal")

// SystemDims returns (n_u, n_p) from the velocity and divergence blocks
func SystemDims(p Provider) (nu, np int, err error) {
	var (
		A, B utils.CSR
	)
	if A, err = p.Block(Velocity); err != nil {
		return
	}
	if B, err = p.Block(Divergence); err != nil {
		return
	}
	nu, _ = A.Dims()
	np, _ = B.Dims()
	return
}

// CheckConformal validates the block layout of the saddle-point system. The
// stabilization block is only inspected when stabilized is set, never because
// the provider happens to hold one.
func CheckConformal(p Provider, stabilized bool) (err error) {
	var (
		nu, np int
		names  = []BlockName{Velocity, Divergence, Gradient, PressureMass, PressureConvDiff, PressureLaplacian}
	)
	if nu, np, err = SystemDims(p); err != nil {
		return
	}
	if stabilized {
		names = append(names, Stabilization)
	}
	for _, name := range names {
		var (
			m        utils.CSR
			nr, nc   int
			wr, wc   int
			expected = true
		)
		if m, err = p.Block(name); err != nil {
			return
		}
		switch name {
		case Velocity:
			wr, wc = nu, nu
		case Divergence:
			wr, wc = np, nu
		case Gradient:
			wr, wc = nu, np
		case PressureMass, PressureConvDiff, PressureLaplacian, Stabilization:
			wr, wc = np, np
		default:
			expected = false
		}
		nr, nc = m.Dims()
		if expected && (nr != wr || nc != wc) {
			return fmt.Errorf("%w: block %s is %dx%d, want %dx%d", ErrNonConformal, name, nr, nc, wr, wc)
		}
	}
	return
}
