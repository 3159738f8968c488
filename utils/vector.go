package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BlockVector holds the velocity and pressure parts of a saddle-point vector
type BlockVector struct {
	U, P []float64
}

func NewBlockVector(nu, np int) (bv BlockVector) {
	bv = BlockVector{
		U: make([]float64, nu),
		P: make([]float64, np),
	}
	return
}

func (bv BlockVector) Dims() (nu, np int) { return len(bv.U), len(bv.P) }
func (bv BlockVector) Len() int           { return len(bv.U) + len(bv.P) }

func (bv BlockVector) Copy() (R BlockVector) {
	R = NewBlockVector(bv.Dims())
	copy(R.U, bv.U)
	copy(R.P, bv.P)
	return
}

// Flatten returns [U;P] as one slice
func (bv BlockVector) Flatten() (x []float64) {
	x = make([]float64, bv.Len())
	copy(x, bv.U)
	copy(x[len(bv.U):], bv.P)
	return
}

// View splits x into velocity and pressure slices without copying
func View(x []float64, nu int) (bv BlockVector) {
	if nu > len(x) {
		panic(fmt.Errorf("block split %d exceeds vector length %d", nu, len(x)))
	}
	return BlockVector{U: x[:nu:nu], P: x[nu:]}
}

func (bv BlockVector) Norm() float64 {
	return math.Hypot(floats.Norm(bv.U, 2), floats.Norm(bv.P, 2))
}

func (bv BlockVector) checkConformal(a BlockVector) {
	nu, np := bv.Dims()
	nua, npa := a.Dims()
	if nu != nua || np != npa {
		panic(fmt.Errorf("block vector mismatch: [%d,%d] vs [%d,%d]", nu, np, nua, npa))
	}
}

// CopyFrom overwrites the receiver with a
func (bv BlockVector) CopyFrom(a BlockVector) BlockVector { // Changes receiver
	bv.checkConformal(a)
	copy(bv.U, a.U)
	copy(bv.P, a.P)
	return bv
}

// AddScaled computes bv += alpha*a
func (bv BlockVector) AddScaled(alpha float64, a BlockVector) BlockVector { // Changes receiver
	bv.checkConformal(a)
	floats.AddScaled(bv.U, alpha, a.U)
	floats.AddScaled(bv.P, alpha, a.P)
	return bv
}

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}
