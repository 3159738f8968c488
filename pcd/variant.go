// Package pcd builds the pressure convection-diffusion family of Schur
// complement approximations. With S = -B A^-1 B^T, applying an
// Approximation computes y = -S~^-1 x for one of
//
//	PCD:  S~^-1 = A_p^-1 F_p M_p^-1                (Elman, Silvester, Wathen)
//	BRM1: S~^-1 = M_p^-1 (I + F_p A_p^-1)          (Olshanskii, Vassilevski)
//	BRM2: S~^-1 = M_p^-1 + A_p^-1 F_p M_p^-1       (Olshanskii, Vassilevski)
//
// A_p and F_p carry artificial Dirichlet conditions on the outflow (PCD,
// BRM2) or inflow (BRM1) pressure dofs, as identity rows. PCD and BRM2 add
// the Robin term -(w.n) of the inflow boundary to F_p.
package pcd

import (
	"fmt"
	"strings"

	"github.com/notargets/gopcd/utils"
)

type Variant uint8

const (
	PCD Variant = iota
	BRM1
	BRM2
)

var (
	VariantNames = map[string]Variant{
		"pcd":  PCD,
		"esw":  PCD,
		"brm":  BRM1,
		"brm1": BRM1,
		"brm2": BRM2,
	}
	VariantPrintNames = []string{"PCD", "BRM1", "BRM2"}
)

func (v Variant) String() string {
	if int(v) < len(VariantPrintNames) {
		return VariantPrintNames[v]
	}
	return fmt.Sprintf("Variant(%d)", v)
}

func NewVariant(label string) (v Variant, err error) {
	var (
		ok bool
	)
	if v, ok = VariantNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown pcd variant %s, choose from %v", label, VariantPrintNames)
	}
	return
}

// PinnedBoundary is the boundary whose adjacent pressure dofs receive the
// artificial Dirichlet condition in the Laplacian
func (v Variant) PinnedBoundary() utils.BCType {
	switch v {
	case PCD, BRM2:
		return utils.BCOutflow
	case BRM1:
		return utils.BCInflow
	default:
		panic(fmt.Errorf("unimplemented pcd variant %v", v))
	}
}

// InflowCorrection reports whether F_p receives the inflow boundary term
func (v Variant) InflowCorrection() bool {
	switch v {
	case PCD, BRM2:
		return true
	case BRM1:
		return false
	default:
		panic(fmt.Errorf("unimplemented pcd variant %v", v))
	}
}

// EliminateRows places identity rows on dofs and keeps every column, which
// is the artificial condition on the non-symmetric F_p
func EliminateRows(A utils.CSR, dofs []int) (R utils.CSR) {
	R = A.ZeroRows(dofs, 1)
	R.SetReadOnly(A.Name())
	return
}

// EliminateSymmetric zeroes the rows and columns of dofs and places a unit
// diagonal, so a symmetric A stays symmetric
func EliminateSymmetric(A utils.CSR, dofs []int) (R utils.CSR) {
	R = A.ZeroRowsCols(dofs, 1)
	R.SetReadOnly(A.Name())
	return
}
