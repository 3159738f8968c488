//go:build cgo && netlib
// +build cgo,netlib

package utils

/*
#cgo CFLAGS: -march=native -mavx -mavx2
#cgo LDFLAGS: -lopenblas -llapacke -lgfortran -lm -lpthread
#include <cblas.h>
#include <lapacke.h>
*/
import "C"

import (
	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// Dense direct leaf solves and AMG coarse solves go through blas64, so
// linking OpenBLAS accelerates them without code changes.
func init() {
	blas64.Use(netblas.Implementation{})
}
