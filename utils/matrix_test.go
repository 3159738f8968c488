package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMatrix(t *testing.T) {
	// Transpose
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		mNr, mNc := M.Dims()
		A := M.Transpose()
		aNr, aNc := A.Dims()
		assert.Equal(t, aNc, mNr)
		assert.Equal(t, aNr, mNc)
		assert.Equal(t, A.RawMatrix().Data, []float64{1, 4, 2, 5, 3, 6})
	}
	// Mul, Subtract and Inverse
	{
		M := NewMatrix(2, 2, []float64{
			4, 1,
			2, 3,
		})
		Minv, err := M.Inverse()
		require.NoError(t, err)
		I := M.Mul(Minv)
		assert.InDeltaSlice(t, []float64{1, 0, 0, 1}, I.Data(), 1.e-14)
		assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, I.Subtract(I.Copy()).Data(), 0)
		_, err = NewMatrix(2, 2).Inverse()
		assert.Error(t, err)
		var ce mat.Condition
		assert.True(t, errors.As(err, &ce))
	}
	// Copies are independent, read only matrices refuse writes
	{
		M := NewMatrix(2, 2, []float64{1, 2, 2, 1})
		C := M.Copy()
		C.Set(0, 0, 5)
		assert.Equal(t, 1., M.At(0, 0))
		assert.True(t, M.IsSymmetric(SYMTOL))
		assert.False(t, C.Set(0, 1, 3).IsSymmetric(SYMTOL))
		M.SetReadOnly("M")
		assert.Panics(t, func() { M.Set(0, 0, 2) })
		assert.Contains(t, M.Print("M"), "M = ")
	}
	assert.Panics(t, func() { NewMatrix(2, 2, []float64{1}) })
	assert.False(t, NewMatrix(2, 3).IsSymmetric(SYMTOL))
}
