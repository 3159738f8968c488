package comm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopcd/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tridiag(n int) utils.CSR {
	D := utils.NewDOK(n, n)
	for i := 0; i < n; i++ {
		D.Set(i, i, 2)
		if i > 0 {
			D.Set(i, i-1, -1)
		}
		if i < n-1 {
			D.Set(i, i+1, -1.5)
		}
	}
	return D.ToCSR()
}

func TestContext(t *testing.T) {
	{ // Options and defaults
		c := NewContext()
		assert.True(t, c.ParallelDegree >= 1)
		assert.Equal(t, 36, len(c.ID))
		assert.NotNil(t, c.Logger("test"))
		c = NewContext(WithParallelDegree(3), WithParallelDegree(-1))
		assert.Equal(t, 3, c.ParallelDegree)
		c2 := NewContext()
		assert.NotEqual(t, c.ID, c2.ID)
	}
	{ // Small operators stay on one worker
		c := NewContext(WithParallelDegree(8))
		assert.Equal(t, 1, c.Partition(10).ParallelDegree)
		assert.Equal(t, 4, c.Partition(4*MinRowsPerWorker).ParallelDegree)
		assert.Equal(t, 8, c.Partition(100*MinRowsPerWorker).ParallelDegree)
	}
	{ // Collective matvec agrees with the serial one
		n := 5*MinRowsPerWorker + 17
		A := tridiag(n)
		src := make([]float64, n)
		r := rand.New(rand.NewSource(1))
		for i := range src {
			src[i] = r.Float64()
		}
		serial := make([]float64, n)
		A.MulVec(serial, src)
		for _, np := range []int{1, 2, 4, 7} {
			c := NewContext(WithParallelDegree(np))
			dst := make([]float64, n)
			c.MulVec(A, dst, src)
			assert.Equal(t, serial, dst)
		}
	}
	{ // Dot is reproducible and matches gonum
		n := 9*MinRowsPerWorker + 3
		x, y := make([]float64, n), make([]float64, n)
		r := rand.New(rand.NewSource(2))
		for i := range x {
			x[i], y[i] = r.Float64(), r.Float64()
		}
		c := NewContext(WithParallelDegree(6))
		d1 := c.Dot(x, y)
		d2 := c.Dot(x, y)
		assert.Equal(t, d1, d2)
		assert.InDelta(t, floats.Dot(x, y), d1, 1.e-9)
		assert.InDelta(t, floats.Norm(x, 2), c.Norm(x), 1.e-9)
		assert.Panics(t, func() { c.Dot(x, y[1:]) })
	}
}
