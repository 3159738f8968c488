// Package comm holds the execution context shared by every solver object.
// There is no package-level default: each constructor takes a *Context, and
// every worker of a context runs the same sequence of collective operations.
package comm

import (
	"math"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notargets/gopcd/utils"
)

// MinRowsPerWorker keeps tiny operators on a single worker
const MinRowsPerWorker = 256

type Context struct {
	ParallelDegree int // Number of cooperating workers
	ID             string
	logger         *zap.Logger
}

type Option func(c *Context)

func WithParallelDegree(np int) Option {
	return func(c *Context) {
		if np > 0 {
			c.ParallelDegree = np
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewContext(opts ...Option) (c *Context) {
	c = &Context{
		ParallelDegree: runtime.NumCPU(),
		ID:             uuid.NewString(),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("ctx", c.ID[:8]))
	return
}

// Logger returns the context logger, named for the calling component
func (c *Context) Logger(name string) *zap.Logger {
	return c.logger.Named(name)
}

// Partition returns the row ownership map for an operator with n rows
func (c *Context) Partition(n int) *utils.PartitionMap {
	np := c.ParallelDegree
	if lim := n / MinRowsPerWorker; np > lim {
		np = lim
	}
	if np < 1 {
		np = 1
	}
	return utils.NewPartitionMap(np, n)
}

// MulVec is the collective dst = A*src, each worker computing its own rows
func (c *Context) MulVec(A utils.CSR, dst, src []float64) {
	var (
		nr, _ = A.Dims()
		pm    = c.Partition(nr)
	)
	if pm.ParallelDegree == 1 {
		A.MulVec(dst, src)
		return
	}
	var wg sync.WaitGroup
	for np := 0; np < pm.ParallelDegree; np++ {
		r0, r1 := pm.GetBucketRange(np)
		wg.Add(1)
		go func() {
			defer wg.Done()
			A.MulVecRange(dst, src, r0, r1)
		}()
	}
	wg.Wait()
}

// Dot is the collective inner product. Partial sums are combined in
// partition order so every call returns bit-identical results.
func (c *Context) Dot(x, y []float64) (sum float64) {
	if len(x) != len(y) {
		panic("Dot: dimension mismatch")
	}
	type partial struct {
		np  int
		sum float64
	}
	var (
		pm       = c.Partition(len(x))
		partials = make([]float64, pm.ParallelDegree)
		results  = make(chan partial, pm.ParallelDegree)
	)
	for np := 0; np < pm.ParallelDegree; np++ {
		go func(np int) {
			r0, r1 := pm.GetBucketRange(np)
			var local float64
			for i := r0; i < r1; i++ {
				local += x[i] * y[i]
			}
			results <- partial{np, local}
		}(np)
	}
	for n := 0; n < pm.ParallelDegree; n++ {
		p := <-results
		partials[p.np] = p.sum
	}
	for _, p := range partials {
		sum += p
	}
	return
}

// Norm is the collective Euclidean norm
func (c *Context) Norm(x []float64) float64 {
	return math.Sqrt(c.Dot(x, x))
}
