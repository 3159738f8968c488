package utils

import (
	"fmt"
	"math"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// DOK is the assembly format: entries are accumulated by (i,j) and converted
// to CSR once assembly is complete.
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }

func (m DOK) Set(i, j int, val float64) DOK { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, val)
	return m
}

// Add accumulates val into entry (i,j), the usual stencil assembly operation
func (m DOK) Add(i, j int, val float64) DOK { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, m.M.At(i, j)+val)
	return m
}

func (m *DOK) SetReadOnly(name ...string) DOK {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

func (m DOK) ToCSR() CSR {
	var (
		nr, nc = m.Dims()
	)
	R := normalizeCSR(nr, nc, m.M.ToCSR())
	R.name = m.name
	return R
}

// CSR is the operator handle passed between the provider, the builders and
// the solvers. Column indices are kept sorted within each row.
type CSR struct {
	M        *sparse.CSR
	readOnly bool
	name     string
}

func NewCSR(nr, nc int, indptr, ind []int, data []float64) (R CSR) {
	if len(indptr) != nr+1 {
		panic(fmt.Errorf("mismatch in allocation: NewCSR nr = %v, len(indptr) = %v", nr, len(indptr)))
	}
	if len(ind) != len(data) {
		panic(fmt.Errorf("mismatch in allocation: len(ind) = %v, len(data) = %v", len(ind), len(data)))
	}
	R = CSR{
		sparse.NewCSR(nr, nc, indptr, ind, data),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// NewCSRFromDense keeps every nonzero of A; convenient for small hand-built operators
func NewCSRFromDense(A mat.Matrix) (R CSR) {
	var (
		nr, nc = A.Dims()
		indptr = make([]int, nr+1)
		ind    []int
		data   []float64
	)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			if v := A.At(i, j); v != 0 {
				ind = append(ind, j)
				data = append(data, v)
			}
		}
		indptr[i+1] = len(ind)
	}
	return NewCSR(nr, nc, indptr, ind, data)
}

func NewIdentityCSR(n int) (R CSR) {
	var (
		indptr = make([]int, n+1)
		ind    = make([]int, n)
		data   = make([]float64, n)
	)
	for i := 0; i < n; i++ {
		indptr[i+1] = i + 1
		ind[i] = i
		data[i] = 1
	}
	return NewCSR(n, n, indptr, ind, data)
}

// normalizeCSR sorts the column indices of every row, which the conversion
// routines of the sparse package do not guarantee
func normalizeCSR(nr, nc int, S *sparse.CSR) (R CSR) {
	var (
		raw    = S.RawMatrix()
		indptr = make([]int, nr+1)
		ind    []int
		data   []float64
	)
	if len(raw.Indptr) != nr+1 {
		return NewCSR(nr, nc, indptr, nil, nil)
	}
	ind = make([]int, len(raw.Ind))
	data = make([]float64, len(raw.Data))
	copy(indptr, raw.Indptr)
	copy(ind, raw.Ind)
	copy(data, raw.Data)
	for i := 0; i < nr; i++ {
		sort.Sort(rowSorter{ind[indptr[i]:indptr[i+1]], data[indptr[i]:indptr[i+1]]})
	}
	return NewCSR(nr, nc, indptr, ind, data)
}

type rowSorter struct {
	ind  []int
	data []float64
}

func (r rowSorter) Len() int           { return len(r.ind) }
func (r rowSorter) Less(i, j int) bool { return r.ind[i] < r.ind[j] }
func (r rowSorter) Swap(i, j int) {
	r.ind[i], r.ind[j] = r.ind[j], r.ind[i]
	r.data[i], r.data[j] = r.data[j], r.data[i]
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)              { return m.M.Dims() }
func (m CSR) T() mat.Matrix                 { return m.Transpose() }
func (m CSR) RawMatrix() *blas.SparseMatrix { return m.M.RawMatrix() }
func (m CSR) Data() []float64 {
	return m.RawMatrix().Data
}
func (m CSR) NNZ() int { return len(m.RawMatrix().Ind) }

func (m CSR) At(i, j int) float64 {
	var (
		raw    = m.RawMatrix()
		nr, nc = m.Dims()
	)
	if i < 0 || i >= nr || j < 0 || j >= nc {
		panic(fmt.Errorf("index out of bounds: (%d,%d) in %dx%d matrix \"%v\"", i, j, nr, nc, m.name))
	}
	row := raw.Ind[raw.Indptr[i]:raw.Indptr[i+1]]
	k := sort.SearchInts(row, j)
	if k < len(row) && row[k] == j {
		return raw.Data[raw.Indptr[i]+k]
	}
	return 0
}

func (m CSR) Name() string     { return m.name }
func (m CSR) IsReadOnly() bool { return m.readOnly }

// Chainable methods (extended)
func (m *CSR) SetReadOnly(name ...string) CSR {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

func (m CSR) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// DoRowNonZero calls fn for every stored entry of row i in column order
func (m CSR) DoRowNonZero(i int, fn func(i, j int, v float64)) {
	raw := m.RawMatrix()
	for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
		fn(i, raw.Ind[p], raw.Data[p])
	}
}

func (m CSR) DoNonZero(fn func(i, j int, v float64)) {
	nr, _ := m.Dims()
	for i := 0; i < nr; i++ {
		m.DoRowNonZero(i, fn)
	}
}

// MulVec computes dst = A*src, overwriting dst
func (m CSR) MulVec(dst, src []float64) {
	nr, _ := m.Dims()
	m.MulVecRange(dst, src, 0, nr)
}

// MulVecRange computes rows [r0,r1) of dst = A*src. Workers own disjoint row
// ranges, so concurrent calls with disjoint ranges are safe.
func (m CSR) MulVecRange(dst, src []float64, r0, r1 int) {
	var (
		raw    = m.RawMatrix()
		nr, nc = m.Dims()
	)
	if len(dst) != nr || len(src) != nc {
		panic(fmt.Errorf("dimension mismatch: %dx%d matrix \"%v\", len(dst) = %d, len(src) = %d",
			nr, nc, m.name, len(dst), len(src)))
	}
	for i := r0; i < r1; i++ {
		var sum float64
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			sum += raw.Data[p] * src[raw.Ind[p]]
		}
		dst[i] = sum
	}
}

func (m CSR) Copy() (R CSR) { // Does not change receiver
	var (
		raw    = m.RawMatrix()
		nr, nc = m.Dims()
		indptr = make([]int, nr+1)
		ind    = make([]int, len(raw.Ind))
		data   = make([]float64, len(raw.Data))
	)
	copy(indptr, raw.Indptr)
	copy(ind, raw.Ind)
	copy(data, raw.Data)
	R = NewCSR(nr, nc, indptr, ind, data)
	R.name = m.name
	return
}

func (m CSR) Transpose() (R CSR) { // Does not change receiver
	var (
		raw    = m.RawMatrix()
		nr, nc = m.Dims()
		indptr = make([]int, nc+1)
		ind    = make([]int, len(raw.Ind))
		data   = make([]float64, len(raw.Data))
		next   = make([]int, nc)
	)
	for _, j := range raw.Ind {
		indptr[j+1]++
	}
	for j := 0; j < nc; j++ {
		indptr[j+1] += indptr[j]
	}
	copy(next, indptr[:nc])
	// Rows are visited in order, so the transposed rows come out sorted
	for i := 0; i < nr; i++ {
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			j := raw.Ind[p]
			ind[next[j]] = i
			data[next[j]] = raw.Data[p]
			next[j]++
		}
	}
	return NewCSR(nc, nr, indptr, ind, data)
}

func (m CSR) Diagonal() (diag []float64) {
	nr, _ := m.Dims()
	diag = make([]float64, nr)
	for i := range diag {
		diag[i] = m.At(i, i)
	}
	return
}

func (m CSR) Scale(a float64) CSR { // Changes receiver
	m.checkWritable()
	data := m.Data()
	for i := range data {
		data[i] *= a
	}
	return m
}

// AddScaled returns m + a*B as a new matrix
func (m CSR) AddScaled(a float64, B CSR) (R CSR) { // Does not change receiver
	var (
		nr, nc   = m.Dims()
		nrB, ncB = B.Dims()
	)
	if nr != nrB || nc != ncB {
		panic(fmt.Errorf("dimension mismatch: %dx%d + %dx%d", nr, nc, nrB, ncB))
	}
	D := NewDOK(nr, nc)
	m.DoNonZero(func(i, j int, v float64) { D.Add(i, j, v) })
	B.DoNonZero(func(i, j int, v float64) { D.Add(i, j, a*v) })
	R = D.ToCSR()
	R.name = m.name
	return
}

// Mul returns the sparse product m*B
func (m CSR) Mul(B CSR) (R CSR) { // Does not change receiver
	var (
		nr, _  = m.Dims()
		_, ncB = B.Dims()
	)
	S := sparse.NewCSR(nr, ncB, nil, nil, nil)
	S.Mul(m.M, B.M)
	return normalizeCSR(nr, ncB, S)
}

func (m CSR) ToDense() (D *mat.Dense) {
	nr, nc := m.Dims()
	D = mat.NewDense(nr, nc, nil)
	m.DoNonZero(func(i, j int, v float64) { D.Set(i, j, v) })
	return
}

func (m CSR) ToMatrix() (R Matrix) {
	nr, nc := m.Dims()
	R = NewMatrix(nr, nc)
	m.DoNonZero(func(i, j int, v float64) { R.M.Set(i, j, v) })
	return
}

// IsSymmetric compares every stored entry against its transpose partner
func (m CSR) IsSymmetric(tol float64) bool {
	nr, nc := m.Dims()
	if nr != nc {
		return false
	}
	symmetric := true
	m.DoNonZero(func(i, j int, v float64) {
		if math.Abs(v-m.At(j, i)) > tol*math.Max(1, math.Abs(v)) {
			symmetric = false
		}
	})
	return symmetric
}

// ZeroRowsCols removes all couplings of the listed dofs, leaving diagVal on
// their diagonal. Applied to a symmetric matrix the result stays symmetric.
func (m CSR) ZeroRowsCols(dofs []int, diagVal float64) (R CSR) { // Does not change receiver
	var (
		nr, nc = m.Dims()
		pinned = make(map[int]bool, len(dofs))
		indptr = make([]int, nr+1)
		ind    []int
		data   []float64
	)
	if nr != nc {
		panic(fmt.Errorf("ZeroRowsCols requires a square matrix, have %dx%d", nr, nc))
	}
	for _, d := range dofs {
		if d < 0 || d >= nr {
			panic(fmt.Errorf("dof %d out of range [0,%d)", d, nr))
		}
		pinned[d] = true
	}
	for i := 0; i < nr; i++ {
		if pinned[i] {
			ind = append(ind, i)
			data = append(data, diagVal)
		} else {
			m.DoRowNonZero(i, func(i, j int, v float64) {
				if !pinned[j] {
					ind = append(ind, j)
					data = append(data, v)
				}
			})
		}
		indptr[i+1] = len(ind)
	}
	R = NewCSR(nr, nc, indptr, ind, data)
	R.name = m.name
	return
}

// ZeroRows replaces the rows of the listed dofs with diagVal on the
// diagonal. Columns are kept, so the couplings into other rows survive.
func (m CSR) ZeroRows(dofs []int, diagVal float64) (R CSR) { // Does not change receiver
	var (
		nr, nc = m.Dims()
		pinned = make(map[int]bool, len(dofs))
		indptr = make([]int, nr+1)
		ind    []int
		data   []float64
	)
	if nr != nc {
		panic(fmt.Errorf("ZeroRows requires a square matrix, have %dx%d", nr, nc))
	}
	for _, d := range dofs {
		if d < 0 || d >= nr {
			panic(fmt.Errorf("dof %d out of range [0,%d)", d, nr))
		}
		pinned[d] = true
	}
	for i := 0; i < nr; i++ {
		if pinned[i] {
			ind = append(ind, i)
			data = append(data, diagVal)
		} else {
			m.DoRowNonZero(i, func(i, j int, v float64) {
				ind = append(ind, j)
				data = append(data, v)
			})
		}
		indptr[i+1] = len(ind)
	}
	R = NewCSR(nr, nc, indptr, ind, data)
	R.name = m.name
	return
}

// NormInf is the maximum absolute row sum
func (m CSR) NormInf() (norm float64) {
	nr, _ := m.Dims()
	for i := 0; i < nr; i++ {
		var sum float64
		m.DoRowNonZero(i, func(_, _ int, v float64) { sum += math.Abs(v) })
		norm = math.Max(norm, sum)
	}
	return
}
