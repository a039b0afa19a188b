package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row matrix used for the diagonal and coupling
// blocks of the two-block system.
type CSR struct {
	M    *sparse.CSR
	name string
}

// NewCSR builds a CSR from raw row pointer, column index and value arrays.
// The arrays are used directly, not copied.
func NewCSR(nr, nc int, indptr, ind []int, data []float64) (R CSR, err error) {
	if nr <= 0 || nc <= 0 {
		err = fmt.Errorf("invalid CSR dimensions: nr, nc = %v, %v", nr, nc)
		return
	}
	if len(indptr) != nr+1 {
		err = fmt.Errorf("row pointer length mismatch: len(indptr) = %v, want %v", len(indptr), nr+1)
		return
	}
	if len(ind) != len(data) || indptr[nr] != len(data) {
		err = fmt.Errorf("nonzero count mismatch: indptr[nr] = %v, len(ind) = %v, len(data) = %v",
			indptr[nr], len(ind), len(data))
		return
	}
	for i := 0; i < nr; i++ {
		if indptr[i+1] < indptr[i] {
			err = fmt.Errorf("row pointer decreases at row %v", i)
			return
		}
		for k := indptr[i]; k < indptr[i+1]; k++ {
			if ind[k] < 0 || ind[k] >= nc {
				err = fmt.Errorf("column index out of bounds in row %v: index = %d, max_bounds = %d", i, ind[k], nc-1)
				return
			}
		}
	}
	R = CSR{
		M:    sparse.NewCSR(nr, nc, indptr, ind, data),
		name: "unnamed - hint: pass a variable name to SetName()",
	}
	return
}

// NewCSRFromDOK converts an assembled DOK to CSR storage.
func NewCSRFromDOK(d *sparse.DOK) CSR {
	return CSR{
		M:    d.ToCSR(),
		name: "unnamed - hint: pass a variable name to SetName()",
	}
}

// NewIdentityCSR returns the n×n identity.
func NewIdentityCSR(n int) CSR {
	d := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return NewCSRFromDOK(d)
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)              { return m.M.Dims() }
func (m CSR) At(i, j int) float64           { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix                 { return m.M.T() }
func (m CSR) RawMatrix() *blas.SparseMatrix { return m.M.RawMatrix() }
func (m CSR) Data() []float64               { return m.RawMatrix().Data }
func (m CSR) NNZ() int                      { return len(m.RawMatrix().Data) }
func (m CSR) Name() string                  { return m.name }

func (m *CSR) SetName(name string) CSR {
	m.name = name
	return *m
}

// MulVecTo stores m*x into dst. Lengths must match the matrix dimensions.
func (m CSR) MulVecTo(dst, x []float64) {
	var (
		nr, nc = m.Dims()
		raw    = m.RawMatrix()
	)
	if len(x) != nc || len(dst) != nr {
		err := fmt.Errorf("dimension mismatch in MulVecTo for %q: matrix %vx%v, len(x) = %v, len(dst) = %v",
			m.name, nr, nc, len(x), len(dst))
		panic(err)
	}
	for i := 0; i < nr; i++ {
		var sum float64
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			sum += raw.Data[k] * x[raw.Ind[k]]
		}
		dst[i] = sum
	}
}

// DoRow calls fn for every stored entry of row i in column order of storage.
func (m CSR) DoRow(i int, fn func(j int, v float64)) {
	raw := m.RawMatrix()
	for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
		fn(raw.Ind[k], raw.Data[k])
	}
}

// Diagonal returns a copy of the main diagonal, zeros where not stored.
func (m CSR) Diagonal() (d []float64) {
	nr, nc := m.Dims()
	n := nr
	if nc < n {
		n = nc
	}
	d = make([]float64, n)
	for i := 0; i < n; i++ {
		m.DoRow(i, func(j int, v float64) {
			if j == i {
				d[i] += v
			}
		})
	}
	return
}

// ToDense materializes the matrix. Only meant for small reference problems.
func (m CSR) ToDense() (R *mat.Dense) {
	nr, nc := m.Dims()
	R = mat.NewDense(nr, nc, nil)
	for i := 0; i < nr; i++ {
		m.DoRow(i, func(j int, v float64) {
			R.Set(i, j, R.At(i, j)+v)
		})
	}
	return
}
