package linsolve

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/utils"
)

// PCType names a preconditioner kind.
type PCType string

const (
	PCNone   PCType = "none"
	PCJacobi PCType = "jacobi"
	PCICC    PCType = "icc"
	PCLU     PCType = "lu"
)

// preconditioner stores into dst the solution of M dst = rhs.
type preconditioner interface {
	Apply(dst, rhs []float64) error
}

func newPreconditioner(kind PCType, A Operator) (preconditioner, error) {
	switch kind {
	case PCNone, "":
		return identityPC{}, nil
	case PCJacobi:
		return newJacobi(A)
	case PCICC:
		csr, ok := A.(utils.CSR)
		if !ok {
			return nil, fmt.Errorf("%w: icc needs a CSR operator, have %T", ErrBadOperator, A)
		}
		return newICC(csr)
	case PCLU:
		return newLU(A)
	}
	return nil, fmt.Errorf("%w: unknown preconditioner %q", ErrBadOption, kind)
}

type identityPC struct{}

func (identityPC) Apply(dst, rhs []float64) error {
	copy(dst, rhs)
	return nil
}

type jacobiPC struct {
	invDiag []float64
}

func newJacobi(A Operator) (*jacobiPC, error) {
	dg, ok := A.(interface{ Diagonal() []float64 })
	if !ok {
		return nil, fmt.Errorf("%w: jacobi needs the operator diagonal, have %T", ErrBadOperator, A)
	}
	d := dg.Diagonal()
	inv := make([]float64, len(d))
	for i, val := range d {
		if val == 0 {
			return nil, fmt.Errorf("%w: zero diagonal entry at row %d", ErrBadOperator, i)
		}
		inv[i] = 1. / val
	}
	return &jacobiPC{invDiag: inv}, nil
}

func (pc *jacobiPC) Apply(dst, rhs []float64) error {
	utils.ElMulTo(dst, pc.invDiag, rhs)
	return nil
}

// iccPC is the zero fill-in incomplete Cholesky factor A ≈ L Lᵀ, computed on
// the lower triangular sparsity pattern of A.
type iccPC struct {
	n      int
	indptr []int     // Row pointers of the strictly lower part of L
	ind    []int     // Column indices, ascending within each row
	data   []float64 // Strictly lower entries of L
	diag   []float64 // Diagonal of L
}

func newICC(A utils.CSR) (*iccPC, error) {
	nr, nc := A.Dims()
	if nr != nc {
		return nil, fmt.Errorf("%w: icc needs a square operator, have %dx%d", ErrBadOperator, nr, nc)
	}
	pc := &iccPC{
		n:      nr,
		indptr: make([]int, nr+1),
		diag:   make([]float64, nr),
	}
	type entry struct {
		j int
		v float64
	}
	var (
		row  []entry
		aii  = make([]float64, nr)
		rows = make([][]entry, nr)
	)
	for i := 0; i < nr; i++ {
		row = row[:0]
		A.DoRow(i, func(j int, v float64) {
			switch {
			case j < i:
				row = append(row, entry{j, v})
			case j == i:
				aii[i] += v
			}
		})
		sort.Slice(row, func(a, b int) bool { return row[a].j < row[b].j })
		rows[i] = append([]entry(nil), row...)
		pc.indptr[i+1] = pc.indptr[i] + len(row)
	}
	pc.ind = make([]int, pc.indptr[nr])
	pc.data = make([]float64, pc.indptr[nr])
	for i, r := range rows {
		for k, e := range r {
			pc.ind[pc.indptr[i]+k] = e.j
			pc.data[pc.indptr[i]+k] = e.v
		}
	}

	// Row oriented IC(0): markers map a column to its slot in the current row.
	marker := make([]int, nr)
	for i := range marker {
		marker[i] = -1
	}
	for i := 0; i < nr; i++ {
		for k := pc.indptr[i]; k < pc.indptr[i+1]; k++ {
			marker[pc.ind[k]] = k
		}
		for k := pc.indptr[i]; k < pc.indptr[i+1]; k++ {
			j := pc.ind[k]
			sum := pc.data[k]
			for kj := pc.indptr[j]; kj < pc.indptr[j+1]; kj++ {
				if slot := marker[pc.ind[kj]]; slot >= 0 && slot < k {
					sum -= pc.data[slot] * pc.data[kj]
				}
			}
			pc.data[k] = sum / pc.diag[j]
		}
		d := aii[i]
		for k := pc.indptr[i]; k < pc.indptr[i+1]; k++ {
			d -= pc.data[k] * pc.data[k]
			marker[pc.ind[k]] = -1
		}
		if d <= 0 || math.IsNaN(d) {
			return nil, fmt.Errorf("%w: icc pivot not positive at row %d", ErrBadOperator, i)
		}
		pc.diag[i] = math.Sqrt(d)
	}
	return pc, nil
}

func (pc *iccPC) Apply(dst, rhs []float64) error {
	// Forward solve L y = rhs into dst
	for i := 0; i < pc.n; i++ {
		sum := rhs[i]
		for k := pc.indptr[i]; k < pc.indptr[i+1]; k++ {
			sum -= pc.data[k] * dst[pc.ind[k]]
		}
		dst[i] = sum / pc.diag[i]
	}
	// Backward solve Lᵀ x = y in place, column oriented over the rows of L
	for i := pc.n - 1; i >= 0; i-- {
		dst[i] /= pc.diag[i]
		for k := pc.indptr[i]; k < pc.indptr[i+1]; k++ {
			dst[pc.ind[k]] -= pc.data[k] * dst[i]
		}
	}
	return nil
}

type luPC struct {
	lu mat.LU
}

func newLU(A Operator) (*luPC, error) {
	var a mat.Matrix
	switch m := A.(type) {
	case interface{ ToDense() *mat.Dense }:
		a = m.ToDense()
	case mat.Matrix:
		a = m
	default:
		return nil, fmt.Errorf("%w: lu needs a matrix operator, have %T", ErrBadOperator, A)
	}
	nr, nc := a.Dims()
	if nr != nc {
		return nil, fmt.Errorf("%w: lu needs a square operator, have %dx%d", ErrBadOperator, nr, nc)
	}
	pc := &luPC{}
	pc.lu.Factorize(a)
	if math.IsInf(pc.lu.Cond(), 1) {
		return nil, fmt.Errorf("%w: lu factor is singular", ErrBadOperator)
	}
	return pc, nil
}

func (pc *luPC) Apply(dst, rhs []float64) error {
	x := mat.NewVecDense(len(dst), dst)
	if err := pc.lu.SolveVecTo(x, false, mat.NewVecDense(len(rhs), rhs)); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return err
		}
	}
	return nil
}
