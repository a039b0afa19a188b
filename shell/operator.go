// Package shell implements the matrix-free operator of the two-block system
//
//	A x = KL11⁻¹ (M11⊙x + M12⊙(KL22⁻¹ L21 x))
//
// evaluated as a sequence of block solves. The matrix A is never formed.
package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/shelleig/linsolve"
	"github.com/notargets/shelleig/utils"
)

var (
	ErrConfiguration     = errors.New("shell: configuration error")
	ErrDimensionMismatch = errors.New("shell: dimension mismatch")
)

// Coupling is the off-diagonal block L21, applied as dst = L21*x.
// utils.CSR satisfies it for a general sparse coupling.
type Coupling interface {
	Dims() (r, c int)
	MulVecTo(dst, x []float64)
}

// DiagonalCoupling is a square coupling stored as its diagonal.
type DiagonalCoupling []float64

func (d DiagonalCoupling) Dims() (r, c int) { return len(d), len(d) }

func (d DiagonalCoupling) MulVecTo(dst, x []float64) { utils.ElMulTo(dst, d, x) }

// Blocks holds the state the operator is built from. The solvers are bound to
// L11 and L22 and configured before they get here.
type Blocks struct {
	KL11, KL22 linsolve.Solver
	L21        Coupling
	L22        linsolve.Operator // Optional, only used to check sizes
	M11, M12   []float64
}

// Stats counts the work done by an Operator since it was built.
type Stats struct {
	Applies        int
	KL11Iterations int
	KL22Iterations int
}

// Operator is the shell operator. Apply is not reentrant: the scratch vectors
// are shared between calls, use one Operator per goroutine.
type Operator struct {
	m, n    int
	blocks  Blocks
	workvec []float64 // Solution of the block two solve
	w1      []float64
	w2      []float64
	w4      []float64
	stats   Stats
}

// NewOperator validates the blocks and returns an m×n operator. Scratch
// storage is allocated here and never again.
func NewOperator(m, n int, KL11, KL22 linsolve.Solver, L21 Coupling, L22 linsolve.Operator,
	M11, M12 []float64) (op *Operator, err error) {
	blk := Blocks{KL11: KL11, KL22: KL22, L21: L21, L22: L22, M11: M11, M12: M12}
	if err = blk.validate(m, n); err != nil {
		return
	}
	n2, _ := KL22.Dims()
	op = &Operator{
		m:       m,
		n:       n,
		blocks:  blk,
		workvec: make([]float64, n2),
		w1:      make([]float64, n),
		w2:      make([]float64, n2),
		w4:      make([]float64, m),
	}
	return
}

func (b Blocks) validate(m, n int) error {
	confErr := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
	}
	switch {
	case b.KL11 == nil || b.KL22 == nil:
		return confErr("both block solvers are required")
	case !b.KL11.Configured():
		return confErr("KL11 has no operator")
	case !b.KL22.Configured():
		return confErr("KL22 has no operator")
	case b.L21 == nil:
		return confErr("coupling L21 is required")
	case m <= 0 || n <= 0:
		return confErr("operator dimensions must be positive, have %dx%d", m, n)
	case m != n:
		return confErr("operator must be square, have %dx%d", m, n)
	}
	if r, c := b.KL11.Dims(); r != m || c != m {
		return confErr("KL11 is %dx%d, operator needs %dx%d", r, c, m, m)
	}
	n2, c2 := b.KL22.Dims()
	if n2 != c2 {
		return confErr("KL22 is not square, have %dx%d", n2, c2)
	}
	// M12⊙workvec is added to M11⊙x, so both groups share one size
	if n2 != m {
		return confErr("KL22 is %dx%d, block one is %dx%d", n2, n2, m, m)
	}
	if r, c := b.L21.Dims(); r != n2 || c != n {
		return confErr("L21 is %dx%d, want %dx%d", r, c, n2, n)
	}
	if b.L22 != nil {
		if r, c := b.L22.Dims(); r != n2 || c != n2 {
			return confErr("L22 is %dx%d, KL22 is %dx%d", r, c, n2, n2)
		}
	}
	if len(b.M11) != n {
		return confErr("len(M11) = %d, want %d", len(b.M11), n)
	}
	if len(b.M12) != n2 {
		return confErr("len(M12) = %d, want %d", len(b.M12), n2)
	}
	return nil
}

func (op *Operator) Dims() (r, c int) { return op.m, op.n }

func (op *Operator) Blocks() Blocks { return op.blocks }

func (op *Operator) Stats() Stats { return op.stats }

// Apply stores A*x into y. x must not alias y. A failed inner solve returns an
// error matching linsolve.ErrSolveDivergence, y is garbage in that case.
func (op *Operator) Apply(ctx context.Context, y, x []float64) (err error) {
	if len(x) != op.n || len(y) != op.m {
		return fmt.Errorf("%w: operator %dx%d, len(x) = %d, len(y) = %d",
			ErrDimensionMismatch, op.m, op.n, len(x), len(y))
	}
	var (
		b     = &op.blocks
		stats linsolve.Stats
	)
	utils.ElMulTo(op.w1, b.M11, x) // w1 = M11⊙x
	b.L21.MulVecTo(op.w2, x)       // w2 = L21 x

	stats, err = b.KL22.Solve(ctx, op.workvec, op.w2)
	op.stats.KL22Iterations += stats.Iterations
	if err != nil {
		return fmt.Errorf("shell: block two solve: %w", err)
	}

	copy(op.w4, op.w1)
	utils.AddElMul(op.w4, b.M12, op.workvec) // w4 = w1 + M12⊙workvec

	stats, err = b.KL11.Solve(ctx, y, op.w4)
	op.stats.KL11Iterations += stats.Iterations
	if err != nil {
		return fmt.Errorf("shell: block one solve: %w", err)
	}
	op.stats.Applies++
	return
}
