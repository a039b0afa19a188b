package eigen

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/linsolve"
)

// LinearOperator is an operator known only through its action, dst = A*x.
// shell.Operator satisfies it.
type LinearOperator interface {
	Dims() (r, c int)
	Apply(ctx context.Context, dst, x []float64) error
}

// MatrixOperator adapts an assembled matrix to a LinearOperator.
type MatrixOperator struct {
	A mat.Matrix
}

func (mo MatrixOperator) Dims() (r, c int) { return mo.A.Dims() }

func (mo MatrixOperator) Apply(_ context.Context, dst, x []float64) error {
	r, c := mo.A.Dims()
	if len(x) != c || len(dst) != r {
		return fmt.Errorf("eigen: operator %dx%d applied with len(x) = %d, len(dst) = %d", r, c, len(x), len(dst))
	}
	mat.NewVecDense(r, dst).MulVec(mo.A, mat.NewVecDense(c, x))
	return nil
}

// invertedOperator applies B⁻¹A, turning a generalized problem into a
// standard one with the same eigenvalues.
type invertedOperator struct {
	a   LinearOperator
	b   linsolve.Solver
	tmp []float64
}

func newInvertedOperator(a LinearOperator, b linsolve.Solver) *invertedOperator {
	n, _ := a.Dims()
	return &invertedOperator{a: a, b: b, tmp: make([]float64, n)}
}

func (io *invertedOperator) Dims() (r, c int) { return io.a.Dims() }

func (io *invertedOperator) Apply(ctx context.Context, dst, x []float64) error {
	if err := io.a.Apply(ctx, io.tmp, x); err != nil {
		return err
	}
	if _, err := io.b.Solve(ctx, dst, io.tmp); err != nil {
		return fmt.Errorf("eigen: B solve: %w", err)
	}
	return nil
}
