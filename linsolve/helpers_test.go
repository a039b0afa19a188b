package linsolve

import (
	"math/rand"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/utils"
)

type testCase struct {
	name string
	n    int
	a    utils.CSR
	tol  float64
}

// randomSPD returns a random symmetric diagonally dominant n×n matrix.
func randomSPD(n int, rnd *rand.Rand) testCase {
	d := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rnd.Float64() < 0.3 {
				v := rnd.Float64()
				d.Set(i, j, v)
				d.Set(j, i, v)
			}
		}
		d.Set(i, i, float64(n))
	}
	return testCase{name: "randomSPD", n: n, a: utils.NewCSRFromDOK(d), tol: 1.e-8}
}

// randomNonsym returns a random non-symmetric diagonally dominant n×n matrix.
func randomNonsym(n int, rnd *rand.Rand) testCase {
	d := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && rnd.Float64() < 0.3 {
				d.Set(i, j, rnd.Float64()-0.5)
			}
		}
		d.Set(i, i, float64(n))
	}
	return testCase{name: "randomNonsym", n: n, a: utils.NewCSRFromDOK(d), tol: 1.e-8}
}

// laplace1D returns the n×n second difference matrix, SPD and tridiagonal.
func laplace1D(n int) testCase {
	d := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		d.Set(i, i, 2)
		if i > 0 {
			d.Set(i, i-1, -1)
		}
		if i < n-1 {
			d.Set(i, i+1, -1)
		}
	}
	return testCase{name: "laplace1D", n: n, a: utils.NewCSRFromDOK(d), tol: 1.e-6}
}

// rhsForOnes returns b = A*[1,...,1] so that the solution is all ones.
func rhsForOnes(a utils.CSR) (want, b []float64) {
	n, _ := a.Dims()
	want = utils.ConstArray(n, 1)
	b = make([]float64, n)
	a.MulVecTo(b, want)
	return
}

func denseSolve(a utils.CSR, b []float64) []float64 {
	var x mat.VecDense
	if err := x.SolveVec(a.ToDense(), mat.NewVecDense(len(b), b)); err != nil {
		panic(err)
	}
	return x.RawVector().Data
}
