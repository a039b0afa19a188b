package shell

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/linsolve"
	"github.com/notargets/shelleig/utils"
)

// problem is a random two-block system with its dense reference operator.
type problem struct {
	n        int
	L11, L22 utils.CSR
	L21      Coupling
	M11, M12 []float64
}

func randomBlock(n int, rnd *rand.Rand, symmetric bool) utils.CSR {
	d := sparse.NewDOK(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if rnd.Float64() < 0.25 {
				v := -rnd.Float64()
				d.Set(i, j, v)
				if symmetric {
					d.Set(j, i, v)
				} else {
					d.Set(j, i, -rnd.Float64())
				}
			}
		}
		d.Set(i, i, float64(n)+1)
	}
	return utils.NewCSRFromDOK(d)
}

func newProblem(n int, seed int64, diagonalCoupling bool) problem {
	rnd := rand.New(rand.NewSource(seed))
	p := problem{
		n:   n,
		L11: randomBlock(n, rnd, true),
		L22: randomBlock(n, rnd, true),
		M11: make([]float64, n),
		M12: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p.M11[i] = rnd.Float64()
		p.M12[i] = 1 + rnd.Float64()
	}
	if diagonalCoupling {
		dc := make(DiagonalCoupling, n)
		for i := range dc {
			dc[i] = rnd.Float64()
		}
		p.L21 = dc
	} else {
		p.L21 = randomBlock(n, rnd, false)
	}
	return p
}

func exactSolver(t *testing.T, A utils.CSR) *linsolve.KSP {
	t.Helper()
	ksp, err := linsolve.NewKSP(linsolve.Options{Type: linsolve.KSPPreOnly, PC: linsolve.PCLU}, nil)
	require.NoError(t, err)
	require.NoError(t, ksp.SetOperator(A))
	return ksp
}

func cgSolver(t *testing.T, A utils.CSR, maxIt int) *linsolve.KSP {
	t.Helper()
	opts := linsolve.DefaultOptions()
	opts.RTol = 1.e-12
	opts.MaxIterations = maxIt
	ksp, err := linsolve.NewKSP(opts, nil)
	require.NoError(t, err)
	require.NoError(t, ksp.SetOperator(A))
	return ksp
}

func (p problem) operator(t *testing.T, KL11, KL22 linsolve.Solver) *Operator {
	t.Helper()
	op, err := NewOperator(p.n, p.n, KL11, KL22, p.L21, p.L22, p.M11, p.M12)
	require.NoError(t, err)
	return op
}

// reference computes L11⁻¹(M11⊙x + M12⊙(L22⁻¹ L21 x)) with dense factorizations.
func (p problem) reference(x []float64) []float64 {
	var (
		w2 = make([]float64, p.n)
		wv mat.VecDense
		y  mat.VecDense
	)
	p.L21.MulVecTo(w2, x)
	if err := wv.SolveVec(p.L22.ToDense(), mat.NewVecDense(p.n, w2)); err != nil {
		panic(err)
	}
	w4 := make([]float64, p.n)
	floats.MulTo(w4, p.M11, x)
	for i := range w4 {
		w4[i] += p.M12[i] * wv.AtVec(i)
	}
	if err := y.SolveVec(p.L11.ToDense(), mat.NewVecDense(p.n, w4)); err != nil {
		panic(err)
	}
	return y.RawVector().Data
}

func randomVec(n int, rnd *rand.Rand) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = rnd.NormFloat64()
	}
	return x
}

func TestApplyMatchesDenseReference(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for _, diag := range []bool{true, false} {
		for _, n := range []int{1, 2, 5, 17, 40} {
			p := newProblem(n, int64(n), diag)
			op := p.operator(t, exactSolver(t, p.L11), exactSolver(t, p.L22))
			x := randomVec(n, rnd)
			y := make([]float64, n)
			require.NoError(t, op.Apply(context.Background(), y, x))
			want := p.reference(x)
			tol := 1.e-9 * floats.Norm(want, 2)
			assert.Less(t, floats.Distance(y, want, 2), tol, "n=%d diagonal coupling=%v", n, diag)
		}
	}
}

func TestApplyIterativeInnerSolves(t *testing.T) {
	p := newProblem(30, 3, false)
	op := p.operator(t, cgSolver(t, p.L11, 1000), cgSolver(t, p.L22, 1000))
	x := randomVec(30, rand.New(rand.NewSource(1)))
	y := make([]float64, 30)
	require.NoError(t, op.Apply(context.Background(), y, x))
	want := p.reference(x)
	assert.Less(t, floats.Distance(y, want, 2), 1.e-9*floats.Norm(want, 2))
	st := op.Stats()
	assert.Equal(t, 1, st.Applies)
	assert.Greater(t, st.KL11Iterations, 0)
	assert.Greater(t, st.KL22Iterations, 0)
}

func TestApplyOutputLength(t *testing.T) {
	var (
		n  = 9
		p  = newProblem(n, 11, false)
		op = p.operator(t, exactSolver(t, p.L11), exactSolver(t, p.L22))
	)
	xs := [][]float64{make([]float64, n), randomVec(n, rand.New(rand.NewSource(2)))}
	for i := 0; i < n; i++ {
		e := make([]float64, n)
		e[i] = 1
		xs = append(xs, e)
	}
	for _, x := range xs {
		y := make([]float64, n)
		require.NoError(t, op.Apply(context.Background(), y, x))
		assert.Len(t, y, n)
		assert.False(t, utils.IsNan(y))
	}
	m, nc := op.Dims()
	assert.Equal(t, n, m)
	assert.Equal(t, n, nc)
}

func TestApplyNoStateBetweenCalls(t *testing.T) {
	var (
		n   = 15
		p   = newProblem(n, 5, false)
		rnd = rand.New(rand.NewSource(3))
		x1  = randomVec(n, rnd)
		x2  = randomVec(n, rnd)
		y1  = make([]float64, n)
		y2  = make([]float64, n)
	)
	used := p.operator(t, cgSolver(t, p.L11, 500), cgSolver(t, p.L22, 500))
	require.NoError(t, used.Apply(context.Background(), y1, x1))
	require.NoError(t, used.Apply(context.Background(), y1, x2))

	fresh := p.operator(t, cgSolver(t, p.L11, 500), cgSolver(t, p.L22, 500))
	require.NoError(t, fresh.Apply(context.Background(), y2, x2))
	assert.Equal(t, y2, y1)
}

func TestApplyZero(t *testing.T) {
	p := newProblem(8, 9, true)
	op := p.operator(t, cgSolver(t, p.L11, 100), cgSolver(t, p.L22, 100))
	y := utils.ConstArray(8, 3)
	require.NoError(t, op.Apply(context.Background(), y, make([]float64, 8)))
	assert.Equal(t, make([]float64, 8), y)
}

func TestApplyInnerDivergence(t *testing.T) {
	p := newProblem(10, 1, false)
	op := p.operator(t, cgSolver(t, p.L11, 100), cgSolver(t, p.L22, 0))
	x := utils.ConstArray(10, 1)
	err := op.Apply(context.Background(), make([]float64, 10), x)
	require.Error(t, err)
	assert.True(t, errors.Is(err, linsolve.ErrSolveDivergence))
	var de *linsolve.DivergenceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, linsolve.DivergedIts, de.Reason)
	assert.Equal(t, 0, op.Stats().Applies)

	// Divergence of the outer solve is reported the same way
	op = p.operator(t, cgSolver(t, p.L11, 0), cgSolver(t, p.L22, 100))
	err = op.Apply(context.Background(), make([]float64, 10), x)
	assert.ErrorIs(t, err, linsolve.ErrSolveDivergence)
}

func TestApplyCancelled(t *testing.T) {
	p := newProblem(10, 1, false)
	op := p.operator(t, cgSolver(t, p.L11, 100), cgSolver(t, p.L22, 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := op.Apply(ctx, make([]float64, 10), utils.ConstArray(10, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApplyDimensionMismatch(t *testing.T) {
	p := newProblem(4, 1, true)
	op := p.operator(t, exactSolver(t, p.L11), exactSolver(t, p.L22))
	assert.ErrorIs(t, op.Apply(context.Background(), make([]float64, 4), make([]float64, 3)), ErrDimensionMismatch)
	assert.ErrorIs(t, op.Apply(context.Background(), make([]float64, 5), make([]float64, 4)), ErrDimensionMismatch)
}

// recordingSolver solves the diagonal system s*dst = rhs and records its calls.
type recordingSolver struct {
	name  string
	n     int
	s     float64
	calls *[]string
	rhs   []float64
}

func (r *recordingSolver) Dims() (int, int) { return r.n, r.n }
func (r *recordingSolver) Configured() bool { return r.n > 0 }
func (r *recordingSolver) Solve(_ context.Context, dst, rhs []float64) (linsolve.Stats, error) {
	*r.calls = append(*r.calls, r.name)
	r.rhs = append(r.rhs[:0], rhs...)
	for i, v := range rhs {
		dst[i] = v / r.s
	}
	return linsolve.Stats{Iterations: 1}, nil
}

func TestApplyStepOrder(t *testing.T) {
	var (
		calls []string
		kl11  = &recordingSolver{name: "KL11", n: 3, s: 2, calls: &calls}
		kl22  = &recordingSolver{name: "KL22", n: 3, s: 4, calls: &calls}
		L21   = DiagonalCoupling{1, 2, 3}
		M11   = []float64{1, 1, 1}
		M12   = []float64{2, 2, 2}
		x     = []float64{4, 4, 4}
		y     = make([]float64, 3)
	)
	op, err := NewOperator(3, 3, kl11, kl22, L21, nil, M11, M12)
	require.NoError(t, err)
	require.NoError(t, op.Apply(context.Background(), y, x))
	assert.Equal(t, []string{"KL22", "KL11"}, calls)
	// w2 = L21 x
	assert.Equal(t, []float64{4, 8, 12}, kl22.rhs)
	// workvec = w2/4, w4 = x + 2*workvec
	assert.Equal(t, []float64{6, 8, 10}, kl11.rhs)
	assert.Equal(t, []float64{3, 4, 5}, y)
	assert.Equal(t, Stats{Applies: 1, KL11Iterations: 1, KL22Iterations: 1}, op.Stats())
}

func TestNewOperatorValidation(t *testing.T) {
	var (
		calls   []string
		s3      = &recordingSolver{n: 3, s: 1, calls: &calls}
		s4      = &recordingSolver{n: 4, s: 1, calls: &calls}
		unbound = &recordingSolver{n: 0, calls: &calls}
		d3      = DiagonalCoupling{1, 1, 1}
		v3      = []float64{1, 1, 1}
		v4      = []float64{1, 1, 1, 1}
	)
	ksp, err := linsolve.NewKSP(linsolve.DefaultOptions(), nil)
	require.NoError(t, err)

	type args struct {
		m, n       int
		KL11, KL22 linsolve.Solver
		L21        Coupling
		L22        linsolve.Operator
		M11, M12   []float64
	}
	good := args{3, 3, s3, s3, d3, utils.NewIdentityCSR(3), v3, v3}
	_, err = NewOperator(good.m, good.n, good.KL11, good.KL22, good.L21, good.L22, good.M11, good.M12)
	require.NoError(t, err)

	for name, mod := range map[string]func(a *args){
		"nil KL11":          func(a *args) { a.KL11 = nil },
		"nil KL22":          func(a *args) { a.KL22 = nil },
		"unbound KL11":      func(a *args) { a.KL11 = unbound },
		"ksp without op":    func(a *args) { a.KL22 = ksp },
		"nil L21":           func(a *args) { a.L21 = nil },
		"zero rows":         func(a *args) { a.m = 0 },
		"negative cols":     func(a *args) { a.n = -1 },
		"not square":        func(a *args) { a.n = 4 },
		"KL11 size":         func(a *args) { a.KL11 = s4 },
		"KL22 size":         func(a *args) { a.KL22 = s4; a.M12 = v4 },
		"L21 size":          func(a *args) { a.L21 = DiagonalCoupling{1, 1} },
		"L22 size":          func(a *args) { a.L22 = utils.NewIdentityCSR(4) },
		"M11 length":        func(a *args) { a.M11 = v4 },
		"M12 length":        func(a *args) { a.M12 = v4 },
		"rectangular L21":   func(a *args) { a.L21 = rectCoupling{3, 4} },
	} {
		a := good
		mod(&a)
		op, err := NewOperator(a.m, a.n, a.KL11, a.KL22, a.L21, a.L22, a.M11, a.M12)
		assert.ErrorIs(t, err, ErrConfiguration, name)
		assert.Nil(t, op, name)
	}
}

type rectCoupling struct{ r, c int }

func (rc rectCoupling) Dims() (int, int)          { return rc.r, rc.c }
func (rc rectCoupling) MulVecTo(dst, x []float64) {}
