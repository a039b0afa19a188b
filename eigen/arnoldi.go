package eigen

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Solver is the eigenvalue solve capability. Solve treats op as a standard
// problem, generalized problems are transformed by the Driver.
type Solver interface {
	Type() string
	Solve(ctx context.Context, op LinearOperator, opts Options) (*Result, error)
}

// Result holds the converged Ritz pairs of a solve, most wanted first.
type Result struct {
	Values []complex128
	// Re and Im are the real and imaginary parts of the unit Ritz vectors
	Re, Im        []*mat.VecDense
	Iterations    int
	NEV, NCV      int
	Tol           float64
	MaxIterations int
	// LimitReached is set when the iteration budget ran out before NEV pairs
	// converged
	LimitReached bool
}

// Arnoldi is an explicitly restarted Arnoldi method with Rayleigh-Ritz
// extraction.
type Arnoldi struct {
	Logger *zap.Logger
}

func (ar *Arnoldi) Type() string { return "arnoldi" }

const (
	// Relative size of the residual of a new direction below which the
	// Krylov space is considered invariant
	breakdownTol = 1.e-12
	freshTries   = 5
)

type ritzPair struct {
	val complex128
	y   []complex128 // Coefficients in the Arnoldi basis, unit norm
	est float64      // Residual norm estimate |h(m+1,m)|·|e_mᵀy|
}

func (ar *Arnoldi) logger() *zap.Logger {
	if ar.Logger == nil {
		return zap.NewNop()
	}
	return ar.Logger
}

func (ar *Arnoldi) Solve(ctx context.Context, op LinearOperator, opts Options) (res *Result, err error) {
	n, nc := op.Dims()
	if n != nc || n <= 0 {
		return nil, fmt.Errorf("%w: operator must be square and non-empty, have %dx%d", ErrConfiguration, n, nc)
	}
	if opts, err = opts.resolve(n); err != nil {
		return nil, err
	}
	var (
		k   = opts.NCV
		rnd = rand.New(rand.NewSource(opts.Seed))
		V   = make([][]float64, k+1)
		H   = mat.NewDense(k+1, k, nil)
		log = ar.logger()
	)
	for i := range V {
		V[i] = make([]float64, n)
	}
	res = &Result{NEV: opts.NEV, NCV: k, Tol: opts.Tol, MaxIterations: opts.MaxIterations}
	if err = freshVector(rnd, V[0], nil); err != nil {
		return
	}

	var (
		pairs []ritzPair
		m     int
	)
	for it := 1; it <= opts.MaxIterations; it++ {
		res.Iterations = it
		var beta float64
		if m, beta, err = expand(ctx, op, V, H, rnd); err != nil {
			return
		}
		if pairs, err = ritzPairs(H, m, beta, opts); err != nil {
			return
		}
		var nconv int
		for _, p := range pairs[:min(opts.NEV, m)] {
			if p.converged(opts.Tol) {
				nconv++
			}
		}
		if ce := log.Check(zap.DebugLevel, "arnoldi restart"); ce != nil {
			ce.Write(zap.Int("iteration", it), zap.Int("basis", m),
				zap.Int("converged", nconv), zap.Float64("beta", beta),
				zap.Float64("lead_real", real(pairs[0].val)), zap.Float64("lead_imag", imag(pairs[0].val)))
		}
		if nconv == min(opts.NEV, m) {
			res.store(pairs, V[:m], opts.Tol)
			return
		}
		if it == opts.MaxIterations {
			break
		}
		restartVector(rnd, V[0], pairs[:min(opts.NEV, m)], V[:m])
	}
	// V still holds the basis the pairs were computed from
	res.LimitReached = true
	res.store(pairs, V[:m], opts.Tol)
	return
}

func (p ritzPair) converged(tol float64) bool {
	if a := cmplx.Abs(p.val); a > 0 {
		return p.est < tol*a
	}
	return p.est < tol
}

// expand builds the Arnoldi factorization A V_m = V_m H_m + beta v_{m+1} e_mᵀ
// from V[0]. m is less than the basis size only when the basis spans the
// whole space.
func expand(ctx context.Context, op LinearOperator, V [][]float64, H *mat.Dense, rnd *rand.Rand) (m int, beta float64, err error) {
	var (
		k = len(V) - 1
		n = len(V[0])
		h = make([]float64, k)
	)
	H.Zero()
	for j := 0; j < k; j++ {
		if err = ctx.Err(); err != nil {
			return
		}
		w := V[j+1]
		if err = op.Apply(ctx, w, V[j]); err != nil {
			return 0, 0, fmt.Errorf("eigen: operator apply: %w", err)
		}
		wnorm := floats.Norm(w, 2)
		orthogonalize(w, V[:j+1], h[:j+1])
		for i := 0; i <= j; i++ {
			H.Set(i, j, h[i])
		}
		if j+1 == n {
			return n, 0, nil
		}
		hnext := floats.Norm(w, 2)
		if hnext <= breakdownTol*wnorm {
			// Invariant subspace, continue with a new direction
			if err = freshVector(rnd, w, V[:j+1]); err != nil {
				return
			}
			continue
		}
		H.Set(j+1, j, hnext)
		floats.Scale(1/hnext, w)
	}
	return k, H.At(k, k-1), nil
}

// orthogonalize removes from w its components along the orthonormal basis with
// two passes of modified Gram-Schmidt, accumulating the coefficients into h.
func orthogonalize(w []float64, basis [][]float64, h []float64) {
	for i := range h {
		h[i] = 0
	}
	for pass := 0; pass < 2; pass++ {
		for i, v := range basis {
			c := floats.Dot(v, w)
			floats.AddScaled(w, -c, v)
			h[i] += c
		}
	}
}

// freshVector fills w with a random unit vector orthogonal to basis.
func freshVector(rnd *rand.Rand, w []float64, basis [][]float64) error {
	h := make([]float64, len(basis))
	for try := 0; try < freshTries; try++ {
		for i := range w {
			w[i] = rnd.Float64()*2 - 1
		}
		norm := floats.Norm(w, 2)
		orthogonalize(w, basis, h)
		if wn := floats.Norm(w, 2); wn > breakdownTol*norm && wn > 0 {
			floats.Scale(1/wn, w)
			return nil
		}
	}
	return fmt.Errorf("%w: no direction orthogonal to a basis of %d vectors", ErrBreakdown, len(basis))
}

// ritzPairs solves the projected problem H_m y = θ y and returns the pairs
// sorted by opts.Which.
func ritzPairs(H *mat.Dense, m int, beta float64, opts Options) (pairs []ritzPair, err error) {
	hm := H.Slice(0, m, 0, m)
	pairs = make([]ritzPair, m)
	if opts.ProblemType.Hermitian() {
		sym := mat.NewSymDense(m, nil)
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				sym.SetSym(i, j, 0.5*(hm.At(i, j)+hm.At(j, i)))
			}
		}
		var es mat.EigenSym
		if ok := es.Factorize(sym, true); !ok {
			return nil, fmt.Errorf("%w: symmetric projected eigenproblem did not converge", ErrBreakdown)
		}
		var (
			vals = es.Values(nil)
			vecs mat.Dense
		)
		es.VectorsTo(&vecs)
		for j := range pairs {
			y := make([]complex128, m)
			for i := range y {
				y[i] = complex(vecs.At(i, j), 0)
			}
			pairs[j] = ritzPair{val: complex(vals[j], 0), y: y}
		}
	} else {
		var eig mat.Eigen
		if ok := eig.Factorize(hm, mat.EigenRight); !ok {
			return nil, fmt.Errorf("%w: projected eigenproblem did not converge", ErrBreakdown)
		}
		var (
			vals = eig.Values(nil)
			vecs mat.CDense
		)
		eig.VectorsTo(&vecs)
		for j := range pairs {
			y := make([]complex128, m)
			for i := range y {
				y[i] = vecs.At(i, j)
			}
			pairs[j] = ritzPair{val: vals[j], y: y}
		}
	}
	for j := range pairs {
		y := pairs[j].y
		var norm float64
		for _, c := range y {
			norm = math.Hypot(norm, cmplx.Abs(c))
		}
		if norm > 0 {
			for i := range y {
				y[i] /= complex(norm, 0)
			}
		}
		pairs[j].est = math.Abs(beta) * cmplx.Abs(y[m-1])
	}
	sort.SliceStable(pairs, func(a, b int) bool { return opts.Which.less(pairs[a].val, pairs[b].val) })
	return
}

// ritzVector stores V y into re and im.
func ritzVector(re, im []float64, V [][]float64, y []complex128) {
	for i := range re {
		re[i], im[i] = 0, 0
	}
	for i, c := range y {
		floats.AddScaled(re, real(c), V[i])
		floats.AddScaled(im, imag(c), V[i])
	}
}

// restartVector combines the wanted Ritz vectors into the next start vector.
// A conjugate pair contributes re+im from both members.
func restartVector(rnd *rand.Rand, v0 []float64, wanted []ritzPair, V [][]float64) {
	var (
		n      = len(v0)
		re, im = make([]float64, n), make([]float64, n)
		sum    = make([]float64, n)
	)
	for _, p := range wanted {
		ritzVector(re, im, V, p.y)
		sign := 1.
		if imag(p.val) < 0 {
			sign = -1
		}
		floats.Add(sum, re)
		floats.AddScaled(sum, sign, im)
	}
	if norm := floats.Norm(sum, 2); norm > 0 && !math.IsNaN(norm) {
		floats.ScaleTo(v0, 1/norm, sum)
		return
	}
	// The wanted vectors cancelled, start over
	_ = freshVector(rnd, v0, nil)
}

// store keeps every converged pair, in wanted order.
func (res *Result) store(pairs []ritzPair, V [][]float64, tol float64) {
	n := len(V[0])
	res.Values, res.Re, res.Im = nil, nil, nil
	for _, p := range pairs {
		if !p.converged(tol) {
			continue
		}
		re, im := make([]float64, n), make([]float64, n)
		ritzVector(re, im, V, p.y)
		res.Values = append(res.Values, p.val)
		res.Re = append(res.Re, mat.NewVecDense(n, re))
		res.Im = append(res.Im, mat.NewVecDense(n, im))
	}
}
