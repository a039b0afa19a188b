// Package eigen computes a few eigenpairs of an operator known only through
// its action, and drives the solve for the command line.
package eigen

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/cmplx"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/utils"
)

type State int

const (
	Unconfigured State = iota
	Configured
	Solving
	Converged
	Diverged
	IterationLimitReached
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Solving:
		return "solving"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case IterationLimitReached:
		return "iteration limit reached"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Eigenpair is a converged eigenvalue with its eigenvector and relative
// residual ||Ax-kx||/||kx||.
type Eigenpair struct {
	Index  int
	Value  complex128
	Re, Im *mat.VecDense
	Error  float64
}

// Driver configures and runs an eigenvalue solve against one operator.
// It is not safe for concurrent use.
type Driver struct {
	solver   Solver
	logger   *zap.Logger
	op       LinearOperator // Operator as set
	run      LinearOperator // Operator handed to the solver
	opts     Options
	state    State
	result   *Result
	err      error
	consumed bool
}

// NewDriver returns an unconfigured driver using the Arnoldi method and
// DefaultOptions. A nil logger discards diagnostics.
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		solver: &Arnoldi{Logger: logger},
		logger: logger,
		opts:   DefaultOptions(),
	}
}

// SetSolver replaces the eigenvalue solve capability.
func (d *Driver) SetSolver(s Solver) error {
	if s == nil {
		return fmt.Errorf("%w: nil solver", ErrConfiguration)
	}
	if d.state == Solving {
		return fmt.Errorf("%w: solve in progress", ErrConfiguration)
	}
	d.solver = s
	return nil
}

func (d *Driver) SetOperator(op LinearOperator) error {
	if d.state == Solving {
		return fmt.Errorf("%w: solve in progress", ErrConfiguration)
	}
	if op == nil {
		return fmt.Errorf("%w: nil operator", ErrConfiguration)
	}
	if r, c := op.Dims(); r != c || r <= 0 {
		return fmt.Errorf("%w: operator must be square and non-empty, have %dx%d", ErrConfiguration, r, c)
	}
	d.op = op
	d.reset()
	d.state = Configured
	return nil
}

// SetOptions validates opts. Size dependent checks wait for Solve.
func (d *Driver) SetOptions(opts Options) error {
	if d.state == Solving {
		return fmt.Errorf("%w: solve in progress", ErrConfiguration)
	}
	if err := opts.validate(); err != nil {
		return err
	}
	d.opts = opts
	if d.op != nil {
		d.reset()
		d.state = Configured
	}
	return nil
}

func (d *Driver) reset() {
	d.run, d.result, d.err, d.consumed = nil, nil, nil, false
}

func (d *Driver) Options() Options { return d.opts }

func (d *Driver) State() State { return d.state }

// Solve blocks until the requested pairs converge, the iteration budget runs
// out, the operator fails or ctx is done. Running out of iterations is not an
// error, the converged subset stays available.
func (d *Driver) Solve(ctx context.Context) error {
	switch d.state {
	case Unconfigured:
		return fmt.Errorf("%w: no operator set", ErrConfiguration)
	case Solving:
		return fmt.Errorf("%w: solve in progress", ErrConfiguration)
	}
	n, _ := d.op.Dims()
	opts, err := d.opts.resolve(n)
	if err != nil {
		return err
	}
	d.reset()
	d.run = d.op
	if opts.ProblemType.Generalized() {
		d.run = newInvertedOperator(d.op, opts.B)
	}
	d.state = Solving
	d.logger.Info("eigensolve started",
		zap.String("method", d.solver.Type()),
		zap.String("problem_type", string(opts.ProblemType)),
		zap.Int("n", n), zap.Int("nev", opts.NEV), zap.Int("ncv", opts.NCV),
		zap.Float64("tol", opts.Tol), zap.Int("max_it", opts.MaxIterations))

	d.result, err = d.solver.Solve(ctx, d.run, opts)
	if err != nil {
		d.state, d.err = Diverged, err
		d.logger.Error("eigensolve failed", zap.Error(err))
		return err
	}
	d.state = Converged
	if d.result.LimitReached {
		d.state = IterationLimitReached
	}
	d.logger.Info("eigensolve finished", zap.Stringer("state", d.state),
		zap.Int("iterations", d.result.Iterations), zap.Int("converged", len(d.result.Values)))
	return nil
}

// Iterations is the number of restarts of the last solve.
func (d *Driver) Iterations() int {
	if d.result == nil {
		return 0
	}
	return d.result.Iterations
}

func (d *Driver) Type() string { return d.solver.Type() }

// Dimensions returns the requested number of eigenvalues and the subspace
// size, as resolved by the last solve when there was one.
func (d *Driver) Dimensions() (nev, ncv int) {
	nev, ncv = d.opts.NEV, d.opts.NCV
	if d.result != nil {
		ncv = d.result.NCV
	}
	return
}

// Tolerances returns the stopping condition, as resolved by the last solve
// when there was one.
func (d *Driver) Tolerances() (tol float64, maxit int) {
	tol, maxit = d.opts.Tol, d.opts.MaxIterations
	if d.result != nil {
		maxit = d.result.MaxIterations
	}
	return
}

// Converged is the number of converged eigenpairs.
func (d *Driver) Converged() int {
	if d.result == nil {
		return 0
	}
	return len(d.result.Values)
}

// Eigenpairs returns the converged pairs in solver order. The residual of
// each pair is computed with one or two operator applications when it is
// pulled. The sequence can be ranged over once, later calls yield ErrConsumed.
func (d *Driver) Eigenpairs(ctx context.Context) iter.Seq2[Eigenpair, error] {
	fail := func(err error) iter.Seq2[Eigenpair, error] {
		return func(yield func(Eigenpair, error) bool) { yield(Eigenpair{}, err) }
	}
	switch {
	case d.consumed:
		return fail(ErrConsumed)
	case d.state == Diverged:
		return fail(fmt.Errorf("eigen: solve failed: %w", d.err))
	case d.state != Converged && d.state != IterationLimitReached:
		return fail(fmt.Errorf("%w: no solution in state %v", ErrConfiguration, d.state))
	}
	d.consumed = true
	var (
		res  = d.result
		op   = d.run
		used bool
	)
	return func(yield func(Eigenpair, error) bool) {
		if used {
			yield(Eigenpair{}, ErrConsumed)
			return
		}
		used = true
		for i, val := range res.Values {
			pair := Eigenpair{Index: i, Value: val, Re: res.Re[i], Im: res.Im[i]}
			var err error
			pair.Error, err = RelativeResidual(ctx, op, val, pair.Re, pair.Im)
			if !yield(pair, err) || err != nil {
				return
			}
		}
	}
}

// RelativeResidual returns ||A v - λ v|| / ||λ v|| for v = re + i im, or
// ||A v|| when λ is zero.
func RelativeResidual(ctx context.Context, op LinearOperator, val complex128, re, im *mat.VecDense) (float64, error) {
	var (
		n      = re.Len()
		a, b   = real(val), imag(val)
		reData = utils.VecGetF64(re)
		imData = utils.VecGetF64(im)
		ar     = make([]float64, n)
	)
	// Real part: A re - (a re - b im)
	if err := op.Apply(ctx, ar, reData); err != nil {
		return math.NaN(), err
	}
	floats.AddScaled(ar, -a, reData)
	floats.AddScaled(ar, b, imData)
	num := floats.Dot(ar, ar)
	imNorm := floats.Norm(imData, 2)
	if imNorm > 0 {
		// Imaginary part: A im - (b re + a im)
		ai := make([]float64, n)
		if err := op.Apply(ctx, ai, imData); err != nil {
			return math.NaN(), err
		}
		floats.AddScaled(ai, -b, reData)
		floats.AddScaled(ai, -a, imData)
		num += floats.Dot(ai, ai)
	} else if b != 0 {
		// A im = 0, only the λ term remains
		num += b * b * floats.Dot(reData, reData)
	}
	num = math.Sqrt(num)
	den := cmplx.Abs(val) * math.Hypot(floats.Norm(reData, 2), imNorm)
	if den == 0 {
		return num, nil
	}
	return num / den, nil
}
