// Package linsolve provides the linear solve capability used by the shell
// operator: iterative Krylov methods with preconditioning, configured once
// and bound to a fixed operator.
package linsolve

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/shelleig/utils"
)

// KSPType names an iterative method kind.
type KSPType string

const (
	KSPCG       KSPType = "cg"
	KSPBiCGStab KSPType = "bicgstab"
	// KSPPreOnly applies the preconditioner once, meaningful with PCLU.
	KSPPreOnly KSPType = "preonly"
)

// Operator is the matrix of a linear system, applied as dst = A*x.
type Operator interface {
	Dims() (r, c int)
	MulVecTo(dst, x []float64)
}

// Solver is the linear solve capability: solve A dst = rhs to the configured
// tolerance.
type Solver interface {
	Dims() (r, c int)
	Configured() bool
	Solve(ctx context.Context, dst, rhs []float64) (Stats, error)
}

// Options configure a KSP.
type Options struct {
	Type KSPType `json:"ksp_type"`
	PC   PCType  `json:"pc_type"`
	// RTol is the tolerance relative to the norm of the right hand side.
	RTol float64 `json:"ksp_rtol"`
	// ATol is the absolute residual norm tolerance.
	ATol float64 `json:"ksp_atol"`
	// MaxIterations is the iteration budget. Zero allows no iteration, so
	// any non-trivial right hand side diverges.
	MaxIterations int `json:"ksp_max_it"`
}

// DefaultOptions returns conjugate gradients without preconditioning and
// the customary tolerances.
func DefaultOptions() Options {
	return Options{
		Type:          KSPCG,
		PC:            PCNone,
		RTol:          1.e-5,
		ATol:          1.e-50,
		MaxIterations: 10000,
	}
}

func (o Options) validate() error {
	switch o.Type {
	case KSPCG, KSPBiCGStab, KSPPreOnly:
	default:
		return fmt.Errorf("%w: unknown ksp type %q", ErrBadOption, o.Type)
	}
	switch o.PC {
	case PCNone, PCJacobi, PCICC, PCLU:
	default:
		return fmt.Errorf("%w: unknown preconditioner %q", ErrBadOption, o.PC)
	}
	if o.Type != KSPPreOnly && (o.RTol < utils.DLAMCHE || 1 <= o.RTol) {
		return fmt.Errorf("%w: rtol %g outside (eps, 1)", ErrBadOption, o.RTol)
	}
	if o.ATol < 0 {
		return fmt.Errorf("%w: atol %g is negative", ErrBadOption, o.ATol)
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations %d is negative", ErrBadOption, o.MaxIterations)
	}
	return nil
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of iterations done by the Method.
	Iterations int
	// MatVec is the number of MatVec operations commanded by the Method.
	MatVec int
	// PSolve is the number of preconditioner applications.
	PSolve int
	// ResidualNorm is the final norm of the residual.
	ResidualNorm float64
	// Runtime is an approximate duration of the solve.
	Runtime time.Duration
}

// KSP is a Krylov solver bound to one operator. It is not safe for
// concurrent use; work vectors are reused across solves.
type KSP struct {
	opts   Options
	a      Operator
	pc     preconditioner
	method Method
	ctx    Context
	logger *zap.Logger
}

// NewKSP validates opts and returns an unbound solver. A nil logger discards
// diagnostics.
func NewKSP(opts Options, logger *zap.Logger) (*KSP, error) {
	if opts.PC == "" {
		opts.PC = PCNone
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &KSP{opts: opts, logger: logger}
	switch opts.Type {
	case KSPCG:
		k.method = &CG{}
	case KSPBiCGStab:
		k.method = &BiCGStab{}
	}
	return k, nil
}

// SetOperator binds A and builds the preconditioner.
func (k *KSP) SetOperator(A Operator) error {
	if A == nil {
		return fmt.Errorf("%w: nil operator", ErrBadOperator)
	}
	nr, nc := A.Dims()
	if nr != nc || nr == 0 {
		return fmt.Errorf("%w: operator must be square and non-empty, have %dx%d", ErrBadOperator, nr, nc)
	}
	pc, err := newPreconditioner(k.opts.PC, A)
	if err != nil {
		return err
	}
	k.a, k.pc = A, pc
	k.ctx.X = make([]float64, nr)
	k.ctx.Residual = make([]float64, nr)
	return nil
}

func (k *KSP) Options() Options { return k.opts }

func (k *KSP) Operator() Operator { return k.a }

func (k *KSP) Configured() bool { return k.a != nil && k.pc != nil }

func (k *KSP) Dims() (r, c int) {
	if k.a == nil {
		return 0, 0
	}
	return k.a.Dims()
}

// Solve solves A dst = rhs from a zero initial guess. A failure to converge
// returns an error matching ErrSolveDivergence and leaves the last iterate in
// dst.
func (k *KSP) Solve(ctx context.Context, dst, rhs []float64) (stats Stats, err error) {
	start := time.Now()
	defer func() {
		stats.Runtime = time.Since(start)
		if ce := k.logger.Check(zap.DebugLevel, "ksp solve"); ce != nil {
			ce.Write(zap.String("ksp_type", string(k.opts.Type)),
				zap.Int("iterations", stats.Iterations),
				zap.Float64("residual_norm", stats.ResidualNorm),
				zap.Error(err))
		}
	}()
	if !k.Configured() {
		return stats, ErrNotConfigured
	}
	dim, _ := k.a.Dims()
	if len(rhs) != dim || len(dst) != dim {
		return stats, fmt.Errorf("%w: operator %dx%d, len(rhs) = %d, len(dst) = %d",
			ErrDimensionMismatch, dim, dim, len(rhs), len(dst))
	}
	if err = ctx.Err(); err != nil {
		return
	}

	if k.opts.Type == KSPPreOnly {
		if err = k.pc.Apply(dst, rhs); err != nil {
			return
		}
		stats.Iterations, stats.PSolve = 1, 1
		if utils.IsNan(dst) {
			err = &DivergenceError{Reason: DivergedNaN, Iterations: 1, ResidualNorm: math.NaN()}
		}
		return
	}

	c := &k.ctx
	utils.Zero(c.X)
	copy(c.Residual, rhs) // r = b - A*0
	c.Converged = false
	c.Src, c.Dst = nil, nil
	bnorm := floats.Norm(rhs, 2)
	c.ResidualNorm = bnorm
	stats.ResidualNorm = bnorm
	tol := math.Max(k.opts.RTol*bnorm, k.opts.ATol)

	if math.IsNaN(bnorm) || math.IsInf(bnorm, 0) {
		err = &DivergenceError{Reason: DivergedNaN, ResidualNorm: bnorm}
	} else if bnorm > tol {
		err = k.iterate(ctx, rhs, tol, &stats)
	}
	copy(dst, c.X)
	return
}

func (k *KSP) iterate(ctx context.Context, b []float64, tol float64, stats *Stats) error {
	c := &k.ctx
	if k.opts.MaxIterations == 0 {
		return &DivergenceError{Reason: DivergedIts, ResidualNorm: c.ResidualNorm}
	}
	k.method.Init(len(c.X))
	for {
		op, err := k.method.Iterate(c)
		if err != nil {
			if de, ok := err.(*DivergenceError); ok {
				de.Iterations, de.ResidualNorm = stats.Iterations, c.ResidualNorm
			}
			return err
		}

		switch op {
		case NoOperation:

		case ComputeResidual:
			k.a.MulVecTo(c.Residual, c.X)
			stats.MatVec++
			floats.AddScaledTo(c.Residual, b, -1, c.Residual) // r = b - Ax

		case MatVec:
			k.a.MulVecTo(c.Dst, c.Src)
			stats.MatVec++

		case PSolve:
			if err = k.pc.Apply(c.Dst, c.Src); err != nil {
				return err
			}
			stats.PSolve++

		case CheckResidualNorm:
			if math.IsNaN(c.ResidualNorm) || math.IsInf(c.ResidualNorm, 0) {
				return &DivergenceError{Reason: DivergedNaN, Iterations: stats.Iterations,
					ResidualNorm: c.ResidualNorm}
			}
			c.Converged = c.ResidualNorm <= tol

		case EndIteration:
			stats.Iterations++
			stats.ResidualNorm = c.ResidualNorm
			if c.Converged {
				return nil
			}
			if stats.Iterations >= k.opts.MaxIterations {
				return &DivergenceError{Reason: DivergedIts, Iterations: stats.Iterations,
					ResidualNorm: c.ResidualNorm}
			}
			if err = ctx.Err(); err != nil {
				return err
			}

		default:
			panic("linsolve: invalid operation")
		}
	}
}
