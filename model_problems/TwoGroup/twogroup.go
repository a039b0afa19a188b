package TwoGroup

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/notargets/shelleig/InputParameters"
	"github.com/notargets/shelleig/eigen"
	"github.com/notargets/shelleig/linsolve"
	"github.com/notargets/shelleig/readfiles"
	"github.com/notargets/shelleig/report"
	"github.com/notargets/shelleig/shell"
	"github.com/notargets/shelleig/utils"
)

// TwoGroup is a configured two-block eigenvalue run.
type TwoGroup struct {
	Problem    *readfiles.Problem
	Params     *InputParameters.InputParametersTwoBlock
	KL11, KL22 *linsolve.KSP
	Op         *shell.Operator
	Driver     *eigen.Driver
	logger     *zap.Logger
}

// NewTwoGroup builds the block solvers, the shell operator and the eigen
// driver for p. A nil ip selects the defaults of every solver.
func NewTwoGroup(p *readfiles.Problem, ip *InputParameters.InputParametersTwoBlock,
	logger *zap.Logger) (c *TwoGroup, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ip == nil {
		ip = &InputParameters.InputParametersTwoBlock{}
	}
	// The shell operator is the whole problem, there is no B matrix
	if pt := ip.EPSOptions().ProblemType; pt.Generalized() {
		return nil, fmt.Errorf("%w: problem type %q needs a B matrix, use nhep or hep",
			eigen.ErrConfiguration, pt)
	}
	c = &TwoGroup{Problem: p, Params: ip, logger: logger}
	if c.KL11, err = newBlockSolver("KL11", ip.KSP11.Options(), p.L11, logger); err != nil {
		return nil, err
	}
	if c.KL22, err = newBlockSolver("KL22", ip.KSP22.Options(), p.L22, logger); err != nil {
		return nil, err
	}
	m, n := p.L11.Dims()
	if c.Op, err = shell.NewOperator(m, n, c.KL11, c.KL22, p.L21, p.L22, p.M11, p.M12); err != nil {
		return nil, err
	}
	c.Driver = eigen.NewDriver(logger)
	if err = c.Driver.SetOperator(c.Op); err != nil {
		return nil, err
	}
	if err = c.Driver.SetOptions(ip.EPSOptions()); err != nil {
		return nil, err
	}
	return
}

func newBlockSolver(name string, opts linsolve.Options, A linsolve.Operator, logger *zap.Logger) (k *linsolve.KSP, err error) {
	if k, err = linsolve.NewKSP(opts, logger.With(zap.String("block", name))); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err = k.SetOperator(A); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return
}

// Title is the report title, defaulting to the problem type.
func (c *TwoGroup) Title() string {
	if c.Params.Title != "" {
		return c.Params.Title
	}
	return c.Driver.Options().ProblemType.String() + " (matrix-free)"
}

// Solve writes the problem header, runs the eigensolver and writes the
// summary, the eigenpair table and the operator statistics to w.
func (c *TwoGroup) Solve(ctx context.Context, w io.Writer) (err error) {
	m, n := c.Op.Dims()
	if err = report.WriteHeader(w, report.Header{
		Title:      c.Title(),
		GlobalRows: m, GlobalCols: n,
		LocalRows: m, LocalCols: n,
	}); err != nil {
		return
	}
	if err = c.Driver.Solve(ctx); err != nil {
		return
	}
	if err = report.WriteSolve(ctx, w, c.Driver); err != nil {
		return
	}
	st := c.Op.Stats()
	c.logger.Debug("operator statistics", zap.Int("applies", st.Applies),
		zap.Int("kl11_iterations", st.KL11Iterations), zap.Int("kl22_iterations", st.KL22Iterations),
		zap.String("memory", utils.GetMemUsage()))
	return report.WriteOperatorStats(w, st)
}
