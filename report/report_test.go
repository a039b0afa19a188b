package report

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/shelleig/eigen"
	"github.com/notargets/shelleig/shell"
)

func fixedPairs(pairs ...eigen.Eigenpair) iter.Seq2[eigen.Eigenpair, error] {
	return func(yield func(eigen.Eigenpair, error) bool) {
		for _, p := range pairs {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestFullReportGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{
		Title:      eigen.NHEP.String() + " (matrix-free)",
		GlobalRows: 4, GlobalCols: 4,
		LocalRows: 4, LocalCols: 4,
	}))
	require.NoError(t, WriteSummary(&buf, Summary{
		Iterations:    7,
		Method:        "arnoldi",
		NEV:           3,
		Tol:           1.e-8,
		MaxIterations: 100,
		Converged:     4,
	}))
	require.NoError(t, WriteTable(&buf, fixedPairs(
		eigen.Eigenpair{Value: 1.0346, Error: 3.2e-9},
		eigen.Eigenpair{Value: complex(0.5, 0.25), Error: 1.5e-10},
		eigen.Eigenpair{Value: complex(0.5, -0.25), Error: 1.5e-10},
		eigen.Eigenpair{Value: -2, Error: 0},
	)))
	require.NoError(t, WriteOperatorStats(&buf, shell.Stats{Applies: 42, KL11Iterations: 420, KL22Iterations: 380}))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "full_report", buf.Bytes())
}

func TestWriteTableStopsOnError(t *testing.T) {
	boom := errors.New("inner solve failed")
	pairs := func(yield func(eigen.Eigenpair, error) bool) {
		if !yield(eigen.Eigenpair{Value: 1}, nil) {
			return
		}
		if !yield(eigen.Eigenpair{}, boom) {
			return
		}
		yield(eigen.Eigenpair{Value: 3}, nil)
	}
	var buf bytes.Buffer
	err := WriteTable(&buf, pairs)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "     1.000000")
	assert.NotContains(t, buf.String(), "3.000000")
}

func TestWriteSolveFromDriver(t *testing.T) {
	d := eigen.NewDriver(nil)
	require.NoError(t, d.SetOperator(eigen.MatrixOperator{A: mat.NewDiagDense(2, []float64{3, 1})}))
	require.NoError(t, d.Solve(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, WriteSolve(context.Background(), &buf, d))
	out := buf.String()
	assert.Contains(t, out, "Solution method: arnoldi\n")
	assert.Contains(t, out, "Number of requested eigenvalues: 3\n")
	assert.Contains(t, out, "Stopping condition: tol=1e-08, maxit=100\n")
	assert.Contains(t, out, "Number of converged eigenpairs: 2\n")
	assert.Contains(t, out, "     3.000000")
	assert.Contains(t, out, "     1.000000")
}

func TestWriteSolveNothingConverged(t *testing.T) {
	d := eigen.NewDriver(nil)
	var buf bytes.Buffer
	require.NoError(t, WriteSolve(context.Background(), &buf, d))
	assert.Equal(t, "\n"+
		"Number of iterations of the method: 0\n"+
		"Solution method: arnoldi\n"+
		"Number of requested eigenvalues: 3\n"+
		"Stopping condition: tol=1e-08, maxit=0\n"+
		"Number of converged eigenpairs: 0\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrors(t *testing.T) {
	assert.Error(t, WriteHeader(failingWriter{}, Header{}))
	assert.Error(t, WriteSummary(failingWriter{}, Summary{}))
	assert.Error(t, WriteTable(failingWriter{}, fixedPairs()))
}
