// Package report writes the line oriented solve report. The layout is kept
// stable so reports can be compared across runs and tools.
package report

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/notargets/shelleig/eigen"
	"github.com/notargets/shelleig/shell"
)

// Header describes the problem size. Local sizes equal global sizes in a
// single process run.
type Header struct {
	Title                  string
	GlobalRows, GlobalCols int
	LocalRows, LocalCols   int
}

// Summary is the solver metadata printed before the eigenpair table.
type Summary struct {
	Iterations    int
	Method        string
	NEV           int
	Tol           float64
	MaxIterations int
	Converged     int
}

// SummaryOf reads the metadata of a finished solve from d.
func SummaryOf(d *eigen.Driver) Summary {
	nev, _ := d.Dimensions()
	tol, maxit := d.Tolerances()
	return Summary{
		Iterations:    d.Iterations(),
		Method:        d.Type(),
		NEV:           nev,
		Tol:           tol,
		MaxIterations: maxit,
		Converged:     d.Converged(),
	}
}

// printer keeps the first write error so a report is written without
// checking every line.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func WriteHeader(w io.Writer, h Header) error {
	p := &printer{w: w}
	p.printf("gr=%d\n\n", h.GlobalRows)
	p.printf("gc=%d\n\n", h.GlobalCols)
	p.printf("lr=%d\n\n", h.LocalRows)
	p.printf("lc=%d\n\n", h.LocalCols)
	p.printf("%s\n", h.Title)
	return p.err
}

func WriteSummary(w io.Writer, s Summary) error {
	p := &printer{w: w}
	p.printf("\n")
	p.printf("Number of iterations of the method: %d\n", s.Iterations)
	p.printf("Solution method: %s\n", s.Method)
	p.printf("Number of requested eigenvalues: %d\n", s.NEV)
	p.printf("Stopping condition: tol=%.4g, maxit=%d\n", s.Tol, s.MaxIterations)
	p.printf("Number of converged eigenpairs: %d\n", s.Converged)
	return p.err
}

// WriteTable prints one line per eigenpair as it is pulled from pairs. It
// stops at the first error, which is returned.
func WriteTable(w io.Writer, pairs iter.Seq2[eigen.Eigenpair, error]) (err error) {
	p := &printer{w: w}
	p.printf("\n")
	p.printf("        k          ||Ax-kx||/||kx|| \n")
	p.printf("----------------- ------------------\n")
	for pair, perr := range pairs {
		if perr != nil {
			err = perr
			break
		}
		k := pair.Value
		if imag(k) != 0 {
			p.printf(" %9f%+9f j  %12.6g\n", real(k), imag(k), pair.Error)
		} else {
			p.printf(" %12f       %12.6g\n", real(k), pair.Error)
		}
	}
	p.printf("\n")
	if err != nil {
		return
	}
	return p.err
}

// WriteSolve prints the summary of a finished solve and, when pairs
// converged, the eigenpair table.
func WriteSolve(ctx context.Context, w io.Writer, d *eigen.Driver) error {
	s := SummaryOf(d)
	if err := WriteSummary(w, s); err != nil {
		return err
	}
	if s.Converged == 0 {
		return nil
	}
	return WriteTable(w, d.Eigenpairs(ctx))
}

func WriteOperatorStats(w io.Writer, st shell.Stats) error {
	p := &printer{w: w}
	p.printf("Operator applications: %d\n", st.Applies)
	p.printf("Inner iterations: KL11=%d, KL22=%d\n", st.KL11Iterations, st.KL22Iterations)
	return p.err
}
