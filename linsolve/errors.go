package linsolve

import (
	"errors"
	"fmt"
)

var (
	// ErrSolveDivergence is matched by every failure of an iterative solve to
	// reach its tolerance: iteration budget exhausted, breakdown, NaN.
	ErrSolveDivergence = errors.New("linsolve: solve diverged")

	// ErrNotConfigured is returned when a solve is attempted before an
	// operator has been bound to the solver.
	ErrNotConfigured = errors.New("linsolve: solver has no operator")

	// ErrBadOption signals an unknown solver or preconditioner kind, or an
	// out of range tolerance or iteration budget.
	ErrBadOption = errors.New("linsolve: invalid option")

	// ErrBadOperator is returned when the operator cannot serve the requested
	// preconditioner (non-square, zero pivot, not positive definite).
	ErrBadOperator = errors.New("linsolve: operator unsuitable")

	// ErrDimensionMismatch is returned when the right hand side or the
	// solution vector do not match the operator.
	ErrDimensionMismatch = errors.New("linsolve: dimension mismatch")
)

// DivergedReason tells why an iterative solve stopped without converging.
type DivergedReason int

const (
	DivergedIts DivergedReason = iota
	DivergedBreakdown
	DivergedIndefinite
	DivergedNaN
)

func (r DivergedReason) String() string {
	switch r {
	case DivergedIts:
		return "DIVERGED_ITS"
	case DivergedBreakdown:
		return "DIVERGED_BREAKDOWN"
	case DivergedIndefinite:
		return "DIVERGED_INDEFINITE_MAT"
	case DivergedNaN:
		return "DIVERGED_NANORINF"
	}
	return fmt.Sprintf("DIVERGED_UNKNOWN(%d)", int(r))
}

// DivergenceError carries the state of a diverged solve. It matches
// ErrSolveDivergence with errors.Is.
type DivergenceError struct {
	Reason       DivergedReason
	Detail       string
	Iterations   int
	ResidualNorm float64
}

func (e *DivergenceError) Error() string {
	msg := fmt.Sprintf("linsolve: solve diverged: %v after %d iterations, residual norm %g",
		e.Reason, e.Iterations, e.ResidualNorm)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *DivergenceError) Is(target error) bool { return target == ErrSolveDivergence }

func breakdown(reason DivergedReason, detail string) error {
	return &DivergenceError{Reason: reason, Detail: detail}
}
