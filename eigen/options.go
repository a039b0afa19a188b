package eigen

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/shelleig/linsolve"
	"github.com/notargets/shelleig/utils"
)

var (
	ErrConfiguration = errors.New("eigen: configuration error")
	// ErrConsumed is returned by a second pass over the eigenpairs of a solve.
	ErrConsumed = errors.New("eigen: eigenpairs already consumed")
	// ErrBreakdown reports a failure of the dense projected eigenproblem.
	ErrBreakdown = errors.New("eigen: breakdown")
)

type ProblemType string

const (
	NHEP  ProblemType = "nhep"  // Standard non-Hermitian
	HEP   ProblemType = "hep"   // Standard Hermitian
	GNHEP ProblemType = "gnhep" // Generalized non-Hermitian
	GHEP  ProblemType = "ghep"  // Generalized Hermitian
)

func (pt ProblemType) Generalized() bool { return pt == GNHEP || pt == GHEP }

func (pt ProblemType) Hermitian() bool { return pt == HEP || pt == GHEP }

func (pt ProblemType) String() string {
	switch pt {
	case NHEP:
		return "Standard Non-Symmetric Eigenvalue Problem"
	case HEP:
		return "Standard Symmetric Eigenvalue Problem"
	case GNHEP:
		return "Generalized Non-Symmetric Eigenvalue Problem"
	case GHEP:
		return "Generalized Symmetric Eigenvalue Problem"
	}
	return string(pt)
}

// Which selects the part of the spectrum to compute.
type Which string

const (
	LargestMagnitude  Which = "largest_magnitude"
	SmallestMagnitude Which = "smallest_magnitude"
	LargestReal       Which = "largest_real"
	SmallestReal      Which = "smallest_real"
	LargestImaginary  Which = "largest_imaginary"
	SmallestImaginary Which = "smallest_imaginary"
)

// less reports whether a is wanted before b.
func (w Which) less(a, b complex128) bool {
	abs := func(z complex128) float64 { return math.Hypot(real(z), imag(z)) }
	switch w {
	case SmallestMagnitude:
		return abs(a) < abs(b)
	case LargestReal:
		return real(a) > real(b)
	case SmallestReal:
		return real(a) < real(b)
	case LargestImaginary:
		return imag(a) > imag(b)
	case SmallestImaginary:
		return imag(a) < imag(b)
	default:
		return abs(a) > abs(b)
	}
}

// Options configure an eigenvalue solve. Zero NCV and MaxIterations are
// decided from the operator size when the solve starts.
type Options struct {
	ProblemType   ProblemType `json:"eps_problem_type"`
	Which         Which       `json:"eps_which"`
	NEV           int         `json:"eps_nev"`
	NCV           int         `json:"eps_ncv"`
	Tol           float64     `json:"eps_tol"`
	MaxIterations int         `json:"eps_max_it"`
	// Seed of the random initial vector
	Seed int64 `json:"eps_seed"`
	// B is the solver of the right hand side matrix of a generalized problem
	B linsolve.Solver `json:"-"`
}

func DefaultOptions() Options {
	return Options{
		ProblemType: NHEP,
		Which:       LargestMagnitude,
		NEV:         3,
		Tol:         1.e-8,
		Seed:        1,
	}
}

func (o Options) validate() error {
	switch o.ProblemType {
	case NHEP, HEP, GNHEP, GHEP:
	default:
		return fmt.Errorf("%w: unknown problem type %q", ErrConfiguration, o.ProblemType)
	}
	switch o.Which {
	case LargestMagnitude, SmallestMagnitude, LargestReal, SmallestReal, LargestImaginary, SmallestImaginary:
	default:
		return fmt.Errorf("%w: unknown spectrum selection %q", ErrConfiguration, o.Which)
	}
	if o.NEV <= 0 {
		return fmt.Errorf("%w: nev must be positive, have %d", ErrConfiguration, o.NEV)
	}
	if o.NCV < 0 {
		return fmt.Errorf("%w: ncv is negative", ErrConfiguration)
	}
	if o.Tol < utils.DLAMCHE || o.Tol >= 1 {
		return fmt.Errorf("%w: tol %g outside (eps, 1)", ErrConfiguration, o.Tol)
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations is negative", ErrConfiguration)
	}
	if o.ProblemType.Generalized() {
		if o.B == nil || !o.B.Configured() {
			return fmt.Errorf("%w: problem type %q needs a configured B solver", ErrConfiguration, o.ProblemType)
		}
	}
	return nil
}

// resolve validates and fills the size dependent defaults for an n×n
// operator. NEV and NCV are clamped to n.
func (o Options) resolve(n int) (Options, error) {
	if err := o.validate(); err != nil {
		return o, err
	}
	if o.ProblemType.Generalized() {
		if r, c := o.B.Dims(); r != n || c != n {
			return o, fmt.Errorf("%w: B is %dx%d, operator is %dx%d", ErrConfiguration, r, c, n, n)
		}
	}
	o.NEV = min(o.NEV, n)
	if o.NCV == 0 {
		o.NCV = max(2*o.NEV, o.NEV+15)
	}
	o.NCV = min(max(o.NCV, o.NEV), n)
	if o.MaxIterations == 0 {
		o.MaxIterations = max(100, 2*n/o.NCV)
	}
	return o, nil
}
