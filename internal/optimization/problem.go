package optimization

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Sense selects whether the objective is minimized or maximized.
type Sense int

const (
	// Minimize is the default objective sense.
	Minimize Sense = iota
	// Maximize flips the objective; the solver negates it internally.
	Maximize
)

// Sign returns +1 for Minimize and -1 for Maximize. Multiplying an objective
// value or gradient by Sign turns it into a minimization quantity and back.
func (s Sense) Sign() float64 {
	if s == Maximize {
		return -1
	}
	return 1
}

func (s Sense) String() string {
	switch s {
	case Minimize:
		return "Min"
	case Maximize:
		return "Max"
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// ParseSense converts "min"/"minimize"/"max"/"maximize" (any case) to a Sense.
// The empty string means Minimize.
func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(s) {
	case "", "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	default:
		return Minimize, fmt.Errorf("unknown objective sense %q", s)
	}
}

// Info holds the fixed dimensions of a problem.
type Info struct {
	Variables             int
	InequalityConstraints int
	EqualityConstraints   int
	Sense                 Sense
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "number of variables: %d\n", i.Variables)
	fmt.Fprintf(&b, "number of inequality constraints: %d\n", i.InequalityConstraints)
	fmt.Fprintf(&b, "number of equality constraints: %d\n", i.EqualityConstraints)
	fmt.Fprintf(&b, "objective sense: %s\n", i.Sense)
	return b.String()
}

// Bound is the closed interval a variable must stay in. Either side may be
// infinite, in which case it does not take part in the barrier.
type Bound struct {
	Lower float64
	Upper float64
}

// Free returns a bound with both sides infinite.
func Free() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// FreeBounds returns n unbounded intervals.
func FreeBounds(n int) []Bound {
	b := make([]Bound, n)
	for i := range b {
		b[i] = Free()
	}
	return b
}

// HasLower reports whether the lower side is finite.
func (b Bound) HasLower() bool { return !math.IsInf(b.Lower, -1) }

// HasUpper reports whether the upper side is finite.
func (b Bound) HasUpper() bool { return !math.IsInf(b.Upper, 1) }

func (b Bound) String() string {
	return fmt.Sprintf("(%v, %v)", b.Lower, b.Upper)
}

// Problem describes a nonlinear program. Implementations must be pure: every
// method returns the same result for the same input and has no side effects.
// The solver only reads from a Problem; it never mutates returned slices.
//
// Constraint residuals follow the convention h(x) = 0 for equalities and
// g(x) <= 0 for inequalities. Gradient methods return one row per constraint,
// each of length Info().Variables. Problems without constraints embed
// Unconstrained.
type Problem interface {
	Info() Info
	Bounds() []Bound

	Objective(x []float64) float64
	GradObjective(x []float64) []float64

	InequalityConstraints(x []float64) []float64
	GradInequalityConstraints(x []float64) [][]float64
	EqualityConstraints(x []float64) []float64
	GradEqualityConstraints(x []float64) [][]float64

	InitialGuess() []float64
}

// Unconstrained provides empty constraint methods for embedding.
type Unconstrained struct{}

func (Unconstrained) InequalityConstraints([]float64) []float64       { return nil }
func (Unconstrained) GradInequalityConstraints([]float64) [][]float64 { return nil }
func (Unconstrained) EqualityConstraints([]float64) []float64         { return nil }
func (Unconstrained) GradEqualityConstraints([]float64) [][]float64   { return nil }

// Validate checks the structural consistency of p: a positive dimension,
// non-negative constraint counts, one well-ordered bound per variable, and an
// initial guess of the right length. It does not check that the initial guess
// lies strictly inside the bounds.
func Validate(p Problem) error {
	const op = "Validate"

	invalid := func(format string, args ...interface{}) error {
		return &Error{
			Message:   fmt.Sprintf(format, args...),
			Op:        op,
			Component: "problem",
			Err:       ErrInvalidProblem,
		}
	}

	if p == nil {
		return invalid("problem must not be nil")
	}

	info := p.Info()
	if info.Variables < 1 {
		return invalid("number of variables must be at least 1, got %d", info.Variables)
	}
	if info.InequalityConstraints < 0 || info.EqualityConstraints < 0 {
		return invalid("constraint counts must be non-negative, got %d inequality and %d equality",
			info.InequalityConstraints, info.EqualityConstraints)
	}
	if info.Sense != Minimize && info.Sense != Maximize {
		return invalid("unknown objective sense %v", info.Sense)
	}

	bounds := p.Bounds()
	if len(bounds) != info.Variables {
		return invalid("expected %d bounds, got %d", info.Variables, len(bounds))
	}
	for i, b := range bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
			return invalid("bound %d is NaN", i)
		}
		if b.Lower > b.Upper {
			return invalid("bound %d has lower %v above upper %v", i, b.Lower, b.Upper)
		}
	}

	if x0 := p.InitialGuess(); len(x0) != info.Variables {
		return invalid("initial guess has length %d, expected %d", len(x0), info.Variables)
	}
	return nil
}

// Describe writes a human-readable summary of p to w.
func Describe(w io.Writer, p Problem) error {
	if _, err := fmt.Fprintf(w, "NLP information: %s", p.Info()); err != nil {
		return err
	}
	for i, b := range p.Bounds() {
		if _, err := fmt.Fprintf(w, "bounds for variable no. %d: %s\n", i, b); err != nil {
			return err
		}
	}
	return nil
}
