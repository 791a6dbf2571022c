package problems

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
)

// ErrUnknownProblem is returned by Build for a name not in the catalogue.
var ErrUnknownProblem = errors.New("unknown problem")

// Spec is the JSON description of a catalogue problem.
type Spec struct {
	// Name is one of Names().
	Name string `json:"name"`
	// Dimension is used by rosenbrock. Quadratics take it from Matrix.
	Dimension int    `json:"dimension,omitempty"`
	Sense     string `json:"sense,omitempty"`

	// Matrix and Linear are A and b of ½xᵀAx − bᵀx. Matrix must be symmetric.
	Matrix [][]float64 `json:"matrix,omitempty"`
	Linear []float64   `json:"linear,omitempty"`

	// Lower and Upper hold one entry per variable; null means unbounded.
	Lower []*float64 `json:"lower,omitempty"`
	Upper []*float64 `json:"upper,omitempty"`

	InitialGuess []float64 `json:"initial_guess,omitempty"`

	Sum *SumSpec `json:"sum_constraint,omitempty"`
}

// SumSpec describes a constraint on the sum of all variables.
type SumSpec struct {
	// Kind is "equality" (Σx = target) or "at_least" (Σx >= target).
	Kind   string  `json:"kind"`
	Target float64 `json:"target"`
}

type builder func(Spec, optimization.Sense) (optimization.Problem, error)

var catalogue = map[string]builder{
	"square":     buildSquare,
	"quadratic":  buildQuadratic,
	"rosenbrock": buildRosenbrock,
}

// Names returns the catalogue names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build turns a Spec into a validated problem.
func Build(spec Spec) (optimization.Problem, error) {
	const op = "Build"

	build, ok := catalogue[spec.Name]
	if !ok {
		return nil, optimization.WrapOp(fmt.Errorf("%w %q", ErrUnknownProblem, spec.Name), "problems", op)
	}
	sense, err := optimization.ParseSense(spec.Sense)
	if err != nil {
		return nil, optimization.WrapOp(err, "problems", op)
	}

	p, err := build(spec, sense)
	if err != nil {
		return nil, optimization.WrapOp(err, "problems", op)
	}

	if spec.Sum != nil {
		var kind SumKind
		switch spec.Sum.Kind {
		case "equality", "eq", "":
			kind = SumEquality
		case "at_least", "inequality", "ineq":
			kind = SumAtLeast
		default:
			return nil, optimization.WrapOp(fmt.Errorf("unknown sum constraint kind %q", spec.Sum.Kind), "problems", op)
		}
		p = WithSum(p, kind, spec.Sum.Target)
	}

	if err := optimization.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func buildSquare(spec Spec, sense optimization.Sense) (optimization.Problem, error) {
	box, err := spec.bounds(1)
	if err != nil {
		return nil, err
	}
	start := 0.0
	switch len(spec.InitialGuess) {
	case 0:
	case 1:
		start = spec.InitialGuess[0]
	default:
		return nil, fmt.Errorf("square takes one initial value, got %d", len(spec.InitialGuess))
	}
	return &Square{Bound: box[0], Start: start, Sense: sense}, nil
}

func buildQuadratic(spec Spec, sense optimization.Sense) (optimization.Problem, error) {
	n := len(spec.Matrix)
	if n == 0 {
		return nil, errors.New("quadratic needs a matrix")
	}
	for i, row := range spec.Matrix {
		if len(row) != n {
			return nil, fmt.Errorf("matrix row %d has length %d, expected %d", i, len(row), n)
		}
	}
	a := mat.NewSymDense(n, nil)
	for i, row := range spec.Matrix {
		for j := i; j < n; j++ {
			if row[j] != spec.Matrix[j][i] {
				return nil, fmt.Errorf("matrix is not symmetric at (%d, %d)", i, j)
			}
			a.SetSym(i, j, row[j])
		}
	}
	if spec.Linear != nil && len(spec.Linear) != n {
		return nil, fmt.Errorf("linear term has length %d, expected %d", len(spec.Linear), n)
	}
	if spec.InitialGuess != nil && len(spec.InitialGuess) != n {
		return nil, fmt.Errorf("initial guess has length %d, expected %d", len(spec.InitialGuess), n)
	}
	box, err := spec.bounds(n)
	if err != nil {
		return nil, err
	}
	return NewQuadratic(a, spec.Linear, spec.InitialGuess).WithBounds(box).WithSense(sense), nil
}

func buildRosenbrock(spec Spec, sense optimization.Sense) (optimization.Problem, error) {
	n := spec.Dimension
	if n == 0 {
		n = len(spec.InitialGuess)
	}
	if n < 2 {
		return nil, fmt.Errorf("rosenbrock needs dimension >= 2, got %d", n)
	}
	if sense != optimization.Minimize {
		return nil, errors.New("rosenbrock is unbounded above and can only be minimized")
	}
	if len(spec.Lower) > 0 || len(spec.Upper) > 0 {
		return nil, errors.New("rosenbrock does not take bounds")
	}
	if spec.InitialGuess != nil && len(spec.InitialGuess) != n {
		return nil, fmt.Errorf("initial guess has length %d, expected %d", len(spec.InitialGuess), n)
	}
	return NewRosenbrock(n, spec.InitialGuess), nil
}

// bounds decodes Lower and Upper. Missing slices mean unbounded.
func (s Spec) bounds(n int) ([]optimization.Bound, error) {
	box := optimization.FreeBounds(n)
	if s.Lower != nil && len(s.Lower) != n {
		return nil, fmt.Errorf("lower bounds have length %d, expected %d", len(s.Lower), n)
	}
	if s.Upper != nil && len(s.Upper) != n {
		return nil, fmt.Errorf("upper bounds have length %d, expected %d", len(s.Upper), n)
	}
	for i := range box {
		if s.Lower != nil && s.Lower[i] != nil {
			box[i].Lower = *s.Lower[i]
		}
		if s.Upper != nil && s.Upper[i] != nil {
			box[i].Upper = *s.Upper[i]
		}
		if math.IsNaN(box[i].Lower) || math.IsNaN(box[i].Upper) {
			return nil, fmt.Errorf("bound %d is NaN", i)
		}
	}
	return box, nil
}
