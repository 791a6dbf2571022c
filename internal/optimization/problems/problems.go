// Package problems is a small catalogue of benchmark programs: a bounded
// one-dimensional square, convex quadratics, the extended Rosenbrock function
// and a decorator adding a sum constraint to any of them.
package problems

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
)

// Square is f(x) = x² over a single bounded variable.
type Square struct {
	optimization.Unconstrained

	Bound optimization.Bound
	Start float64
	Sense optimization.Sense
}

// NewSquare returns x² on [lower, upper] starting at start.
func NewSquare(lower, upper, start float64, sense optimization.Sense) *Square {
	return &Square{
		Bound: optimization.Bound{Lower: lower, Upper: upper},
		Start: start,
		Sense: sense,
	}
}

func (s *Square) Info() optimization.Info {
	return optimization.Info{Variables: 1, Sense: s.Sense}
}

func (s *Square) Bounds() []optimization.Bound        { return []optimization.Bound{s.Bound} }
func (s *Square) Objective(x []float64) float64       { return x[0] * x[0] }
func (s *Square) GradObjective(x []float64) []float64 { return []float64{2 * x[0]} }
func (s *Square) InitialGuess() []float64             { return []float64{s.Start} }

// Quadratic is f(x) = ½xᵀAx − bᵀx. With A positive definite its unique
// unconstrained minimizer solves Ax = b.
type Quadratic struct {
	optimization.Unconstrained

	a     *mat.SymDense
	b     *mat.VecDense
	x0    []float64
	box   []optimization.Bound
	sense optimization.Sense
}

// NewQuadratic returns ½xᵀAx − bᵀx starting at x0. A nil b means zero and a
// nil x0 means the origin. It panics if b or x0 do not match A.
func NewQuadratic(a *mat.SymDense, b, x0 []float64) *Quadratic {
	n := a.SymmetricDim()
	if b == nil {
		b = make([]float64, n)
	}
	if x0 == nil {
		x0 = make([]float64, n)
	}
	if len(b) != n || len(x0) != n {
		panic(mat.ErrShape)
	}

	sym := mat.NewSymDense(n, nil)
	sym.CopySym(a)
	return &Quadratic{
		a:   sym,
		b:   mat.NewVecDense(n, append([]float64(nil), b...)),
		x0:  append([]float64(nil), x0...),
		box: optimization.FreeBounds(n),
	}
}

// WithBounds replaces the default free bounds. The slice is copied.
func (q *Quadratic) WithBounds(b []optimization.Bound) *Quadratic {
	q.box = append([]optimization.Bound(nil), b...)
	return q
}

// WithSense sets the objective sense.
func (q *Quadratic) WithSense(s optimization.Sense) *Quadratic {
	q.sense = s
	return q
}

func (q *Quadratic) Info() optimization.Info {
	return optimization.Info{Variables: q.a.SymmetricDim(), Sense: q.sense}
}

func (q *Quadratic) Bounds() []optimization.Bound {
	return append([]optimization.Bound(nil), q.box...)
}

func (q *Quadratic) Objective(x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return 0.5*mat.Inner(v, q.a, v) - mat.Dot(q.b, v)
}

func (q *Quadratic) GradObjective(x []float64) []float64 {
	var g mat.VecDense
	g.MulVec(q.a, mat.NewVecDense(len(x), x))
	g.SubVec(&g, q.b)
	return g.RawVector().Data
}

func (q *Quadratic) InitialGuess() []float64 {
	return append([]float64(nil), q.x0...)
}

// Minimizer solves Ax = b.
func (q *Quadratic) Minimizer() ([]float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(q.a); !ok {
		return nil, optimization.NewError("matrix is not positive definite").
			WithComponent("problems").WithOperation("Quadratic.Minimizer")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, q.b); err != nil {
		return nil, optimization.WrapOp(err, "problems", "Quadratic.Minimizer")
	}
	return x.RawVector().Data, nil
}

// Rosenbrock is the extended Rosenbrock function
//
//	Σ 100(x_{i+1} − x_i²)² + (1 − x_i)²
//
// with its minimum 0 at (1, …, 1).
type Rosenbrock struct {
	optimization.Unconstrained

	fn    functions.ExtendedRosenbrock
	n     int
	start []float64
}

// NewRosenbrock returns the n-dimensional function starting at start. A nil
// start means the origin.
func NewRosenbrock(n int, start []float64) *Rosenbrock {
	if start == nil {
		start = make([]float64, n)
	}
	return &Rosenbrock{n: n, start: append([]float64(nil), start...)}
}

func (r *Rosenbrock) Info() optimization.Info {
	return optimization.Info{Variables: r.n}
}

func (r *Rosenbrock) Bounds() []optimization.Bound  { return optimization.FreeBounds(r.n) }
func (r *Rosenbrock) Objective(x []float64) float64 { return r.fn.Func(x) }

func (r *Rosenbrock) GradObjective(x []float64) []float64 {
	grad := make([]float64, len(x))
	r.fn.Grad(grad, x)
	return grad
}

func (r *Rosenbrock) InitialGuess() []float64 {
	return append([]float64(nil), r.start...)
}

// SumKind selects the form of the constraint added by SumConstrained.
type SumKind int

const (
	// SumEquality adds Σx − t = 0.
	SumEquality SumKind = iota
	// SumAtLeast adds t − Σx ≤ 0.
	SumAtLeast
)

// SumConstrained appends one constraint on the sum of all variables to an
// inner problem. The inner problem's own constraints are kept and come
// first.
type SumConstrained struct {
	optimization.Problem

	Kind   SumKind
	Target float64
}

// WithSum wraps p with a sum constraint.
func WithSum(p optimization.Problem, kind SumKind, target float64) *SumConstrained {
	return &SumConstrained{Problem: p, Kind: kind, Target: target}
}

func (s *SumConstrained) Info() optimization.Info {
	info := s.Problem.Info()
	if s.Kind == SumEquality {
		info.EqualityConstraints++
	} else {
		info.InequalityConstraints++
	}
	return info
}

func (s *SumConstrained) InequalityConstraints(x []float64) []float64 {
	g := s.Problem.InequalityConstraints(x)
	if s.Kind == SumAtLeast {
		g = append(append([]float64(nil), g...), s.Target-floats.Sum(x))
	}
	return g
}

func (s *SumConstrained) GradInequalityConstraints(x []float64) [][]float64 {
	rows := s.Problem.GradInequalityConstraints(x)
	if s.Kind == SumAtLeast {
		rows = append(append([][]float64(nil), rows...), fill(len(x), -1))
	}
	return rows
}

func (s *SumConstrained) EqualityConstraints(x []float64) []float64 {
	h := s.Problem.EqualityConstraints(x)
	if s.Kind == SumEquality {
		h = append(append([]float64(nil), h...), floats.Sum(x)-s.Target)
	}
	return h
}

func (s *SumConstrained) GradEqualityConstraints(x []float64) [][]float64 {
	rows := s.Problem.GradEqualityConstraints(x)
	if s.Kind == SumEquality {
		rows = append(append([][]float64(nil), rows...), fill(len(x), 1))
	}
	return rows
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
