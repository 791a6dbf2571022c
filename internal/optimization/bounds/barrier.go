// Package bounds turns variable bounds into a penalty on the objective.
package bounds

import (
	"fmt"
	"math"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

const (
	// DefaultParameter is the initial barrier parameter μ.
	DefaultParameter = 1e-6
	// DefaultDecreaseFactor is the factor μ is multiplied by on each update.
	DefaultDecreaseFactor = 0.5

	minDecrease = 1e-4
	maxDecrease = 1 - 1e-4

	// minParameter is the floor for μ. μ must stay positive for the
	// barrier to be +Inf, not NaN, on a bound.
	minParameter = 1e-300
)

// Handler adapts an objective in minimization form so that the variable
// bounds are respected.
type Handler interface {
	// AdaptedValue returns the penalized objective at x given f(x).
	AdaptedValue(x []float64, f float64) (float64, error)
	// AdaptedGradient returns the gradient of AdaptedValue given ∇f(x).
	AdaptedGradient(x, grad []float64) ([]float64, error)
	// UpdateParameter is called once per accepted outer iteration.
	UpdateParameter()
}

// Barrier is a logarithmic barrier
//
//	f(x) - μ·Σ ln(x_i - lb_i) - μ·Σ ln(ub_i - x_i)
//
// where the sums run over finite bounds only. The term grows without limit
// towards either boundary and is NaN outside the box. μ shrinks
// geometrically on each UpdateParameter down to a floor of 1e-300.
type Barrier struct {
	bounds   []optimization.Bound
	mu       float64
	decrease float64
}

// NewBarrier returns a barrier over bounds. A non-positive or non-finite
// parameter falls back to DefaultParameter, a tiny one is raised to the
// floor, and decrease is clamped into [1e-4, 1-1e-4].
func NewBarrier(bounds []optimization.Bound, parameter, decrease float64) *Barrier {
	if !(parameter > 0) || math.IsInf(parameter, 1) {
		parameter = DefaultParameter
	}
	parameter = math.Max(parameter, minParameter)
	if math.IsNaN(decrease) {
		decrease = DefaultDecreaseFactor
	}
	decrease = math.Min(math.Max(decrease, minDecrease), maxDecrease)

	b := make([]optimization.Bound, len(bounds))
	copy(b, bounds)
	return &Barrier{
		bounds:   b,
		mu:       parameter,
		decrease: decrease,
	}
}

// Parameter returns the current barrier parameter μ.
func (b *Barrier) Parameter() float64 {
	return b.mu
}

// AdaptedValue implements Handler.
func (b *Barrier) AdaptedValue(x []float64, f float64) (float64, error) {
	if err := b.check("Barrier.AdaptedValue", x); err != nil {
		return 0, err
	}

	v := f
	for i, bd := range b.bounds {
		if bd.HasLower() {
			v -= b.mu * math.Log(x[i]-bd.Lower)
		}
		if bd.HasUpper() {
			v -= b.mu * math.Log(bd.Upper-x[i])
		}
	}
	return v, nil
}

// AdaptedGradient implements Handler.
func (b *Barrier) AdaptedGradient(x, grad []float64) ([]float64, error) {
	const op = "Barrier.AdaptedGradient"
	if err := b.check(op, x); err != nil {
		return nil, err
	}
	if len(grad) != len(b.bounds) {
		err := fmt.Errorf("gradient has length %d, expected %d: %w", len(grad), len(b.bounds), vecutil.ErrIncompatibleLengths)
		return nil, optimization.WrapOp(err, "bounds", op)
	}

	out := make([]float64, len(grad))
	for i, bd := range b.bounds {
		g := grad[i]
		if bd.HasLower() {
			g -= b.mu / (x[i] - bd.Lower)
		}
		if bd.HasUpper() {
			g += b.mu / (bd.Upper - x[i])
		}
		out[i] = g
	}
	return out, nil
}

// UpdateParameter implements Handler.
func (b *Barrier) UpdateParameter() {
	b.mu = math.Max(b.mu*b.decrease, minParameter)
}

func (b *Barrier) check(op string, x []float64) error {
	if len(x) != len(b.bounds) {
		err := fmt.Errorf("point has length %d, expected %d: %w", len(x), len(b.bounds), vecutil.ErrIncompatibleLengths)
		return optimization.WrapOp(err, "bounds", op)
	}
	return nil
}
