// Package constraints folds equality and inequality constraints into the
// objective with an augmented Lagrangian.
package constraints

import (
	"fmt"
	"math"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

// DefaultPenalty is the default penalty coefficient c.
const DefaultPenalty = 1e9

const minPenalty = 1e-4

// Handler adapts an objective in minimization form so that constraint
// violation is penalized. Residuals follow h(x) = 0 for equalities and
// g(x) <= 0 for inequalities.
type Handler interface {
	// AdaptedValue returns the penalized objective given f, g(x) and h(x).
	AdaptedValue(f float64, g, h []float64) (float64, error)
	// AdaptedGradient returns the gradient of AdaptedValue given ∇f and the
	// residuals with their gradients (one row per constraint).
	AdaptedGradient(grad, g []float64, gradG [][]float64, h []float64, gradH [][]float64) ([]float64, error)
	// UpdateMultipliers is called once per accepted outer iteration with
	// the residuals at the new point.
	UpdateMultipliers(g, h []float64) error
}

// AugmentedLagrangian implements Handler with the value
//
//	f + λ·h + (c/2)‖h‖² + Σ_j (1/2c)[max(0, μ_j + c·g_j)² − μ_j²]
//
// Inequality multipliers μ start at zero and stay non-negative through a
// projected update; equality multipliers λ start at zero and are unprojected.
// The penalty coefficient c is fixed for the life of the handler.
type AugmentedLagrangian struct {
	mu     []float64
	lambda []float64
	c      float64
}

// NewAugmentedLagrangian returns a handler for the given constraint counts.
// A non-finite or too small penalty falls back to DefaultPenalty or 1e-4.
func NewAugmentedLagrangian(inequalities, equalities int, penalty float64) *AugmentedLagrangian {
	switch {
	case math.IsNaN(penalty) || math.IsInf(penalty, 0):
		penalty = DefaultPenalty
	case penalty < minPenalty:
		penalty = minPenalty
	}
	return &AugmentedLagrangian{
		mu:     make([]float64, max(inequalities, 0)),
		lambda: make([]float64, max(equalities, 0)),
		c:      penalty,
	}
}

// Penalty returns the penalty coefficient c.
func (a *AugmentedLagrangian) Penalty() float64 {
	return a.c
}

// InequalityMultipliers returns a copy of μ.
func (a *AugmentedLagrangian) InequalityMultipliers() []float64 {
	return append([]float64(nil), a.mu...)
}

// EqualityMultipliers returns a copy of λ.
func (a *AugmentedLagrangian) EqualityMultipliers() []float64 {
	return append([]float64(nil), a.lambda...)
}

// AdaptedValue implements Handler.
func (a *AugmentedLagrangian) AdaptedValue(f float64, g, h []float64) (float64, error) {
	const op = "AugmentedLagrangian.AdaptedValue"

	lh, err := vecutil.Dot(a.lambda, h)
	if err != nil {
		return 0, optimization.WrapOp(err, "constraints", op)
	}
	if len(g) != len(a.mu) {
		return 0, optimization.WrapOp(mismatch("inequality residuals", len(g), len(a.mu)), "constraints", op)
	}

	v := f + lh + 0.5*a.c*vecutil.NormSqr(h)
	for j, gj := range g {
		v += a.inequalityPenalty(gj, a.mu[j])
	}
	return v, nil
}

func (a *AugmentedLagrangian) inequalityPenalty(g, mu float64) float64 {
	s := math.Max(0, mu+a.c*g)
	return 0.5 / a.c * (s*s - mu*mu)
}

// AdaptedGradient implements Handler. Each active inequality contributes
// max(0, μ_j + c·g_j)·∇g_j and each equality (λ_j + c·h_j)·∇h_j.
func (a *AugmentedLagrangian) AdaptedGradient(grad, g []float64, gradG [][]float64, h []float64, gradH [][]float64) ([]float64, error) {
	const op = "AugmentedLagrangian.AdaptedGradient"

	if len(g) != len(a.mu) || len(gradG) != len(a.mu) {
		err := mismatch("inequality residuals", len(g), len(a.mu))
		if len(g) == len(a.mu) {
			err = mismatch("inequality gradients", len(gradG), len(a.mu))
		}
		return nil, optimization.WrapOp(err, "constraints", op)
	}
	if len(h) != len(a.lambda) || len(gradH) != len(a.lambda) {
		err := mismatch("equality residuals", len(h), len(a.lambda))
		if len(h) == len(a.lambda) {
			err = mismatch("equality gradients", len(gradH), len(a.lambda))
		}
		return nil, optimization.WrapOp(err, "constraints", op)
	}

	out := append([]float64(nil), grad...)
	var err error
	for j, gj := range g {
		weight := math.Max(0, a.mu[j]+a.c*gj)
		if weight == 0 {
			continue
		}
		if out, err = vecutil.AddScaled(out, out, weight, gradG[j]); err != nil {
			return nil, optimization.WrapOp(err, "constraints", op)
		}
	}
	for j, hj := range h {
		weight := a.lambda[j] + a.c*hj
		if out, err = vecutil.AddScaled(out, out, weight, gradH[j]); err != nil {
			return nil, optimization.WrapOp(err, "constraints", op)
		}
	}
	return out, nil
}

// UpdateMultipliers implements Handler:
//
//	μ_j ← max(0, μ_j + c·g_j)
//	λ_j ← λ_j + c·h_j
func (a *AugmentedLagrangian) UpdateMultipliers(g, h []float64) error {
	const op = "AugmentedLagrangian.UpdateMultipliers"

	if len(g) != len(a.mu) {
		return optimization.WrapOp(mismatch("inequality residuals", len(g), len(a.mu)), "constraints", op)
	}
	if len(h) != len(a.lambda) {
		return optimization.WrapOp(mismatch("equality residuals", len(h), len(a.lambda)), "constraints", op)
	}

	for j, gj := range g {
		a.mu[j] = math.Max(0, a.mu[j]+a.c*gj)
	}
	for j, hj := range h {
		a.lambda[j] += a.c * hj
	}
	return nil
}

func mismatch(what string, got, want int) error {
	return fmt.Errorf("%s: got %d, expected %d: %w", what, got, want, vecutil.ErrIncompatibleLengths)
}
