// Package linesearch chooses step lengths along a search direction.
package linesearch

import (
	"errors"
	"fmt"
	"math"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

const (
	// MinimumStep is the smallest step length tried before giving up.
	MinimumStep = 1e-20

	minClamp = 1e-4
	maxClamp = 1 - 1e-4

	nanShrink = 0.5
)

var (
	// ErrStepTooSmall means the step shrank below MinimumStep without
	// producing an acceptable point.
	ErrStepTooSmall = errors.New("step length below minimum")
	// ErrNonFiniteObjective means the objective at the current point is
	// NaN or infinite, so no step can be compared against it.
	ErrNonFiniteObjective = errors.New("objective is not finite at the current point")
)

// Func evaluates the objective a line search is run on.
type Func func(x []float64) (float64, error)

// Step is the outcome of an accepted step.
type Step struct {
	// Initial is the objective value before the step.
	Initial float64
	// Value is the objective value at the accepted point.
	Value float64
	// Scale is the accepted step length α; the step taken is α·direction.
	Scale float64
}

// StepSizeControl advances x along direction. On success x holds the
// accepted point. On failure x is left unchanged.
type StepSizeControl interface {
	DoStep(f Func, x, grad, direction []float64) (Step, error)
}

// ArmijoGoldstein is a backtracking line search enforcing the
// Armijo–Goldstein sufficient decrease condition
//
//	f(x) - f(x+α·d) >= α·c·(-∇f·d)
//
// for minimization, and the reversed inequality for maximization. Before the
// test, non-finite trial values are recovered by halving α.
type ArmijoGoldstein struct {
	InitialStep        float64
	BacktrackingFactor float64
	SufficientDecrease float64
	Sense              optimization.Sense
}

// NewArmijoGoldstein returns a minimizing rule. Parameters are clamped into
// safe ranges instead of rejected: initialStep >= 1e-4, and both tau and c
// into [1e-4, 1-1e-4].
func NewArmijoGoldstein(initialStep, tau, c float64) *ArmijoGoldstein {
	return &ArmijoGoldstein{
		InitialStep:        math.Max(initialStep, minClamp),
		BacktrackingFactor: clamp(tau),
		SufficientDecrease: clamp(c),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return maxClamp
	}
	return math.Min(math.Max(v, minClamp), maxClamp)
}

// DoStep implements StepSizeControl.
func (a *ArmijoGoldstein) DoStep(f Func, x, grad, direction []float64) (Step, error) {
	const op = "ArmijoGoldstein.DoStep"

	m, err := vecutil.Dot(grad, direction)
	if err != nil {
		return Step{}, optimization.WrapOp(err, "linesearch", op)
	}
	if len(x) != len(direction) {
		err := fmt.Errorf("point has length %d, direction %d: %w", len(x), len(direction), vecutil.ErrIncompatibleLengths)
		return Step{}, optimization.WrapOp(err, "linesearch", op)
	}
	t := -a.SufficientDecrease * m

	fx, err := f(x)
	if err != nil {
		return Step{}, optimization.WrapOp(err, "linesearch", op)
	}
	if !finite(fx) {
		return Step{Initial: fx}, optimization.WrapOp(ErrNonFiniteObjective, "linesearch", op)
	}

	trial := make([]float64, len(x))
	alpha := a.InitialStep
	ft, err := evaluate(f, trial, x, alpha, direction)
	if err != nil {
		return Step{}, optimization.WrapOp(err, "linesearch", op)
	}

	for !finite(ft) {
		alpha *= nanShrink
		if alpha < MinimumStep {
			return Step{Initial: fx}, optimization.WrapOp(ErrStepTooSmall, "linesearch", op)
		}
		if ft, err = evaluate(f, trial, x, alpha, direction); err != nil {
			return Step{}, optimization.WrapOp(err, "linesearch", op)
		}
	}

	for !a.sufficient(fx, ft, alpha, t) {
		alpha *= a.BacktrackingFactor
		if alpha < MinimumStep {
			return Step{Initial: fx}, optimization.WrapOp(ErrStepTooSmall, "linesearch", op)
		}
		if ft, err = evaluate(f, trial, x, alpha, direction); err != nil {
			return Step{}, optimization.WrapOp(err, "linesearch", op)
		}
	}

	copy(x, trial)
	return Step{Initial: fx, Value: ft, Scale: alpha}, nil
}

// sufficient applies the Armijo–Goldstein test. A non-finite trial value
// never passes.
func (a *ArmijoGoldstein) sufficient(fx, ft, alpha, t float64) bool {
	if !finite(ft) {
		return false
	}
	if a.Sense == optimization.Maximize {
		return !(fx-ft > alpha*t)
	}
	return !(fx-ft < alpha*t)
}

func evaluate(f Func, trial, x []float64, alpha float64, direction []float64) (float64, error) {
	if _, err := vecutil.AddScaled(trial, x, alpha, direction); err != nil {
		return 0, err
	}
	return f(trial)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
