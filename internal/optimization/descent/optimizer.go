// Package descent provides the search-direction strategies used by the solver.
package descent

import (
	"math"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
)

const (
	// SteepestDescentTolerance is the default successive-value tolerance for
	// SteepestDescent.
	SteepestDescentTolerance = 1e-9
	// BFGSTolerance is the default successive-value tolerance for BFGS.
	BFGSTolerance = 1e-12
)

// Optimizer produces a search direction per outer iteration and decides
// when successive iterates are close enough to stop.
//
// Init is called once with the state at the initial point, with Gradient
// already holding the adapted gradient there. Direction is called once per
// iteration after the solver refreshed state.Gradient at state.X; the
// returned slice is owned by the caller.
type Optimizer interface {
	Init(state *optimization.State) error
	Direction(state *optimization.State) ([]float64, error)
	Done(state *optimization.State) bool
}

// SteepestDescent searches along the negative adapted gradient.
type SteepestDescent struct {
	// Tolerance on |f_k - f_{k-1}|. Zero means SteepestDescentTolerance.
	Tolerance float64
}

// Init implements Optimizer.
func (*SteepestDescent) Init(*optimization.State) error {
	return nil
}

// Direction implements Optimizer.
func (*SteepestDescent) Direction(state *optimization.State) ([]float64, error) {
	d := make([]float64, len(state.Gradient))
	for i, g := range state.Gradient {
		d[i] = -g
	}
	return d, nil
}

// Done implements Optimizer.
func (s *SteepestDescent) Done(state *optimization.State) bool {
	return successiveValuesConverged(state, tolerance(s.Tolerance, SteepestDescentTolerance))
}

func tolerance(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// successiveValuesConverged is false while the previous value is still the
// seeded infinity, since the difference is then infinite or NaN.
func successiveValuesConverged(state *optimization.State, tol float64) bool {
	return math.Abs(state.Objective-state.ObjectivePrevious) < tol
}
