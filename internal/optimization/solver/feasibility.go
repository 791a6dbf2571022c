package solver

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

const (
	// restorePasses bounds the projection passes of restoreFeasibility.
	restorePasses = 8
	// restoreMargin is how far inside g_j <= 0 a violated constraint is
	// projected, relative to max(1, |g_j|), so rounding cannot leave it at a
	// tiny positive value.
	restoreMargin = 1e-12
	// restoreSlack is how much the largest |h_k| may grow during restoration.
	restoreSlack = 1e-9
)

// restoreFeasibility moves a converged iterate onto g(x) <= 0 when the
// augmented Lagrangian left some inequality slightly violated. Each pass
// takes a Newton step x -= (g_j + margin) ∇g_j / ‖∇g_j‖² for every violated
// constraint. The move is kept only if all inequalities end non-positive,
// the adapted objective stays finite (so x is still strictly inside the
// bounds) and the equality residual does not grow beyond restoreSlack.
// It reports whether state was changed.
func (s *Solver) restoreFeasibility(state *optimization.State) bool {
	g := s.problem.InequalityConstraints(state.X)
	before := maxPositive(g)
	if before <= 0 {
		return false
	}
	hBefore := maxAbs(s.problem.EqualityConstraints(state.X))

	x := append([]float64(nil), state.X...)
	for pass := 0; pass < restorePasses && maxPositive(g) > 0; pass++ {
		grads := s.problem.GradInequalityConstraints(x)
		for j, gj := range g {
			if !(gj > 0) || j >= len(grads) {
				continue
			}
			nn := vecutil.NormSqr(grads[j])
			if nn == 0 || math.IsNaN(nn) || math.IsInf(nn, 0) {
				continue
			}
			step := (gj + restoreMargin*math.Max(1, math.Abs(gj))) / nn
			if _, err := vecutil.AddScaled(x, x, -step, grads[j]); err != nil {
				return false
			}
		}
		g = s.problem.InequalityConstraints(x)
	}

	if maxPositive(g) > 0 {
		s.logger.Debug("Inequality restoration failed", zap.Float64("violation", before))
		return false
	}
	if maxAbs(s.problem.EqualityConstraints(x)) > hBefore+restoreSlack {
		s.logger.Debug("Inequality restoration rejected", zap.String("reason", "equality residual grew"))
		return false
	}
	v, err := s.adaptedValue(x)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		s.logger.Debug("Inequality restoration rejected", zap.String("reason", "left the bounds"))
		return false
	}

	copy(state.X, x)
	state.Objective = v
	state.PureObjective = s.problem.Objective(x)
	s.logger.Debug("Restored inequality feasibility", zap.Float64("violation", before))
	return true
}

// maxPositive returns the largest entry of v, or 0 when none is positive.
// NaN entries are ignored.
func maxPositive(v []float64) float64 {
	m := 0.0
	for _, e := range v {
		if e > m {
			m = e
		}
	}
	return m
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, e := range v {
		m = math.Max(m, math.Abs(e))
	}
	return m
}
