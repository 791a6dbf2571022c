package optimization

import (
	"fmt"
	"strings"
)

// State is the mutable record the solver carries through one solve.
//
// Objective values and the gradient are adapted quantities (barrier and
// augmented Lagrangian applied) in minimization form; multiply by Sense.Sign()
// to report them in the caller's sense. XPrevious and ObjectivePrevious always
// hold the point and value immediately before the most recent accepted step.
type State struct {
	Sense Sense

	Iteration int

	X         []float64
	XPrevious []float64

	Objective         float64
	ObjectivePrevious float64

	// PureObjective is the un-adapted objective at X in the caller's sense.
	PureObjective float64

	Gradient []float64

	// StepScale is the step length accepted by the last line search.
	StepScale float64
}

// Change returns the absolute difference between the current and previous
// adapted objective values.
func (s *State) Change() float64 {
	d := s.Objective - s.ObjectivePrevious
	if d < 0 {
		return -d
	}
	return d
}

// Status describes why a solve stopped.
type Status int

const (
	// StatusConverged means successive objective values met the optimizer's
	// tolerance.
	StatusConverged Status = iota
	// StatusFlatDirection means the search direction vanished.
	StatusFlatDirection
	// StatusIterationLimit means the configured iteration cap was reached.
	StatusIterationLimit
	// StatusLineSearchFailure means no acceptable step length could be found.
	StatusLineSearchFailure
	// StatusCancelled means the context was done before convergence.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusFlatDirection:
		return "flat_direction"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusLineSearchFailure:
		return "line_search_failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Converged reports whether the status counts as normal convergence.
func (s Status) Converged() bool {
	return s == StatusConverged || s == StatusFlatDirection
}

// Solution is the immutable outcome of a solve.
type Solution struct {
	// BestObjectiveValue is the adapted objective at X in the caller's sense.
	BestObjectiveValue float64
	// Objective is the plain objective at X in the caller's sense.
	Objective float64
	X         []float64

	Iterations int
	Status     Status
}

// Converged reports whether the solve ended by convergence.
func (s *Solution) Converged() bool {
	return s.Status.Converged()
}

func (s *Solution) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "best objective value: %v\n", s.BestObjectiveValue)
	fmt.Fprintf(&b, "best solution: %v\n", s.X)
	fmt.Fprintf(&b, "in %d iterations", s.Iterations)
	return b.String()
}
