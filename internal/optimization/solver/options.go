package solver

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/nlpsolver/internal/optimization/bounds"
	"github.com/copyleftdev/nlpsolver/internal/optimization/constraints"
)

// Method selects the search-direction strategy built by New when no
// optimizer is injected.
type Method string

const (
	// MethodBFGS selects descent.BFGS.
	MethodBFGS Method = "bfgs"
	// MethodSteepestDescent selects descent.SteepestDescent.
	MethodSteepestDescent Method = "steepest"
)

// UnmarshalText implements encoding.TextUnmarshaler, so both env and JSON
// decoding reject unknown methods.
func (m *Method) UnmarshalText(text []byte) error {
	switch v := Method(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case "":
		*m = MethodBFGS
	case MethodBFGS, MethodSteepestDescent:
		*m = v
	case "steepest_descent", "steepest-descent", "gradient":
		*m = MethodSteepestDescent
	default:
		return fmt.Errorf("unknown method %q", string(text))
	}
	return nil
}

// Options holds the numeric settings of a solve. Zero values are replaced by
// the defaults and out-of-range values are clamped, never rejected.
type Options struct {
	LineSearch LineSearchOptions `envPrefix:"LINESEARCH_" json:"line_search"`
	Barrier    BarrierOptions    `envPrefix:"BARRIER_" json:"barrier"`
	Penalty    PenaltyOptions    `envPrefix:"PENALTY_" json:"penalty"`
	Logging    LoggingOptions    `envPrefix:"LOG_" json:"logging"`

	// MaxIterations caps the outer loop. Zero means no cap.
	MaxIterations int    `env:"MAX_ITERATIONS" envDefault:"0" json:"max_iterations"`
	Method        Method `env:"METHOD" envDefault:"bfgs" json:"method"`
}

// LineSearchOptions configures the Armijo–Goldstein backtracking search.
type LineSearchOptions struct {
	InitialStep        float64 `env:"INITIAL_STEP" envDefault:"1.0" json:"initial_step"`
	BacktrackingFactor float64 `env:"BACKTRACKING_FACTOR" envDefault:"0.5" json:"backtracking_factor"`
	SufficientDecrease float64 `env:"SUFFICIENT_DECREASE" envDefault:"0.2" json:"sufficient_decrease"`
}

// BarrierOptions configures the logarithmic bounds barrier.
type BarrierOptions struct {
	InitialParameter float64 `env:"INITIAL_PARAMETER" envDefault:"1e-6" json:"initial_parameter"`
	DecreaseFactor   float64 `env:"DECREASE_FACTOR" envDefault:"0.5" json:"decrease_factor"`
}

// PenaltyOptions configures the augmented Lagrangian.
type PenaltyOptions struct {
	Coefficient float64 `env:"COEFFICIENT" envDefault:"1e9" json:"coefficient"`
}

// LoggingOptions configures iteration logging.
type LoggingOptions struct {
	// Frequency prints every Frequency-th iteration.
	Frequency int `env:"FREQUENCY" envDefault:"1" json:"frequency"`

	// Stdout adds a plain-text iteration table on standard output next to
	// the structured log.
	Stdout bool `env:"STDOUT" envDefault:"false" json:"stdout"`
}

// DefaultOptions returns the default settings.
func DefaultOptions() Options {
	return Options{
		LineSearch: LineSearchOptions{
			InitialStep:        1.0,
			BacktrackingFactor: 0.5,
			SufficientDecrease: 0.2,
		},
		Barrier: BarrierOptions{
			InitialParameter: bounds.DefaultParameter,
			DecreaseFactor:   bounds.DefaultDecreaseFactor,
		},
		Penalty: PenaltyOptions{
			Coefficient: constraints.DefaultPenalty,
		},
		Logging: LoggingOptions{
			Frequency: 1,
		},
		Method: MethodBFGS,
	}
}

// withDefaults fills zero fields from DefaultOptions. Clamping of the
// remaining values is left to the component constructors.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LineSearch.InitialStep == 0 {
		o.LineSearch.InitialStep = def.LineSearch.InitialStep
	}
	if o.LineSearch.BacktrackingFactor == 0 {
		o.LineSearch.BacktrackingFactor = def.LineSearch.BacktrackingFactor
	}
	if o.LineSearch.SufficientDecrease == 0 {
		o.LineSearch.SufficientDecrease = def.LineSearch.SufficientDecrease
	}
	if o.Barrier.InitialParameter == 0 {
		o.Barrier.InitialParameter = def.Barrier.InitialParameter
	}
	if o.Barrier.DecreaseFactor == 0 {
		o.Barrier.DecreaseFactor = def.Barrier.DecreaseFactor
	}
	if o.Penalty.Coefficient == 0 {
		o.Penalty.Coefficient = def.Penalty.Coefficient
	}
	if o.Logging.Frequency < 1 {
		o.Logging.Frequency = def.Logging.Frequency
	}
	if o.MaxIterations < 0 {
		o.MaxIterations = 0
	}
	if o.Method == "" {
		o.Method = def.Method
	}
	return o
}
