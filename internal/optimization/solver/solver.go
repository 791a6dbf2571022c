// Package solver drives a constrained nonlinear program to a local optimum by
// combining a descent strategy, a backtracking line search, a logarithmic
// bounds barrier and an augmented Lagrangian.
package solver

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/bounds"
	"github.com/copyleftdev/nlpsolver/internal/optimization/constraints"
	"github.com/copyleftdev/nlpsolver/internal/optimization/descent"
	"github.com/copyleftdev/nlpsolver/internal/optimization/linesearch"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

// FlatDirectionThreshold is the squared direction norm below which the
// solve stops as converged.
const FlatDirectionThreshold = 1e-10

// ErrSolverReused is returned by Solve when called a second time.
var ErrSolverReused = errors.New("solver already used")

// Option customizes a Solver.
type Option func(*Solver)

// WithOptimizer replaces the search-direction strategy.
func WithOptimizer(o descent.Optimizer) Option {
	return func(s *Solver) { s.optimizer = o }
}

// WithStepSizeControl replaces the line search. The step size control sees
// the objective in minimization form.
func WithStepSizeControl(c linesearch.StepSizeControl) Option {
	return func(s *Solver) { s.stepSize = c }
}

// WithBoundsHandler replaces the bounds barrier.
func WithBoundsHandler(h bounds.Handler) Option {
	return func(s *Solver) { s.bounds = h }
}

// WithConstraintHandler replaces the augmented Lagrangian.
func WithConstraintHandler(h constraints.Handler) Option {
	return func(s *Solver) { s.constraints = h }
}

// WithIterationLoggers replaces the default iteration logger. Calling it with
// no loggers disables iteration logging.
func WithIterationLoggers(loggers ...IterationLogger) Option {
	return func(s *Solver) {
		s.loggers = append([]IterationLogger{}, loggers...)
	}
}

// WithLogger sets the structured logger used by the solver and the default
// components it builds.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Solver runs one solve of one problem. It is not safe for concurrent use
// and cannot be reused: handler state such as the barrier parameter and the
// multipliers carries over between iterations and is never reset.
type Solver struct {
	problem optimization.Problem
	info    optimization.Info
	opts    Options

	optimizer   descent.Optimizer
	stepSize    linesearch.StepSizeControl
	bounds      bounds.Handler
	constraints constraints.Handler
	loggers     []IterationLogger

	logger *zap.Logger
	used   bool
}

// New validates p and assembles a solver from opts. Strategies not injected
// through options are built from opts: BFGS or steepest descent per
// opts.Method, an Armijo–Goldstein line search, a log barrier over
// p.Bounds(), an augmented Lagrangian sized by p.Info(), and a ZapLogger
// plus, with opts.Logging.Stdout, a WriterLogger on standard output.
func New(p optimization.Problem, opts Options, options ...Option) (*Solver, error) {
	if err := optimization.Validate(p); err != nil {
		return nil, err
	}

	s := &Solver{
		problem: p,
		info:    p.Info(),
		opts:    opts.withDefaults(),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.Named("solver")

	if s.optimizer == nil {
		switch s.opts.Method {
		case MethodBFGS:
			s.optimizer = descent.NewBFGS(s.logger)
		case MethodSteepestDescent:
			s.optimizer = &descent.SteepestDescent{}
		default:
			return nil, optimization.NewErrorf("unknown method %q", s.opts.Method).
				WithComponent("solver").WithOperation("New")
		}
	}
	if s.stepSize == nil {
		ls := s.opts.LineSearch
		s.stepSize = linesearch.NewArmijoGoldstein(ls.InitialStep, ls.BacktrackingFactor, ls.SufficientDecrease)
	}
	if s.bounds == nil {
		s.bounds = bounds.NewBarrier(p.Bounds(), s.opts.Barrier.InitialParameter, s.opts.Barrier.DecreaseFactor)
	}
	if s.constraints == nil {
		s.constraints = constraints.NewAugmentedLagrangian(
			s.info.InequalityConstraints, s.info.EqualityConstraints, s.opts.Penalty.Coefficient)
	}
	if s.loggers == nil {
		s.loggers = []IterationLogger{NewZapLogger(s.logger, s.opts.Logging.Frequency)}
		if s.opts.Logging.Stdout {
			s.loggers = append(s.loggers, NewWriterLogger(os.Stdout, s.opts.Logging.Frequency))
		}
	}
	return s, nil
}

// Solve runs the solve to termination. The context is checked once per outer
// iteration; when it is done the solve stops with StatusCancelled and the
// best point so far. A line search that cannot find an acceptable step ends
// the solve with StatusLineSearchFailure. A converged point that still
// violates an inequality by a rounding-sized amount is projected back onto
// g(x) <= 0 before it is reported. Errors are returned only for
// inconsistent dimensions or failures of injected components.
func (s *Solver) Solve(ctx context.Context) (*optimization.Solution, error) {
	if s.used {
		return nil, ErrSolverReused
	}
	s.used = true

	start := time.Now()
	state, err := s.initialize()
	if err != nil {
		return nil, err
	}
	if ce := s.logger.Check(zapcore.DebugLevel, "Problem"); ce != nil {
		var b strings.Builder
		if err := optimization.Describe(&b, s.problem); err == nil {
			ce.Write(zap.String("description", b.String()))
		}
	}
	s.logger.Debug("Starting solve",
		zap.Int("variables", s.info.Variables),
		zap.Int("inequality_constraints", s.info.InequalityConstraints),
		zap.Int("equality_constraints", s.info.EqualityConstraints),
		zap.Stringer("sense", s.info.Sense),
		zap.Float64("initial_objective", state.Sense.Sign()*state.Objective),
	)

	status, err := s.iterate(ctx, state)
	if err != nil {
		return nil, err
	}
	if status.Converged() {
		s.restoreFeasibility(state)
	}

	for _, l := range s.loggers {
		l.Log(state, true)
	}

	sol := &optimization.Solution{
		BestObjectiveValue: state.Sense.Sign() * state.Objective,
		Objective:          state.PureObjective,
		X:                  append([]float64(nil), state.X...),
		Iterations:         state.Iteration,
		Status:             status,
	}
	s.logger.Info("Solve finished",
		zap.Stringer("status", status),
		zap.Int("iterations", sol.Iterations),
		zap.Float64("objective", sol.BestObjectiveValue),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sol, nil
}

func (s *Solver) initialize() (*optimization.State, error) {
	const op = "Solver.initialize"

	x := append([]float64(nil), s.problem.InitialGuess()...)
	state := &optimization.State{
		Sense:             s.info.Sense,
		X:                 x,
		XPrevious:         append([]float64(nil), x...),
		ObjectivePrevious: math.Inf(1),
	}

	var err error
	if state.Objective, err = s.adaptedValue(x); err != nil {
		return nil, optimization.WrapOp(err, "solver", op)
	}
	state.PureObjective = s.problem.Objective(x)
	if state.Gradient, err = s.adaptedGradient(x); err != nil {
		return nil, optimization.WrapOp(err, "solver", op)
	}
	if err := s.optimizer.Init(state); err != nil {
		return nil, optimization.WrapOp(err, "solver", op)
	}
	return state, nil
}

func (s *Solver) iterate(ctx context.Context, state *optimization.State) (optimization.Status, error) {
	const op = "Solver.iterate"

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Debug("Solve cancelled", zap.Int("iteration", state.Iteration), zap.Error(err))
			return optimization.StatusCancelled, nil
		}
		if s.opts.MaxIterations > 0 && state.Iteration >= s.opts.MaxIterations {
			return optimization.StatusIterationLimit, nil
		}

		state.ObjectivePrevious = state.Objective
		copy(state.XPrevious, state.X)
		state.Iteration++

		grad, err := s.adaptedGradient(state.X)
		if err != nil {
			return 0, optimization.WrapOp(err, "solver", op)
		}
		state.Gradient = grad

		dir, err := s.optimizer.Direction(state)
		if err != nil {
			return 0, optimization.WrapOp(err, "solver", op)
		}
		if vecutil.NormSqr(dir) < FlatDirectionThreshold {
			return optimization.StatusFlatDirection, nil
		}

		step, err := s.stepSize.DoStep(s.adaptedValue, state.X, grad, dir)
		if err != nil {
			if errors.Is(err, linesearch.ErrStepTooSmall) || errors.Is(err, linesearch.ErrNonFiniteObjective) {
				s.logger.Warn("Line search failed",
					zap.Int("iteration", state.Iteration),
					zap.Error(err),
				)
				return optimization.StatusLineSearchFailure, nil
			}
			return 0, optimization.WrapOp(err, "solver", op)
		}
		state.Objective = step.Value
		state.StepScale = step.Scale
		state.PureObjective = s.problem.Objective(state.X)

		s.bounds.UpdateParameter()
		g := s.problem.InequalityConstraints(state.X)
		h := s.problem.EqualityConstraints(state.X)
		if err := s.constraints.UpdateMultipliers(g, h); err != nil {
			return 0, optimization.WrapOp(err, "solver", op)
		}

		for _, l := range s.loggers {
			l.Log(state, false)
		}

		if s.optimizer.Done(state) {
			return optimization.StatusConverged, nil
		}
	}
}

// adaptedValue is the objective in minimization form with the barrier and
// the augmented Lagrangian applied.
func (s *Solver) adaptedValue(x []float64) (float64, error) {
	f := s.info.Sense.Sign() * s.problem.Objective(x)
	v, err := s.bounds.AdaptedValue(x, f)
	if err != nil {
		return 0, err
	}
	return s.constraints.AdaptedValue(v,
		s.problem.InequalityConstraints(x),
		s.problem.EqualityConstraints(x),
	)
}

func (s *Solver) adaptedGradient(x []float64) ([]float64, error) {
	grad := s.problem.GradObjective(x)
	if len(grad) != len(x) {
		return nil, optimization.WrapError(vecutil.ErrIncompatibleLengths, "objective gradient")
	}
	grad = vecutil.Scaled(grad, s.info.Sense.Sign())

	grad, err := s.bounds.AdaptedGradient(x, grad)
	if err != nil {
		return nil, err
	}
	return s.constraints.AdaptedGradient(grad,
		s.problem.InequalityConstraints(x),
		s.problem.GradInequalityConstraints(x),
		s.problem.EqualityConstraints(x),
		s.problem.GradEqualityConstraints(x),
	)
}
