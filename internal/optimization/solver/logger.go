package solver

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
)

// IterationLogger observes the solver state once per outer iteration and
// once more, forced, when the solve terminates. Values in state are in
// minimization form; loggers convert them with state.Sense.Sign().
type IterationLogger interface {
	Log(state *optimization.State, ignoreFrequency bool)
}

// throttle decides whether an iteration is printed. Forced calls are dropped
// when that iteration was already printed.
type throttle struct {
	mu        sync.Mutex
	frequency int
	last      int
	printed   bool
}

func (t *throttle) allow(iteration int, force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.printed && t.last == iteration {
		return false
	}
	if !force && iteration%t.frequency != 0 {
		return false
	}
	t.last, t.printed = iteration, true
	return true
}

// WriterLogger writes one fixed-width line per logged iteration.
type WriterLogger struct {
	w io.Writer
	throttle
}

// NewWriterLogger returns a logger writing to w every frequency-th
// iteration. A nil w means os.Stdout.
func NewWriterLogger(w io.Writer, frequency int) *WriterLogger {
	if w == nil {
		w = os.Stdout
	}
	return &WriterLogger{w: w, throttle: throttle{frequency: max(frequency, 1)}}
}

// Log implements IterationLogger. Write errors are ignored.
func (l *WriterLogger) Log(state *optimization.State, ignoreFrequency bool) {
	if !l.allow(state.Iteration, ignoreFrequency) {
		return
	}
	_, _ = fmt.Fprintf(l.w, "iteration %5d | objective %20.8f (actual: %14.8f) | change: %14.8f\n",
		state.Iteration,
		state.Sense.Sign()*state.Objective,
		state.PureObjective,
		state.Change(),
	)
}

// ZapLogger emits one Info entry per logged iteration.
type ZapLogger struct {
	logger *zap.Logger
	throttle
}

// NewZapLogger returns a logger writing to logger every frequency-th
// iteration. A nil logger discards everything.
func NewZapLogger(logger *zap.Logger, frequency int) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger, throttle: throttle{frequency: max(frequency, 1)}}
}

// Log implements IterationLogger.
func (l *ZapLogger) Log(state *optimization.State, ignoreFrequency bool) {
	if !l.allow(state.Iteration, ignoreFrequency) {
		return
	}
	l.logger.Info("Iteration",
		zap.Int("iteration", state.Iteration),
		zap.Float64("objective", state.Sense.Sign()*state.Objective),
		zap.Float64("actual_objective", state.PureObjective),
		zap.Float64("change", state.Change()),
		zap.Float64("step_scale", state.StepScale),
	)
}
