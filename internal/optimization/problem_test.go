package optimization

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boxProblem struct {
	Unconstrained

	info   Info
	bounds []Bound
	x0     []float64
}

func (p *boxProblem) Info() Info                          { return p.info }
func (p *boxProblem) Bounds() []Bound                     { return p.bounds }
func (p *boxProblem) Objective(x []float64) float64       { return x[0] }
func (p *boxProblem) GradObjective(x []float64) []float64 { return []float64{1} }
func (p *boxProblem) InitialGuess() []float64             { return p.x0 }

func validBox() *boxProblem {
	return &boxProblem{
		info:   Info{Variables: 2, InequalityConstraints: 1, EqualityConstraints: 0, Sense: Maximize},
		bounds: []Bound{{Lower: 1.1, Upper: 3.213}, Free()},
		x0:     []float64{2, 0},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *boxProblem)
		ok     bool
	}{
		{"valid", func(*boxProblem) {}, true},
		{"zero variables", func(p *boxProblem) { p.info.Variables = 0 }, false},
		{"negative constraints", func(p *boxProblem) { p.info.EqualityConstraints = -1 }, false},
		{"unknown sense", func(p *boxProblem) { p.info.Sense = Sense(7) }, false},
		{"missing bound", func(p *boxProblem) { p.bounds = p.bounds[:1] }, false},
		{"crossed bound", func(p *boxProblem) { p.bounds[0] = Bound{Lower: 2, Upper: 1} }, false},
		{"nan bound", func(p *boxProblem) { p.bounds[1].Upper = math.NaN() }, false},
		{"degenerate bound", func(p *boxProblem) { p.bounds[0] = Bound{Lower: 1, Upper: 1} }, true},
		{"short guess", func(p *boxProblem) { p.x0 = []float64{1} }, false},
		{"guess outside bounds", func(p *boxProblem) { p.x0 = []float64{10, 0} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validBox()
			tt.mutate(p)
			err := Validate(p)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidProblem)

			e, ok := IsOptimizationError(err)
			require.True(t, ok)
			assert.Equal(t, "problem", e.Component)
			assert.Equal(t, "Validate", e.Op)
		})
	}

	assert.ErrorIs(t, Validate(nil), ErrInvalidProblem)
}

func TestDescribe(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Describe(&buf, validBox()))

	want := "NLP information: number of variables: 2\n" +
		"number of inequality constraints: 1\n" +
		"number of equality constraints: 0\n" +
		"objective sense: Max\n" +
		"bounds for variable no. 0: (1.1, 3.213)\n" +
		"bounds for variable no. 1: (-Inf, +Inf)\n"
	assert.Equal(t, want, buf.String())
}

func TestSense(t *testing.T) {
	assert.Equal(t, 1.0, Minimize.Sign())
	assert.Equal(t, -1.0, Maximize.Sign())
	assert.Equal(t, "Min", Minimize.String())
	assert.Equal(t, "Max", Maximize.String())

	for in, want := range map[string]Sense{"": Minimize, "MIN": Minimize, "minimize": Minimize, "max": Maximize, "Maximize": Maximize} {
		got, err := ParseSense(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSense("up")
	assert.Error(t, err)
}

func TestBound(t *testing.T) {
	b := Free()
	assert.False(t, b.HasLower())
	assert.False(t, b.HasUpper())

	b = Bound{Lower: 0, Upper: math.Inf(1)}
	assert.True(t, b.HasLower())
	assert.False(t, b.HasUpper())

	assert.Len(t, FreeBounds(3), 3)
}

func TestSolutionString(t *testing.T) {
	s := &Solution{BestObjectiveValue: 1.21, X: []float64{1.1}, Iterations: 17, Status: StatusConverged}
	assert.Equal(t, "best objective value: 1.21\nbest solution: [1.1]\nin 17 iterations", s.String())
	assert.True(t, s.Converged())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status    Status
		name      string
		converged bool
	}{
		{StatusConverged, "converged", true},
		{StatusFlatDirection, "flat_direction", true},
		{StatusIterationLimit, "iteration_limit", false},
		{StatusLineSearchFailure, "line_search_failure", false},
		{StatusCancelled, "cancelled", false},
		{Status(42), "status(42)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.converged, tt.status.Converged())
		})
	}
}

func TestStateChange(t *testing.T) {
	s := &State{Objective: 1, ObjectivePrevious: 1.5}
	assert.Equal(t, 0.5, s.Change())
	s.ObjectivePrevious = math.Inf(1)
	assert.True(t, math.IsInf(s.Change(), 1))
}

func TestError(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"message only", NewError("bad"), "bad"},
		{"formatted", NewErrorf("bad %d", 3), "bad 3"},
		{"component and op", NewError("bad").WithComponent("bounds").WithOperation("Barrier.AdaptedValue"), "bounds: Barrier.AdaptedValue: bad"},
		{"component", NewError("bad").WithComponent("bounds"), "bounds: bad"},
		{"op", NewError("bad").WithOperation("Solve"), "Solve: bad"},
		{"wrapped", WrapError(cause, "context"), "context: cause"},
		{"wrapped op", WrapOp(cause, "solver", "Solve"), "solver: Solve: cause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, WrapOp(cause, "a", "b"), cause)
	assert.Nil(t, WrapError(nil, "x"))
	assert.Nil(t, WrapOp(nil, "a", "b"))

	_, ok := IsOptimizationError(cause)
	assert.False(t, ok)
}
