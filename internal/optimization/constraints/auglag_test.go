package constraints

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

func TestNewAugmentedLagrangian(t *testing.T) {
	al := NewAugmentedLagrangian(2, 3, 10)
	assert.Equal(t, []float64{0, 0}, al.InequalityMultipliers())
	assert.Equal(t, []float64{0, 0, 0}, al.EqualityMultipliers())
	assert.Equal(t, 10.0, al.Penalty())

	assert.Equal(t, DefaultPenalty, NewAugmentedLagrangian(0, 0, math.NaN()).Penalty())
	assert.Equal(t, DefaultPenalty, NewAugmentedLagrangian(0, 0, math.Inf(1)).Penalty())
	assert.Equal(t, 1e-4, NewAugmentedLagrangian(0, 0, -5).Penalty())
}

func TestAdaptedValueWithoutConstraints(t *testing.T) {
	al := NewAugmentedLagrangian(0, 0, 1e9)
	v, err := al.AdaptedValue(3.5, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestAdaptedValue(t *testing.T) {
	const c = 4.0
	al := NewAugmentedLagrangian(2, 1, c)
	al.mu = []float64{0.5, 0}
	al.lambda = []float64{-1.5}

	g := []float64{0.25, -2}
	h := []float64{0.3}

	got, err := al.AdaptedValue(1, g, h)
	require.NoError(t, err)

	// Inactive second inequality: max(0, 0 + 4*-2) = 0 contributes -0/8.
	want := 1 + (-1.5 * 0.3) + 0.5*c*0.09 +
		(1/(2*c))*(math.Pow(0.5+c*0.25, 2)-0.25) +
		(1/(2*c))*(0-0)
	assert.InDelta(t, want, got, 1e-14)
}

func TestAdaptedGradientMatchesFiniteDifference(t *testing.T) {
	// f(x) = x0^2 + x1^2 + x2^2, g0 = 1 - x0 - x1, g1 = x2 - 5, h0 = x0*x1 - 0.5.
	f := func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] + x[2]*x[2] }
	gradF := func(x []float64) []float64 { return []float64{2 * x[0], 2 * x[1], 2 * x[2]} }
	g := func(x []float64) []float64 { return []float64{1 - x[0] - x[1], x[2] - 5} }
	gradG := func([]float64) [][]float64 { return [][]float64{{-1, -1, 0}, {0, 0, 1}} }
	h := func(x []float64) []float64 { return []float64{x[0]*x[1] - 0.5} }
	gradH := func(x []float64) [][]float64 { return [][]float64{{x[1], x[0], 0}} }

	al := NewAugmentedLagrangian(2, 1, 3)
	al.mu = []float64{0.7, 0.2}
	al.lambda = []float64{0.4}

	value := func(x []float64) float64 {
		v, err := al.AdaptedValue(f(x), g(x), h(x))
		require.NoError(t, err)
		return v
	}

	x := []float64{0.2, 0.3, 1}
	got, err := al.AdaptedGradient(gradF(x), g(x), gradG(x), h(x), gradH(x))
	require.NoError(t, err)

	const step = 1e-6
	for i := range x {
		xp := append([]float64(nil), x...)
		xm := append([]float64(nil), x...)
		xp[i] += step
		xm[i] -= step
		fd := (value(xp) - value(xm)) / (2 * step)
		assert.InDelta(t, fd, got[i], 1e-5, "component %d", i)
	}
}

func TestAdaptedGradientDoesNotModifyInput(t *testing.T) {
	al := NewAugmentedLagrangian(0, 1, 2)
	grad := []float64{1, 1}
	out, err := al.AdaptedGradient(grad, nil, nil, []float64{1}, [][]float64{{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, out)
	assert.Equal(t, []float64{1, 1}, grad)
}

func TestUpdateMultipliers(t *testing.T) {
	al := NewAugmentedLagrangian(2, 2, 10)

	require.NoError(t, al.UpdateMultipliers([]float64{0.1, -0.3}, []float64{0.2, -0.05}))
	assert.InDeltaSlice(t, []float64{1, 0}, al.InequalityMultipliers(), 1e-12)
	assert.InDeltaSlice(t, []float64{2, -0.5}, al.EqualityMultipliers(), 1e-12)

	// A satisfied inequality drives its multiplier to zero, never below.
	require.NoError(t, al.UpdateMultipliers([]float64{-1, -1}, []float64{0, -0.1}))
	assert.Equal(t, []float64{0, 0}, al.InequalityMultipliers())
	assert.InDeltaSlice(t, []float64{2, -1.5}, al.EqualityMultipliers(), 1e-12)
}

func TestMultiplierCopiesAreIndependent(t *testing.T) {
	al := NewAugmentedLagrangian(1, 1, 1)
	mu := al.InequalityMultipliers()
	mu[0] = 99
	assert.Equal(t, []float64{0}, al.InequalityMultipliers())
}

func TestLengthMismatches(t *testing.T) {
	al := NewAugmentedLagrangian(1, 1, 1)

	tests := []struct {
		name string
		call func() error
	}{
		{"value equality", func() error {
			_, err := al.AdaptedValue(0, []float64{0}, []float64{0, 1})
			return err
		}},
		{"value inequality", func() error {
			_, err := al.AdaptedValue(0, nil, []float64{0})
			return err
		}},
		{"gradient inequality rows", func() error {
			_, err := al.AdaptedGradient([]float64{0}, []float64{0}, nil, []float64{0}, [][]float64{{1}})
			return err
		}},
		{"gradient equality residuals", func() error {
			_, err := al.AdaptedGradient([]float64{0}, []float64{0}, [][]float64{{1}}, nil, [][]float64{{1}})
			return err
		}},
		{"gradient row length", func() error {
			_, err := al.AdaptedGradient([]float64{0}, []float64{0}, [][]float64{{1}}, []float64{0}, [][]float64{{1, 2}})
			return err
		}},
		{"update", func() error {
			return al.UpdateMultipliers([]float64{0, 0}, []float64{0})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), vecutil.ErrIncompatibleLengths)
		})
	}
}
