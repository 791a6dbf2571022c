package bounds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

var box = []optimization.Bound{
	{Lower: 1.1, Upper: 3.213},
	{Lower: math.Inf(-1), Upper: 2},
	{Lower: -1, Upper: math.Inf(1)},
	optimization.Free(),
}

func TestNewBarrier(t *testing.T) {
	tests := []struct {
		name          string
		parameter     float64
		decrease      float64
		wantParameter float64
		wantDecrease  float64
	}{
		{"defaults", 1e-6, 0.5, 1e-6, 0.5},
		{"zero parameter", 0, 0.5, DefaultParameter, 0.5},
		{"negative parameter", -1, 0.5, DefaultParameter, 0.5},
		{"nan parameter", math.NaN(), 0.5, DefaultParameter, 0.5},
		{"parameter below floor", 1e-320, 0.5, minParameter, 0.5},
		{"decrease above one", 1, 3, 1, 1 - 1e-4},
		{"decrease zero", 1, 0, 1, 1e-4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBarrier(box, tt.parameter, tt.decrease)
			assert.Equal(t, tt.wantParameter, b.Parameter())
			assert.Equal(t, tt.wantDecrease, b.decrease)
		})
	}
}

func TestBarrierValue(t *testing.T) {
	mu := 0.1
	b := NewBarrier(box, mu, 0.5)
	x := []float64{2, 0, 0, 100}

	got, err := b.AdaptedValue(x, 5)
	require.NoError(t, err)

	want := 5 -
		mu*math.Log(2-1.1) - mu*math.Log(3.213-2) -
		mu*math.Log(2-0) -
		mu*math.Log(0-(-1))
	assert.InDelta(t, want, got, 1e-14)
}

func TestBarrierDiscouragesBoundaries(t *testing.T) {
	b := NewBarrier([]optimization.Bound{{Lower: 0, Upper: 1}}, 1, 0.5)

	mid, err := b.AdaptedValue([]float64{0.5}, 0)
	require.NoError(t, err)
	nearLower, err := b.AdaptedValue([]float64{1e-9}, 0)
	require.NoError(t, err)
	nearUpper, err := b.AdaptedValue([]float64{1 - 1e-9}, 0)
	require.NoError(t, err)

	assert.Greater(t, nearLower, mid)
	assert.Greater(t, nearUpper, mid)

	outside, err := b.AdaptedValue([]float64{-0.5}, 0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(outside))

	onBoundary, err := b.AdaptedValue([]float64{0}, 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(onBoundary, 1))
}

func TestBarrierGradientMatchesFiniteDifference(t *testing.T) {
	b := NewBarrier(box, 0.3, 0.5)
	x := []float64{1.7, 0.4, 2.5, -3}
	grad := []float64{1, -2, 0.5, 4}

	// Pair the plain gradient with a linear objective so the finite
	// difference of the adapted value isolates the barrier term.
	f := func(p []float64) float64 {
		s, _ := vecutil.Dot(grad, p)
		v, err := b.AdaptedValue(p, s)
		require.NoError(t, err)
		return v
	}

	got, err := b.AdaptedGradient(x, grad)
	require.NoError(t, err)

	const h = 1e-6
	for i := range x {
		xp := append([]float64(nil), x...)
		xm := append([]float64(nil), x...)
		xp[i] += h
		xm[i] -= h
		fd := (f(xp) - f(xm)) / (2 * h)
		assert.InDelta(t, fd, got[i], 1e-6, "component %d", i)
	}
	assert.Equal(t, 4.0, got[3], "free variable gradient passes through")
}

func TestBarrierUpdateParameter(t *testing.T) {
	b := NewBarrier(box, 1e-6, 0.5)
	prev := b.Parameter()
	for i := 0; i < 100; i++ {
		b.UpdateParameter()
		cur := b.Parameter()
		assert.InDelta(t, prev*0.5, cur, 1e-300)
		assert.Greater(t, cur, 0.0)
		prev = cur
	}
}

func TestBarrierParameterFloor(t *testing.T) {
	b := NewBarrier(box, 1e-6, 0.5)
	for i := 0; i < 2000; i++ {
		b.UpdateParameter()
	}
	assert.Equal(t, minParameter, b.Parameter())

	inside := []float64{2, 0, 0, 5}
	v, err := b.AdaptedValue(inside, 3)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "value %v", v)
	assert.InDelta(t, 3.0, v, 1e-12)

	onBound := []float64{1.1, 0, 0, 5}
	v, err = b.AdaptedValue(onBound, 3)
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, 1), "value %v", v)

	grad, err := b.AdaptedGradient(inside, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	for i, g := range grad {
		assert.False(t, math.IsNaN(g), "component %d", i)
	}
}

func TestBarrierLengthMismatch(t *testing.T) {
	b := NewBarrier(box, 1e-6, 0.5)

	_, err := b.AdaptedValue([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, vecutil.ErrIncompatibleLengths)

	_, err = b.AdaptedGradient([]float64{2, 0, 0, 0}, []float64{1})
	assert.ErrorIs(t, err, vecutil.ErrIncompatibleLengths)

	_, err = b.AdaptedGradient([]float64{2}, []float64{1, 1, 1, 1})
	assert.ErrorIs(t, err, vecutil.ErrIncompatibleLengths)
}

func TestBarrierCopiesBounds(t *testing.T) {
	bs := []optimization.Bound{{Lower: 0, Upper: 1}}
	b := NewBarrier(bs, 1, 0.5)
	bs[0].Lower = -10

	v, err := b.AdaptedValue([]float64{-1}, 0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}
