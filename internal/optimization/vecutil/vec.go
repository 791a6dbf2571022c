// Package vecutil provides length-checked vector primitives on []float64.
//
// The arithmetic itself is delegated to gonum's floats package, which panics
// on mismatched operands. Every pairwise operation here checks lengths first
// and reports ErrIncompatibleLengths instead, so callers can propagate the
// failure rather than crash or silently truncate.
package vecutil

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrIncompatibleLengths is returned by pairwise operations whose operands
// differ in length.
var ErrIncompatibleLengths = errors.New("incompatible vector lengths")

func incompatible(op string, a, b []float64) error {
	return fmt.Errorf("%s: %w: %d != %d", op, ErrIncompatibleLengths, len(a), len(b))
}

// Dot returns the inner product of a and b.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, incompatible("dot", a, b)
	}
	return floats.Dot(a, b), nil
}

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	return floats.Norm(v, 2)
}

// NormSqr returns the squared Euclidean norm of v.
func NormSqr(v []float64) float64 {
	return floats.Dot(v, v)
}

// Scaled returns a new slice holding s*v.
func Scaled(v []float64, s float64) []float64 {
	dst := make([]float64, len(v))
	floats.ScaleTo(dst, s, v)
	return dst
}

// Add returns a new slice holding a+b.
func Add(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, incompatible("add", a, b)
	}
	dst := make([]float64, len(a))
	floats.AddTo(dst, a, b)
	return dst, nil
}

// Sub returns a new slice holding a-b.
func Sub(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, incompatible("sub", a, b)
	}
	dst := make([]float64, len(a))
	floats.SubTo(dst, a, b)
	return dst, nil
}

// AddScaled stores y + alpha*s into dst and returns dst. A nil dst is
// allocated; otherwise all three slices must share a length.
func AddScaled(dst, y []float64, alpha float64, s []float64) ([]float64, error) {
	if len(y) != len(s) {
		return nil, incompatible("add scaled", y, s)
	}
	if dst == nil {
		dst = make([]float64, len(y))
	}
	if len(dst) != len(y) {
		return nil, incompatible("add scaled", dst, y)
	}
	floats.AddScaledTo(dst, y, alpha, s)
	return dst, nil
}
