// Package math32 provides float32 vector primitives shared by the snapshot
// loader and the search backends.
//
// All kernels are plain sequential loops. Norms computed at load time and
// dot products computed at query time must accumulate in the same order,
// otherwise a stored vector queried against itself would not score exactly 1.
package math32

import "math"

// Dot calculates the dot product of two vectors.
// The caller guarantees len(a) == len(b).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredNorm returns the sum of squares of v.
func SquaredNorm(v []float32) float32 {
	var sum float32
	for i := range v {
		sum += v[i] * v[i]
	}

	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return Sqrt(SquaredNorm(v))
}

// Sqrt returns the square root of x.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// IsFinite reports whether x is neither infinite nor NaN.
func IsFinite(x float32) bool {
	return !math.IsInf(float64(x), 0) && !math.IsNaN(float64(x))
}
