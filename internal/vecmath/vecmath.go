// Package vecmath provides small float64 vector helpers shared by the
// synaptic and spiking models.
package vecmath

import (
	"fmt"
	"math"
)

// Dot returns the dot product of a and b. It panics if the lengths differ.
func Dot(a, b []float64) float64 {
	mustMatch("Dot", a, b)
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place to unit L2 norm and returns the norm it had.
// A zero vector is left unchanged.
func Normalize(v []float64) float64 {
	norm := Norm(v)
	if norm == 0 {
		return 0
	}
	for i := range v {
		v[i] /= norm
	}
	return norm
}

// Sum returns the sum of the elements of v.
func Sum(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum
}

// Mean returns the arithmetic mean of v, or 0 for an empty slice.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return Sum(v) / float64(len(v))
}

// MeanAbsDiff returns the mean absolute elementwise difference between a and b.
// It panics if the lengths differ and returns 0 for empty inputs.
func MeanAbsDiff(a, b []float64) float64 {
	mustMatch("MeanAbsDiff", a, b)
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}

// Clamp restricts x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func mustMatch(op string, a, b []float64) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vecmath.%s: length mismatch (%d != %d)", op, len(a), len(b)))
	}
}
