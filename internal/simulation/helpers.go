package simulation

import (
	"math"

	"github.com/nvandessel/nenv/internal/vecmath"
)

// MaxOf returns the largest value in xs, or -Inf when empty.
func MaxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = max(m, x)
	}
	return m
}

// MeanOf returns the mean of xs.
func MeanOf(xs []float64) float64 {
	return vecmath.Mean(xs)
}

// MaxGain returns the largest single-step increase of series over (from, to).
func MaxGain(series []float64, from, to int) float64 {
	best := math.Inf(-1)
	for i := from + 1; i < to && i < len(series); i++ {
		best = max(best, series[i]-series[i-1])
	}
	return best
}
