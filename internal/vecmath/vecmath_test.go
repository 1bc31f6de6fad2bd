package vecmath

import (
	"math"
	"testing"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"simple", []float64{1, 2, 3}, []float64{4, 5, 6}, 32},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"negative inputs", []float64{-1, 1}, []float64{0.5, 0.5}, 0},
		{"empty", []float64{}, []float64{}, 0},
		{"nil", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dot(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Dot(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDot_LengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Dot with mismatched lengths did not panic")
		}
	}()
	Dot([]float64{1, 2}, []float64{1})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		vec      []float64
		wantNorm float64 // expected L2 norm after normalization
		wantPrev float64 // norm returned by Normalize
	}{
		{"standard vector", []float64{3, 4}, 1.0, 5.0},
		{"already normalized", []float64{1, 0, 0}, 1.0, 1.0},
		{"negative components", []float64{-3, 4}, 1.0, 5.0},
		{"zero vector unchanged", []float64{0, 0, 0}, 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Normalize(tt.vec)
			if math.Abs(prev-tt.wantPrev) > 1e-12 {
				t.Errorf("Normalize() returned %v, want %v", prev, tt.wantPrev)
			}
			if got := Norm(tt.vec); math.Abs(got-tt.wantNorm) > 1e-9 {
				t.Errorf("Normalize() resulting norm = %v, want %v", got, tt.wantNorm)
			}
		})
	}
}

func TestMeanAbsDiff(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 0},
		{"shifted", []float64{1, 1, 1, 1}, []float64{0, 0, 0, 0}, 1},
		{"mixed sign", []float64{-1, 1}, []float64{1, -1}, 2},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeanAbsDiff(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MeanAbsDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"inside", 0.5, 0.5},
		{"below", -1, 0},
		{"above", 2, 1},
		{"nan", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.x, 0, 1); got != tt.want {
				t.Errorf("Clamp(%v, 0, 1) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestMeanAndSum(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	if got := Sum(v); got != 10 {
		t.Errorf("Sum(%v) = %v, want 10", v, got)
	}
	if got := Mean(v); got != 2.5 {
		t.Errorf("Mean(%v) = %v, want 2.5", v, got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}
