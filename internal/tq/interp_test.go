package tq

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestLerp(t *testing.T) {
	tests := []struct {
		x, y     [2]float64
		xi       float64
		expected float64
	}{
		{[2]float64{0, 10}, [2]float64{0, 100}, 5, 50},
		{[2]float64{0, 10}, [2]float64{0, 100}, 0, 0},
		{[2]float64{0, 10}, [2]float64{0, 100}, 10, 100},
		// Extrapolation beyond the right endpoint is deliberate: the
		// search relies on it when both probes fall on one side.
		{[2]float64{6.5, 8.25}, [2]float64{35, 17.5}, 9.5, 5},
	}

	for _, tt := range tests {
		got := Lerp(tt.x, tt.y, tt.xi)
		if got == nil {
			t.Errorf("Lerp(%v, %v, %v) = nil", tt.x, tt.y, tt.xi)
			continue
		}
		if !almostEqual(*got, tt.expected, 1e-9) {
			t.Errorf("Lerp(%v, %v, %v) = %v, want %v", tt.x, tt.y, tt.xi, *got, tt.expected)
		}
	}
}

func TestLerpRejectsNonIncreasing(t *testing.T) {
	if got := Lerp([2]float64{5, 5}, [2]float64{1, 2}, 5); got != nil {
		t.Error("expected nil for equal x values")
	}
}

func TestNaturalCubicInterpolatesKnots(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{0, 1, 8, 27}

	for i := range x {
		got := NaturalCubic(x, y, x[i])
		if got == nil || !almostEqual(*got, y[i], 1e-9) {
			t.Errorf("NaturalCubic at knot %v = %v, want %v", x[i], got, y[i])
		}
	}

	// Between knots the spline stays within the hull of a monotone set.
	mid := NaturalCubic(x, y, 1.5)
	if mid == nil || *mid < 1 || *mid > 8 {
		t.Errorf("NaturalCubic(1.5) = %v, want within (1, 8)", mid)
	}
}

func TestNaturalCubicRejects(t *testing.T) {
	if got := NaturalCubic([]float64{0, 1}, []float64{0, 1}, 0.5); got != nil {
		t.Error("expected nil for 2 points")
	}
	if got := NaturalCubic([]float64{0, 1, 2}, []float64{0, 1, 2}, 5); got != nil {
		t.Error("expected nil outside range")
	}
	if got := NaturalCubic([]float64{0, 0, 2}, []float64{0, 1, 2}, 1); got != nil {
		t.Error("expected nil for non-increasing x")
	}
}

func TestPCHIPMonotone(t *testing.T) {
	// PCHIP must not overshoot on monotone data.
	x := []float64{0, 1, 2, 3}
	y := []float64{0, 0.1, 9.9, 10}

	prev := -1.0
	for xi := 0.0; xi <= 3.0; xi += 0.05 {
		got := PCHIP(x, y, xi)
		if got == nil {
			t.Fatalf("PCHIP(%v) = nil", xi)
		}
		if *got < prev-1e-9 {
			t.Fatalf("PCHIP not monotone at %v: %v < %v", xi, *got, prev)
		}
		if *got < -1e-9 || *got > 10+1e-9 {
			t.Fatalf("PCHIP overshoots at %v: %v", xi, *got)
		}
		prev = *got
	}
}

func TestPCHIPKnots(t *testing.T) {
	x := []float64{1, 2, 4}
	y := []float64{3, 5, 4}

	for i := range x {
		got := PCHIP(x, y, x[i])
		if got == nil || !almostEqual(*got, y[i], 1e-9) {
			t.Errorf("PCHIP at knot %v = %v, want %v", x[i], got, y[i])
		}
	}
}

func TestAkimaKnots(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{0, 2, 1, 3, 2}

	for i := range x {
		got := Akima(x, y, x[i])
		if got == nil || !almostEqual(*got, y[i], 1e-9) {
			t.Errorf("Akima at knot %v = %v, want %v", x[i], got, y[i])
		}
	}
}

func TestAkimaRejects(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{0, 1, 2, 3}
	if got := Akima(x, y, 1.5); got != nil {
		t.Error("expected nil for 4 points")
	}

	x5 := []float64{0, 1, 2, 3, 4}
	y5 := []float64{0, 1, 2, 3, 4}
	if got := Akima(x5, y5, -1); got != nil {
		t.Error("expected nil outside range")
	}
}

func TestAkimaLinearData(t *testing.T) {
	// On perfectly linear data every spline reduces to the line.
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{0, 2, 4, 6, 8}

	got := Akima(x, y, 2.5)
	if got == nil || !almostEqual(*got, 5, 1e-9) {
		t.Errorf("Akima(2.5) = %v, want 5", got)
	}
}
