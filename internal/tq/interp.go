package tq

import "math"

// maxTau2 is the maximum allowed tau squared for monotonicity preservation in PCHIP.
const maxTau2 = 9.0

// hermiteInterp evaluates a cubic Hermite spline at xi given interval [xk, xk1],
// function values [yk, yk1], and derivatives [dk, dk1].
func hermiteInterp(xk, xk1, yk, yk1, dk, dk1, xi float64) float64 {
	h := xk1 - xk
	t := (xi - xk) / h
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return h00*yk + h10*h*dk + h01*yk1 + h11*h*dk1
}

// strictlyIncreasing reports whether x is strictly increasing.
func strictlyIncreasing(x []float64) bool {
	for i := 0; i < len(x)-1; i++ {
		if x[i+1] <= x[i] {
			return false
		}
	}
	return true
}

// findInterval returns the index k with x[k] <= xi <= x[k+1], or 0.
func findInterval(x []float64, xi float64) int {
	for i := 0; i < len(x)-1; i++ {
		if xi >= x[i] && xi <= x[i+1] {
			return i
		}
	}
	return 0
}

// Lerp performs linear interpolation (or extrapolation) through two points.
// Returns nil if the x values do not increase.
func Lerp(x, y [2]float64, xi float64) *float64 {
	if x[1] <= x[0] {
		return nil
	}

	t := (xi - x[0]) / (x[1] - x[0])
	result := t*(y[1]-y[0]) + y[0]
	return &result
}

// NaturalCubic evaluates a natural cubic spline through the points at xi.
// Requires at least 3 points and xi within [x[0], x[n-1]].
// Returns nil if interpolation is not possible.
func NaturalCubic(x, y []float64, xi float64) *float64 {
	n := len(x)
	if n < 3 || n != len(y) || xi < x[0] || xi > x[n-1] {
		return nil
	}
	if !strictlyIncreasing(x) {
		return nil
	}

	h := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = x[i+1] - x[i]
	}

	// Tridiagonal system for the second derivatives, natural boundary.
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	d := make([]float64, n)
	b[0], b[n-1] = 1, 1
	for i := 1; i < n-1; i++ {
		a[i] = h[i-1]
		b[i] = 2 * (h[i-1] + h[i])
		c[i] = h[i]
		d[i] = 3 * ((y[i+1]-y[i])/h[i] - (y[i]-y[i-1])/h[i-1])
	}

	m := make([]float64, n)
	l := make([]float64, n)
	z := make([]float64, n)
	l[0] = b[0]
	for i := 1; i < n; i++ {
		l[i] = b[i] - a[i]*c[i-1]/l[i-1]
		if l[i] == 0 {
			return nil
		}
		z[i] = (d[i] - a[i]*z[i-1]) / l[i]
	}
	m[n-1] = z[n-1]
	for i := n - 2; i >= 0; i-- {
		m[i] = z[i] - c[i]*m[i+1]/l[i]
	}

	k := findInterval(x, xi)
	dx := xi - x[k]
	hk := h[k]
	bCoeff := (y[k+1]-y[k])/hk - hk*(2*m[k]+m[k+1])/3
	dCoeff := (m[k+1] - m[k]) / (3 * hk)

	result := y[k] + bCoeff*dx + m[k]*dx*dx + dCoeff*dx*dx*dx
	return &result
}

// PCHIP performs piecewise cubic Hermite interpolation with the
// Fritsch-Carlson monotonicity constraint. Requires at least 3 points and
// xi within range. Returns nil if interpolation is not possible.
func PCHIP(x, y []float64, xi float64) *float64 {
	n := len(x)
	if n < 3 || n != len(y) || xi < x[0] || xi > x[n-1] {
		return nil
	}
	if !strictlyIncreasing(x) {
		return nil
	}

	// Segment slopes.
	s := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		s[i] = (y[i+1] - y[i]) / (x[i+1] - x[i])
	}

	// Derivatives: one-sided at the ends, weighted harmonic mean inside,
	// zeroed across sign changes.
	d := make([]float64, n)
	d[0] = s[0]
	d[n-1] = s[n-2]
	for i := 1; i < n-1; i++ {
		sPrev, sNext := s[i-1], s[i]
		if sPrev*sNext <= 0 {
			d[i] = 0
			continue
		}
		hPrev := x[i] - x[i-1]
		hNext := x[i+1] - x[i]
		w1 := 2*hNext + hPrev
		w2 := 2*hPrev + hNext
		d[i] = (w1 + w2) / (w1/sPrev + w2/sNext)
	}

	// Monotonicity clamp per segment.
	for i := 0; i < n-1; i++ {
		if s[i] == 0 {
			d[i] = 0
			d[i+1] = 0
			continue
		}
		alpha := d[i] / s[i]
		beta := d[i+1] / s[i]
		tau := alpha*alpha + beta*beta
		if tau > maxTau2 {
			scale := 3.0 / math.Sqrt(tau)
			d[i] = scale * alpha * s[i]
			d[i+1] = scale * beta * s[i]
		}
	}

	k := findInterval(x, xi)
	result := hermiteInterp(x[k], x[k+1], y[k], y[k+1], d[k], d[k+1], xi)
	return &result
}

// Akima performs Akima spline interpolation. Requires at least 5 points and
// xi within range. Returns nil if interpolation is not possible.
func Akima(x, y []float64, xi float64) *float64 {
	n := len(x)
	if n < 5 || len(y) != n {
		return nil
	}
	if !strictlyIncreasing(x) {
		return nil
	}
	if xi < x[0] || xi > x[n-1] {
		return nil
	}

	k := findInterval(x, xi)

	// Segment slopes m[1..n-1], extended at both boundaries.
	m := make([]float64, n+1)
	for i := 0; i < n-1; i++ {
		m[i+1] = (y[i+1] - y[i]) / (x[i+1] - x[i])
	}
	m[0] = 2*m[1] - m[2]
	m[n] = 2*m[n-1] - m[n-2]

	tan := make([]float64, n)
	for i := 0; i < n-1; i++ {
		w1 := math.Abs(m[i+2] - m[i+1])
		w2 := math.Abs(m[i] - m[i+1])

		if w1+w2 < 1e-10 {
			tan[i] = 0.5 * (m[i] + m[i+1])
		} else {
			tan[i] = (w1*m[i] + w2*m[i+1]) / (w1 + w2)
		}
	}
	tan[n-1] = m[n-1]

	result := hermiteInterp(x[k], x[k+1], y[k], y[k+1], tan[k], tan[k+1], xi)
	return &result
}
