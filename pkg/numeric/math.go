// Package numeric provides small float64 helpers shared by the optimizer.
package numeric

import "math"

// IsFinite reports whether x is neither NaN nor ±Inf.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// ClampMin returns x, or min when x is below it.
func ClampMin(x, min float64) float64 {
	if x < min {
		return min
	}
	return x
}

// Max returns the largest of the given values, or 0 for none.
func Max(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest of the given values, or 0 for none.
func Min(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Mean returns the arithmetic mean, or 0 for none.
func Mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// GridPoint returns the i-th of n evenly spaced points over [lo, hi].
// The last point is exactly hi.
func GridPoint(lo, hi float64, i, n int) float64 {
	if n <= 1 || i <= 0 {
		return lo
	}
	if i >= n-1 {
		return hi
	}
	return lo + float64(i)*(hi-lo)/float64(n-1)
}

// Standardize z-scores x. A zero or non-finite scale yields 0.
func Standardize(x, mean, scale float64) float64 {
	if scale == 0 || !IsFinite(scale) {
		return 0
	}
	return (x - mean) / scale
}
