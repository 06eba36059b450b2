package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds v up to the next multiple of granularity, which must be a power of two.
func AlignUp[T constraints.Unsigned](v, granularity T) T {
	if granularity == 0 {
		return v
	}
	return (v + granularity - 1) &^ (granularity - 1)
}

func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}
