package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Min/Max for convenience.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// StepUp adds step to v and saturates at hi. The bool reports saturation.
func StepUp[T constraints.Integer](v, step, hi T) (T, bool) {
	if v >= hi || hi-v <= step {
		return hi, true
	}
	return v + step, false
}

// StepDown subtracts step from v and saturates at lo. The bool reports saturation.
func StepDown[T constraints.Integer](v, step, lo T) (T, bool) {
	if v <= lo || v-lo <= step {
		return lo, true
	}
	return v - step, false
}
