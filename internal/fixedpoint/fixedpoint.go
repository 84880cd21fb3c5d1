// Package fixedpoint converts between human-readable floating-point
// quantities and the signed 64-bit integer units the chain actually
// stores, and compares sizes the only way that is safe across that
// boundary: as integers.
//
// Every size and price comparison between an in-memory grid slot and a
// chain order goes through here. Float equality is never acceptable for
// that comparison — see spec §4.1.
package fixedpoint

import (
	"log/slog"
	"math"
)

// ToInt converts x to an integer count of 10^-p units, rounding to the
// nearest unit and saturating to the signed-64 range. Overflow is logged
// as a warning rather than returned as an error, matching the spec's
// "clamp with a logged warning" policy; callers that need to fail fast on
// overflow (order submission) check the result against math.MaxInt64 /
// math.MinInt64 themselves.
func ToInt(x float64, p int) int64 {
	scaled := x * math.Pow10(p)
	rounded := math.Round(scaled)

	if rounded > math.MaxInt64 {
		slog.Warn("fixedpoint: overflow converting to int, saturating",
			"value", x, "precision", p, "scaled", scaled)
		return math.MaxInt64
	}
	if rounded < math.MinInt64 {
		slog.Warn("fixedpoint: underflow converting to int, saturating",
			"value", x, "precision", p, "scaled", scaled)
		return math.MinInt64
	}
	return int64(rounded)
}

// ToFloat converts n integer units at precision p back to a human value.
func ToFloat(n int64, p int) float64 {
	return float64(n) / math.Pow10(p)
}

// SizesEqual reports whether a and b are equal once rounded to integer
// units at precision p, allowing a delta of at most one unit (spec §4.1).
func SizesEqual(a, b float64, p int) bool {
	return IntDelta(a, b, p) <= 1
}

// IntDelta returns the absolute difference, in integer units at precision
// p, between a and b.
func IntDelta(a, b float64, p int) int64 {
	d := ToInt(a, p) - ToInt(b, p)
	if d < 0 {
		return -d
	}
	return d
}

// ValidForOrder reports whether x, converted to integer units at
// precision p, lies in (0, 2^63-1); a result of exactly 2^63-1 is the
// saturated overflow value and is rejected. Used to validate amountToSell and
// minToReceive before submitting a create order — the spec requires
// failing fast rather than submitting a zero or overflowed amount.
func ValidForOrder(x float64, p int) bool {
	n := ToInt(x, p)
	return n > 0 && n < math.MaxInt64
}
