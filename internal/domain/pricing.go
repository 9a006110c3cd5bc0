package domain

import "math"

// RoundToNine applies the display-price rounding rule: round half away from
// zero to an integer, then raise to the nearest value ending in 9. A value
// already ending in 9 is left untouched, so the rule is idempotent.
//
// 242 becomes 249, 250 becomes 259, 239 stays 239.
func RoundToNine(v float64) int64 {
	r := int64(math.Round(v))
	if rem := r % 10; rem != 9 {
		r += 9 - rem
	}
	return r
}
