// Package mathutil provides the decimal quantization helpers every venue
// adapter and the hedge strategy need to stay exchange-compatible:
// truncating/rounding a quantity to a lot size, and discovering how many
// significant fractional digits a price step carries.
package mathutil

import (
	"math"
	"strconv"
	"strings"
)

// Floor truncates x toward zero at the given number of decimals (for
// positive x this rounds toward -infinity; -1.239 at 2 decimals is -1.23).
// Returns 0 for x == 0 or when the scaled intermediate value rounds to zero.
func Floor(x float64, decimals int) float64 {
	if x == 0 {
		return 0
	}
	scale := math.Pow10(decimals)
	scaled := x * scale
	if scaled == 0 {
		return 0
	}
	return math.Trunc(scaled) / scale
}

// Ceil rounds x away from zero at the given number of decimals, analogous to
// Floor but rounding toward +infinity for positive x.
func Ceil(x float64, decimals int) float64 {
	if x == 0 {
		return 0
	}
	scale := math.Pow10(decimals)
	scaled := x * scale
	if scaled == 0 {
		return 0
	}
	truncated := math.Trunc(scaled)
	if scaled != truncated {
		if scaled > 0 {
			truncated++
		} else {
			truncated--
		}
	}
	return truncated / scale
}

// Prec returns the number of significant fractional digits in x: the
// exchange price/amount step it implies (e.g. 0.001 -> 3, 1 -> 0). Scientific
// notation is expanded before trailing zeros are stripped.
func Prec(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	s = strings.TrimPrefix(s, "-")
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(s[dot+1:], "0")
	return len(frac)
}

// RoundToLotSize floors value to the nearest multiple of lotSize at or below
// it. A non-positive lotSize is a no-op (the venue imposes no step).
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Trunc(value/lotSize) * lotSize
}

// RoundToLotSizeUp is the ceiling counterpart of RoundToLotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	units := value / lotSize
	truncated := math.Trunc(units)
	if units != truncated {
		truncated++
	}
	return truncated * lotSize
}

// Spread computes the normalized inter-venue spread between two prices:
// (high - low) / ((high + low) / 2). Anti-symmetric: Spread(a, b) ==
// -Spread(b, a), and Spread(a, a) == 0. Callers that report a spread value
// (logs, signals) floor it to 4 decimals with Floor separately.
func Spread(high, low float64) float64 {
	mid := (high + low) / 2
	if mid == 0 {
		return 0
	}
	return (high - low) / mid
}
