package money

import (
	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places monetary values are
// rounded to when a rounding direction matters.
const PricePrecision = 8

// tolerance absorbs accumulated dust in quantity accounting. Remainders
// within this bound are treated as zero rather than raised as errors.
var tolerance = decimal.New(1, -PricePrecision)

// Tolerance returns the numeric tolerance used for zero comparisons.
func Tolerance() decimal.Decimal {
	return tolerance
}

// IsDust reports whether d is within tolerance of zero.
func IsDust(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(tolerance)
}

// EqualWithin reports whether a and b differ by no more than the tolerance.
func EqualWithin(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// FloorPrice rounds a price down to the supported precision.
// Used for long stop levels so the stop is never rounded optimistic.
func FloorPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(PricePrecision)
}

// CeilPrice rounds a price up to the supported precision.
// Used for short stop levels so the stop is never rounded optimistic.
func CeilPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(PricePrecision)
}
