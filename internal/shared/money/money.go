// Package money holds the rounding policy for intermediate monetary values.
package money

import "github.com/shopspring/decimal"

const (
	// Scale is the number of fractional digits kept for amounts.
	Scale int32 = 4
	// RateScale is the number of fractional digits kept for periodic rates.
	RateScale int32 = 8
)

// Round4 rounds half-up (away from zero) to four fractional digits.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// RoundRate rounds a periodic rate half-up to eight fractional digits.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// Div divides and rounds the quotient to four fractional digits. The
// intermediate quotient keeps extra precision so the half-up decision is exact.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, Scale)
}

// Max returns the larger of two amounts.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MustParse parses a decimal literal and panics on malformed input.
// Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
