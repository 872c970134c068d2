/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  This package holds the calendar and arithmetic primitives the leave
  calculators are written against: day amounts with fixed rounding, day
  normalization, periods, fiscal-year resolution and holiday calendars.
  Nothing here knows about leave types or employees.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: decimal day quantities (never float64)
  - RoundHalfUp / Round1: the single rounding rule used for every stored figure

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all day amounts
  2. Determinism: identical inputs give identical decimals and strings
  3. Half-up rounding toward +Inf, so -0.25 rounds to -0.2

USAGE:
  rate := generic.DaysPer(generic.NewDaysFromInt(10), 12) // 0.8333...
  accrued := generic.Round1(rate.Mul(decimal.NewFromInt(8))) // 6.7

SEE ALSO:
  - time.go: day normalization and holiday calendars
  - period.go: periods and fiscal year resolution
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Leave quantities
// =============================================================================

// NewDaysFromInt returns a whole-day amount.
func NewDaysFromInt(value int) decimal.Decimal {
	return decimal.NewFromInt(int64(value))
}

// DaysPer splits total evenly into n parts (e.g. a yearly allocation into months).
func DaysPer(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n)))
}

// HalfDay is the amount consumed by a half-day application.
var HalfDay = decimal.New(5, -1)

// =============================================================================
// ROUNDING
// =============================================================================

// RoundHalfUp rounds d to the given number of decimal places, with ties going
// toward positive infinity (floor(d*10^p + 0.5) / 10^p).
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	half := decimal.New(5, -(places + 1))
	return d.Add(half).RoundFloor(places)
}

// Round1 rounds to one decimal place. Every accrued, taken and balance figure
// goes through this.
func Round1(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, 1)
}
