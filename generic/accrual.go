package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL SCHEDULE - Interface for how entitlement accumulates
// =============================================================================

// AccrualSchedule generates accrual events for a time range.
// Implementations define the business logic (e.g. one event per month).
type AccrualSchedule interface {
	// GenerateAccruals returns accrual events in [from, to].
	GenerateAccruals(from, to time.Time) []AccrualEvent
}

// AccrualEvent represents a single accrual occurrence.
type AccrualEvent struct {
	At     time.Time
	Amount decimal.Decimal
	Reason string
}

// SumAccruals adds up the amounts of events.
func SumAccruals(events []AccrualEvent) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.Amount)
	}
	return total
}
