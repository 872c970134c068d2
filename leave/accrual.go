/*
accrual.go - Entitlement accrued over the employment window

PURPOSE:
  Computes how many months of the fiscal cycle an employee has served by the
  as-of date and turns that into accrued days per leave type.

EMPLOYMENT WINDOW:
  start: internship start, else full-time start, else start date
         (none usable: cycle start, flagged on the result)
  end:   end date, else full-time end date, else cycle end
  The effective window is employment ∩ cycle. An empty intersection accrues
  nothing.

QUALIFYING MONTHS:
  Months are walked from the effective start's month to the month of
  min(effective end, as-of). A month qualifies when
  min(month end, effective end) >= max(month start, effective start),
  so the as-of month counts as soon as it has started. Whole months only;
  there is no day-level proration.

EXAMPLE:
  Cycle 2024-07-01..2025-06-30, start 2024-11-01, as-of 2025-06-30:
  8 qualifying months, annual = round1(10/12 * 8) = 6.7

SEE ALSO:
  - generic/accrual.go: AccrualSchedule interface
  - state.go: composes accrued with taken
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// EMPLOYMENT WINDOW
// =============================================================================

// EmploymentWindow is the employee's service resolved against a cycle.
type EmploymentWindow struct {
	Employment generic.Period
	Effective  generic.Period

	// StartFallbackCycleStart is set when no start date could be parsed and
	// the cycle start was used instead. Such an employee accrues as if present
	// for the whole cycle.
	StartFallbackCycleStart bool
}

// ResolveEmploymentWindow intersects the employee's employment dates with
// cycle. Dates are parsed in loc.
func ResolveEmploymentWindow(emp Employee, cycle generic.Period, loc *time.Location) EmploymentWindow {
	var w EmploymentWindow

	start, ok := firstDate(loc, emp.InternshipStartDate, emp.FullTimeStartDate, emp.StartDate)
	if !ok {
		start = cycle.Start
		w.StartFallbackCycleStart = true
	}
	end, ok := firstDate(loc, emp.EndDate, emp.FullTimeEndDate)
	if !ok {
		end = cycle.End
	}

	w.Employment = generic.Period{Start: start, End: end}
	w.Effective = w.Employment.Intersect(cycle)
	return w
}

func firstDate(loc *time.Location, candidates ...string) (time.Time, bool) {
	for _, c := range candidates {
		if d, ok := generic.ParseDate(c, loc); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// =============================================================================
// MONTHLY ACCRUAL SCHEDULE
// =============================================================================

var _ generic.AccrualSchedule = MonthlyAccrual{}

// MonthlyAccrual implements generic.AccrualSchedule: one event per qualifying
// month of Window, each worth Rate.
type MonthlyAccrual struct {
	Window generic.Period
	Rate   decimal.Decimal
}

// GenerateAccruals returns one event per qualifying month between from and to.
// Events are dated at the start of the active part of each month.
func (ma MonthlyAccrual) GenerateAccruals(from, to time.Time) []generic.AccrualEvent {
	window := ma.Window.Intersect(generic.Period{Start: from, End: to})
	if window.IsEmpty() {
		return nil
	}

	limit := generic.Midnight(window.End)
	windowEnd := generic.Midnight(ma.Window.End)
	var events []generic.AccrualEvent
	for month := generic.StartOfMonth(window.Start); !month.After(limit); month = month.AddDate(0, 1, 0) {
		activeStart := generic.MaxTime(month, generic.Midnight(ma.Window.Start))
		boundary := generic.MinTime(generic.EndOfMonth(month), windowEnd)
		if boundary.Before(activeStart) {
			continue
		}
		events = append(events, generic.AccrualEvent{
			At:     activeStart,
			Amount: ma.Rate,
			Reason: "monthly accrual",
		})
	}
	return events
}

// =============================================================================
// ACCRUAL CALCULATOR
// =============================================================================

// Accrual is the accrual side of an employee's state.
type Accrual struct {
	Window EmploymentWindow
	Months int
	ByType map[Type]decimal.Decimal
}

// CalculateAccrual returns the accrued days per type for emp in cycle as of
// asOf. Months after asOf or after the employment end never accrue.
func CalculateAccrual(emp Employee, cycle generic.Period, asOf time.Time, allocations Allocations, loc *time.Location) Accrual {
	allocations = allocations.orDefault()
	result := Accrual{
		Window: ResolveEmploymentWindow(emp, cycle, loc),
		ByType: make(map[Type]decimal.Decimal, len(Types)),
	}
	for _, t := range Types {
		result.ByType[t] = decimal.Zero
	}

	effective := result.Window.Effective
	if effective.IsEmpty() {
		return result
	}

	until := generic.MinTime(effective.End, generic.EndOfDay(asOf))
	for _, t := range Types {
		schedule := MonthlyAccrual{Window: effective, Rate: allocations.MonthlyRate(t)}
		events := schedule.GenerateAccruals(effective.Start, until)
		result.Months = len(events)
		result.ByType[t] = generic.Round1(generic.SumAccruals(events))
	}
	return result
}
