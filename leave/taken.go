package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE-TAKEN CALCULATOR
// =============================================================================

// Taken is the consumption side of an employee's state.
type Taken struct {
	// Window is [cycle start, min(cycle end, as-of)] at midnight.
	Window generic.Period
	ByType map[Type]decimal.Decimal
}

// ConsumptionWindow returns the part of cycle that has elapsed by asOf, with
// both bounds at midnight. It is empty when asOf precedes the cycle.
func ConsumptionWindow(cycle generic.Period, asOf time.Time) generic.Period {
	return generic.Period{
		Start: generic.Midnight(cycle.Start),
		End:   generic.Midnight(generic.MinTime(cycle.End, asOf)),
	}
}

// CalculateTaken counts working days of approved leave for employeeID inside
// the consumption window. Weekends and holidays never count.
func CalculateTaken(employeeID string, apps []Application, cycle generic.Period, asOf time.Time, holidays generic.HolidayCalendar, loc *time.Location) Taken {
	result := Taken{
		Window: ConsumptionWindow(cycle, asOf),
		ByType: make(map[Type]decimal.Decimal, len(Types)),
	}
	for _, t := range Types {
		result.ByType[t] = decimal.Zero
	}
	if holidays == nil {
		holidays = generic.NoHolidays{}
	}

	for _, app := range apps {
		if app.EmployeeID != employeeID || app.Status != StatusApproved || !app.Type.Supported() {
			continue
		}
		days, ok := applicationDays(app, result.Window, holidays, loc)
		if !ok {
			continue
		}
		result.ByType[app.Type] = result.ByType[app.Type].Add(days)
	}

	for _, t := range Types {
		result.ByType[t] = generic.Round1(result.ByType[t])
	}
	return result
}

// applicationDays returns the working days app consumes inside window.
// ok is false when the application's dates are unusable.
func applicationDays(app Application, window generic.Period, holidays generic.HolidayCalendar, loc *time.Location) (decimal.Decimal, bool) {
	from, ok := generic.ParseDate(app.From, loc)
	if !ok {
		return decimal.Zero, false
	}
	to, ok := generic.ParseDate(app.To, loc)
	if !ok {
		return decimal.Zero, false
	}
	if to.Before(from) {
		return decimal.Zero, false
	}

	clipped := generic.Period{Start: from, End: to}.Intersect(window)
	if clipped.IsEmpty() {
		return decimal.Zero, true
	}

	if app.HalfDay {
		// Only the half-day's own date can count; if clipping moved the
		// start, that date is outside the window.
		if !generic.SameDay(clipped.Start, from) || !generic.IsWorkday(clipped.Start, holidays) {
			return decimal.Zero, true
		}
		return generic.HalfDay, true
	}

	workdays := 0
	for _, day := range clipped.Days() {
		if generic.IsWorkday(day, holidays) {
			workdays++
		}
	}
	return decimal.NewFromInt(int64(workdays)), true
}
