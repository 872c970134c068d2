package generic

import "time"

// =============================================================================
// PERIOD - A closed date window
// =============================================================================

// Period is a closed window [Start, End]. End may carry a time of day (a
// fiscal cycle ends at 23:59:59.999); day-level operations normalize it.
type Period struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

// IsEmpty reports whether the window is inverted.
func (p Period) IsEmpty() bool { return p.End.Before(p.Start) }

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Intersect returns the overlap of p and other. The result may be empty.
func (p Period) Intersect(other Period) Period {
	return Period{Start: MaxTime(p.Start, other.Start), End: MinTime(p.End, other.End)}
}

// Days returns every calendar day in the period, starting at Start's midnight.
func (p Period) Days() []time.Time {
	var days []time.Time
	last := Midnight(p.End)
	for d := Midnight(p.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Years returns the first and last calendar year touched by the period.
func (p Period) Years() (int, int) {
	return p.Start.Year(), p.End.Year()
}

func (p Period) String() string {
	return "[" + DateKey(p.Start) + ", " + DateKey(p.End) + "]"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodFiscalYear   PeriodType = "fiscal_year"   // Custom start (e.g., Jul 1)
)

// PeriodConfig defines how to calculate periods.
type PeriodConfig struct {
	Type PeriodType

	// For fiscal year: which month starts the fiscal year
	FiscalYearStartMonth time.Month
}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period containing date. Start is midnight of the first
// day and End is the last millisecond of the last day, both in date's location.
func (pc PeriodConfig) PeriodFor(date time.Time) Period {
	switch pc.Type {
	case PeriodFiscalYear:
		return pc.fiscalYearPeriod(date)
	default:
		start := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, date.Location())
		return Period{Start: start, End: EndOfDay(start.AddDate(1, 0, -1))}
	}
}

// FiscalYear returns the year in which the fiscal year containing date started.
func (pc PeriodConfig) FiscalYear(date time.Time) int {
	if date.Month() >= pc.startMonth() {
		return date.Year()
	}
	return date.Year() - 1
}

func (pc PeriodConfig) fiscalYearPeriod(date time.Time) Period {
	start := time.Date(pc.FiscalYear(date), pc.startMonth(), 1, 0, 0, 0, 0, date.Location())
	return Period{Start: start, End: EndOfDay(start.AddDate(1, 0, -1))}
}

func (pc PeriodConfig) startMonth() time.Month {
	if pc.FiscalYearStartMonth < time.January || pc.FiscalYearStartMonth > time.December {
		return time.January
	}
	return pc.FiscalYearStartMonth
}

// NextPeriod returns the period following p under the same config.
func (pc PeriodConfig) NextPeriod(p Period) Period {
	return pc.PeriodFor(Midnight(p.End).AddDate(0, 0, 1))
}
