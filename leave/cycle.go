package leave

import (
	"time"

	"github.com/warp/leave-engine/generic"
)

// FiscalCycle is the July 1 - June 30 leave cycle.
var FiscalCycle = generic.PeriodConfig{
	Type:                 generic.PeriodFiscalYear,
	FiscalYearStartMonth: time.July,
}

// CurrentCycleRange returns the fiscal leave cycle containing now: July 1
// 00:00 of the fiscal year through June 30 23:59:59.999 of the next year, in
// now's location.
func CurrentCycleRange(now time.Time) generic.Period {
	return FiscalCycle.PeriodFor(now)
}

// NextCycleStart returns the instant the cycle after the one containing now
// begins. The scheduler fires the yearly reset at this point.
func NextCycleStart(now time.Time) time.Time {
	return FiscalCycle.NextPeriod(CurrentCycleRange(now)).Start
}
