/*
state.go - Balance composer

PURPOSE:
  Combines the accrual and leave-taken calculators into the record stored
  on the employee. This is the single-employee entry point; the batch runner
  and tests both go through BuildEmployeeLeaveState.

BALANCE:
  balance = round1(accrued - taken), per type.
  Negative balances are kept as-is: leave approved ahead of accrual shows as
  a deficit rather than being clamped.

YEARLY CAP:
  There is no explicit clamp on accrual. Twelve qualifying months at
  allocation/12 round back to exactly the allocation for 10, 5 and 14 days.

IDEMPOTENCE:
  The output depends only on the inputs. Calling this twice with the same
  employee, applications, as-of, cycle and holidays yields equal Balances
  and identical JSON.
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Options control a single-employee computation. Zero values fall back to
// time.Now(), the cycle containing AsOf, no holidays, DefaultAllocations and
// time.Local.
type Options struct {
	AsOf        time.Time
	Cycle       generic.Period
	Holidays    generic.HolidayCalendar
	Allocations Allocations
	Location    *time.Location
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.AsOf.IsZero() {
		o.AsOf = time.Now()
	}
	o.AsOf = o.AsOf.In(o.Location)
	if o.Cycle.IsZero() {
		o.Cycle = CurrentCycleRange(o.AsOf)
	}
	if o.Holidays == nil {
		o.Holidays = generic.NoHolidays{}
	}
	o.Allocations = o.Allocations.orDefault()
	return o
}

// State is the full result for one employee.
type State struct {
	Balances Balances
	Accrued  Accrual
	Taken    Taken
	Cycle    generic.Period
}

// BuildEmployeeLeaveState computes emp's balances from scratch.
func BuildEmployeeLeaveState(emp Employee, apps []Application, opts Options) State {
	opts = opts.withDefaults()

	accrued := CalculateAccrual(emp, opts.Cycle, opts.AsOf, opts.Allocations, opts.Location)
	taken := CalculateTaken(emp.ID, apps, opts.Cycle, opts.AsOf, opts.Holidays, opts.Location)

	asOf := opts.AsOf
	balances := Balances{
		CycleStart:     opts.Cycle.Start,
		CycleEnd:       opts.Cycle.End,
		LastAccrualRun: &asOf,
	}
	for _, t := range Types {
		*balances.For(t) = composeType(opts.Allocations, t, accrued.ByType[t], taken.ByType[t])
	}

	return State{
		Balances: balances,
		Accrued:  accrued,
		Taken:    taken,
		Cycle:    opts.Cycle,
	}
}

func composeType(allocations Allocations, t Type, accrued, taken decimal.Decimal) TypeBalance {
	return TypeBalance{
		Balance:          generic.Round1(accrued.Sub(taken)),
		YearlyAllocation: allocations.Yearly(t),
		MonthlyAccrual:   displayRate(allocations, t),
		Accrued:          accrued,
		Taken:            taken,
	}
}
