package leave

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// BALANCES - Per-employee projection
// =============================================================================

// TypeBalance is the stored state for one leave type.
type TypeBalance struct {
	Balance          decimal.Decimal `json:"balance"`
	YearlyAllocation decimal.Decimal `json:"yearlyAllocation"`
	MonthlyAccrual   decimal.Decimal `json:"monthlyAccrual"`
	Accrued          decimal.Decimal `json:"accrued"`
	Taken            decimal.Decimal `json:"taken"`
}

// MarshalJSON writes the amounts as JSON numbers, the way the portal stores
// them. Decoding accepts numbers and quoted strings.
func (b TypeBalance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Balance          json.Number `json:"balance"`
		YearlyAllocation json.Number `json:"yearlyAllocation"`
		MonthlyAccrual   json.Number `json:"monthlyAccrual"`
		Accrued          json.Number `json:"accrued"`
		Taken            json.Number `json:"taken"`
	}{
		Balance:          json.Number(b.Balance.String()),
		YearlyAllocation: json.Number(b.YearlyAllocation.String()),
		MonthlyAccrual:   json.Number(b.MonthlyAccrual.String()),
		Accrued:          json.Number(b.Accrued.String()),
		Taken:            json.Number(b.Taken.String()),
	})
}

func (b TypeBalance) Equal(other TypeBalance) bool {
	return b.Balance.Equal(other.Balance) &&
		b.YearlyAllocation.Equal(other.YearlyAllocation) &&
		b.MonthlyAccrual.Equal(other.MonthlyAccrual) &&
		b.Accrued.Equal(other.Accrued) &&
		b.Taken.Equal(other.Taken)
}

// Balances is the leaveBalances sub-record of an employee. It is a derived
// projection: every recomputation replaces it whole.
type Balances struct {
	Annual         TypeBalance `json:"annual"`
	Casual         TypeBalance `json:"casual"`
	Medical        TypeBalance `json:"medical"`
	CycleStart     time.Time   `json:"cycleStart"`
	CycleEnd       time.Time   `json:"cycleEnd"`
	LastAccrualRun *time.Time  `json:"lastAccrualRun,omitempty"`
}

// For returns the balance slot for t, or nil for unsupported types.
func (b *Balances) For(t Type) *TypeBalance {
	switch t {
	case TypeAnnual:
		return &b.Annual
	case TypeCasual:
		return &b.Casual
	case TypeMedical:
		return &b.Medical
	}
	return nil
}

// Get returns a copy of the balance for t.
func (b Balances) Get(t Type) TypeBalance {
	if slot := b.For(t); slot != nil {
		return *slot
	}
	return TypeBalance{}
}

// Equal is the deep-equality check the batch runner uses to skip writes.
// Times compare by instant, decimals by value.
func (b Balances) Equal(other Balances) bool {
	for _, t := range Types {
		if !b.Get(t).Equal(other.Get(t)) {
			return false
		}
	}
	if !b.CycleStart.Equal(other.CycleStart) || !b.CycleEnd.Equal(other.CycleEnd) {
		return false
	}
	switch {
	case b.LastAccrualRun == nil && other.LastAccrualRun == nil:
		return true
	case b.LastAccrualRun == nil || other.LastAccrualRun == nil:
		return false
	default:
		return b.LastAccrualRun.Equal(*other.LastAccrualRun)
	}
}

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	if b.LastAccrualRun != nil {
		at := *b.LastAccrualRun
		b.LastAccrualRun = &at
	}
	return b
}

// DefaultBalances is the zeroed record used for employees without one.
func DefaultBalances(cycle generic.Period, allocations Allocations) Balances {
	allocations = allocations.orDefault()
	b := Balances{CycleStart: cycle.Start, CycleEnd: cycle.End}
	for _, t := range Types {
		*b.For(t) = TypeBalance{
			Balance:          decimal.Zero,
			YearlyAllocation: allocations.Yearly(t),
			MonthlyAccrual:   displayRate(allocations, t),
			Accrued:          decimal.Zero,
			Taken:            decimal.Zero,
		}
	}
	return b
}

// displayRate is the monthly accrual as stored on the record, rounded to two
// places. Calculations use the unrounded rate.
func displayRate(allocations Allocations, t Type) decimal.Decimal {
	return generic.RoundHalfUp(allocations.MonthlyRate(t), 2)
}

// Update is one employee's recomputed projection, applied by a bulk write.
type Update struct {
	EmployeeID string
	Balances   Balances
}
