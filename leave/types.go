// Package leave implements the leave accrual and balance engine.
// It resolves the fiscal leave cycle, accrues entitlement by qualifying month,
// counts approved working-day leave and composes per-type balances that are
// stored on each employee as a recomputable projection.
package leave

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// Type is a supported leave type.
type Type string

const (
	TypeAnnual  Type = "annual"
	TypeCasual  Type = "casual"
	TypeMedical Type = "medical"
)

// Types lists the supported leave types in output order.
var Types = []Type{TypeAnnual, TypeCasual, TypeMedical}

// Supported reports whether t is one of the three accrued types. Anything else
// is never accrued nor deducted.
func (t Type) Supported() bool {
	switch t {
	case TypeAnnual, TypeCasual, TypeMedical:
		return true
	}
	return false
}

// Allocations maps each leave type to its yearly allocation in days.
type Allocations map[Type]decimal.Decimal

// DefaultAllocations are the process-wide yearly allocations.
var DefaultAllocations = Allocations{
	TypeAnnual:  generic.NewDaysFromInt(10),
	TypeCasual:  generic.NewDaysFromInt(5),
	TypeMedical: generic.NewDaysFromInt(14),
}

// Yearly returns the allocation for t, zero for unknown types.
func (a Allocations) Yearly(t Type) decimal.Decimal {
	if v, ok := a[t]; ok {
		return v
	}
	return decimal.Zero
}

// MonthlyRate returns the unrounded per-month accrual for t.
func (a Allocations) MonthlyRate(t Type) decimal.Decimal {
	return generic.DaysPer(a.Yearly(t), 12)
}

func (a Allocations) orDefault() Allocations {
	if len(a) == 0 {
		return DefaultAllocations
	}
	return a
}

// =============================================================================
// INPUT RECORDS (owned by external collaborators)
// =============================================================================

// Employee is the read-only employee record. Date fields hold the raw stored
// strings; empty or malformed values are treated as absent.
type Employee struct {
	ID                  string `json:"id"`
	Name                string `json:"name,omitempty"`
	InternshipStartDate string `json:"internshipStartDate,omitempty"`
	FullTimeStartDate   string `json:"fullTimeStartDate,omitempty"`
	StartDate           string `json:"startDate,omitempty"`
	EndDate             string `json:"endDate,omitempty"`
	FullTimeEndDate     string `json:"fullTimeEndDate,omitempty"`

	// LeaveBalances is the projection owned by this package. Nil until the
	// first computation.
	LeaveBalances *Balances `json:"leaveBalances,omitempty"`
}

// Status is a leave application status. Only approved applications count.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Application is a leave application as stored by the portal.
type Application struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	Type       Type   `json:"type"`
	From       string `json:"from"`
	To         string `json:"to"`
	Status     Status `json:"status"`
	HalfDay    bool   `json:"halfDay,omitempty"`
}

// UnmarshalJSON also accepts the older leaveType, fromDate, toDate and
// isHalfDay field names. The current names win when both are present.
func (a *Application) UnmarshalJSON(data []byte) error {
	type plain Application
	var raw struct {
		plain
		LeaveType Type   `json:"leaveType"`
		FromDate  string `json:"fromDate"`
		ToDate    string `json:"toDate"`
		IsHalfDay *bool  `json:"isHalfDay"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Application(raw.plain)
	if a.Type == "" {
		a.Type = raw.LeaveType
	}
	if a.From == "" {
		a.From = raw.FromDate
	}
	if a.To == "" {
		a.To = raw.ToDate
	}
	if !a.HalfDay && raw.IsHalfDay != nil {
		a.HalfDay = *raw.IsHalfDay
	}
	return nil
}
