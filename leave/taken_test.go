package leave

import (
	"testing"
	"time"

	"github.com/warp/leave-engine/generic"
)

func approved(t Type, from, to string) Application {
	return Application{EmployeeID: "e1", Type: t, From: from, To: to, Status: StatusApproved}
}

func halfDay(t Type, on string) Application {
	app := approved(t, on, on)
	app.HalfDay = true
	return app
}

func TestCalculateTaken(t *testing.T) {
	endOfCycle := date(2025, time.June, 30)

	tests := []struct {
		name     string
		apps     []Application
		holidays generic.HolidayCalendar
		asOf     time.Time
		want     map[Type]string
	}{
		{
			name: "two weekdays",
			apps: []Application{approved(TypeAnnual, "2024-10-07", "2024-10-08")},
			want: map[Type]string{TypeAnnual: "2"},
		},
		{
			name: "weekend inside range is skipped",
			apps: []Application{approved(TypeCasual, "2024-10-11", "2024-10-14")},
			want: map[Type]string{TypeCasual: "2"},
		},
		{
			name:     "holiday inside range is skipped",
			apps:     []Application{approved(TypeAnnual, "2024-10-07", "2024-10-08")},
			holidays: generic.HolidaysFromDates("2024-10-08"),
			want:     map[Type]string{TypeAnnual: "1"},
		},
		{
			name: "half day on a weekday",
			apps: []Application{halfDay(TypeMedical, "2024-10-08")},
			want: map[Type]string{TypeMedical: "0.5"},
		},
		{
			name: "half day on a Saturday",
			apps: []Application{halfDay(TypeMedical, "2024-10-12")},
			want: map[Type]string{TypeMedical: "0"},
		},
		{
			name:     "half day on a holiday",
			apps:     []Application{halfDay(TypeCasual, "2024-12-25")},
			holidays: generic.HolidaysFromDates("2024-12-25"),
			want:     map[Type]string{TypeCasual: "0"},
		},
		{
			name: "half day trimmed by cycle start",
			apps: []Application{func() Application {
				app := approved(TypeAnnual, "2024-06-28", "2024-07-02")
				app.HalfDay = true
				return app
			}()},
			want: map[Type]string{TypeAnnual: "0"},
		},
		{
			name: "range crossing cycle start is clipped",
			apps: []Application{approved(TypeAnnual, "2024-06-27", "2024-07-02")},
			want: map[Type]string{TypeAnnual: "2"},
		},
		{
			name: "range after as-of is clipped",
			apps: []Application{approved(TypeAnnual, "2025-03-10", "2025-03-14")},
			asOf: date(2025, time.March, 12),
			want: map[Type]string{TypeAnnual: "3"},
		},
		{
			name: "range entirely in the future",
			apps: []Application{approved(TypeAnnual, "2025-04-01", "2025-04-02")},
			asOf: date(2025, time.March, 12),
			want: map[Type]string{TypeAnnual: "0"},
		},
		{
			name: "only approved applications of this employee count",
			apps: []Application{
				{EmployeeID: "e1", Type: TypeAnnual, From: "2024-10-07", To: "2024-10-07", Status: StatusPending},
				{EmployeeID: "e1", Type: TypeAnnual, From: "2024-10-08", To: "2024-10-08", Status: StatusRejected},
				{EmployeeID: "e2", Type: TypeAnnual, From: "2024-10-09", To: "2024-10-09", Status: StatusApproved},
				approved(TypeAnnual, "2024-10-10", "2024-10-10"),
			},
			want: map[Type]string{TypeAnnual: "1"},
		},
		{
			name: "unsupported types are ignored",
			apps: []Application{
				approved("unpaid", "2024-10-07", "2024-10-11"),
				approved("", "2024-10-07", "2024-10-11"),
			},
			want: map[Type]string{TypeAnnual: "0", TypeCasual: "0", TypeMedical: "0"},
		},
		{
			name: "malformed and inverted dates are skipped",
			apps: []Application{
				approved(TypeCasual, "", "2024-10-08"),
				approved(TypeCasual, "2024-10-07", "someday"),
				approved(TypeCasual, "2024-10-09", "2024-10-07"),
				approved(TypeCasual, "2024-11-04T09:00:00Z", "2024-11-04"),
			},
			want: map[Type]string{TypeCasual: "1"},
		},
		{
			name: "types accumulate separately",
			apps: []Application{
				approved(TypeAnnual, "2024-10-07", "2024-10-08"),
				approved(TypeCasual, "2025-03-10", "2025-03-10"),
				halfDay(TypeCasual, "2025-03-11"),
				approved(TypeMedical, "2025-01-06", "2025-01-10"),
			},
			want: map[Type]string{TypeAnnual: "2", TypeCasual: "1.5", TypeMedical: "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asOf := tt.asOf
			if asOf.IsZero() {
				asOf = endOfCycle
			}

			taken := CalculateTaken("e1", tt.apps, cycle2425, asOf, tt.holidays, time.UTC)

			for lt, want := range tt.want {
				t.Run(string(lt), func(t *testing.T) {
					assertDays(t, want, taken.ByType[lt])
				})
			}
		})
	}
}

func TestConsumptionWindow(t *testing.T) {
	w := ConsumptionWindow(cycle2425, time.Date(2025, time.January, 15, 18, 30, 0, 0, time.UTC))
	if !w.Start.Equal(date(2024, time.July, 1)) || !w.End.Equal(date(2025, time.January, 15)) {
		t.Errorf("unexpected window %v", w)
	}

	w = ConsumptionWindow(cycle2425, date(2026, time.January, 1))
	if !w.End.Equal(date(2025, time.June, 30)) {
		t.Errorf("window should stop at cycle end, got %v", w)
	}

	w = ConsumptionWindow(cycle2425, date(2024, time.May, 1))
	if !w.IsEmpty() {
		t.Errorf("as-of before cycle should give an empty window, got %v", w)
	}
}
