package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var asOf = time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployees_SaveGetList(t *testing.T) {
	// GIVEN
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-2", Name: "Bo", StartDate: "2024-11-01"}))
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{
		ID: "emp-1", Name: "Ada", InternshipStartDate: "2019-06-01", FullTimeStartDate: "2020-01-01", EndDate: "2026-01-31",
	}))

	// WHEN
	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	all, err := store.ListEmployees(ctx)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "Ada", emp.Name)
	assert.Equal(t, "2019-06-01", emp.InternshipStartDate)
	assert.Equal(t, "2026-01-31", emp.EndDate)
	assert.Nil(t, emp.LeaveBalances)
	require.Len(t, all, 2)
	assert.Equal(t, "emp-1", all[0].ID)

	_, err = store.GetEmployee(ctx, "nobody")
	assert.True(t, generic.IsNotFound(err))
}

func TestEmployees_UpsertKeepsBalances(t *testing.T) {
	// GIVEN: an employee with stored balances
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-1", StartDate: "2020-01-01"}))
	state := leave.BuildEmployeeLeaveState(leave.Employee{ID: "emp-1", StartDate: "2020-01-01"}, nil,
		leave.Options{AsOf: asOf, Location: time.UTC})
	require.NoError(t, store.SaveLeaveBalances(ctx, []leave.Update{{EmployeeID: "emp-1", Balances: state.Balances}}))

	// WHEN: the HR record is edited without balances
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-1", Name: "Renamed", StartDate: "2020-01-01"}))

	// THEN: balances survive
	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", emp.Name)
	require.NotNil(t, emp.LeaveBalances)
	assert.True(t, state.Balances.Equal(*emp.LeaveBalances))
}

func TestEmployees_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-1"}))

	require.NoError(t, store.DeleteEmployee(ctx, "emp-1"))

	_, err := store.GetEmployee(ctx, "emp-1")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// BULK WRITE
// =============================================================================

func TestSaveLeaveBalances_AllOrNothing(t *testing.T) {
	// GIVEN: one known employee
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-1", StartDate: "2020-01-01"}))
	b := leave.DefaultBalances(leave.CurrentCycleRange(asOf), nil)

	// WHEN: the batch also names an unknown employee
	err := store.SaveLeaveBalances(ctx, []leave.Update{
		{EmployeeID: "emp-1", Balances: b},
		{EmployeeID: "ghost", Balances: b},
	})

	// THEN: the batch fails and nothing was written
	require.Error(t, err)
	assert.True(t, generic.IsNotFound(err))
	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Nil(t, emp.LeaveBalances)
}

// =============================================================================
// APPLICATIONS & HOLIDAYS
// =============================================================================

func TestApplicationsAndHolidays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApplication(ctx, leave.Application{
		ID: "a1", EmployeeID: "emp-1", Type: leave.TypeAnnual, From: "2024-10-07", To: "2024-10-08", Status: leave.StatusPending,
	}))
	require.NoError(t, store.SaveApplication(ctx, leave.Application{
		ID: "a2", EmployeeID: "emp-2", Type: leave.TypeMedical, From: "2025-01-06", To: "2025-01-06", Status: leave.StatusApproved, HalfDay: true,
	}))
	// Approval updates the existing row.
	require.NoError(t, store.SaveApplication(ctx, leave.Application{
		ID: "a1", EmployeeID: "emp-1", Type: leave.TypeAnnual, From: "2024-10-07", To: "2024-10-08", Status: leave.StatusApproved,
	}))

	apps, err := store.ListApplications(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, leave.StatusApproved, apps[0].Status)

	mine, err := store.ListApplicationsByEmployee(ctx, "emp-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].HalfDay)

	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h1", Date: "2024-12-25", Name: "Christmas"}))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{ID: "h2", Date: "2024-01-01", Name: "New Year", Recurring: true}))
	holidays, err := store.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, holidays, 2)
	assert.Equal(t, "2024-01-01", holidays[0].Date)
	assert.True(t, holidays[0].Recurring)

	require.NoError(t, store.DeleteHoliday(ctx, "h1"))
	holidays, err = store.ListHolidays(ctx)
	require.NoError(t, err)
	assert.Len(t, holidays, 1)
}

// =============================================================================
// END TO END
// =============================================================================

func TestRunnerOnSQLite(t *testing.T) {
	// GIVEN: the concrete scenario stored in SQLite
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, leave.Employee{ID: "emp-1", StartDate: "2020-01-01"}))
	require.NoError(t, store.SaveApplication(ctx, leave.Application{
		ID: "a1", EmployeeID: "emp-1", Type: leave.TypeAnnual, From: "2024-10-07", To: "2024-10-08", Status: leave.StatusApproved,
	}))
	require.NoError(t, store.SaveApplication(ctx, leave.Application{
		ID: "a2", EmployeeID: "emp-1", Type: leave.TypeCasual, From: "2025-03-10", To: "2025-03-10", Status: leave.StatusApproved,
	}))

	runner := leave.NewRunner(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	runner.Location = time.UTC

	// WHEN: recalculated twice
	first, err := runner.Recalculate(ctx, asOf)
	require.NoError(t, err)
	second, err := runner.Recalculate(ctx, asOf)
	require.NoError(t, err)

	// THEN: balances stored once, second run is a no-op
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 0, second.Updated)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, emp.LeaveBalances)
	assert.Equal(t, "8", emp.LeaveBalances.Annual.Balance.String())
	assert.Equal(t, "4", emp.LeaveBalances.Casual.Balance.String())
	assert.Equal(t, "14", emp.LeaveBalances.Medical.Balance.String())

	runs, err := store.ListRuns(ctx, leave.RunRecalculate, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, leave.RunCompleted, r.Status)
		assert.True(t, r.AsOf.Equal(asOf))
	}
}
