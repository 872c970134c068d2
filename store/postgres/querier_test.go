package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestQueryHelpers_RunInsideTransaction(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	_, err = store.Pool.Exec(ctx, "TRUNCATE employees, leave_applications, holidays, accrual_runs")
	require.NoError(t, err)

	// GIVEN: an application written inside a transaction that is rolled back
	rollback := errors.New("rollback")
	err = store.WithTransaction(ctx, func(tx pgx.Tx) error {
		require.NoError(t, saveApplication(ctx, tx, leave.Application{
			ID: "a1", EmployeeID: "e1", Type: leave.TypeAnnual, From: "2024-10-07", To: "2024-10-07", Status: leave.StatusApproved,
		}))

		// WHEN: read back through the same transaction
		apps, err := listApplications(ctx, tx)
		require.NoError(t, err)
		assert.Len(t, apps, 1)

		_, err = getEmployee(ctx, tx, "e1")
		assert.True(t, generic.IsNotFound(err))
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	// THEN: the pool never sees it
	apps, err := listApplications(ctx, store.Pool)
	require.NoError(t, err)
	assert.Empty(t, apps)
}
