/*
store.go - What the engine needs from persistence

PURPOSE:
  The engine never talks to a database directly. It reads three collections
  and writes one batch of projections back. Anything that can list employees,
  applications and holidays and apply a bulk update is a Store.

OPTIONAL CAPABILITIES:
  Refresher:   drops any cached view and re-reads the backing data.
               The migration path uses it to bypass caches.
  RunRecorder: records each batch run (kind, counts, outcome).
  Stores that lack them still work; the runner checks with type assertions.

WRITE SEMANTICS:
  SaveLeaveBalances receives every changed employee of one run. SQL stores
  apply it in a single transaction; the file store replaces its file
  atomically. A failed write loses nothing permanent: the next run
  recomputes the same result.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql + go-sqlite3
  - store/postgres: PostgreSQL via pgx
  - store/memory: in-memory, optionally backed by a JSON file
*/
package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ACCESSORS
// =============================================================================

type EmployeeSource interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
}

type ApplicationSource interface {
	ListApplications(ctx context.Context) ([]Application, error)
}

type HolidaySource interface {
	ListHolidays(ctx context.Context) ([]generic.Holiday, error)
}

// BalanceWriter persists recomputed projections in one call.
type BalanceWriter interface {
	SaveLeaveBalances(ctx context.Context, updates []Update) error
}

// Store is everything the batch runner consumes.
type Store interface {
	EmployeeSource
	ApplicationSource
	HolidaySource
	BalanceWriter
}

// =============================================================================
// OPTIONAL CAPABILITIES
// =============================================================================

// Refresher is implemented by stores that cache reads.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Refresh forces a fresh read if store supports it. It returns
// generic.ErrStoreRequired when the store has nothing to refresh.
func Refresh(ctx context.Context, store any) error {
	r, ok := store.(Refresher)
	if !ok {
		return generic.ErrStoreRequired
	}
	return r.Refresh(ctx)
}

// RunKind identifies which trigger produced a run.
type RunKind string

const (
	RunRecalculate RunKind = "recalculate"
	RunReset       RunKind = "reset"
	RunMigration   RunKind = "migration"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one batch run as recorded by a RunRecorder.
type RunRecord struct {
	ID          string     `json:"id"`
	Kind        RunKind    `json:"kind"`
	Status      RunStatus  `json:"status"`
	Processed   int        `json:"processed"`
	Updated     int        `json:"updated"`
	CycleStart  time.Time  `json:"cycleStart"`
	CycleEnd    time.Time  `json:"cycleEnd"`
	AsOf        time.Time  `json:"asOf"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RunRecorder stores run records. SaveRun upserts by ID.
type RunRecorder interface {
	SaveRun(ctx context.Context, run RunRecord) error
}
