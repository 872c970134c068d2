/*
runner.go - Batch recomputation over all employees

PURPOSE:
  Backs the three external triggers: the recurring recompute, the July 1
  cycle reset and the one-off migration. Each run reads all inputs, computes
  the new projections without touching the inputs, and writes the changed
  ones back in a single call.

RUN SHAPE:
  1. Snapshot employees, applications and holidays from the store
  2. Plan: compute []Update for employees whose Balances changed
  3. Apply: one SaveLeaveBalances call, skipped when nothing changed

  A second run with the same as-of therefore writes nothing.

SERIALIZATION:
  Concurrent calls of the same kind and as-of within one process share a
  single execution (singleflight). Separate processes are not coordinated;
  run the scheduler on one host.

FAILURES:
  Read errors and write errors are returned to the caller unchanged in
  meaning (write errors as *PersistError). There is no retry here.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"golang.org/x/sync/singleflight"
)

// RunResult summarizes a recompute.
type RunResult struct {
	Processed  int
	Updated    int
	CycleStart time.Time
	CycleEnd   time.Time
	AsOf       time.Time
}

// ResetResult summarizes a cycle reset.
type ResetResult struct {
	Processed int
	Updated   int
}

// Runner recomputes leave balances for every employee in Store.
type Runner struct {
	Store       Store
	Allocations Allocations
	Location    *time.Location
	Logger      *slog.Logger

	// Now supplies the as-of instant when callers pass a zero time.
	Now func() time.Time

	group singleflight.Group
}

// NewRunner creates a runner with default allocations, local time and the
// default logger.
func NewRunner(store Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Store:       store,
		Allocations: DefaultAllocations,
		Location:    time.Local,
		Logger:      logger.With("component", "leave-runner"),
		Now:         time.Now,
	}
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// Recalculate recomputes every employee's balances as of now (zero means the
// runner's clock) and persists the ones that changed.
func (r *Runner) Recalculate(ctx context.Context, now time.Time) (RunResult, error) {
	asOf := r.asOf(now)
	v, err, shared := r.group.Do(flightKey(RunRecalculate, asOf), func() (any, error) {
		return r.record(ctx, RunRecalculate, asOf, func() (RunResult, error) {
			return r.recalculate(ctx, asOf)
		})
	})
	if shared {
		r.log().Debug("joined in-flight run", "kind", RunRecalculate)
	}
	if err != nil {
		return RunResult{}, err
	}
	return v.(RunResult), nil
}

// ResetCycle zeroes accrued, taken and balance for every employee and moves
// the stored cycle bounds to the cycle containing now. Applications are not
// read.
func (r *Runner) ResetCycle(ctx context.Context, now time.Time) (ResetResult, error) {
	asOf := r.asOf(now)
	v, err, _ := r.group.Do(flightKey(RunReset, asOf), func() (any, error) {
		res, err := r.record(ctx, RunReset, asOf, func() (RunResult, error) {
			return r.reset(ctx, asOf)
		})
		return ResetResult{Processed: res.Processed, Updated: res.Updated}, err
	})
	if err != nil {
		return ResetResult{}, err
	}
	return v.(ResetResult), nil
}

// Migrate forces the store to drop cached reads, then runs a full recompute.
// Stores without a cache are used as-is.
func (r *Runner) Migrate(ctx context.Context, now time.Time) (RunResult, error) {
	asOf := r.asOf(now)
	v, err, _ := r.group.Do(flightKey(RunMigration, asOf), func() (any, error) {
		return r.record(ctx, RunMigration, asOf, func() (RunResult, error) {
			if err := Refresh(ctx, r.Store); err != nil {
				if !errors.Is(err, generic.ErrStoreRequired) {
					return RunResult{}, fmt.Errorf("refresh store: %w", err)
				}
				r.log().Info("store has no cache to refresh, reading directly")
			}
			return r.recalculate(ctx, asOf)
		})
	})
	if err != nil {
		return RunResult{}, err
	}
	return v.(RunResult), nil
}

// =============================================================================
// RECOMPUTE
// =============================================================================

type snapshot struct {
	employees    []Employee
	applications []Application
	holidays     []generic.Holiday
}

func (r *Runner) recalculate(ctx context.Context, asOf time.Time) (RunResult, error) {
	cycle := CurrentCycleRange(asOf)
	result := RunResult{CycleStart: cycle.Start, CycleEnd: cycle.End, AsOf: asOf}

	snap, err := r.load(ctx, true)
	if err != nil {
		return result, err
	}

	updates := PlanRecalculation(snap.employees, snap.applications, Options{
		AsOf:        asOf,
		Cycle:       cycle,
		Holidays:    holidayCalendar(snap.holidays, cycle),
		Allocations: r.Allocations,
		Location:    r.location(),
	})
	result.Processed = len(snap.employees)
	result.Updated = len(updates)

	if err := r.apply(ctx, RunRecalculate, updates); err != nil {
		return result, err
	}
	r.log().Info("leave balances recalculated",
		"processed", result.Processed,
		"updated", result.Updated,
		"cycle", cycle.String(),
		"asOf", asOf.Format(time.RFC3339))
	return result, nil
}

// PlanRecalculation computes the updates for employees whose stored balances
// differ from a fresh computation. Inputs are not modified.
func PlanRecalculation(employees []Employee, apps []Application, opts Options) []Update {
	opts = opts.withDefaults()
	var updates []Update
	for _, emp := range employees {
		state := BuildEmployeeLeaveState(emp, apps, opts)
		if emp.LeaveBalances != nil && emp.LeaveBalances.Equal(state.Balances) {
			continue
		}
		updates = append(updates, Update{EmployeeID: emp.ID, Balances: state.Balances})
	}
	return updates
}

// =============================================================================
// RESET
// =============================================================================

func (r *Runner) reset(ctx context.Context, asOf time.Time) (RunResult, error) {
	cycle := CurrentCycleRange(asOf)
	result := RunResult{CycleStart: cycle.Start, CycleEnd: cycle.End, AsOf: asOf}

	snap, err := r.load(ctx, false)
	if err != nil {
		return result, err
	}

	updates := PlanReset(snap.employees, cycle, r.Allocations)
	result.Processed = len(snap.employees)
	result.Updated = len(updates)

	if err := r.apply(ctx, RunReset, updates); err != nil {
		return result, err
	}
	r.log().Info("leave cycle reset",
		"processed", result.Processed,
		"updated", result.Updated,
		"cycle", cycle.String())
	return result, nil
}

// PlanReset returns zeroed balances rolled to cycle for every employee whose
// stored record differs. Allocation and monthly rate are refreshed;
// LastAccrualRun is left as it was.
func PlanReset(employees []Employee, cycle generic.Period, allocations Allocations) []Update {
	var updates []Update
	for _, emp := range employees {
		next := DefaultBalances(cycle, allocations)
		if emp.LeaveBalances != nil {
			next.LastAccrualRun = emp.LeaveBalances.Clone().LastAccrualRun
			if emp.LeaveBalances.Equal(next) {
				continue
			}
		}
		updates = append(updates, Update{EmployeeID: emp.ID, Balances: next})
	}
	return updates
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Runner) load(ctx context.Context, withApplications bool) (snapshot, error) {
	var snap snapshot
	var err error

	if snap.employees, err = r.Store.ListEmployees(ctx); err != nil {
		return snap, fmt.Errorf("list employees: %w", err)
	}
	if !withApplications {
		return snap, nil
	}
	if snap.applications, err = r.Store.ListApplications(ctx); err != nil {
		return snap, fmt.Errorf("list leave applications: %w", err)
	}
	if snap.holidays, err = r.Store.ListHolidays(ctx); err != nil {
		return snap, fmt.Errorf("list holidays: %w", err)
	}
	return snap, nil
}

func (r *Runner) apply(ctx context.Context, kind RunKind, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.Store.SaveLeaveBalances(ctx, updates); err != nil {
		return &PersistError{Kind: kind, Pending: len(updates), Err: err}
	}
	return nil
}

// record wraps a run with a RunRecord when the store keeps them. Recording
// failures are logged and never fail the run.
func (r *Runner) record(ctx context.Context, kind RunKind, asOf time.Time, run func() (RunResult, error)) (RunResult, error) {
	recorder, ok := r.Store.(RunRecorder)
	if !ok {
		return run()
	}

	rec := RunRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    RunRunning,
		AsOf:      asOf,
		StartedAt: r.now().UTC(),
	}
	if err := recorder.SaveRun(ctx, rec); err != nil {
		r.log().Warn("run record insert failed", "kind", kind, "err", err)
	}

	res, runErr := run()

	completed := r.now().UTC()
	rec.Status = RunCompleted
	rec.Processed = res.Processed
	rec.Updated = res.Updated
	rec.CycleStart = res.CycleStart
	rec.CycleEnd = res.CycleEnd
	rec.CompletedAt = &completed
	if runErr != nil {
		rec.Status = RunFailed
		rec.Error = runErr.Error()
	}
	if err := recorder.SaveRun(ctx, rec); err != nil {
		r.log().Warn("run record update failed", "kind", kind, "runId", rec.ID, "err", err)
	}
	return res, runErr
}

func (r *Runner) asOf(now time.Time) time.Time {
	if now.IsZero() {
		now = r.now()
	}
	return now.In(r.location())
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func holidayCalendar(holidays []generic.Holiday, cycle generic.Period) generic.HolidaySet {
	from, to := cycle.Years()
	return generic.NewHolidaySet(holidays, from, to)
}

func flightKey(kind RunKind, asOf time.Time) string {
	return string(kind) + "@" + asOf.Format(time.RFC3339Nano)
}

func (r *Runner) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
