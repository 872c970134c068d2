// Package postgres implements leave.Store on PostgreSQL using pgx.
//
// The schema mirrors store/sqlite; leave balances live in a JSONB column and
// the batch write-back runs as one pgx.Batch inside a transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

var (
	_ leave.Store       = (*Store)(nil)
	_ leave.RunRecorder = (*Store)(nil)
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx. The query helpers take
// one so they run the same inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements leave.Store against a pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool for dsn and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	internship_start_date TEXT NOT NULL DEFAULT '',
	full_time_start_date TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	full_time_end_date TEXT NOT NULL DEFAULT '',
	leave_balances JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leave_applications (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	leave_type TEXT NOT NULL,
	from_date TEXT NOT NULL,
	to_date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	half_day BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_leave_applications_employee ON leave_applications(employee_id);

CREATE TABLE IF NOT EXISTS holidays (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	recurring BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (date, name)
);

CREATE TABLE IF NOT EXISTS accrual_runs (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	cycle_start TIMESTAMPTZ,
	cycle_end TIMESTAMPTZ,
	as_of TIMESTAMPTZ NOT NULL,
	error TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
`

// Migrate creates the tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTransaction executes fn inside a database transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	var balances []byte
	if emp.LeaveBalances != nil {
		var err error
		if balances, err = json.Marshal(emp.LeaveBalances); err != nil {
			return fmt.Errorf("encode leave balances: %w", err)
		}
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO employees (id, name, internship_start_date, full_time_start_date, start_date,
		                       end_date, full_time_end_date, leave_balances)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			internship_start_date = EXCLUDED.internship_start_date,
			full_time_start_date = EXCLUDED.full_time_start_date,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			full_time_end_date = EXCLUDED.full_time_end_date,
			leave_balances = COALESCE(EXCLUDED.leave_balances, employees.leave_balances),
			updated_at = now()
	`, emp.ID, emp.Name, emp.InternshipStartDate, emp.FullTimeStartDate, emp.StartDate,
		emp.EndDate, emp.FullTimeEndDate, balances)
	return err
}

const employeeColumns = `id, name, internship_start_date, full_time_start_date, start_date,
	end_date, full_time_end_date, leave_balances`

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, s.Pool, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, s.Pool)
}

func getEmployee(ctx context.Context, q Querier, id string) (*leave.Employee, error) {
	row := q.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrEntityNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func listEmployees(ctx context.Context, q Querier) ([]leave.Employee, error) {
	rows, err := q.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var (
		emp      leave.Employee
		balances []byte
	)
	if err := row.Scan(&emp.ID, &emp.Name, &emp.InternshipStartDate, &emp.FullTimeStartDate,
		&emp.StartDate, &emp.EndDate, &emp.FullTimeEndDate, &balances); err != nil {
		return emp, err
	}
	if len(balances) > 0 {
		var b leave.Balances
		if err := json.Unmarshal(balances, &b); err != nil {
			return emp, fmt.Errorf("employee %s: decode leave balances: %w", emp.ID, err)
		}
		emp.LeaveBalances = &b
	}
	return emp, nil
}

// SaveLeaveBalances writes all updates in one transaction using a batch.
func (s *Store) SaveLeaveBalances(ctx context.Context, updates []leave.Update) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			payload, err := json.Marshal(u.Balances)
			if err != nil {
				return fmt.Errorf("encode leave balances for %s: %w", u.EmployeeID, err)
			}
			batch.Queue(`UPDATE employees SET leave_balances = $1, updated_at = now() WHERE id = $2`,
				payload, u.EmployeeID)
		}

		results := tx.SendBatch(ctx, batch)
		for _, u := range updates {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("update balances for %s: %w", u.EmployeeID, err)
			}
			if tag.RowsAffected() == 0 {
				results.Close()
				return fmt.Errorf("employee %s: %w", u.EmployeeID, generic.ErrEntityNotFound)
			}
		}
		return results.Close()
	})
}

// =============================================================================
// APPLICATIONS & HOLIDAYS
// =============================================================================

func (s *Store) SaveApplication(ctx context.Context, app leave.Application) error {
	return saveApplication(ctx, s.Pool, app)
}

func saveApplication(ctx context.Context, q Querier, app leave.Application) error {
	_, err := q.Exec(ctx, `
		INSERT INTO leave_applications (id, employee_id, leave_type, from_date, to_date, status, half_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			leave_type = EXCLUDED.leave_type,
			from_date = EXCLUDED.from_date,
			to_date = EXCLUDED.to_date,
			status = EXCLUDED.status,
			half_day = EXCLUDED.half_day
	`, app.ID, app.EmployeeID, string(app.Type), app.From, app.To, string(app.Status), app.HalfDay)
	return err
}

func (s *Store) ListApplications(ctx context.Context) ([]leave.Application, error) {
	return listApplications(ctx, s.Pool)
}

func listApplications(ctx context.Context, q Querier) ([]leave.Application, error) {
	rows, err := q.Query(ctx, `
		SELECT id, employee_id, leave_type, from_date, to_date, status, half_day
		FROM leave_applications ORDER BY employee_id, from_date, id`)
	if err != nil {
		return nil, fmt.Errorf("query leave applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		var (
			app               leave.Application
			leaveType, status string
		)
		if err := rows.Scan(&app.ID, &app.EmployeeID, &leaveType, &app.From, &app.To, &status, &app.HalfDay); err != nil {
			return nil, err
		}
		app.Type = leave.Type(leaveType)
		app.Status = leave.Status(status)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO holidays (id, date, name, recurring) VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, name) DO UPDATE SET recurring = EXCLUDED.recurring
	`, h.ID, h.Date, h.Name, h.Recurring)
	return err
}

func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	return listHolidays(ctx, s.Pool)
}

func listHolidays(ctx context.Context, q Querier) ([]generic.Holiday, error) {
	rows, err := q.Query(ctx, "SELECT id, date, name, recurring FROM holidays ORDER BY date")
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		if err := rows.Scan(&h.ID, &h.Date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r leave.RunRecord) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO accrual_runs (id, kind, status, processed, updated, cycle_start, cycle_end,
		                          as_of, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			processed = EXCLUDED.processed,
			updated = EXCLUDED.updated,
			cycle_start = EXCLUDED.cycle_start,
			cycle_end = EXCLUDED.cycle_end,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, r.ID, string(r.Kind), string(r.Status), r.Processed, r.Updated,
		nullTime(r.CycleStart), nullTime(r.CycleEnd), r.AsOf, nullText(r.Error), r.StartedAt, r.CompletedAt)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
