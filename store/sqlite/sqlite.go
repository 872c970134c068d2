/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists employees, leave applications, holidays, the computed leave
  balance projections and the batch run log. In production the same shapes
  live in PostgreSQL (see store/postgres); only dialect details differ.

INTERFACES IMPLEMENTED:
  leave.Store:       accessors + SaveLeaveBalances
  leave.RunRecorder: accrual_runs table

KEY TABLES:
  employees:          employee records; leave_balances_json holds the projection
  leave_applications: applications as submitted/approved by the portal
  holidays:           dates excluded from working-day counts
  accrual_runs:       one row per batch run (recalculate/reset/migration)

DATES:
  Employment and application dates are stored as the raw TEXT the portal
  wrote. The engine parses them leniently; bad values are treated as absent.

BULK WRITE:
  SaveLeaveBalances updates every changed employee inside one transaction.
  Either the whole run lands or none of it does.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := leave.NewRunner(store, logger)

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/memory: In-memory / JSON file implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Compile-time checks
var (
	_ leave.Store       = (*Store)(nil)
	_ leave.RunRecorder = (*Store)(nil)
)

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		internship_start_date TEXT NOT NULL DEFAULT '',
		full_time_start_date TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		full_time_end_date TEXT NOT NULL DEFAULT '',
		leave_balances_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		half_day BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_applications_employee
		ON leave_applications(employee_id);
	CREATE INDEX IF NOT EXISTS idx_leave_applications_status
		ON leave_applications(status);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);

	CREATE TABLE IF NOT EXISTS accrual_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		cycle_start TEXT,
		cycle_end TEXT,
		as_of TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_runs_started
		ON accrual_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

// SaveEmployee inserts or updates an employee's own fields. The stored leave
// balances are only written when emp.LeaveBalances is set.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balancesJSON, err := encodeBalances(emp.LeaveBalances)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO employees (id, name, internship_start_date, full_time_start_date, start_date,
		                       end_date, full_time_end_date, leave_balances_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			internship_start_date = excluded.internship_start_date,
			full_time_start_date = excluded.full_time_start_date,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			full_time_end_date = excluded.full_time_end_date,
			leave_balances_json = COALESCE(excluded.leave_balances_json, employees.leave_balances_json),
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.InternshipStartDate, emp.FullTimeStartDate, emp.StartDate,
		emp.EndDate, emp.FullTimeEndDate, balancesJSON, now, now,
	)
	return err
}

const employeeColumns = `id, name, internship_start_date, full_time_start_date, start_date,
	end_date, full_time_end_date, leave_balances_json`

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrEntityNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
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

// DeleteEmployee removes an employee.
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		emp          leave.Employee
		balancesJSON sql.NullString
	)
	err := row.Scan(&emp.ID, &emp.Name, &emp.InternshipStartDate, &emp.FullTimeStartDate,
		&emp.StartDate, &emp.EndDate, &emp.FullTimeEndDate, &balancesJSON)
	if err != nil {
		return emp, err
	}
	if balancesJSON.Valid && balancesJSON.String != "" {
		var b leave.Balances
		if err := json.Unmarshal([]byte(balancesJSON.String), &b); err != nil {
			return emp, fmt.Errorf("employee %s: decode leave balances: %w", emp.ID, err)
		}
		emp.LeaveBalances = &b
	}
	return emp, nil
}

// =============================================================================
// BALANCE WRITER (leave.BalanceWriter interface)
// =============================================================================

// SaveLeaveBalances replaces the stored projection of every updated employee
// in one transaction.
func (s *Store) SaveLeaveBalances(ctx context.Context, updates []leave.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx,
		"UPDATE employees SET leave_balances_json = ?, updated_at = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare balance update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, u := range updates {
		b := u.Balances
		payload, err := encodeBalances(&b)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx, payload, now, u.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to update balances for %s: %w", u.EmployeeID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("employee %s: %w", u.EmployeeID, generic.ErrEntityNotFound)
		}
	}

	return sqlTx.Commit()
}

func encodeBalances(b *leave.Balances) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode leave balances: %w", err)
	}
	return sql.NullString{String: string(payload), Valid: true}, nil
}

// =============================================================================
// LEAVE APPLICATIONS
// =============================================================================

// SaveApplication inserts or updates a leave application.
func (s *Store) SaveApplication(ctx context.Context, app leave.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leave_applications (id, employee_id, leave_type, from_date, to_date, status, half_day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			leave_type = excluded.leave_type,
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			status = excluded.status,
			half_day = excluded.half_day
	`

	_, err := s.db.ExecContext(ctx, query,
		app.ID, app.EmployeeID, string(app.Type), app.From, app.To, string(app.Status), app.HalfDay,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListApplications returns every application. Filtering by status and type is
// the engine's job, so unsupported rows are returned too.
func (s *Store) ListApplications(ctx context.Context) ([]leave.Application, error) {
	return s.queryApplications(ctx,
		"SELECT id, employee_id, leave_type, from_date, to_date, status, half_day FROM leave_applications ORDER BY employee_id, from_date, id")
}

// ListApplicationsByEmployee returns one employee's applications.
func (s *Store) ListApplicationsByEmployee(ctx context.Context, employeeID string) ([]leave.Application, error) {
	return s.queryApplications(ctx,
		"SELECT id, employee_id, leave_type, from_date, to_date, status, half_day FROM leave_applications WHERE employee_id = ? ORDER BY from_date, id",
		employeeID)
}

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		var (
			app               leave.Application
			leaveType, status string
		)
		if err := rows.Scan(&app.ID, &app.EmployeeID, &leaveType, &app.From, &app.To, &status, &app.HalfDay); err != nil {
			return nil, fmt.Errorf("failed to scan leave application: %w", err)
		}
		app.Type = leave.Type(leaveType)
		app.Status = leave.Status(status)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday saves a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID, strings.TrimSpace(h.Date), h.Name, h.Recurring,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// ListHolidays returns all holidays ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, date, name, recurring FROM holidays ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
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
// RUN LOG (leave.RunRecorder interface)
// =============================================================================

// SaveRun upserts a run record.
func (s *Store) SaveRun(ctx context.Context, r leave.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accrual_runs (id, kind, status, processed, updated, cycle_start, cycle_end,
		                          as_of, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			updated = excluded.updated,
			cycle_start = excluded.cycle_start,
			cycle_end = excluded.cycle_end,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = sql.NullString{String: r.CompletedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, string(r.Kind), string(r.Status), r.Processed, r.Updated,
		formatTime(r.CycleStart), formatTime(r.CycleEnd), r.AsOf.Format(time.RFC3339Nano),
		nullString(r.Error), r.StartedAt.Format(time.RFC3339Nano), completedAt,
	)
	return err
}

// ListRuns returns the most recent runs first, optionally filtered by kind.
func (s *Store) ListRuns(ctx context.Context, kind leave.RunKind, limit int) ([]leave.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, status, processed, updated, cycle_start, cycle_end, as_of, error, started_at, completed_at
		FROM accrual_runs
		WHERE (? = '' OR kind = ?)
		ORDER BY started_at DESC
	`
	args := []any{string(kind), string(kind)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accrual runs: %w", err)
	}
	defer rows.Close()

	var runs []leave.RunRecord
	for rows.Next() {
		var (
			r                               leave.RunRecord
			kindStr, status, asOf, started  string
			cycleStart, cycleEnd, errorText sql.NullString
			completedAt                     sql.NullString
		)
		if err := rows.Scan(&r.ID, &kindStr, &status, &r.Processed, &r.Updated,
			&cycleStart, &cycleEnd, &asOf, &errorText, &started, &completedAt); err != nil {
			return nil, err
		}
		r.Kind = leave.RunKind(kindStr)
		r.Status = leave.RunStatus(status)
		r.CycleStart = parseTime(cycleStart.String)
		r.CycleEnd = parseTime(cycleEnd.String)
		r.AsOf = parseTime(asOf)
		r.Error = errorText.String
		r.StartedAt = parseTime(started)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
