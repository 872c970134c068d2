// Package memory provides an in-memory leave.Store, optionally backed by a
// JSON file.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

var (
	_ leave.Store       = (*Memory)(nil)
	_ leave.Refresher   = (*Memory)(nil)
	_ leave.RunRecorder = (*Memory)(nil)
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev and file-backed use)
// =============================================================================

// Memory keeps every collection in maps guarded by one lock. When path is set
// the maps are a cache of the file: writes replace the file atomically and
// Refresh re-reads it.
type Memory struct {
	mu           sync.RWMutex
	path         string
	employees    map[string]leave.Employee
	applications map[string]leave.Application
	holidays     map[string]generic.Holiday
	runs         map[string]leave.RunRecord
}

// document is the on-disk layout.
type document struct {
	Employees         []leave.Employee    `json:"employees"`
	LeaveApplications []leave.Application `json:"leaveApplications"`
	Holidays          []generic.Holiday   `json:"holidays"`
	AccrualRuns       []leave.RunRecord   `json:"accrualRuns,omitempty"`
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

// Open loads a file-backed store. A missing file starts empty and is created
// on the first write.
func Open(path string) (*Memory, error) {
	m := &Memory{path: path}
	if err := m.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Memory) reset() {
	m.employees = make(map[string]leave.Employee)
	m.applications = make(map[string]leave.Application)
	m.holidays = make(map[string]generic.Holiday)
	m.runs = make(map[string]leave.RunRecord)
}

// Refresh drops the cache and re-reads the backing file. It is a no-op for
// purely in-memory stores.
func (m *Memory) Refresh(_ context.Context) error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.mu.Lock()
		m.reset()
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", m.path, err)
	}

	var doc document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", m.path, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	for _, e := range doc.Employees {
		m.employees[e.ID] = e
	}
	for i, a := range doc.LeaveApplications {
		key := a.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		m.applications[key] = a
	}
	for _, h := range doc.Holidays {
		m.holidays[holidayKey(h)] = h
	}
	for _, r := range doc.AccrualRuns {
		m.runs[r.ID] = r
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if emp.LeaveBalances == nil {
		if prev, ok := m.employees[emp.ID]; ok {
			emp.LeaveBalances = prev.LeaveBalances
		}
	}
	m.employees[emp.ID] = copyEmployee(emp)
	return m.persistLocked()
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrEntityNotFound)
	}
	out := copyEmployee(emp)
	return &out, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]leave.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, copyEmployee(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[id]; !ok {
		return fmt.Errorf("employee %s: %w", id, generic.ErrEntityNotFound)
	}
	delete(m.employees, id)
	return m.persistLocked()
}

// SaveLeaveBalances applies all updates or none. Unknown employees fail the
// whole batch.
func (m *Memory) SaveLeaveBalances(_ context.Context, updates []leave.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		if _, ok := m.employees[u.EmployeeID]; !ok {
			return fmt.Errorf("employee %s: %w", u.EmployeeID, generic.ErrEntityNotFound)
		}
	}

	previous := make(map[string]*leave.Balances, len(updates))
	for _, u := range updates {
		emp := m.employees[u.EmployeeID]
		previous[u.EmployeeID] = emp.LeaveBalances
		b := u.Balances.Clone()
		emp.LeaveBalances = &b
		m.employees[u.EmployeeID] = emp
	}

	if err := m.persistLocked(); err != nil {
		for id, b := range previous {
			emp := m.employees[id]
			emp.LeaveBalances = b
			m.employees[id] = emp
		}
		return err
	}
	return nil
}

// =============================================================================
// APPLICATIONS & HOLIDAYS
// =============================================================================

func (m *Memory) SaveApplication(_ context.Context, app leave.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applications[app.ID] = app
	return m.persistLocked()
}

func (m *Memory) ListApplications(_ context.Context) ([]leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]leave.Application, 0, len(m.applications))
	for _, a := range m.applications {
		out = append(out, a)
	}
	sortApplications(out)
	return out, nil
}

func (m *Memory) ListApplicationsByEmployee(_ context.Context, employeeID string) ([]leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.Application
	for _, a := range m.applications {
		if a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	sortApplications(out)
	return out, nil
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.holidays[holidayKey(h)] = h
	return m.persistLocked()
}

func (m *Memory) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// =============================================================================
// RUN LOG
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, r leave.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[r.ID] = r
	return m.persistLocked()
}

// ListRuns returns runs newest first, optionally filtered by kind.
func (m *Memory) ListRuns(_ context.Context, kind leave.RunKind, limit int) ([]leave.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []leave.RunRecord
	for _, r := range m.runs {
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// persistLocked writes the whole document to a temp file and renames it over
// the target. Caller holds the write lock.
func (m *Memory) persistLocked() error {
	if m.path == "" {
		return nil
	}

	doc := document{
		Employees:         make([]leave.Employee, 0, len(m.employees)),
		LeaveApplications: make([]leave.Application, 0, len(m.applications)),
		Holidays:          make([]generic.Holiday, 0, len(m.holidays)),
	}
	for _, e := range m.employees {
		doc.Employees = append(doc.Employees, e)
	}
	sort.Slice(doc.Employees, func(i, j int) bool { return doc.Employees[i].ID < doc.Employees[j].ID })
	for _, a := range m.applications {
		doc.LeaveApplications = append(doc.LeaveApplications, a)
	}
	sortApplications(doc.LeaveApplications)
	for _, h := range m.holidays {
		doc.Holidays = append(doc.Holidays, h)
	}
	sort.Slice(doc.Holidays, func(i, j int) bool { return holidayKey(doc.Holidays[i]) < holidayKey(doc.Holidays[j]) })
	for _, r := range m.runs {
		doc.AccrualRuns = append(doc.AccrualRuns, r)
	}
	sort.Slice(doc.AccrualRuns, func(i, j int) bool { return doc.AccrualRuns[i].StartedAt.Before(doc.AccrualRuns[j].StartedAt) })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".leave-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("replace %s: %w", m.path, err)
	}
	return nil
}

func copyEmployee(e leave.Employee) leave.Employee {
	if e.LeaveBalances != nil {
		b := e.LeaveBalances.Clone()
		e.LeaveBalances = &b
	}
	return e
}

func holidayKey(h generic.Holiday) string {
	return h.Date + "|" + h.Name
}

func sortApplications(apps []leave.Application) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].EmployeeID != apps[j].EmployeeID {
			return apps[i].EmployeeID < apps[j].EmployeeID
		}
		if apps[i].From != apps[j].From {
			return apps[i].From < apps[j].From
		}
		return apps[i].ID < apps[j].ID
	})
}
