// Package store provides in-process timesheet.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps behind one RWMutex. It enforces the same
// uniqueness rules as the SQL schema so the reconciler's conflict path
// behaves identically against both.
type Memory struct {
	mu          sync.RWMutex
	areas       map[timesheet.AreaID]timesheet.Area
	users       map[timesheet.UserID]timesheet.User
	projects    map[timesheet.ProjectID]timesheet.Project
	assignments map[timesheet.AssignmentID]timesheet.ProjectAssignment
	tasks       map[timesheet.TaskID]timesheet.Task
	periods     map[timesheet.TimePeriodID]timesheet.TimePeriod
	entries     map[timesheet.TimeEntryID]timesheet.TimeEntry
	entryKeys   map[timesheet.EntryKey]timesheet.TimeEntryID
	config      map[string]timesheet.SystemConfig
}

type periodKey struct {
	year   int
	month  time.Month
	number int
	typ    calendar.PeriodType
}

var _ timesheet.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		areas:       make(map[timesheet.AreaID]timesheet.Area),
		users:       make(map[timesheet.UserID]timesheet.User),
		projects:    make(map[timesheet.ProjectID]timesheet.Project),
		assignments: make(map[timesheet.AssignmentID]timesheet.ProjectAssignment),
		tasks:       make(map[timesheet.TaskID]timesheet.Task),
		periods:     make(map[timesheet.TimePeriodID]timesheet.TimePeriod),
		entries:     make(map[timesheet.TimeEntryID]timesheet.TimeEntry),
		entryKeys:   make(map[timesheet.EntryKey]timesheet.TimeEntryID),
		config:      make(map[string]timesheet.SystemConfig),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveArea(_ context.Context, area timesheet.Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[area.ID] = area
	return nil
}

func (m *Memory) GetArea(_ context.Context, id timesheet.AreaID) (*timesheet.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.areas[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAreas(_ context.Context) ([]timesheet.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timesheet.Area, 0, len(m.areas))
	for _, a := range m.areas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveUser(_ context.Context, user timesheet.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *Memory) GetUser(_ context.Context, id timesheet.UserID) (*timesheet.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*timesheet.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListUsers(_ context.Context, f timesheet.UserFilter) ([]timesheet.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.User{}
	for _, u := range m.users {
		if f.AreaID != "" && u.AreaID != f.AreaID {
			continue
		}
		if f.Role != 0 && u.Role != f.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (m *Memory) GetProject(_ context.Context, id timesheet.ProjectID) (*timesheet.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) CreateProject(_ context.Context, project timesheet.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = project
	return nil
}

func (m *Memory) UpdateProject(_ context.Context, project timesheet.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return timesheet.ErrNotFound
	}
	m.projects[project.ID] = project
	return nil
}

func (m *Memory) ListProjects(_ context.Context, f timesheet.ProjectFilter) ([]timesheet.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.Project{}
	for _, p := range m.projects {
		if !p.IsActive && !f.IncludeInactive {
			continue
		}
		if f.AreaID != "" && p.AreaID != f.AreaID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if !f.Scope.AllowsProject(p, m.isMemberLocked(p.ID, f.Scope.UserID)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) isMemberLocked(project timesheet.ProjectID, user timesheet.UserID) bool {
	if user == "" {
		return false
	}
	return m.activeAssignmentLocked(project, user) != nil
}

func (m *Memory) activeAssignmentLocked(project timesheet.ProjectID, user timesheet.UserID) *timesheet.ProjectAssignment {
	for _, a := range m.assignments {
		if a.IsActive && a.ProjectID == project && a.UserID == user {
			return &a
		}
	}
	return nil
}

func (m *Memory) GetActiveAssignment(_ context.Context, project timesheet.ProjectID, user timesheet.UserID) (*timesheet.ProjectAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeAssignmentLocked(project, user), nil
}

func (m *Memory) CreateAssignment(_ context.Context, a timesheet.ProjectAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.IsActive && m.activeAssignmentLocked(a.ProjectID, a.UserID) != nil {
		return timesheet.ErrDuplicateAssignment
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) DeactivateAssignment(_ context.Context, id timesheet.AssignmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return timesheet.ErrNotFound
	}
	a.IsActive = false
	m.assignments[id] = a
	return nil
}

func (m *Memory) ListAssignments(_ context.Context, project timesheet.ProjectID) ([]timesheet.ProjectAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.ProjectAssignment{}
	for _, a := range m.assignments {
		if a.IsActive && a.ProjectID == project {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// TASKS
// =============================================================================

// withTaskArea fills the derived AreaID from the owning project.
func (m *Memory) withTaskArea(t timesheet.Task) timesheet.Task {
	if p, ok := m.projects[t.ProjectID]; ok {
		t.AreaID = p.AreaID
	}
	return t
}

func (m *Memory) GetTask(_ context.Context, id timesheet.TaskID) (*timesheet.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	t = m.withTaskArea(t)
	return &t, nil
}

func (m *Memory) CreateTask(_ context.Context, task timesheet.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) UpdateTask(_ context.Context, task timesheet.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return timesheet.ErrNotFound
	}
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) ListTasks(_ context.Context, f timesheet.TaskFilter) ([]timesheet.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.Task{}
	for _, t := range m.tasks {
		t = m.withTaskArea(t)
		if !t.IsActive && !f.IncludeInactive {
			continue
		}
		if f.ProjectID != "" && t.ProjectID != f.ProjectID {
			continue
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if !f.Scope.AllowsTask(t) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CountActiveTasks(_ context.Context, project timesheet.ProjectID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if t.ProjectID == project && t.IsActive && t.Status != timesheet.TaskDone {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountTimeEntriesForTask(_ context.Context, task timesheet.TaskID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.TaskID == task {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// TIME PERIODS
// =============================================================================

func (m *Memory) FindTimePeriod(_ context.Context, year int, month time.Month, number int, typ calendar.PeriodType) (*timesheet.TimePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPeriodLocked(periodKey{year, month, number, typ}), nil
}

func (m *Memory) findPeriodLocked(k periodKey) *timesheet.TimePeriod {
	for _, p := range m.periods {
		if (periodKey{p.Year, p.Month, p.PeriodNumber, p.Type}) == k {
			return &p
		}
	}
	return nil
}

func (m *Memory) GetTimePeriod(_ context.Context, id timesheet.TimePeriodID) (*timesheet.TimePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) CreateTimePeriod(_ context.Context, period timesheet.TimePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := periodKey{period.Year, period.Month, period.PeriodNumber, period.Type}
	if m.findPeriodLocked(k) != nil {
		return timesheet.ErrDuplicatePeriod
	}
	m.periods[period.ID] = period
	return nil
}

func (m *Memory) ListTimePeriods(_ context.Context, year int) ([]timesheet.TimePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.TimePeriod{}
	for _, p := range m.periods {
		if year == 0 || p.Year == year {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].StartDate.Compare(out[j].StartDate); c != 0 {
			return c < 0
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (m *Memory) withEntryArea(e timesheet.TimeEntry) timesheet.TimeEntry {
	if p, ok := m.projects[e.ProjectID]; ok {
		e.AreaID = p.AreaID
	}
	return e
}

func (m *Memory) GetTimeEntry(_ context.Context, id timesheet.TimeEntryID) (*timesheet.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	e = m.withEntryArea(e)
	return &e, nil
}

func (m *Memory) FindTimeEntry(_ context.Context, key timesheet.EntryKey) (*timesheet.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.entryKeys[key]
	if !ok {
		return nil, nil
	}
	e := m.withEntryArea(m.entries[id])
	return &e, nil
}

func (m *Memory) CreateTimeEntry(_ context.Context, entry timesheet.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entryKeys[entry.Key()]; exists {
		return timesheet.ErrDuplicateEntry
	}
	m.entries[entry.ID] = entry
	m.entryKeys[entry.Key()] = entry.ID
	return nil
}

// UpdateTimeEntry replaces an entry. The key is immutable, so the index is
// left alone.
func (m *Memory) UpdateTimeEntry(_ context.Context, entry timesheet.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.entries[entry.ID]
	if !ok {
		return timesheet.ErrNotFound
	}
	if old.Key() != entry.Key() {
		if _, exists := m.entryKeys[entry.Key()]; exists {
			return timesheet.ErrDuplicateEntry
		}
		delete(m.entryKeys, old.Key())
		m.entryKeys[entry.Key()] = entry.ID
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *Memory) DeleteTimeEntry(_ context.Context, id timesheet.TimeEntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return timesheet.ErrNotFound
	}
	delete(m.entryKeys, e.Key())
	delete(m.entries, id)
	return nil
}

func (m *Memory) ListTimeEntries(_ context.Context, f timesheet.TimeEntryFilter) ([]timesheet.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []timesheet.TimeEntry{}
	for _, e := range m.entries {
		e = m.withEntryArea(e)
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.ProjectID != "" && e.ProjectID != f.ProjectID {
			continue
		}
		if f.TaskID != "" && e.TaskID != f.TaskID {
			continue
		}
		if f.TimePeriodID != "" && e.TimePeriodID != f.TimePeriodID {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		if f.Approved != nil && e.IsApproved != *f.Approved {
			continue
		}
		if !f.Scope.AllowsTimeEntry(e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SumHoursForUserAndDate(_ context.Context, user timesheet.UserID, date calendar.Date, exclude timesheet.TimeEntryID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.UserID == user && e.Date == date && e.ID != exclude {
			sum = sum.Add(e.Hours)
		}
	}
	return sum, nil
}

// =============================================================================
// SYSTEM CONFIG
// =============================================================================

func (m *Memory) GetConfig(_ context.Context, key string) (*timesheet.SystemConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.config[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg timesheet.SystemConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[cfg.Key] = cfg
	return nil
}

func (m *Memory) ListConfig(_ context.Context) ([]timesheet.SystemConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timesheet.SystemConfig, 0, len(m.config))
	for _, c := range m.config {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
