/*
Package sqlite provides a SQLite-backed implementation of timesheet.Store.

PURPOSE:
  Persists areas, users, projects, assignments, tasks, time periods, time
  entries and system configuration. The schema's unique indexes are what
  make the engine's duplicate handling race-free: the reconciler relies on
  the store rejecting a second (user, project, task, date) row.

UNIQUENESS ENFORCEMENT:
  time_entries:        UNIQUE(user_id, project_id, task_id, date)
                       -> timesheet.ErrDuplicateEntry
  time_periods:        UNIQUE(year, month, period_number, type)
                       -> timesheet.ErrDuplicatePeriod
  project_assignments: idx_unique_active_assignment (partial, is_active = 1)
                       -> timesheet.ErrDuplicateAssignment

STORAGE FORMATS:
  - Calendar dates as TEXT "YYYY-MM-DD", so string order is date order
  - Hours as TEXT decimals, summed in Go with shopspring/decimal
  - Instants as RFC3339Nano TEXT in UTC
  - Role as its wire name (ADMINISTRADOR, COORDINADOR, COLABORADOR)

DERIVED FIELDS:
  Task.AreaID and TimeEntry.AreaID are read through a join on projects; they
  are never stored on the row itself.

LIST SCOPES:
  timesheet.Scope is translated into a WHERE fragment by scopeClause. The
  Scope.Allows* methods are the reference semantics; the store tests check
  both agree.

CONCURRENCY:
  Uses sync.RWMutex and a single connection. SQLite serializes writers
  anyway, and ":memory:" databases are per-connection.

USAGE:
  store, err := sqlite.New("./data/timesheet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := timesheet.New(store, timesheet.Options{})

SEE ALSO:
  - timesheet/store.go:        Interface definitions
  - timesheet/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

// Store implements timesheet.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ timesheet.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

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

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS areas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		area_id TEXT REFERENCES areas(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_area ON users(area_id);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		area_id TEXT NOT NULL REFERENCES areas(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		is_general INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_area ON projects(area_id);

	CREATE TABLE IF NOT EXISTS project_assignments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		assigned_by TEXT,
		created_at TEXT NOT NULL
	);

	-- At most one active assignment per (project, user)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_assignment
		ON project_assignments(project_id, user_id) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		assigned_to TEXT,
		due_date TEXT,
		completed_at TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to) WHERE assigned_to IS NOT NULL;

	CREATE TABLE IF NOT EXISTS time_periods (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		period_number INTEGER NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reference_hours TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(year, month, period_number, type)
	);

	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		project_id TEXT NOT NULL REFERENCES projects(id),
		task_id TEXT NOT NULL REFERENCES tasks(id),
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_approved INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at TEXT,
		time_period_id TEXT REFERENCES time_periods(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, project_id, task_id, date)
	);

	-- Daily cap sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_time_entries_user_date ON time_entries(user_id, date);
	CREATE INDEX IF NOT EXISTS idx_time_entries_period ON time_entries(time_period_id);
	CREATE INDEX IF NOT EXISTS idx_time_entries_task ON time_entries(task_id);

	CREATE TABLE IF NOT EXISTS system_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"time_entries", "time_periods", "tasks", "project_assignments",
		"projects", "users", "areas", "system_config",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// DIRECTORY (timesheet.DirectoryStore)
// =============================================================================

func (s *Store) SaveArea(ctx context.Context, area timesheet.Area) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO areas (id, name, is_active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query, area.ID, area.Name, area.IsActive, formatTime(area.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save area: %w", err)
	}
	return nil
}

func (s *Store) GetArea(ctx context.Context, id timesheet.AreaID) (*timesheet.Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a timesheet.Area
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active, created_at FROM areas WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.IsActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (s *Store) ListAreas(ctx context.Context) ([]timesheet.Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, is_active, created_at FROM areas ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	areas := []timesheet.Area{}
	for rows.Next() {
		var a timesheet.Area
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Name, &a.IsActive, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

const userColumns = "id, email, name, password_hash, role, area_id, is_active, created_at"

func (s *Store) SaveUser(ctx context.Context, u timesheet.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			password_hash = excluded.password_hash,
			role = excluded.role,
			area_id = excluded.area_id,
			is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role.String(),
		nullString(string(u.AreaID)), u.IsActive, formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id timesheet.UserID) (*timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (s *Store) queryUser(ctx context.Context, query string, args ...any) (*timesheet.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, f timesheet.UserFilter) ([]timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.AreaID != "" {
		where = append(where, "area_id = ?")
		args = append(args, f.AreaID)
	}
	if f.Role != 0 {
		where = append(where, "role = ?")
		args = append(args, f.Role.String())
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users"+joinWhere(where)+" ORDER BY email", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []timesheet.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row scanner) (timesheet.User, error) {
	var u timesheet.User
	var role, createdAt string
	var area sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &area, &u.IsActive, &createdAt)
	if err != nil {
		return u, err
	}
	u.Role, err = timesheet.ParseRole(role)
	if err != nil {
		return u, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.AreaID = timesheet.AreaID(area.String)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// PROJECTS (timesheet.ProjectStore)
// =============================================================================

const projectColumns = `p.id, p.area_id, p.name, p.description, p.status, p.priority,
	p.start_date, p.end_date, p.is_general, p.is_active, p.created_by, p.created_at, p.updated_at`

func (s *Store) CreateProject(ctx context.Context, p timesheet.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO projects
		(id, area_id, name, description, status, priority, start_date, end_date,
		 is_general, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.AreaID, p.Name, p.Description, p.Status, p.Priority,
		nullDate(p.StartDate), nullDate(p.EndDate), p.IsGeneral, p.IsActive,
		nullString(string(p.CreatedBy)), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *Store) UpdateProject(ctx context.Context, p timesheet.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE projects SET
			name = ?, description = ?, status = ?, priority = ?, start_date = ?, end_date = ?,
			is_general = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		p.Name, p.Description, p.Status, p.Priority, nullDate(p.StartDate), nullDate(p.EndDate),
		p.IsGeneral, p.IsActive, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetProject(ctx context.Context, id timesheet.ProjectID) (*timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects p WHERE p.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// activeMember is the "owner" test for projects.
const activeMember = `EXISTS (SELECT 1 FROM project_assignments a
	WHERE a.project_id = p.id AND a.user_id = ? AND a.is_active = 1)`

func (s *Store) ListProjects(ctx context.Context, f timesheet.ProjectFilter) ([]timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if clause, cargs := scopeClause(f.Scope, "p.area_id", activeMember, "p.is_general = 1"); clause != "" {
		where = append(where, clause)
		args = append(args, cargs...)
	}
	if !f.IncludeInactive {
		where = append(where, "p.is_active = 1")
	}
	if f.AreaID != "" {
		where = append(where, "p.area_id = ?")
		args = append(args, f.AreaID)
	}
	if f.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, f.Status)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects p"+joinWhere(where)+" ORDER BY p.name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []timesheet.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row scanner) (timesheet.Project, error) {
	var p timesheet.Project
	var start, end, createdBy sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.AreaID, &p.Name, &p.Description, &p.Status, &p.Priority,
		&start, &end, &p.IsGeneral, &p.IsActive, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.StartDate = parseDate(start)
	p.EndDate = parseDate(end)
	p.CreatedBy = timesheet.UserID(createdBy.String)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// -----------------------------------------------------------------------------
// Assignments
// -----------------------------------------------------------------------------

const assignmentColumns = "id, project_id, user_id, is_active, assigned_by, created_at"

func (s *Store) CreateAssignment(ctx context.Context, a timesheet.ProjectAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO project_assignments ("+assignmentColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.ProjectID, a.UserID, a.IsActive, nullString(string(a.AssignedBy)), formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return timesheet.ErrDuplicateAssignment
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (s *Store) DeactivateAssignment(ctx context.Context, id timesheet.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE project_assignments SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetActiveAssignment(ctx context.Context, projectID timesheet.ProjectID, userID timesheet.UserID) (*timesheet.ProjectAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+" FROM project_assignments WHERE project_id = ? AND user_id = ? AND is_active = 1",
		projectID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAssignments(ctx context.Context, projectID timesheet.ProjectID) ([]timesheet.ProjectAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM project_assignments WHERE project_id = ? AND is_active = 1 ORDER BY created_at",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []timesheet.ProjectAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row scanner) (timesheet.ProjectAssignment, error) {
	var a timesheet.ProjectAssignment
	var by sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.UserID, &a.IsActive, &by, &createdAt); err != nil {
		return a, err
	}
	a.AssignedBy = timesheet.UserID(by.String)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// =============================================================================
// TASKS (timesheet.TaskStore)
// =============================================================================

const taskSelect = `SELECT t.id, t.project_id, p.area_id, t.title, t.description, t.status, t.priority,
	t.assigned_to, t.due_date, t.completed_at, t.is_active, t.created_by, t.created_at, t.updated_at
	FROM tasks t JOIN projects p ON p.id = t.project_id`

func (s *Store) CreateTask(ctx context.Context, t timesheet.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tasks
		(id, project_id, title, description, status, priority, assigned_to, due_date,
		 completed_at, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		nullString(string(t.AssignedTo)), nullDate(t.DueDate), nullTime(t.CompletedAt),
		t.IsActive, nullString(string(t.CreatedBy)), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t timesheet.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?, assigned_to = ?,
			due_date = ?, completed_at = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		t.Title, t.Description, t.Status, t.Priority, nullString(string(t.AssignedTo)),
		nullDate(t.DueDate), nullTime(t.CompletedAt), t.IsActive, formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetTask(ctx context.Context, id timesheet.TaskID) (*timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+" WHERE t.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, f timesheet.TaskFilter) ([]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if clause, cargs := scopeClause(f.Scope, "p.area_id", "t.assigned_to = ?", ""); clause != "" {
		where = append(where, clause)
		args = append(args, cargs...)
	}
	if !f.IncludeInactive {
		where = append(where, "t.is_active = 1")
	}
	if f.ProjectID != "" {
		where = append(where, "t.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.AssignedTo != "" {
		where = append(where, "t.assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}

	rows, err := s.db.QueryContext(ctx, taskSelect+joinWhere(where)+" ORDER BY t.created_at, t.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []timesheet.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) CountActiveTasks(ctx context.Context, projectID timesheet.ProjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE project_id = ? AND is_active = 1 AND status != ?",
		projectID, timesheet.TaskDone,
	).Scan(&n)
	return n, err
}

func (s *Store) CountTimeEntriesForTask(ctx context.Context, taskID timesheet.TaskID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM time_entries WHERE task_id = ?", taskID).Scan(&n)
	return n, err
}

func scanTask(row scanner) (timesheet.Task, error) {
	var t timesheet.Task
	var assigned, due, completed, createdBy sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ProjectID, &t.AreaID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&assigned, &due, &completed, &t.IsActive, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.AssignedTo = timesheet.UserID(assigned.String)
	t.DueDate = parseDate(due)
	if completed.Valid {
		at := parseTime(completed.String)
		t.CompletedAt = &at
	}
	t.CreatedBy = timesheet.UserID(createdBy.String)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// TIME PERIODS (timesheet.PeriodStore)
// =============================================================================

const periodColumns = "id, year, month, period_number, type, start_date, end_date, reference_hours, created_at"

func (s *Store) CreateTimePeriod(ctx context.Context, p timesheet.TimePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ref sql.NullString
	if p.ReferenceHours != nil {
		ref = sql.NullString{String: p.ReferenceHours.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO time_periods ("+periodColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Year, int(p.Month), p.PeriodNumber, p.Type,
		p.StartDate.String(), p.EndDate.String(), ref, formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return timesheet.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to create time period: %w", err)
	}
	return nil
}

func (s *Store) FindTimePeriod(ctx context.Context, year int, month time.Month, number int, typ calendar.PeriodType) (*timesheet.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriod(ctx,
		"SELECT "+periodColumns+" FROM time_periods WHERE year = ? AND month = ? AND period_number = ? AND type = ?",
		year, int(month), number, typ,
	)
}

func (s *Store) GetTimePeriod(ctx context.Context, id timesheet.TimePeriodID) (*timesheet.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPeriod(ctx, "SELECT "+periodColumns+" FROM time_periods WHERE id = ?", id)
}

func (s *Store) queryPeriod(ctx context.Context, query string, args ...any) (*timesheet.TimePeriod, error) {
	p, err := scanPeriod(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListTimePeriods(ctx context.Context, year int) ([]timesheet.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + periodColumns + " FROM time_periods"
	var args []any
	if year != 0 {
		query += " WHERE year = ?"
		args = append(args, year)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY start_date, type", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := []timesheet.TimePeriod{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row scanner) (timesheet.TimePeriod, error) {
	var p timesheet.TimePeriod
	var month int
	var start, end, createdAt string
	var ref sql.NullString
	err := row.Scan(&p.ID, &p.Year, &month, &p.PeriodNumber, &p.Type, &start, &end, &ref, &createdAt)
	if err != nil {
		return p, err
	}
	p.Month = time.Month(month)
	p.StartDate = parseDate(sql.NullString{String: start, Valid: true})
	p.EndDate = parseDate(sql.NullString{String: end, Valid: true})
	if ref.Valid {
		d, err := decimal.NewFromString(ref.String)
		if err != nil {
			return p, fmt.Errorf("period %s reference hours: %w", p.ID, err)
		}
		p.ReferenceHours = &d
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// =============================================================================
// TIME ENTRIES (timesheet.TimeEntryStore)
// =============================================================================

const entrySelect = `SELECT e.id, e.user_id, e.project_id, e.task_id, p.area_id, e.date, e.hours,
	e.description, e.is_approved, e.approved_by, e.approved_at, e.time_period_id, e.created_at, e.updated_at
	FROM time_entries e JOIN projects p ON p.id = e.project_id`

// CreateTimeEntry inserts an entry. The unique key on (user_id, project_id,
// task_id, date) turns a concurrent duplicate into ErrDuplicateEntry.
func (s *Store) CreateTimeEntry(ctx context.Context, e timesheet.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO time_entries
		(id, user_id, project_id, task_id, date, hours, description, is_approved,
		 approved_by, approved_at, time_period_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.ProjectID, e.TaskID, e.Date.String(), e.Hours.String(), e.Description,
		e.IsApproved, nullString(string(e.ApprovedBy)), nullTime(e.ApprovedAt),
		nullString(string(e.TimePeriodID)), formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return timesheet.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

// UpdateTimeEntry rewrites the mutable columns. The key columns are never
// touched.
func (s *Store) UpdateTimeEntry(ctx context.Context, e timesheet.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE time_entries SET
			hours = ?, description = ?, is_approved = ?, approved_by = ?, approved_at = ?,
			time_period_id = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		e.Hours.String(), e.Description, e.IsApproved, nullString(string(e.ApprovedBy)),
		nullTime(e.ApprovedAt), nullString(string(e.TimePeriodID)), formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteTimeEntry(ctx context.Context, id timesheet.TimeEntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM time_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetTimeEntry(ctx context.Context, id timesheet.TimeEntryID) (*timesheet.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEntry(ctx, entrySelect+" WHERE e.id = ?", id)
}

func (s *Store) FindTimeEntry(ctx context.Context, k timesheet.EntryKey) (*timesheet.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEntry(ctx,
		entrySelect+" WHERE e.user_id = ? AND e.project_id = ? AND e.task_id = ? AND e.date = ?",
		k.UserID, k.ProjectID, k.TaskID, k.Date.String(),
	)
}

func (s *Store) queryEntry(ctx context.Context, query string, args ...any) (*timesheet.TimeEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListTimeEntries(ctx context.Context, f timesheet.TimeEntryFilter) ([]timesheet.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if clause, cargs := scopeClause(f.Scope, "p.area_id", "e.user_id = ?", ""); clause != "" {
		where = append(where, clause)
		args = append(args, cargs...)
	}
	add := func(cond string, arg any) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if f.UserID != "" {
		add("e.user_id = ?", f.UserID)
	}
	if f.ProjectID != "" {
		add("e.project_id = ?", f.ProjectID)
	}
	if f.TaskID != "" {
		add("e.task_id = ?", f.TaskID)
	}
	if f.TimePeriodID != "" {
		add("e.time_period_id = ?", f.TimePeriodID)
	}
	if !f.From.IsZero() {
		add("e.date >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		add("e.date <= ?", f.To.String())
	}
	if f.Approved != nil {
		add("e.is_approved = ?", *f.Approved)
	}

	rows, err := s.db.QueryContext(ctx, entrySelect+joinWhere(where)+" ORDER BY e.date DESC, e.created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []timesheet.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumHoursForUserAndDate sums in Go so decimal hours never pass through
// SQLite's floating point.
func (s *Store) SumHoursForUserAndDate(ctx context.Context, userID timesheet.UserID, date calendar.Date, exclude timesheet.TimeEntryID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT hours FROM time_entries WHERE user_id = ? AND date = ? AND id != ?",
		userID, date.String(), exclude,
	)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		h, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid stored hours %q: %w", raw, err)
		}
		sum = sum.Add(h)
	}
	return sum, rows.Err()
}

func scanEntry(row scanner) (timesheet.TimeEntry, error) {
	var e timesheet.TimeEntry
	var date, hours, createdAt, updatedAt string
	var approvedBy, approvedAt, period sql.NullString
	err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.TaskID, &e.AreaID, &date, &hours,
		&e.Description, &e.IsApproved, &approvedBy, &approvedAt, &period, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.Date = parseDate(sql.NullString{String: date, Valid: true})
	e.Hours, err = decimal.NewFromString(hours)
	if err != nil {
		return e, fmt.Errorf("entry %s hours: %w", e.ID, err)
	}
	e.ApprovedBy = timesheet.UserID(approvedBy.String)
	if approvedAt.Valid {
		at := parseTime(approvedAt.String)
		e.ApprovedAt = &at
	}
	e.TimePeriodID = timesheet.TimePeriodID(period.String)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// SYSTEM CONFIG (timesheet.ConfigSource)
// =============================================================================

func (s *Store) SaveConfig(ctx context.Context, c timesheet.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO system_config (key, value, description, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Key, c.Value, c.Description, nullString(string(c.CreatedBy)), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (*timesheet.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanConfig(s.db.QueryRowContext(ctx,
		"SELECT key, value, description, created_by, updated_at FROM system_config WHERE key = ?", key,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListConfig(ctx context.Context) ([]timesheet.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, description, created_by, updated_at FROM system_config ORDER BY key",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []timesheet.SystemConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConfig(row scanner) (timesheet.SystemConfig, error) {
	var c timesheet.SystemConfig
	var by sql.NullString
	var updatedAt string
	if err := row.Scan(&c.Key, &c.Value, &c.Description, &by, &updatedAt); err != nil {
		return c, err
	}
	c.CreatedBy = timesheet.UserID(by.String)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// =============================================================================
// SCOPES
// =============================================================================

// scopeClause renders a timesheet.Scope as a WHERE fragment. ownerExpr takes
// the scope's UserID as its single argument; generalExpr is only used by
// ScopeOwnerOrGeneral. An empty clause means unconstrained.
func scopeClause(s timesheet.Scope, areaCol, ownerExpr, generalExpr string) (string, []any) {
	switch s.Kind {
	case timesheet.ScopeAll:
		return "", nil
	case timesheet.ScopeArea:
		return areaCol + " = ?", []any{s.AreaID}
	case timesheet.ScopeOwner:
		return ownerExpr, []any{s.UserID}
	case timesheet.ScopeAreaOrOwner:
		if s.AreaID == "" {
			return ownerExpr, []any{s.UserID}
		}
		return "(" + ownerExpr + " OR " + areaCol + " = ?)", []any{s.UserID, s.AreaID}
	case timesheet.ScopeOwnerOrGeneral:
		if generalExpr == "" {
			return "1 = 0", nil
		}
		if s.AreaID == "" {
			return ownerExpr, []any{s.UserID}
		}
		return "(" + ownerExpr + " OR (" + generalExpr + " AND " + areaCol + " = ?))", []any{s.UserID, s.AreaID}
	}
	return "1 = 0", nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func joinWhere(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return timesheet.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d calendar.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseDate(s sql.NullString) calendar.Date {
	if !s.Valid || s.String == "" {
		return calendar.Date{}
	}
	d, err := calendar.ParseDate(s.String)
	if err != nil {
		return calendar.Date{}
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
