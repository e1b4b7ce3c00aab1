/*
store.go - Persistence contracts

PURPOSE:
  Defines the interface between the engine and the database. The engine never
  reaches a global client: every service is constructed with a Store.

CONVENTIONS:
  - Get and Find methods return (nil, nil) when the record does not exist.
  - Stores enforce uniqueness themselves and report violations with the
    sentinels ErrDuplicateEntry, ErrDuplicatePeriod, ErrDuplicateAssignment.
    The reconciler relies on ErrDuplicateEntry to close the
    check-then-insert race.
  - Task and TimeEntry reads fill in AreaID from the owning project.

IMPLEMENTATIONS:
  - timesheet/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go:    SQLite via database/sql
*/
package timesheet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// FILTERS
// =============================================================================

type UserFilter struct {
	AreaID AreaID
	Role   Role // zero means any
}

type ProjectFilter struct {
	Scope           Scope
	AreaID          AreaID
	Status          ProjectStatus
	IncludeInactive bool
}

type TaskFilter struct {
	Scope           Scope
	ProjectID       ProjectID
	AssignedTo      UserID
	Status          TaskStatus
	IncludeInactive bool
}

type TimeEntryFilter struct {
	Scope        Scope
	UserID       UserID
	ProjectID    ProjectID
	TaskID       TaskID
	TimePeriodID TimePeriodID
	From         calendar.Date // inclusive, zero = open
	To           calendar.Date // inclusive, zero = open
	Approved     *bool
}

// =============================================================================
// STORES
// =============================================================================

type DirectoryStore interface {
	SaveArea(ctx context.Context, area Area) error
	GetArea(ctx context.Context, id AreaID) (*Area, error)
	ListAreas(ctx context.Context) ([]Area, error)

	// SaveUser inserts or replaces a user.
	SaveUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

type ProjectStore interface {
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	CreateProject(ctx context.Context, project Project) error
	UpdateProject(ctx context.Context, project Project) error
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)

	GetActiveAssignment(ctx context.Context, projectID ProjectID, userID UserID) (*ProjectAssignment, error)
	// CreateAssignment returns ErrDuplicateAssignment if an active one exists.
	CreateAssignment(ctx context.Context, a ProjectAssignment) error
	DeactivateAssignment(ctx context.Context, id AssignmentID) error
	// ListAssignments returns the active assignments of a project.
	ListAssignments(ctx context.Context, projectID ProjectID) ([]ProjectAssignment, error)
}

type TaskStore interface {
	GetTask(ctx context.Context, id TaskID) (*Task, error)
	CreateTask(ctx context.Context, task Task) error
	UpdateTask(ctx context.Context, task Task) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)

	// CountActiveTasks counts non-deleted tasks of a project that are not DONE.
	CountActiveTasks(ctx context.Context, projectID ProjectID) (int, error)
	CountTimeEntriesForTask(ctx context.Context, taskID TaskID) (int, error)
}

type PeriodStore interface {
	FindTimePeriod(ctx context.Context, year int, month time.Month, number int, typ calendar.PeriodType) (*TimePeriod, error)
	GetTimePeriod(ctx context.Context, id TimePeriodID) (*TimePeriod, error)
	// CreateTimePeriod returns ErrDuplicatePeriod if the bucket exists.
	CreateTimePeriod(ctx context.Context, period TimePeriod) error
	// ListTimePeriods lists periods of a year, or all when year is 0.
	ListTimePeriods(ctx context.Context, year int) ([]TimePeriod, error)
}

type TimeEntryStore interface {
	GetTimeEntry(ctx context.Context, id TimeEntryID) (*TimeEntry, error)
	FindTimeEntry(ctx context.Context, key EntryKey) (*TimeEntry, error)
	// CreateTimeEntry returns ErrDuplicateEntry if the key exists.
	CreateTimeEntry(ctx context.Context, entry TimeEntry) error
	UpdateTimeEntry(ctx context.Context, entry TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id TimeEntryID) error
	ListTimeEntries(ctx context.Context, filter TimeEntryFilter) ([]TimeEntry, error)

	// SumHoursForUserAndDate sums the hours of a user's entries on a calendar
	// day, leaving out exclude when it is non-empty.
	SumHoursForUserAndDate(ctx context.Context, userID UserID, date calendar.Date, exclude TimeEntryID) (decimal.Decimal, error)
}

// ConfigSource is the persisted key/value table behind Settings.
type ConfigSource interface {
	GetConfig(ctx context.Context, key string) (*SystemConfig, error)
	SaveConfig(ctx context.Context, cfg SystemConfig) error
	ListConfig(ctx context.Context) ([]SystemConfig, error)
}

// Store is everything the engine needs.
type Store interface {
	DirectoryStore
	ProjectStore
	TaskStore
	PeriodStore
	TimeEntryStore
	ConfigSource
}
