/*
Package timesheet implements the role-scoped authorization and time-entry
validation engine.

PURPOSE:
  Users belong to an Area and hold one of three roles. They log hours against
  Tasks inside Projects. This package decides what each role may see or do,
  validates time entries against configurable windows and caps, reconciles
  duplicate submissions into a single entry, and assigns every entry to its
  half-month TimePeriod.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: type-safe ids so a ProjectID can't be passed as a TaskID
  - Records: Area, User, Project, ProjectAssignment, Task, TimePeriod,
    TimeEntry, SystemConfig
  - Hours: decimal.Decimal, never float64

DESIGN PRINCIPLES:
  1. Calendar dates, not instants: entries are keyed by calendar.Date
  2. One entry per (user, project, task, date); a resubmission is a correction
  3. Stores are injected, never global
  4. Every rejection carries a code and a human-readable reason

SEE ALSO:
  - access.go:    AccessPolicy predicates and list scopes
  - reconcile.go: TimeEntryReconciler
  - settings.go:  SystemConfigStore
  - store.go:     Persistence contracts
*/
package timesheet

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	AreaID       string
	UserID       string
	ProjectID    string
	TaskID       string
	TimeEntryID  string
	TimePeriodID string
	AssignmentID string
)

// =============================================================================
// DIRECTORY - Areas and users
// =============================================================================

// Area is an organizational unit. It owns users and projects.
type Area struct {
	ID        AreaID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// User is a person who logs time. PasswordHash is a bcrypt hash.
type User struct {
	ID           UserID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	AreaID       AreaID // empty when the user has no area
	IsActive     bool
	CreatedAt    time.Time
}

// Principal returns the actor view of u.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Email: u.Email, Role: u.Role, AreaID: u.AreaID}
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectOnHold    ProjectStatus = "ON_HOLD"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectCancelled ProjectStatus = "CANCELLED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Project belongs to exactly one Area. A general project is the area-wide
// catch-all for time that isn't tied to a specific project.
type Project struct {
	ID          ProjectID
	AreaID      AreaID
	Name        string
	Description string
	Status      ProjectStatus
	Priority    Priority
	StartDate   calendar.Date // zero when open-ended
	EndDate     calendar.Date // zero when open-ended
	IsGeneral   bool
	IsActive    bool
	CreatedBy   UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectAssignment links a user to a project. At most one active
// assignment exists per (project, user).
type ProjectAssignment struct {
	ID         AssignmentID
	ProjectID  ProjectID
	UserID     UserID
	IsActive   bool
	AssignedBy UserID
	CreatedAt  time.Time
}

// =============================================================================
// TASKS
// =============================================================================

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskReview     TaskStatus = "REVIEW"
	TaskDone       TaskStatus = "DONE"
)

// Task belongs to one project. AreaID is the owning project's area, filled
// in by the store on read.
type Task struct {
	ID          TaskID
	ProjectID   ProjectID
	AreaID      AreaID
	Title       string
	Description string
	Status      TaskStatus
	Priority    Priority
	AssignedTo  UserID // empty when unassigned
	DueDate     calendar.Date
	CompletedAt *time.Time
	IsActive    bool
	CreatedBy   UserID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// TIME PERIODS
// =============================================================================

// TimePeriod is a persisted reporting bucket. Created lazily the first time
// an entry falls into it and never modified afterwards.
type TimePeriod struct {
	ID             TimePeriodID
	Year           int
	Month          time.Month
	PeriodNumber   int
	Type           calendar.PeriodType
	StartDate      calendar.Date
	EndDate        calendar.Date
	ReferenceHours *decimal.Decimal
	CreatedAt      time.Time
}

// Bounds returns the calendar view of the period.
func (p TimePeriod) Bounds() calendar.Bounds {
	return calendar.Bounds{
		Year: p.Year, Month: p.Month, Number: p.PeriodNumber, Type: p.Type,
		Start: p.StartDate, End: p.EndDate,
	}
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// TimeEntry records hours a user spent on a task on a calendar day.
// AreaID is the owning project's area, filled in by the store on read.
type TimeEntry struct {
	ID           TimeEntryID
	UserID       UserID
	ProjectID    ProjectID
	TaskID       TaskID
	AreaID       AreaID
	Date         calendar.Date
	Hours        decimal.Decimal
	Description  string
	IsApproved   bool
	ApprovedBy   UserID
	ApprovedAt   *time.Time
	TimePeriodID TimePeriodID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the uniqueness key of the entry.
func (e TimeEntry) Key() EntryKey {
	return EntryKey{UserID: e.UserID, ProjectID: e.ProjectID, TaskID: e.TaskID, Date: e.Date}
}

// EntryKey is the logical identity of a time entry.
type EntryKey struct {
	UserID    UserID
	ProjectID ProjectID
	TaskID    TaskID
	Date      calendar.Date
}

// =============================================================================
// SYSTEM CONFIG
// =============================================================================

// SystemConfig is a persisted tunable.
type SystemConfig struct {
	Key         string
	Value       string
	Description string
	CreatedBy   UserID
	UpdatedAt   time.Time
}
