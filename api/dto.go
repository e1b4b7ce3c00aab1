/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package timesheet from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ENVELOPE:
  Every response is wrapped:
    {"success": true,  "data": ...}
    {"success": false, "message": "...", "error": "DAILY_CAP_EXCEEDED"}

DATES:
  Time-entry writes take the calendar day as three integers
  {year, month, day}, never as a date string, so no client time zone can
  shift the day. Reads return dates as "YYYY-MM-DD".

HOURS:
  Decimal strings ("7.5"); numbers are also accepted on input.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// ENVELOPE
// =============================================================================

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// AUTH AND DIRECTORY
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserDTO   `json:"user"`
}

type AreaDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateAreaRequest struct {
	Name string `json:"name"`
}

type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	AreaID    string    `json:"area_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	AreaID   string `json:"area_id"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	AreaID   *string `json:"area_id"`
	IsActive *bool   `json:"is_active"`
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID          string        `json:"id"`
	AreaID      string        `json:"area_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	StartDate   calendar.Date `json:"start_date"`
	EndDate     calendar.Date `json:"end_date"`
	IsGeneral   bool          `json:"is_general"`
	IsActive    bool          `json:"is_active"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type CreateProjectRequest struct {
	AreaID      string        `json:"area_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	StartDate   calendar.Date `json:"start_date"`
	EndDate     calendar.Date `json:"end_date"`
	IsGeneral   bool          `json:"is_general"`
}

type UpdateProjectRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	StartDate   *calendar.Date `json:"start_date"`
	EndDate     *calendar.Date `json:"end_date"`
	IsGeneral   *bool          `json:"is_general"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type MemberRequest struct {
	UserID string `json:"user_id"`
}

type AssignmentDTO struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"user_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// =============================================================================
// TASKS
// =============================================================================

type TaskDTO struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	AreaID      string        `json:"area_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	AssignedTo  string        `json:"assigned_to,omitempty"`
	DueDate     calendar.Date `json:"due_date"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type CreateTaskRequest struct {
	ProjectID   string        `json:"project_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	AssignedTo  string        `json:"assigned_to"`
	DueDate     calendar.Date `json:"due_date"`
}

type UpdateTaskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	DueDate     *calendar.Date `json:"due_date"`
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

type TimeEntryDTO struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ProjectID    string          `json:"project_id"`
	TaskID       string          `json:"task_id"`
	AreaID       string          `json:"area_id"`
	Date         calendar.Date   `json:"date"`
	Hours        decimal.Decimal `json:"hours"`
	Description  string          `json:"description"`
	IsApproved   bool            `json:"is_approved"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	TimePeriodID string          `json:"time_period_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TimeEntryRequest submits hours. UserID defaults to the caller; ProjectID,
// when given, must match the task's project.
type TimeEntryRequest struct {
	UserID      string          `json:"user_id"`
	ProjectID   string          `json:"project_id"`
	TaskID      string          `json:"task_id"`
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Day         int             `json:"day"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
}

// ReconcileDTO reports whether a submission created a new entry or was
// merged into an existing one.
type ReconcileDTO struct {
	Outcome string       `json:"outcome"`
	Entry   TimeEntryDTO `json:"entry"`
}

// UpdateTimeEntryRequest only changes hours and description; the identity
// fields are accepted so that an attempt to move an entry is rejected.
type UpdateTimeEntryRequest struct {
	Hours       *decimal.Decimal `json:"hours"`
	Description *string          `json:"description"`
	UserID      *string          `json:"user_id"`
	ProjectID   *string          `json:"project_id"`
	TaskID      *string          `json:"task_id"`
	Year        *int             `json:"year"`
	Month       *int             `json:"month"`
	Day         *int             `json:"day"`
}

type BulkRequest struct {
	Entries []TimeEntryRequest `json:"entries"`
}

type BulkSkipDTO struct {
	Index  int              `json:"index"`
	Entry  TimeEntryRequest `json:"entry"`
	Reason string           `json:"reason"`
}

type BulkErrorDTO struct {
	Index   int              `json:"index"`
	Entry   TimeEntryRequest `json:"entry"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
}

type BulkResultDTO struct {
	Created []TimeEntryDTO `json:"created"`
	Skipped []BulkSkipDTO  `json:"skipped"`
	Errors  []BulkErrorDTO `json:"errors"`
}

type DateCheckDTO struct {
	Date              calendar.Date `json:"date"`
	Valid             bool          `json:"valid"`
	DiffDays          int           `json:"diff_days"`
	Enabled           bool          `json:"enabled"`
	FutureDaysAllowed int           `json:"future_days_allowed"`
	PastDaysAllowed   int           `json:"past_days_allowed"`
	Code              string        `json:"code,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

type DailyHoursDTO struct {
	UserID         string          `json:"user_id"`
	Date           calendar.Date   `json:"date"`
	CurrentHours   decimal.Decimal `json:"current_hours"`
	MaxHours       decimal.Decimal `json:"max_hours"`
	RemainingHours decimal.Decimal `json:"remaining_hours"`
}

// =============================================================================
// TIME PERIODS
// =============================================================================

type TimePeriodDTO struct {
	ID             string           `json:"id"`
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	PeriodNumber   int              `json:"period_number"`
	Type           string           `json:"type"`
	StartDate      calendar.Date    `json:"start_date"`
	EndDate        calendar.Date    `json:"end_date"`
	ReferenceHours *decimal.Decimal `json:"reference_hours,omitempty"`
}

type UserPeriodTotalDTO struct {
	UserID         string          `json:"user_id"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	ApprovedHours  decimal.Decimal `json:"approved_hours"`
	PendingHours   decimal.Decimal `json:"pending_hours"`
	ReferenceHours decimal.Decimal `json:"reference_hours"`
	Balance        decimal.Decimal `json:"balance"`
	Entries        int             `json:"entries"`
	DaysLogged     int             `json:"days_logged"`
}

type PeriodSummaryDTO struct {
	Period     TimePeriodDTO        `json:"period"`
	Users      []UserPeriodTotalDTO `json:"users"`
	TotalHours decimal.Decimal      `json:"total_hours"`
}

// =============================================================================
// CONFIG
// =============================================================================

type SettingDTO struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
	UpdatedBy   string `json:"updated_by,omitempty"`
}

type SetConfigRequest struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ScenarioResultDTO struct {
	ScenarioID string `json:"scenario_id"`
	Areas      int    `json:"areas"`
	Users      int    `json:"users"`
	Projects   int    `json:"projects"`
	Tasks      int    `json:"tasks"`
	Entries    int    `json:"entries"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAreaDTO(a timesheet.Area) AreaDTO {
	return AreaDTO{ID: string(a.ID), Name: a.Name, IsActive: a.IsActive, CreatedAt: a.CreatedAt}
}

func toUserDTO(u timesheet.User) UserDTO {
	return UserDTO{
		ID: string(u.ID), Email: u.Email, Name: u.Name, Role: u.Role.String(),
		AreaID: string(u.AreaID), IsActive: u.IsActive, CreatedAt: u.CreatedAt,
	}
}

func toProjectDTO(p timesheet.Project) ProjectDTO {
	return ProjectDTO{
		ID: string(p.ID), AreaID: string(p.AreaID), Name: p.Name, Description: p.Description,
		Status: string(p.Status), Priority: string(p.Priority),
		StartDate: p.StartDate, EndDate: p.EndDate, IsGeneral: p.IsGeneral, IsActive: p.IsActive,
		CreatedBy: string(p.CreatedBy), CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func toAssignmentDTO(a timesheet.ProjectAssignment) AssignmentDTO {
	return AssignmentDTO{
		ID: string(a.ID), ProjectID: string(a.ProjectID), UserID: string(a.UserID),
		AssignedBy: string(a.AssignedBy), CreatedAt: a.CreatedAt,
	}
}

func toTaskDTO(t timesheet.Task) TaskDTO {
	return TaskDTO{
		ID: string(t.ID), ProjectID: string(t.ProjectID), AreaID: string(t.AreaID),
		Title: t.Title, Description: t.Description, Status: string(t.Status), Priority: string(t.Priority),
		AssignedTo: string(t.AssignedTo), DueDate: t.DueDate, CompletedAt: t.CompletedAt,
		CreatedBy: string(t.CreatedBy), CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func toTimeEntryDTO(e timesheet.TimeEntry) TimeEntryDTO {
	return TimeEntryDTO{
		ID: string(e.ID), UserID: string(e.UserID), ProjectID: string(e.ProjectID), TaskID: string(e.TaskID),
		AreaID: string(e.AreaID), Date: e.Date, Hours: e.Hours, Description: e.Description,
		IsApproved: e.IsApproved, ApprovedBy: string(e.ApprovedBy), ApprovedAt: e.ApprovedAt,
		TimePeriodID: string(e.TimePeriodID), CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func toTimeEntryDTOs(entries []timesheet.TimeEntry) []TimeEntryDTO {
	out := make([]TimeEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toTimeEntryDTO(e))
	}
	return out
}

func toTimePeriodDTO(p timesheet.TimePeriod) TimePeriodDTO {
	return TimePeriodDTO{
		ID: string(p.ID), Year: p.Year, Month: int(p.Month), PeriodNumber: p.PeriodNumber,
		Type: string(p.Type), StartDate: p.StartDate, EndDate: p.EndDate, ReferenceHours: p.ReferenceHours,
	}
}

func (r TimeEntryRequest) candidate() timesheet.Candidate {
	return timesheet.Candidate{
		UserID:      timesheet.UserID(r.UserID),
		ProjectID:   timesheet.ProjectID(r.ProjectID),
		TaskID:      timesheet.TaskID(r.TaskID),
		Year:        r.Year,
		Month:       r.Month,
		Day:         r.Day,
		Hours:       r.Hours,
		Description: r.Description,
	}
}

func fromCandidate(c timesheet.Candidate) TimeEntryRequest {
	return TimeEntryRequest{
		UserID: string(c.UserID), ProjectID: string(c.ProjectID), TaskID: string(c.TaskID),
		Year: c.Year, Month: c.Month, Day: c.Day, Hours: c.Hours, Description: c.Description,
	}
}
