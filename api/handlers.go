/*
handlers.go - HTTP API handlers for the timesheet engine

PURPOSE:
  Exposes the timesheet engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the services in package timesheet.
  Every handler below the auth middleware runs as the principal carried by
  the bearer token; authorization decisions are made by the services.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                 Email + password -> token
    GET    /api/auth/me                    Current principal

  Directory:
    GET    /api/areas                      List areas
    POST   /api/areas                      Create area (admin)
    GET    /api/users                      List visible users
    POST   /api/users                      Create user (admin)
    GET    /api/users/{id}                 Get user
    PUT    /api/users/{id}                 Update user (admin)

  Projects:
    GET    /api/projects                   List visible projects
    POST   /api/projects                   Create project
    GET    /api/projects/{id}              Get project
    PUT    /api/projects/{id}              Update project
    PUT    /api/projects/{id}/status       Change status
    DELETE /api/projects/{id}              Soft delete (admin)
    GET    /api/projects/{id}/members      List members
    POST   /api/projects/{id}/members      Add member
    DELETE /api/projects/{id}/members/{userID}

  Tasks:
    GET    /api/tasks                      List visible tasks
    POST   /api/tasks                      Create task
    GET    /api/tasks/{id}                 Get task
    PUT    /api/tasks/{id}                 Update task
    PUT    /api/tasks/{id}/status          Change status
    PUT    /api/tasks/{id}/assign          Assign
    DELETE /api/tasks/{id}                 Soft delete

  Time entries:
    GET    /api/time-entries               List visible entries
    POST   /api/time-entries               Create or merge
    POST   /api/time-entries/bulk          Bulk import (duplicates skipped)
    GET    /api/time-entries/validate-date ?year&month&day
    GET    /api/time-entries/daily-hours   ?year&month&day[&user_id]
    GET    /api/time-entries/{id}          Get entry
    PUT    /api/time-entries/{id}          Update hours/description
    DELETE /api/time-entries/{id}          Delete
    POST   /api/time-entries/{id}/approve
    POST   /api/time-entries/{id}/unapprove

  Time periods:
    GET    /api/time-periods               ?year
    POST   /api/time-periods/ensure        Create current and next (admin)
    GET    /api/time-periods/{id}/summary  Per-user totals

  Config:
    GET    /api/config                     Effective settings (admin)
    PUT    /api/config/{key}               Set a tunable (admin)

ERROR HANDLING:
  Errors are returned in the envelope with the status from the taxonomy:
  - 400: ValidationError (error carries its code) or malformed input
  - 401: Missing/invalid token, bad credentials
  - 403: AccessPolicy veto
  - 404: Resource not found
  - 409: Conflict (duplicate assignment, dependent records)
  - 500: Anything else; the cause is logged, not returned

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication and request logging
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/auth"
	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *timesheet.Engine
	Auth   *auth.Service
	Logger *zap.Logger
	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over an engine.
func NewHandler(engine *timesheet.Engine, authSvc *auth.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Auth: authSvc, Logger: logger.Named("api")}
}

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges credentials for a token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.Engine.Directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, expires, err := h.Auth.GenerateToken(user.Principal())
	if err != nil {
		h.fail(w, r, fmt.Errorf("generate token: %w", err))
		return
	}
	writeData(w, http.StatusOK, LoginDTO{Token: token, ExpiresAt: expires, User: toUserDTO(*user)})
}

// Me returns the caller's user record.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	user, err := h.Engine.Directory.GetUser(r.Context(), p, p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toUserDTO(*user))
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (h *Handler) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.Engine.Directory.ListAreas(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]AreaDTO, 0, len(areas))
	for _, a := range areas {
		out = append(out, toAreaDTO(a))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) CreateArea(w http.ResponseWriter, r *http.Request) {
	var req CreateAreaRequest
	if !decode(w, r, &req) {
		return
	}
	area, err := h.Engine.Directory.CreateArea(r.Context(), principal(r), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toAreaDTO(*area))
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := timesheet.UserFilter{AreaID: timesheet.AreaID(q.Get("area_id"))}
	if raw := q.Get("role"); raw != "" {
		role, err := timesheet.ParseRole(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		filter.Role = role
	}
	users, err := h.Engine.Directory.ListUsers(r.Context(), principal(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := timesheet.ParseRole(req.Role)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	user, err := h.Engine.Directory.CreateUser(r.Context(), principal(r), timesheet.UserInput{
		Email: req.Email, Name: req.Name, Password: req.Password,
		Role: role, AreaID: timesheet.AreaID(req.AreaID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toUserDTO(*user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Engine.Directory.GetUser(r.Context(), principal(r), timesheet.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toUserDTO(*user))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}
	update := timesheet.UserUpdate{Name: req.Name, Password: req.Password, IsActive: req.IsActive}
	if req.Role != nil {
		role, err := timesheet.ParseRole(*req.Role)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		update.Role = &role
	}
	if req.AreaID != nil {
		area := timesheet.AreaID(*req.AreaID)
		update.AreaID = &area
	}
	user, err := h.Engine.Directory.UpdateUser(r.Context(), principal(r), timesheet.UserID(chi.URLParam(r, "id")), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toUserDTO(*user))
}

// =============================================================================
// PROJECTS
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projects, err := h.Engine.Projects.List(r.Context(), principal(r), timesheet.ProjectQuery{
		AreaID: timesheet.AreaID(q.Get("area_id")),
		Status: timesheet.ProjectStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ProjectDTO, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectDTO(p))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	project, err := h.Engine.Projects.Create(r.Context(), principal(r), timesheet.ProjectInput{
		AreaID:      timesheet.AreaID(req.AreaID),
		Name:        req.Name,
		Description: req.Description,
		Status:      timesheet.ProjectStatus(req.Status),
		Priority:    timesheet.Priority(req.Priority),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		IsGeneral:   req.IsGeneral,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toProjectDTO(*project))
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Engine.Projects.Get(r.Context(), principal(r), projectID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProjectDTO(*project))
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	update := timesheet.ProjectUpdate{
		Name: req.Name, Description: req.Description,
		StartDate: req.StartDate, EndDate: req.EndDate, IsGeneral: req.IsGeneral,
	}
	if req.Priority != nil {
		pr := timesheet.Priority(*req.Priority)
		update.Priority = &pr
	}
	project, err := h.Engine.Projects.Update(r.Context(), principal(r), projectID(r), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProjectDTO(*project))
}

func (h *Handler) ChangeProjectStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	project, err := h.Engine.Projects.ChangeStatus(r.Context(), principal(r), projectID(r), timesheet.ProjectStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProjectDTO(*project))
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Projects.Delete(r.Context(), principal(r), projectID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "project deleted"})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Engine.Projects.ListMembers(r.Context(), principal(r), projectID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]AssignmentDTO, 0, len(members))
	for _, m := range members {
		out = append(out, toAssignmentDTO(m))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Engine.Projects.AddMember(r.Context(), principal(r), projectID(r), timesheet.UserID(req.UserID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.Engine.Projects.RemoveMember(r.Context(), principal(r), projectID(r), timesheet.UserID(chi.URLParam(r, "userID")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "member removed"})
}

// =============================================================================
// TASKS
// =============================================================================

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.Engine.Tasks.List(r.Context(), principal(r), timesheet.TaskQuery{
		ProjectID:  timesheet.ProjectID(q.Get("project_id")),
		AssignedTo: timesheet.UserID(q.Get("assigned_to")),
		Status:     timesheet.TaskStatus(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskDTO(t))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := h.Engine.Tasks.Create(r.Context(), principal(r), timesheet.TaskInput{
		ProjectID:   timesheet.ProjectID(req.ProjectID),
		Title:       req.Title,
		Description: req.Description,
		Priority:    timesheet.Priority(req.Priority),
		AssignedTo:  timesheet.UserID(req.AssignedTo),
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toTaskDTO(*task))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Engine.Tasks.Get(r.Context(), principal(r), taskID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTaskDTO(*task))
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	update := timesheet.TaskUpdate{Title: req.Title, Description: req.Description, DueDate: req.DueDate}
	if req.Priority != nil {
		pr := timesheet.Priority(*req.Priority)
		update.Priority = &pr
	}
	task, err := h.Engine.Tasks.Update(r.Context(), principal(r), taskID(r), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTaskDTO(*task))
}

func (h *Handler) ChangeTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := h.Engine.Tasks.ChangeStatus(r.Context(), principal(r), taskID(r), timesheet.TaskStatus(req.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTaskDTO(*task))
}

func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := h.Engine.Tasks.Assign(r.Context(), principal(r), taskID(r), timesheet.UserID(req.UserID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTaskDTO(*task))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Tasks.Delete(r.Context(), principal(r), taskID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "task deleted"})
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := timesheet.TimeEntryQuery{
		UserID:       timesheet.UserID(q.Get("user_id")),
		ProjectID:    timesheet.ProjectID(q.Get("project_id")),
		TaskID:       timesheet.TaskID(q.Get("task_id")),
		TimePeriodID: timesheet.TimePeriodID(q.Get("time_period_id")),
	}
	var err error
	if query.From, err = parseOptionalDate(q.Get("from")); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid from date", string(timesheet.CodeInvalidDate))
		return
	}
	if query.To, err = parseOptionalDate(q.Get("to")); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid to date", string(timesheet.CodeInvalidDate))
		return
	}
	if raw := q.Get("approved"); raw != "" {
		approved, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "approved must be true or false")
			return
		}
		query.Approved = &approved
	}

	entries, err := h.Engine.TimeEntries.List(r.Context(), principal(r), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTimeEntryDTOs(entries))
}

// CreateTimeEntry stores hours, merging into an existing entry with the same
// (user, project, task, date). 201 on insert, 200 on merge.
// POST /api/time-entries
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req TimeEntryRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Engine.TimeEntries.CreateOrMerge(r.Context(), principal(r), req.candidate())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Outcome == timesheet.OutcomeMerged {
		status = http.StatusOK
	}
	writeData(w, status, ReconcileDTO{Outcome: res.Outcome.String(), Entry: toTimeEntryDTO(res.Entry)})
}

// BulkCreateTimeEntries imports a batch. The response always partitions the
// input into created, skipped and errors.
// POST /api/time-entries/bulk
func (h *Handler) BulkCreateTimeEntries(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Entries) == 0 {
		badRequest(w, "entries must not be empty")
		return
	}
	items := make([]timesheet.Candidate, 0, len(req.Entries))
	for _, e := range req.Entries {
		items = append(items, e.candidate())
	}

	res, err := h.Engine.TimeEntries.CreateMany(r.Context(), principal(r), items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := BulkResultDTO{
		Created: toTimeEntryDTOs(res.Created),
		Skipped: make([]BulkSkipDTO, 0, len(res.Skipped)),
		Errors:  make([]BulkErrorDTO, 0, len(res.Errors)),
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, BulkSkipDTO{Index: s.Index, Entry: fromCandidate(s.Candidate), Reason: s.Reason})
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, BulkErrorDTO{Index: e.Index, Entry: fromCandidate(e.Candidate), Code: e.Code, Message: e.Message})
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) GetTimeEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Engine.TimeEntries.Get(r.Context(), principal(r), timeEntryID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateTimeEntryRequest
	if !decode(w, r, &req) {
		return
	}
	update := timesheet.TimeEntryUpdate{
		Hours: req.Hours, Description: req.Description,
		Year: req.Year, Month: req.Month, Day: req.Day,
	}
	if req.UserID != nil {
		v := timesheet.UserID(*req.UserID)
		update.UserID = &v
	}
	if req.ProjectID != nil {
		v := timesheet.ProjectID(*req.ProjectID)
		update.ProjectID = &v
	}
	if req.TaskID != nil {
		v := timesheet.TaskID(*req.TaskID)
		update.TaskID = &v
	}
	entry, err := h.Engine.TimeEntries.Update(r.Context(), principal(r), timeEntryID(r), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.TimeEntries.Delete(r.Context(), principal(r), timeEntryID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "time entry deleted"})
}

func (h *Handler) ApproveTimeEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Engine.TimeEntries.Approve(r.Context(), principal(r), timeEntryID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTimeEntryDTO(*entry))
}

func (h *Handler) UnapproveTimeEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Engine.TimeEntries.Unapprove(r.Context(), principal(r), timeEntryID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTimeEntryDTO(*entry))
}

// ValidateDate reports whether a day is inside the configured window.
// GET /api/time-entries/validate-date?year=2025&month=7&day=4
func (h *Handler) ValidateDate(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromQuery(w, r)
	if !ok {
		return
	}
	check, err := h.Engine.TimeEntries.ValidateDate(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := DateCheckDTO{
		Date: date, Valid: check.Valid, DiffDays: check.DiffDays,
		Enabled:           check.Restrictions.Enabled,
		FutureDaysAllowed: check.Restrictions.FutureDaysAllowed,
		PastDaysAllowed:   check.Restrictions.PastDaysAllowed,
	}
	if check.Reason != nil {
		out.Code, out.Reason = string(check.Reason.Code), check.Reason.Message
	}
	writeData(w, http.StatusOK, out)
}

// DailyHours reports a user's logged hours on a day against the cap.
// GET /api/time-entries/daily-hours?year=2025&month=7&day=4[&user_id=...]
func (h *Handler) DailyHours(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromQuery(w, r)
	if !ok {
		return
	}
	p := principal(r)
	user := timesheet.UserID(r.URL.Query().Get("user_id"))
	check, err := h.Engine.TimeEntries.DailyHours(r.Context(), p, user, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if user == "" {
		user = p.UserID
	}
	remaining := check.MaxHours.Sub(check.CurrentHours)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	writeData(w, http.StatusOK, DailyHoursDTO{
		UserID: string(user), Date: date, CurrentHours: check.CurrentHours,
		MaxHours: check.MaxHours, RemainingHours: remaining,
	})
}

// =============================================================================
// TIME PERIODS
// =============================================================================

func (h *Handler) ListTimePeriods(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "year must be an integer")
			return
		}
		year = y
	}
	periods, err := h.Engine.Periods.List(r.Context(), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]TimePeriodDTO, 0, len(periods))
	for _, p := range periods {
		out = append(out, toTimePeriodDTO(p))
	}
	writeData(w, http.StatusOK, out)
}

// EnsureTimePeriods creates the current and next period, as the scheduler
// does on every tick.
// POST /api/time-periods/ensure
func (h *Handler) EnsureTimePeriods(w http.ResponseWriter, r *http.Request) {
	if !h.Engine.Policy.CanManageSettings(principal(r)) {
		writeFail(w, http.StatusForbidden, "not allowed to manage time periods", "FORBIDDEN")
		return
	}
	periods, err := h.Engine.Periods.EnsureAhead(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]TimePeriodDTO, 0, len(periods))
	for _, p := range periods {
		out = append(out, toTimePeriodDTO(p))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) PeriodSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Engine.TimeEntries.PeriodSummary(r.Context(), principal(r), timesheet.TimePeriodID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := PeriodSummaryDTO{
		Period:     toTimePeriodDTO(sum.Period),
		Users:      make([]UserPeriodTotalDTO, 0, len(sum.Users)),
		TotalHours: sum.TotalHours,
	}
	for _, u := range sum.Users {
		out.Users = append(out.Users, UserPeriodTotalDTO{
			UserID: string(u.UserID), TotalHours: u.TotalHours, ApprovedHours: u.ApprovedHours,
			PendingHours: u.PendingHours, ReferenceHours: u.ReferenceHours, Balance: u.Balance,
			Entries: u.Entries, DaysLogged: u.DaysLogged,
		})
	}
	writeData(w, http.StatusOK, out)
}

// =============================================================================
// CONFIG
// =============================================================================

func (h *Handler) ListConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Engine.Settings.List(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]SettingDTO, 0, len(settings))
	for _, s := range settings {
		out = append(out, SettingDTO{
			Key: s.Key, Value: s.Value, Default: s.Default, Description: s.Description,
			IsDefault: s.IsDefault, UpdatedBy: string(s.UpdatedBy),
		})
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req SetConfigRequest
	if !decode(w, r, &req) {
		return
	}
	row, err := h.Engine.Settings.Set(r.Context(), principal(r), chi.URLParam(r, "key"), req.Value, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, SettingDTO{
		Key: row.Key, Value: row.Value, Description: row.Description, UpdatedBy: string(row.CreatedBy),
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			writeFail(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE")
			return
		}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func principal(r *http.Request) timesheet.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func projectID(r *http.Request) timesheet.ProjectID {
	return timesheet.ProjectID(chi.URLParam(r, "id"))
}

func taskID(r *http.Request) timesheet.TaskID {
	return timesheet.TaskID(chi.URLParam(r, "id"))
}

func timeEntryID(r *http.Request) timesheet.TimeEntryID {
	return timesheet.TimeEntryID(chi.URLParam(r, "id"))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseOptionalDate(raw string) (calendar.Date, error) {
	if raw == "" {
		return calendar.Date{}, nil
	}
	return calendar.ParseDate(raw)
}

// dateFromQuery reads year, month and day integers.
func dateFromQuery(w http.ResponseWriter, r *http.Request) (calendar.Date, bool) {
	q := r.URL.Query()
	var parts [3]int
	for i, name := range []string{"year", "month", "day"} {
		v, err := strconv.Atoi(q.Get(name))
		if err != nil {
			writeFail(w, http.StatusBadRequest, name+" must be an integer", string(timesheet.CodeInvalidDate))
			return calendar.Date{}, false
		}
		parts[i] = v
	}
	date, err := calendar.NewDate(parts[0], time.Month(parts[1]), parts[2])
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error(), string(timesheet.CodeInvalidDate))
		return calendar.Date{}, false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, Response{Success: false, Message: message, Error: code})
}

func badRequest(w http.ResponseWriter, message string) {
	writeFail(w, http.StatusBadRequest, message, string(timesheet.CodeInvalidInput))
}

// fail maps an engine error onto the envelope. Internal errors are logged
// with the request id and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *timesheet.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFail(w, http.StatusBadRequest, verr.Message, string(verr.Code))
	case errors.Is(err, timesheet.ErrNotFound):
		writeFail(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, timesheet.ErrForbidden):
		writeFail(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, timesheet.ErrConflict):
		writeFail(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, timesheet.ErrInvalidCredentials):
		writeFail(w, http.StatusUnauthorized, err.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, context.Canceled):
		writeFail(w, http.StatusRequestTimeout, "request cancelled", "CANCELLED")
	default:
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "internal server error", "INTERNAL")
	}
}
