package timesheet

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// TASK SERVICE
// =============================================================================

type TaskService struct {
	env    *env
	logger *zap.Logger
}

type TaskInput struct {
	ProjectID   ProjectID
	Title       string
	Description string
	Priority    Priority
	AssignedTo  UserID
	DueDate     calendar.Date
}

// Create adds a task in TODO. A due date must not be in the past and must
// not fall after the project's end date.
func (s *TaskService) Create(ctx context.Context, p Principal, in TaskInput) (*Task, error) {
	project, err := s.env.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project == nil || !project.IsActive {
		return nil, notFound("project", in.ProjectID)
	}
	if !s.env.policy.CanCreateTask(p, *project) {
		return nil, forbidden("create tasks in this project", "")
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid(CodeInvalidInput, "title", "task title is required")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid(CodeInvalidInput, "priority", "unknown priority %q", in.Priority)
	}
	if err := s.checkDueDate(in.DueDate, *project); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	now := s.env.now()
	task := Task{
		ID:          TaskID(s.env.newID()),
		ProjectID:   project.ID,
		AreaID:      project.AreaID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Status:      TaskTodo,
		Priority:    in.Priority,
		AssignedTo:  in.AssignedTo,
		DueDate:     in.DueDate,
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.env.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created",
		zap.String("task_id", string(task.ID)),
		zap.String("project_id", string(task.ProjectID)),
		zap.String("by", string(p.UserID)))
	return &task, nil
}

func (s *TaskService) checkDueDate(due calendar.Date, project Project) error {
	if due.IsZero() {
		return nil
	}
	if today := s.env.today(); due.Before(today) {
		return invalid(CodeInvalidDateRange, "dueDate", "due date %s is in the past", due)
	}
	if !project.EndDate.IsZero() && due.After(project.EndDate) {
		return invalid(CodeInvalidDateRange, "dueDate",
			"due date %s is after the project end date %s", due, project.EndDate)
	}
	return nil
}

func (s *TaskService) checkAssignee(ctx context.Context, user UserID) error {
	if user == "" {
		return nil
	}
	u, err := s.env.store.GetUser(ctx, user)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u == nil || !u.IsActive {
		return notFound("user", user)
	}
	return nil
}

func (s *TaskService) load(ctx context.Context, id TaskID) (*Task, error) {
	task, err := s.env.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil || !task.IsActive {
		return nil, notFound("task", id)
	}
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, p Principal, id TaskID) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanAccessTask(p, *task) {
		return nil, forbidden("view this task", "")
	}
	return task, nil
}

type TaskQuery struct {
	ProjectID  ProjectID
	AssignedTo UserID
	Status     TaskStatus
}

func (s *TaskService) List(ctx context.Context, p Principal, q TaskQuery) ([]Task, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid(CodeInvalidInput, "status", "unknown task status %q", q.Status)
	}
	tasks, err := s.env.store.ListTasks(ctx, TaskFilter{
		Scope:      s.env.policy.TaskScope(p),
		ProjectID:  q.ProjectID,
		AssignedTo: q.AssignedTo,
		Status:     q.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// TaskUpdate is a partial edit; nil fields are left alone.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *Priority
	DueDate     *calendar.Date
}

func (s *TaskService) Update(ctx context.Context, p Principal, id TaskID, u TaskUpdate) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanUpdateTask(p, *task) {
		return nil, forbidden("edit this task", "")
	}

	updated := *task
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return nil, invalid(CodeInvalidInput, "title", "task title is required")
		}
		updated.Title = title
	}
	if u.Description != nil {
		updated.Description = strings.TrimSpace(*u.Description)
	}
	if u.Priority != nil {
		if !u.Priority.Valid() {
			return nil, invalid(CodeInvalidInput, "priority", "unknown priority %q", *u.Priority)
		}
		updated.Priority = *u.Priority
	}
	if u.DueDate != nil && !u.DueDate.Equal(task.DueDate) {
		project, err := s.env.store.GetProject(ctx, task.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("get project: %w", err)
		}
		if project == nil {
			return nil, notFound("project", task.ProjectID)
		}
		if err := s.checkDueDate(*u.DueDate, *project); err != nil {
			return nil, err
		}
		updated.DueDate = *u.DueDate
	}
	updated.UpdatedAt = s.env.now()

	if err := s.env.store.UpdateTask(ctx, updated); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &updated, nil
}

// Assign sets the assignee; an empty user unassigns the task.
func (s *TaskService) Assign(ctx context.Context, p Principal, id TaskID, user UserID) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanAssignTask(p, *task) {
		return nil, forbidden("assign this task", "")
	}
	if err := s.checkAssignee(ctx, user); err != nil {
		return nil, err
	}
	updated := *task
	updated.AssignedTo = user
	updated.UpdatedAt = s.env.now()
	if err := s.env.store.UpdateTask(ctx, updated); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &updated, nil
}

// ChangeStatus moves the task along its state machine. Entering DONE stamps
// CompletedAt; leaving DONE clears it.
func (s *TaskService) ChangeStatus(ctx context.Context, p Principal, id TaskID, next TaskStatus) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanUpdateTask(p, *task) {
		return nil, forbidden("change the status of this task", "")
	}
	if !next.Valid() {
		return nil, invalid(CodeInvalidInput, "status", "unknown task status %q", next)
	}
	if task.Status == next {
		return task, nil
	}
	if !task.Status.CanTransitionTo(next) {
		return nil, invalid(CodeInvalidStatusTransition, "status",
			"a task cannot move from %s to %s", task.Status, next)
	}

	updated := *task
	updated.Status = next
	now := s.env.now()
	if next == TaskDone {
		updated.CompletedAt = &now
	} else {
		updated.CompletedAt = nil
	}
	updated.UpdatedAt = now
	if err := s.env.store.UpdateTask(ctx, updated); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.logger.Info("task status changed",
		zap.String("task_id", string(id)),
		zap.String("from", string(task.Status)),
		zap.String("to", string(next)))
	return &updated, nil
}

// Delete soft-deletes a task that no time entry references.
func (s *TaskService) Delete(ctx context.Context, p Principal, id TaskID) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.env.policy.CanDeleteTask(p, *task) {
		return forbidden("delete this task", "")
	}
	n, err := s.env.store.CountTimeEntriesForTask(ctx, id)
	if err != nil {
		return fmt.Errorf("count time entries: %w", err)
	}
	if n > 0 {
		return &ConflictError{
			Resource: "task",
			Message:  fmt.Sprintf("task has %d time entr(ies) logged against it", n),
		}
	}
	updated := *task
	updated.IsActive = false
	updated.UpdatedAt = s.env.now()
	if err := s.env.store.UpdateTask(ctx, updated); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	s.logger.Info("task deleted", zap.String("task_id", string(id)), zap.String("by", string(p.UserID)))
	return nil
}
