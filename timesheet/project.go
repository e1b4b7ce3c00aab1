package timesheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
)

// =============================================================================
// PROJECT SERVICE
// =============================================================================

type ProjectService struct {
	env    *env
	logger *zap.Logger
}

// ProjectInput creates a project. Status defaults to ACTIVE and Priority to
// MEDIUM.
type ProjectInput struct {
	AreaID      AreaID
	Name        string
	Description string
	Status      ProjectStatus
	Priority    Priority
	StartDate   calendar.Date
	EndDate     calendar.Date
	IsGeneral   bool
}

func (s *ProjectService) Create(ctx context.Context, p Principal, in ProjectInput) (*Project, error) {
	if in.AreaID == "" && p.Role == RoleCoordinator {
		in.AreaID = p.AreaID
	}
	if in.AreaID == "" {
		return nil, invalid(CodeInvalidInput, "areaId", "area is required")
	}
	if !s.env.policy.CanCreateProject(p, in.AreaID) {
		return nil, forbidden("create projects in this area", "coordinators manage their own area only")
	}
	area, err := s.env.store.GetArea(ctx, in.AreaID)
	if err != nil {
		return nil, fmt.Errorf("get area: %w", err)
	}
	if area == nil || !area.IsActive {
		return nil, notFound("area", in.AreaID)
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid(CodeInvalidInput, "name", "project name is required")
	}
	if in.Status == "" {
		in.Status = ProjectActive
	}
	if !in.Status.Valid() {
		return nil, invalid(CodeInvalidInput, "status", "unknown project status %q", in.Status)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid(CodeInvalidInput, "priority", "unknown priority %q", in.Priority)
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	now := s.env.now()
	project := Project{
		ID:          ProjectID(s.env.newID()),
		AreaID:      in.AreaID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsGeneral:   in.IsGeneral,
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.env.store.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.logger.Info("project created",
		zap.String("project_id", string(project.ID)),
		zap.String("area_id", string(project.AreaID)),
		zap.String("by", string(p.UserID)))
	return &project, nil
}

func checkDateRange(start, end calendar.Date) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid(CodeInvalidDateRange, "endDate",
			"end date %s is before start date %s", end, start)
	}
	return nil
}

// load fetches a live project without any access check.
func (s *ProjectService) load(ctx context.Context, id ProjectID) (*Project, error) {
	project, err := s.env.store.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project == nil || !project.IsActive {
		return nil, notFound("project", id)
	}
	return project, nil
}

func (s *ProjectService) isMember(ctx context.Context, p Principal, id ProjectID) (bool, error) {
	if p.Role != RoleCollaborator {
		return false, nil
	}
	a, err := s.env.store.GetActiveAssignment(ctx, id, p.UserID)
	if err != nil {
		return false, fmt.Errorf("get assignment: %w", err)
	}
	return a != nil, nil
}

func (s *ProjectService) Get(ctx context.Context, p Principal, id ProjectID) (*Project, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	member, err := s.isMember(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanAccessProject(p, *project, member) {
		return nil, forbidden("view this project", "")
	}
	return project, nil
}

type ProjectQuery struct {
	AreaID AreaID
	Status ProjectStatus
}

func (s *ProjectService) List(ctx context.Context, p Principal, q ProjectQuery) ([]Project, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid(CodeInvalidInput, "status", "unknown project status %q", q.Status)
	}
	projects, err := s.env.store.ListProjects(ctx, ProjectFilter{
		Scope:  s.env.policy.ProjectScope(p),
		AreaID: q.AreaID,
		Status: q.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ProjectUpdate is a partial edit; nil fields are left alone. Status goes
// through ChangeStatus and the area never changes.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Priority    *Priority
	StartDate   *calendar.Date
	EndDate     *calendar.Date
	IsGeneral   *bool
}

func (s *ProjectService) Update(ctx context.Context, p Principal, id ProjectID, u ProjectUpdate) (*Project, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanUpdateProject(p, *project) {
		return nil, forbidden("edit this project", "")
	}

	updated := *project
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalid(CodeInvalidInput, "name", "project name is required")
		}
		updated.Name = name
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
	if u.StartDate != nil {
		updated.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		updated.EndDate = *u.EndDate
	}
	if u.IsGeneral != nil {
		updated.IsGeneral = *u.IsGeneral
	}
	if err := checkDateRange(updated.StartDate, updated.EndDate); err != nil {
		return nil, err
	}
	if endMovedEarlier(project.EndDate, updated.EndDate) {
		if err := s.checkTaskDueDates(ctx, updated); err != nil {
			return nil, err
		}
	}
	updated.UpdatedAt = s.env.now()

	if err := s.env.store.UpdateProject(ctx, updated); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return &updated, nil
}

func endMovedEarlier(before, after calendar.Date) bool {
	if after.IsZero() {
		return false
	}
	return before.IsZero() || after.Before(before)
}

// checkTaskDueDates refuses an end date that would leave active tasks due
// after the project ends.
func (s *ProjectService) checkTaskDueDates(ctx context.Context, project Project) error {
	tasks, err := s.env.store.ListTasks(ctx, TaskFilter{Scope: Scope{Kind: ScopeAll}, ProjectID: project.ID})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	var late []string
	for _, t := range tasks {
		if !t.DueDate.IsZero() && t.DueDate.After(project.EndDate) {
			late = append(late, string(t.ID))
		}
	}
	if len(late) == 0 {
		return nil
	}
	return &ConflictError{
		Resource: "project",
		Message: fmt.Sprintf("end date %s is before the due date of %d task(s) (%s); move those due dates first",
			project.EndDate, len(late), strings.Join(late, ", ")),
	}
}

// ChangeStatus moves the project along its state machine. Setting the
// current status again is accepted and changes nothing.
func (s *ProjectService) ChangeStatus(ctx context.Context, p Principal, id ProjectID, next ProjectStatus) (*Project, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanUpdateProject(p, *project) {
		return nil, forbidden("change the status of this project", "")
	}
	if !next.Valid() {
		return nil, invalid(CodeInvalidInput, "status", "unknown project status %q", next)
	}
	if project.Status == next {
		return project, nil
	}
	if !project.Status.CanTransitionTo(next) {
		return nil, invalid(CodeInvalidStatusTransition, "status",
			"a project cannot move from %s to %s", project.Status, next)
	}

	updated := *project
	updated.Status = next
	updated.UpdatedAt = s.env.now()
	if err := s.env.store.UpdateProject(ctx, updated); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	s.logger.Info("project status changed",
		zap.String("project_id", string(id)),
		zap.String("from", string(project.Status)),
		zap.String("to", string(next)))
	return &updated, nil
}

// Delete soft-deletes a project. Administrators only, and only once no
// unfinished task remains.
func (s *ProjectService) Delete(ctx context.Context, p Principal, id ProjectID) error {
	project, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.env.policy.CanDeleteProject(p, *project) {
		return forbidden("delete projects", "administrators only")
	}
	n, err := s.env.store.CountActiveTasks(ctx, id)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if n > 0 {
		return &ConflictError{
			Resource: "project",
			Message:  fmt.Sprintf("project has %d unfinished task(s); complete or delete them first", n),
		}
	}

	updated := *project
	updated.IsActive = false
	updated.UpdatedAt = s.env.now()
	if err := s.env.store.UpdateProject(ctx, updated); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	s.logger.Info("project deleted", zap.String("project_id", string(id)), zap.String("by", string(p.UserID)))
	return nil
}

// -----------------------------------------------------------------------------
// Members
// -----------------------------------------------------------------------------

func (s *ProjectService) AddMember(ctx context.Context, p Principal, id ProjectID, user UserID) (*ProjectAssignment, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.env.policy.CanManageProjectMembers(p, *project) {
		return nil, forbidden("manage members of this project", "")
	}
	u, err := s.env.store.GetUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || !u.IsActive {
		return nil, notFound("user", user)
	}

	a := ProjectAssignment{
		ID:         AssignmentID(s.env.newID()),
		ProjectID:  id,
		UserID:     user,
		IsActive:   true,
		AssignedBy: p.UserID,
		CreatedAt:  s.env.now(),
	}
	if err := s.env.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			return nil, &ConflictError{Resource: "assignment", Message: "user is already a member of this project"}
		}
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return &a, nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, p Principal, id ProjectID, user UserID) error {
	project, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !s.env.policy.CanManageProjectMembers(p, *project) {
		return forbidden("manage members of this project", "")
	}
	a, err := s.env.store.GetActiveAssignment(ctx, id, user)
	if err != nil {
		return fmt.Errorf("get assignment: %w", err)
	}
	if a == nil {
		return notFound("assignment", user)
	}
	if err := s.env.store.DeactivateAssignment(ctx, a.ID); err != nil {
		return fmt.Errorf("deactivate assignment: %w", err)
	}
	return nil
}

func (s *ProjectService) ListMembers(ctx context.Context, p Principal, id ProjectID) ([]ProjectAssignment, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	members, err := s.env.store.ListAssignments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return members, nil
}
