/*
scenarios.go - Demo scenario loaders for local use and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data. Each scenario creates areas, users, projects, tasks and time entries
	through the same services the API uses, so every rule (visibility, date
	window, daily cap, duplicate merge) applies to the seeded data too.

AVAILABLE SCENARIOS:

	single-area:     One area, a coordinator and two collaborators
	multi-area:      Two areas with a cross-area assignment
	duplicate-merge: The same entry submitted twice; the correction replaces it

HOW SCENARIOS WORK:
 1. Find or create areas (by name)
 2. Find or create users (by email)
 3. Find or create projects (by area and name) and tasks (by title)
 4. Import entries in bulk for the last workdays; duplicates are skipped

Loading is additive: nothing is deleted, and loading the same scenario twice
leaves the data unchanged.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "multi-area"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, s)
 3. Add it to 'scenarioLoaders'

SEE ALSO:
  - handlers.go: Error mapping shared by the handlers below
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

// DemoPassword is the password of every user a scenario creates.
const DemoPassword = "timesheet-demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-area",
		Name:        "Single Area",
		Description: "One area with a coordinator, two collaborators, a regular and a general project",
	},
	{
		ID:          "multi-area",
		Name:        "Multi Area",
		Description: "Two areas; a collaborator is assigned to a project of the other area",
	},
	{
		ID:          "duplicate-merge",
		Name:        "Duplicate Merge",
		Description: "The same (user, project, task, day) submitted twice ends up as one entry holding the correction",
	},
}

var scenarioLoaders = map[string]func(ctx context.Context, s *seeder) error{
	"single-area":     loadSingleAreaScenario,
	"multi-area":      loadMultiAreaScenario,
	"duplicate-merge": loadDuplicateMergeScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeData(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeData(w, http.StatusOK, s)
			return
		}
	}
	writeData(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario. ADMIN only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	p := principal(r)
	if !h.Engine.Policy.CanManageDirectory(p) {
		writeFail(w, http.StatusForbidden, "only administrators can load scenarios", "FORBIDDEN")
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		badRequest(w, fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := &seeder{engine: h.Engine, admin: p, today: h.Engine.Periods.Today()}
	if err := load(r.Context(), s); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded",
		zap.String("scenario", req.ScenarioID),
		zap.Int("users", s.result.Users), zap.Int("entries", s.result.Entries))

	s.result.ScenarioID = req.ScenarioID
	writeData(w, http.StatusOK, s.result)
}

// =============================================================================
// SEEDER - find-or-create helpers over the services
// =============================================================================

type seeder struct {
	engine *timesheet.Engine
	admin  timesheet.Principal
	today  calendar.Date
	result ScenarioResultDTO
}

func (s *seeder) area(ctx context.Context, name string) (timesheet.AreaID, error) {
	areas, err := s.engine.Directory.ListAreas(ctx, s.admin)
	if err != nil {
		return "", err
	}
	for _, a := range areas {
		if strings.EqualFold(a.Name, name) {
			return a.ID, nil
		}
	}
	a, err := s.engine.Directory.CreateArea(ctx, s.admin, name)
	if err != nil {
		return "", err
	}
	s.result.Areas++
	return a.ID, nil
}

func (s *seeder) user(ctx context.Context, email, name string, role timesheet.Role, area timesheet.AreaID) (timesheet.UserID, error) {
	users, err := s.engine.Directory.ListUsers(ctx, s.admin, timesheet.UserFilter{})
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u.ID, nil
		}
	}
	u, err := s.engine.Directory.CreateUser(ctx, s.admin, timesheet.UserInput{
		Email: email, Name: name, Password: DemoPassword, Role: role, AreaID: area,
	})
	if err != nil {
		return "", err
	}
	s.result.Users++
	return u.ID, nil
}

func (s *seeder) project(ctx context.Context, area timesheet.AreaID, name string, general bool) (timesheet.ProjectID, error) {
	projects, err := s.engine.Projects.List(ctx, s.admin, timesheet.ProjectQuery{AreaID: area})
	if err != nil {
		return "", err
	}
	for _, p := range projects {
		if p.Name == name {
			return p.ID, nil
		}
	}
	p, err := s.engine.Projects.Create(ctx, s.admin, timesheet.ProjectInput{
		AreaID:    area,
		Name:      name,
		Priority:  timesheet.PriorityMedium,
		StartDate: s.today.AddDays(-60),
		IsGeneral: general,
	})
	if err != nil {
		return "", err
	}
	s.result.Projects++
	return p.ID, nil
}

func (s *seeder) member(ctx context.Context, project timesheet.ProjectID, user timesheet.UserID) error {
	_, err := s.engine.Projects.AddMember(ctx, s.admin, project, user)
	if errors.Is(err, timesheet.ErrConflict) {
		return nil
	}
	return err
}

func (s *seeder) task(ctx context.Context, project timesheet.ProjectID, title string, assignee timesheet.UserID) (timesheet.TaskID, error) {
	tasks, err := s.engine.Tasks.List(ctx, s.admin, timesheet.TaskQuery{ProjectID: project})
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.Title == title {
			return t.ID, nil
		}
	}
	t, err := s.engine.Tasks.Create(ctx, s.admin, timesheet.TaskInput{
		ProjectID: project, Title: title, Priority: timesheet.PriorityMedium, AssignedTo: assignee,
	})
	if err != nil {
		return "", err
	}
	s.result.Tasks++
	return t.ID, nil
}

// workdays returns the last n weekdays up to and including today.
func (s *seeder) workdays(n int) []calendar.Date {
	var days []calendar.Date
	for d := s.today; len(days) < n; d = d.AddDays(-1) {
		if d.IsWorkday() {
			days = append(days, d)
		}
	}
	return days
}

// log imports hours for user on each of the last n workdays. Rows that
// already exist are skipped by the bulk import.
func (s *seeder) log(ctx context.Context, user timesheet.UserID, project timesheet.ProjectID, task timesheet.TaskID, days int, hours string) error {
	var items []timesheet.Candidate
	for _, d := range s.workdays(days) {
		items = append(items, timesheet.Candidate{
			UserID: user, ProjectID: project, TaskID: task,
			Year: d.Year(), Month: int(d.Month()), Day: d.Day(),
			Hours: decimal.RequireFromString(hours),
		})
	}
	res, err := s.engine.TimeEntries.CreateMany(ctx, s.admin, items)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		e := res.Errors[0]
		return fmt.Errorf("entry %d rejected: %s: %s", e.Index, e.Code, e.Message)
	}
	s.result.Entries += len(res.Created)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadSingleAreaScenario(ctx context.Context, s *seeder) error {
	area, err := s.area(ctx, "Engineering")
	if err != nil {
		return err
	}
	coord, err := s.user(ctx, "carla.coord@example.com", "Carla Coordinator", timesheet.RoleCoordinator, area)
	if err != nil {
		return err
	}
	ana, err := s.user(ctx, "ana.dev@example.com", "Ana Developer", timesheet.RoleCollaborator, area)
	if err != nil {
		return err
	}
	luis, err := s.user(ctx, "luis.dev@example.com", "Luis Developer", timesheet.RoleCollaborator, area)
	if err != nil {
		return err
	}

	platform, err := s.project(ctx, area, "Platform Rewrite", false)
	if err != nil {
		return err
	}
	for _, u := range []timesheet.UserID{coord, ana, luis} {
		if err := s.member(ctx, platform, u); err != nil {
			return err
		}
	}
	meetings, err := s.project(ctx, area, "Engineering Meetings", true)
	if err != nil {
		return err
	}

	api, err := s.task(ctx, platform, "API layer", ana)
	if err != nil {
		return err
	}
	storage, err := s.task(ctx, platform, "Storage layer", luis)
	if err != nil {
		return err
	}
	standup, err := s.task(ctx, meetings, "Daily standup", "")
	if err != nil {
		return err
	}

	if err := s.log(ctx, ana, platform, api, 5, "6.5"); err != nil {
		return err
	}
	if err := s.log(ctx, luis, platform, storage, 5, "7"); err != nil {
		return err
	}
	for _, u := range []timesheet.UserID{ana, luis, coord} {
		if err := s.log(ctx, u, meetings, standup, 5, "0.25"); err != nil {
			return err
		}
	}
	return nil
}

func loadMultiAreaScenario(ctx context.Context, s *seeder) error {
	if err := loadSingleAreaScenario(ctx, s); err != nil {
		return err
	}
	eng, err := s.area(ctx, "Engineering")
	if err != nil {
		return err
	}
	sales, err := s.area(ctx, "Sales")
	if err != nil {
		return err
	}
	if _, err := s.user(ctx, "sofia.coord@example.com", "Sofia Coordinator", timesheet.RoleCoordinator, sales); err != nil {
		return err
	}
	pedro, err := s.user(ctx, "pedro.sales@example.com", "Pedro Sales", timesheet.RoleCollaborator, sales)
	if err != nil {
		return err
	}
	ana, err := s.user(ctx, "ana.dev@example.com", "Ana Developer", timesheet.RoleCollaborator, eng)
	if err != nil {
		return err
	}

	crm, err := s.project(ctx, sales, "CRM Rollout", false)
	if err != nil {
		return err
	}
	// Ana works on a Sales project through an explicit assignment.
	for _, u := range []timesheet.UserID{pedro, ana} {
		if err := s.member(ctx, crm, u); err != nil {
			return err
		}
	}
	pipeline, err := s.task(ctx, crm, "Pipeline import", pedro)
	if err != nil {
		return err
	}
	integration, err := s.task(ctx, crm, "Integration support", ana)
	if err != nil {
		return err
	}

	if err := s.log(ctx, pedro, crm, pipeline, 5, "8"); err != nil {
		return err
	}
	return s.log(ctx, ana, crm, integration, 3, "1")
}

func loadDuplicateMergeScenario(ctx context.Context, s *seeder) error {
	area, err := s.area(ctx, "Engineering")
	if err != nil {
		return err
	}
	ana, err := s.user(ctx, "ana.dev@example.com", "Ana Developer", timesheet.RoleCollaborator, area)
	if err != nil {
		return err
	}
	project, err := s.project(ctx, area, "Platform Rewrite", false)
	if err != nil {
		return err
	}
	if err := s.member(ctx, project, ana); err != nil {
		return err
	}
	task, err := s.task(ctx, project, "Code review", ana)
	if err != nil {
		return err
	}

	day := s.workdays(1)[0]
	existing, err := s.engine.TimeEntries.List(ctx, s.admin, timesheet.TimeEntryQuery{
		UserID: ana, TaskID: task, From: day, To: day,
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	// Two submissions for the same key: the second is a correction of the first.
	for _, part := range []struct{ hours, desc string }{
		{"3", "Reviews"},
		{"5", "Reviews, corrected"},
	} {
		res, err := s.engine.TimeEntries.CreateOrMerge(ctx, s.admin, timesheet.Candidate{
			UserID: ana, ProjectID: project, TaskID: task,
			Year: day.Year(), Month: int(day.Month()), Day: day.Day(),
			Hours: decimal.RequireFromString(part.hours), Description: part.desc,
		})
		if err != nil {
			return err
		}
		if res.Outcome == timesheet.OutcomeInserted {
			s.result.Entries++
		}
	}
	return nil
}
