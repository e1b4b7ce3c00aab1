package timesheet_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Today in every test is Thursday 2025-07-10.
var testNow = time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC)

const (
	areaA timesheet.AreaID = "area-a"
	areaB timesheet.AreaID = "area-b"

	adminID  timesheet.UserID = "admin"
	coordAID timesheet.UserID = "coord-a"
	coordBID timesheet.UserID = "coord-b"
	aliceID  timesheet.UserID = "alice" // collaborator, area A
	bobID    timesheet.UserID = "bob"   // collaborator, area B
	nomadID  timesheet.UserID = "nomad" // collaborator, no area

	projA        timesheet.ProjectID = "proj-a"
	projGeneralA timesheet.ProjectID = "proj-general-a"
	projB        timesheet.ProjectID = "proj-b"

	taskA        timesheet.TaskID = "task-a"
	taskA2       timesheet.TaskID = "task-a2"
	taskGeneralA timesheet.TaskID = "task-general-a"
	taskB        timesheet.TaskID = "task-b"
	taskBAlice   timesheet.TaskID = "task-b-alice" // area B, assigned to alice
)

var (
	admin  = timesheet.Principal{UserID: adminID, Role: timesheet.RoleAdministrator}
	coordA = timesheet.Principal{UserID: coordAID, Role: timesheet.RoleCoordinator, AreaID: areaA}
	coordB = timesheet.Principal{UserID: coordBID, Role: timesheet.RoleCoordinator, AreaID: areaB}
	alice  = timesheet.Principal{UserID: aliceID, Role: timesheet.RoleCollaborator, AreaID: areaA}
	bob    = timesheet.Principal{UserID: bobID, Role: timesheet.RoleCollaborator, AreaID: areaB}
	nomad  = timesheet.Principal{UserID: nomadID, Role: timesheet.RoleCollaborator}
)

type fixture struct {
	ctx    context.Context
	store  *store.Memory
	engine *timesheet.Engine
}

type fixtureConfig struct {
	opts timesheet.Options
	wrap func(*store.Memory) timesheet.Store
}

type fixtureOption func(*fixtureConfig)

func withPolicy(p timesheet.Policy) fixtureOption {
	return func(c *fixtureConfig) { c.opts.Policy = p }
}

// withStoreWrapper lets a test interpose on store calls.
func withStoreWrapper(wrap func(*store.Memory) timesheet.Store) fixtureOption {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	mem := store.NewMemory()
	seed(t, mem)

	n := 0
	cfg := fixtureConfig{opts: timesheet.Options{
		Clock: calendar.FixedClock{At: testNow},
		NewID: func() string { n++; return fmt.Sprintf("id-%d", n) },
	}}
	for _, opt := range opts {
		opt(&cfg)
	}
	var s timesheet.Store = mem
	if cfg.wrap != nil {
		s = cfg.wrap(mem)
	}
	return &fixture{ctx: context.Background(), store: mem, engine: timesheet.New(s, cfg.opts)}
}

func seed(t *testing.T, s *store.Memory) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []timesheet.Area{
		{ID: areaA, Name: "Engineering", IsActive: true},
		{ID: areaB, Name: "Sales", IsActive: true},
	} {
		require.NoError(t, s.SaveArea(ctx, a))
	}
	for _, p := range []timesheet.Principal{admin, coordA, coordB, alice, bob, nomad} {
		require.NoError(t, s.SaveUser(ctx, timesheet.User{
			ID: p.UserID, Email: string(p.UserID) + "@example.com", Name: string(p.UserID),
			Role: p.Role, AreaID: p.AreaID, IsActive: true,
		}))
	}
	for _, p := range []timesheet.Project{
		{ID: projA, AreaID: areaA, Name: "Platform"},
		{ID: projGeneralA, AreaID: areaA, Name: "Engineering general", IsGeneral: true},
		{ID: projB, AreaID: areaB, Name: "Pipeline",
			EndDate: calendar.MustDate(2025, time.December, 31)},
	} {
		p.Status, p.Priority, p.IsActive = timesheet.ProjectActive, timesheet.PriorityMedium, true
		require.NoError(t, s.CreateProject(ctx, p))
	}
	for _, task := range []timesheet.Task{
		{ID: taskA, ProjectID: projA, Title: "API"},
		{ID: taskA2, ProjectID: projA, Title: "Database"},
		{ID: taskGeneralA, ProjectID: projGeneralA, Title: "Meetings"},
		{ID: taskB, ProjectID: projB, Title: "Leads"},
		{ID: taskBAlice, ProjectID: projB, Title: "Demo", AssignedTo: aliceID},
	} {
		task.Status, task.Priority, task.IsActive = timesheet.TaskTodo, timesheet.PriorityMedium, true
		require.NoError(t, s.CreateTask(ctx, task))
	}
}

func hours(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func candidateDate(offset int) calendar.Date {
	return calendar.DateOf(testNow, time.UTC).AddDays(offset)
}

// candidate builds a submission for day offset days from today.
func candidate(task timesheet.TaskID, offset int, h string) timesheet.Candidate {
	d := candidateDate(offset)
	return timesheet.Candidate{
		TaskID: task,
		Year:   d.Year(),
		Month:  int(d.Month()),
		Day:    d.Day(),
		Hours:  hours(h),
	}
}

func requireCode(t *testing.T, err error, code timesheet.ValidationCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := timesheet.ValidationCodeOf(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	require.Equal(t, code, got, err.Error())
}
