package timesheet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/timesheet"
)

var (
	projectInA  = timesheet.Project{ID: "p1", AreaID: areaA}
	generalInA  = timesheet.Project{ID: "p2", AreaID: areaA, IsGeneral: true}
	projectInB  = timesheet.Project{ID: "p3", AreaID: areaB}
	taskInA     = timesheet.Task{ID: "t1", ProjectID: "p1", AreaID: areaA}
	taskInB     = timesheet.Task{ID: "t2", ProjectID: "p3", AreaID: areaB}
	taskBForAli = timesheet.Task{ID: "t3", ProjectID: "p3", AreaID: areaB, AssignedTo: aliceID}
	entryAlice  = timesheet.TimeEntry{ID: "e1", UserID: aliceID, AreaID: areaA}
	entryBob    = timesheet.TimeEntry{ID: "e2", UserID: bobID, AreaID: areaB}
)

func TestRole_ParseAndString(t *testing.T) {
	for _, r := range []timesheet.Role{timesheet.RoleAdministrator, timesheet.RoleCoordinator, timesheet.RoleCollaborator} {
		parsed, err := timesheet.ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	r, err := timesheet.ParseRole(" coordinador ")
	require.NoError(t, err)
	assert.Equal(t, timesheet.RoleCoordinator, r)

	_, err = timesheet.ParseRole("SUPERUSER")
	assert.Error(t, err)
	assert.False(t, timesheet.Role(0).Valid())

	_, err = timesheet.Role(42).MarshalText()
	assert.Error(t, err)
}

func TestPolicy_ProjectDecisions(t *testing.T) {
	pol := timesheet.DefaultPolicy()

	tests := []struct {
		name    string
		p       timesheet.Principal
		project timesheet.Project
		create  bool
		access  bool
		update  bool
		del     bool
	}{
		{"admin any area", admin, projectInB, true, true, true, true},
		{"coordinator own area", coordA, projectInA, true, true, true, false},
		{"coordinator other area", coordA, projectInB, false, false, false, false},
		{"collaborator own area", alice, projectInA, false, true, false, false},
		{"collaborator other area", alice, projectInB, false, false, false, false},
		{"collaborator without area", nomad, projectInA, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.create, pol.CanCreateProject(tt.p, tt.project.AreaID), "create")
			assert.Equal(t, tt.access, pol.CanAccessProject(tt.p, tt.project, false), "access")
			assert.Equal(t, tt.update, pol.CanUpdateProject(tt.p, tt.project), "update")
			assert.Equal(t, tt.del, pol.CanDeleteProject(tt.p, tt.project), "delete")
		})
	}
}

func TestPolicy_AssignmentVisibility(t *testing.T) {
	strict := timesheet.Policy{ProjectVisibility: timesheet.VisibilityAssignment}

	// GIVEN: strict visibility
	// THEN: a collaborator sees assigned projects and the area's general project only
	assert.False(t, strict.CanAccessProject(alice, projectInA, false))
	assert.True(t, strict.CanAccessProject(alice, projectInA, true))
	assert.True(t, strict.CanAccessProject(alice, generalInA, false))
	assert.True(t, strict.CanAccessProject(alice, projectInB, true))
	assert.False(t, strict.CanAccessProject(bob, generalInA, false))

	// Coordinators are unaffected.
	assert.True(t, strict.CanAccessProject(coordA, projectInA, false))

	v, err := timesheet.ParseProjectVisibility("")
	require.NoError(t, err)
	assert.Equal(t, timesheet.VisibilityArea, v)
	_, err = timesheet.ParseProjectVisibility("public")
	assert.Error(t, err)
}

func TestPolicy_TaskDecisions(t *testing.T) {
	pol := timesheet.DefaultPolicy()

	assert.True(t, pol.CanAccessTask(alice, taskInA))
	assert.False(t, pol.CanAccessTask(alice, taskInB))
	assert.True(t, pol.CanAccessTask(alice, taskBForAli), "assignee sees a task outside their area")

	assert.True(t, pol.CanUpdateTask(alice, taskBForAli))
	assert.False(t, pol.CanUpdateTask(alice, taskInA), "area membership alone does not allow edits")
	assert.False(t, pol.CanAssignTask(alice, taskBForAli))
	assert.False(t, pol.CanDeleteTask(alice, taskBForAli))

	assert.True(t, pol.CanCreateTask(coordA, projectInA))
	assert.False(t, pol.CanCreateTask(coordA, projectInB))
	assert.True(t, pol.CanDeleteTask(coordB, taskBForAli))
	assert.False(t, pol.CanCreateTask(alice, projectInA))
}

func TestPolicy_TimeEntryDecisions(t *testing.T) {
	pol := timesheet.DefaultPolicy()

	// Collaborators log their own time only.
	assert.True(t, pol.CanCreateTimeEntry(alice, taskInA, aliceID))
	assert.False(t, pol.CanCreateTimeEntry(alice, taskInA, bobID))
	assert.False(t, pol.CanCreateTimeEntry(alice, taskInB, aliceID))
	assert.True(t, pol.CanCreateTimeEntry(alice, taskBForAli, aliceID))

	// Without an area only an assignment counts.
	assert.False(t, pol.CanCreateTimeEntry(nomad, taskInA, nomadID))
	nomadTask := taskInA
	nomadTask.AssignedTo = nomadID
	assert.True(t, pol.CanCreateTimeEntry(nomad, nomadTask, nomadID))

	// Coordinators log for anyone on tasks of their area.
	assert.True(t, pol.CanCreateTimeEntry(coordA, taskInA, aliceID))
	assert.False(t, pol.CanCreateTimeEntry(coordA, taskInB, bobID))

	assert.True(t, pol.CanAccessTimeEntry(alice, entryAlice))
	assert.False(t, pol.CanAccessTimeEntry(alice, entryBob))
	assert.True(t, pol.CanAccessTimeEntry(coordB, entryBob))
	assert.False(t, pol.CanAccessTimeEntry(coordB, entryAlice))

	assert.False(t, pol.CanApproveTimeEntry(alice, entryAlice))
	assert.True(t, pol.CanApproveTimeEntry(coordA, entryAlice))
	assert.False(t, pol.CanApproveTimeEntry(coordA, entryBob))

	assert.True(t, pol.CanViewUserTimeEntries(alice, aliceID))
	assert.False(t, pol.CanViewUserTimeEntries(alice, bobID))
	assert.True(t, pol.CanViewUserTimeEntries(coordA, bobID))
}

func TestPolicy_UnknownRoleIsDeniedEverything(t *testing.T) {
	for _, pol := range []timesheet.Policy{
		timesheet.DefaultPolicy(),
		{ProjectVisibility: timesheet.VisibilityAssignment},
	} {
		for _, role := range []timesheet.Role{0, 4, 255} {
			p := timesheet.Principal{UserID: aliceID, Role: role, AreaID: areaA}
			task := taskInA
			task.AssignedTo = aliceID

			assert.False(t, pol.CanCreateProject(p, areaA))
			assert.False(t, pol.CanAccessProject(p, projectInA, true))
			assert.False(t, pol.CanUpdateProject(p, projectInA))
			assert.False(t, pol.CanDeleteProject(p, projectInA))
			assert.False(t, pol.CanManageProjectMembers(p, projectInA))
			assert.False(t, pol.CanCreateTask(p, projectInA))
			assert.False(t, pol.CanAccessTask(p, task))
			assert.False(t, pol.CanUpdateTask(p, task))
			assert.False(t, pol.CanAssignTask(p, task))
			assert.False(t, pol.CanDeleteTask(p, task))
			assert.False(t, pol.CanCreateTimeEntry(p, task, aliceID))
			assert.False(t, pol.CanAccessTimeEntry(p, entryAlice))
			assert.False(t, pol.CanUpdateTimeEntry(p, entryAlice))
			assert.False(t, pol.CanDeleteTimeEntry(p, entryAlice))
			assert.False(t, pol.CanApproveTimeEntry(p, entryAlice))
			assert.False(t, pol.CanViewUserTimeEntries(p, aliceID))
			assert.False(t, pol.CanManageSettings(p))
			assert.False(t, pol.CanManageDirectory(p))

			assert.Equal(t, timesheet.ScopeNone, pol.ProjectScope(p).Kind)
			assert.Equal(t, timesheet.ScopeNone, pol.TaskScope(p).Kind)
			assert.Equal(t, timesheet.ScopeNone, pol.TimeEntryScope(p).Kind)
		}
	}
}

// The list scopes must agree with the single-record predicates for every
// principal and record, or listings would leak or hide rows.
func TestPolicy_ScopesAgreeWithPredicates(t *testing.T) {
	principals := []timesheet.Principal{admin, coordA, coordB, alice, bob, nomad}
	projects := []timesheet.Project{projectInA, generalInA, projectInB}
	tasks := []timesheet.Task{taskInA, taskInB, taskBForAli}
	entries := []timesheet.TimeEntry{entryAlice, entryBob}

	for _, pol := range []timesheet.Policy{
		timesheet.DefaultPolicy(),
		{ProjectVisibility: timesheet.VisibilityAssignment},
	} {
		for _, p := range principals {
			ps := pol.ProjectScope(p)
			for _, project := range projects {
				for _, member := range []bool{false, true} {
					if p.Role != timesheet.RoleCollaborator && member {
						continue
					}
					assert.Equal(t, pol.CanAccessProject(p, project, member), ps.AllowsProject(project, member),
						"%s/%s project %s member=%v", pol.ProjectVisibility, p.UserID, project.ID, member)
				}
			}
			ts := pol.TaskScope(p)
			for _, task := range tasks {
				assert.Equal(t, pol.CanAccessTask(p, task), ts.AllowsTask(task), "%s task %s", p.UserID, task.ID)
			}
			es := pol.TimeEntryScope(p)
			for _, e := range entries {
				assert.Equal(t, pol.CanAccessTimeEntry(p, e), es.AllowsTimeEntry(e), "%s entry %s", p.UserID, e.ID)
			}
		}
	}
}

// Every decision for every role against records in the actor's own area or
// another one, owned by the actor or by someone else. The list scopes are
// checked against the same matrix so listings and single reads cannot drift.
func TestPolicy_DecisionMatrix(t *testing.T) {
	pol := timesheet.DefaultPolicy()

	const (
		actorID timesheet.UserID = "actor"
		otherID timesheet.UserID = "someone-else"
	)

	type want struct {
		createProject, accessProject, updateProject, deleteProject, manageMembers bool
		createTask, accessTask, updateTask, assignTask, deleteTask               bool
		createEntry, accessEntry, approveEntry, viewEntries                      bool
	}
	all := want{true, true, true, true, true, true, true, true, true, true, true, true, true, true}
	coordInArea := want{true, true, true, false, true, true, true, true, true, true, true, true, true, true}
	coordOutside := want{viewEntries: true}

	tests := []struct {
		name     string
		role     timesheet.Role
		sameArea bool
		self     bool
		want     want
	}{
		{"admin/same area/own", timesheet.RoleAdministrator, true, true, all},
		{"admin/same area/other owner", timesheet.RoleAdministrator, true, false, all},
		{"admin/other area/own", timesheet.RoleAdministrator, false, true, all},
		{"admin/other area/other owner", timesheet.RoleAdministrator, false, false, all},

		{"coordinator/same area/own", timesheet.RoleCoordinator, true, true, coordInArea},
		{"coordinator/same area/other owner", timesheet.RoleCoordinator, true, false, coordInArea},
		{"coordinator/other area/own", timesheet.RoleCoordinator, false, true, coordOutside},
		{"coordinator/other area/other owner", timesheet.RoleCoordinator, false, false, coordOutside},

		{"collaborator/same area/own", timesheet.RoleCollaborator, true, true,
			want{accessProject: true, accessTask: true, updateTask: true, createEntry: true, accessEntry: true, viewEntries: true}},
		{"collaborator/same area/other owner", timesheet.RoleCollaborator, true, false,
			want{accessProject: true, accessTask: true}},
		{"collaborator/other area/own", timesheet.RoleCollaborator, false, true,
			want{accessProject: true, accessTask: true, updateTask: true, createEntry: true, accessEntry: true, viewEntries: true}},
		{"collaborator/other area/other owner", timesheet.RoleCollaborator, false, false, want{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: an actor in area A and records placed by the case
			p := timesheet.Principal{UserID: actorID, Role: tt.role, AreaID: areaA}
			area, owner := areaB, otherID
			if tt.sameArea {
				area = areaA
			}
			if tt.self {
				owner = actorID
			}
			project := timesheet.Project{ID: "p", AreaID: area}
			task := timesheet.Task{ID: "t", ProjectID: "p", AreaID: area, AssignedTo: owner}
			entry := timesheet.TimeEntry{ID: "e", TaskID: "t", UserID: owner, AreaID: area}
			member := tt.self

			// WHEN: every predicate is evaluated
			// THEN: each matches the matrix
			w := tt.want
			assert.Equal(t, w.createProject, pol.CanCreateProject(p, area), "create project")
			assert.Equal(t, w.accessProject, pol.CanAccessProject(p, project, member), "access project")
			assert.Equal(t, w.updateProject, pol.CanUpdateProject(p, project), "update project")
			assert.Equal(t, w.deleteProject, pol.CanDeleteProject(p, project), "delete project")
			assert.Equal(t, w.manageMembers, pol.CanManageProjectMembers(p, project), "manage members")
			assert.Equal(t, w.createTask, pol.CanCreateTask(p, project), "create task")
			assert.Equal(t, w.accessTask, pol.CanAccessTask(p, task), "access task")
			assert.Equal(t, w.updateTask, pol.CanUpdateTask(p, task), "update task")
			assert.Equal(t, w.assignTask, pol.CanAssignTask(p, task), "assign task")
			assert.Equal(t, w.deleteTask, pol.CanDeleteTask(p, task), "delete task")
			assert.Equal(t, w.createEntry, pol.CanCreateTimeEntry(p, task, owner), "create entry")
			assert.Equal(t, w.accessEntry, pol.CanAccessTimeEntry(p, entry), "access entry")
			assert.Equal(t, w.accessEntry, pol.CanUpdateTimeEntry(p, entry), "update entry")
			assert.Equal(t, w.accessEntry, pol.CanDeleteTimeEntry(p, entry), "delete entry")
			assert.Equal(t, w.approveEntry, pol.CanApproveTimeEntry(p, entry), "approve entry")
			assert.Equal(t, w.viewEntries, pol.CanViewUserTimeEntries(p, owner), "view user entries")

			// AND: the list scopes admit exactly what the access predicates admit
			assert.Equal(t, w.accessProject, pol.ProjectScope(p).AllowsProject(project, member), "project scope")
			assert.Equal(t, w.accessTask, pol.TaskScope(p).AllowsTask(task), "task scope")
			assert.Equal(t, w.accessEntry, pol.TimeEntryScope(p).AllowsTimeEntry(entry), "entry scope")
		})
	}
}
