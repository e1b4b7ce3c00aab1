package timesheet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

func TestProjectService_Create(t *testing.T) {
	f := newFixture(t)

	// Coordinators create in their own area, which is also the default.
	p, err := f.engine.Projects.Create(f.ctx, coordA, timesheet.ProjectInput{Name: "  Mobile app "})
	require.NoError(t, err)
	assert.Equal(t, areaA, p.AreaID)
	assert.Equal(t, "Mobile app", p.Name)
	assert.Equal(t, timesheet.ProjectActive, p.Status)
	assert.Equal(t, timesheet.PriorityMedium, p.Priority)
	assert.Equal(t, coordAID, p.CreatedBy)

	_, err = f.engine.Projects.Create(f.ctx, coordA, timesheet.ProjectInput{AreaID: areaB, Name: "x"})
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Projects.Create(f.ctx, alice, timesheet.ProjectInput{AreaID: areaA, Name: "x"})
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Projects.Create(f.ctx, admin, timesheet.ProjectInput{AreaID: "nowhere", Name: "x"})
	assert.True(t, timesheet.IsNotFound(err))

	_, err = f.engine.Projects.Create(f.ctx, admin, timesheet.ProjectInput{
		AreaID: areaB, Name: "Backwards",
		StartDate: calendar.MustDate(2025, time.August, 1),
		EndDate:   calendar.MustDate(2025, time.July, 1),
	})
	requireCode(t, err, timesheet.CodeInvalidDateRange)

	_, err = f.engine.Projects.Create(f.ctx, admin, timesheet.ProjectInput{AreaID: areaB, Name: "x", Priority: "CRITICAL"})
	requireCode(t, err, timesheet.CodeInvalidInput)
}

func TestProjectService_VisibilityFollowsPolicy(t *testing.T) {
	names := func(ps []timesheet.Project) []timesheet.ProjectID {
		out := []timesheet.ProjectID{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	// Area visibility: alice sees both area A projects.
	f := newFixture(t)
	list, err := f.engine.Projects.List(f.ctx, alice, timesheet.ProjectQuery{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []timesheet.ProjectID{projA, projGeneralA}, names(list))

	// Assignment visibility: only the general project until she is added.
	f = newFixture(t, withPolicy(timesheet.Policy{ProjectVisibility: timesheet.VisibilityAssignment}))
	list, err = f.engine.Projects.List(f.ctx, alice, timesheet.ProjectQuery{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []timesheet.ProjectID{projGeneralA}, names(list))
	_, err = f.engine.Projects.Get(f.ctx, alice, projA)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	_, err = f.engine.Projects.AddMember(f.ctx, coordB, projB, aliceID)
	require.NoError(t, err)
	list, err = f.engine.Projects.List(f.ctx, alice, timesheet.ProjectQuery{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []timesheet.ProjectID{projGeneralA, projB}, names(list))
	_, err = f.engine.Projects.Get(f.ctx, alice, projB)
	assert.NoError(t, err)
}

func TestProjectService_ChangeStatus(t *testing.T) {
	f := newFixture(t)

	p, err := f.engine.Projects.ChangeStatus(f.ctx, coordA, projA, timesheet.ProjectOnHold)
	require.NoError(t, err)
	assert.Equal(t, timesheet.ProjectOnHold, p.Status)

	_, err = f.engine.Projects.ChangeStatus(f.ctx, coordA, projA, timesheet.ProjectCompleted)
	requireCode(t, err, timesheet.CodeInvalidStatusTransition)

	_, err = f.engine.Projects.ChangeStatus(f.ctx, coordA, projA, timesheet.ProjectCancelled)
	require.NoError(t, err)
	_, err = f.engine.Projects.ChangeStatus(f.ctx, coordA, projA, timesheet.ProjectActive)
	requireCode(t, err, timesheet.CodeInvalidStatusTransition)

	_, err = f.engine.Projects.ChangeStatus(f.ctx, coordB, projA, timesheet.ProjectActive)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Projects.ChangeStatus(f.ctx, admin, projB, "ARCHIVED")
	requireCode(t, err, timesheet.CodeInvalidInput)
}

func TestProjectService_Delete(t *testing.T) {
	f := newFixture(t)

	// Only administrators delete.
	err := f.engine.Projects.Delete(f.ctx, coordA, projA)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	// Not while unfinished tasks remain.
	err = f.engine.Projects.Delete(f.ctx, admin, projA)
	assert.ErrorIs(t, err, timesheet.ErrConflict)

	for _, id := range []timesheet.TaskID{taskA, taskA2} {
		require.NoError(t, f.engine.Tasks.Delete(f.ctx, admin, id))
	}
	require.NoError(t, f.engine.Projects.Delete(f.ctx, admin, projA))

	// Soft delete: the row is still there, but the project is gone.
	row, err := f.store.GetProject(f.ctx, projA)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.IsActive)
	_, err = f.engine.Projects.Get(f.ctx, admin, projA)
	assert.True(t, timesheet.IsNotFound(err))
}

func TestProjectService_Members(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Projects.AddMember(f.ctx, coordA, projA, bobID)
	require.NoError(t, err)

	// A second active assignment is a conflict.
	_, err = f.engine.Projects.AddMember(f.ctx, coordA, projA, bobID)
	assert.ErrorIs(t, err, timesheet.ErrConflict)

	_, err = f.engine.Projects.AddMember(f.ctx, alice, projA, nomadID)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Projects.AddMember(f.ctx, coordA, projA, "ghost")
	assert.True(t, timesheet.IsNotFound(err))

	members, err := f.engine.Projects.ListMembers(f.ctx, coordA, projA)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bobID, members[0].UserID)

	// After removal the pair can be assigned again.
	require.NoError(t, f.engine.Projects.RemoveMember(f.ctx, coordA, projA, bobID))
	err = f.engine.Projects.RemoveMember(f.ctx, coordA, projA, bobID)
	assert.True(t, timesheet.IsNotFound(err))
	_, err = f.engine.Projects.AddMember(f.ctx, coordA, projA, bobID)
	assert.NoError(t, err)
}

func TestProjectService_Update(t *testing.T) {
	f := newFixture(t)

	name := "Platform v2"
	general := true
	p, err := f.engine.Projects.Update(f.ctx, coordA, projA, timesheet.ProjectUpdate{Name: &name, IsGeneral: &general})
	require.NoError(t, err)
	assert.Equal(t, "Platform v2", p.Name)
	assert.True(t, p.IsGeneral)

	end := calendar.MustDate(2020, time.January, 1)
	start := calendar.MustDate(2021, time.January, 1)
	_, err = f.engine.Projects.Update(f.ctx, coordA, projA, timesheet.ProjectUpdate{StartDate: &start, EndDate: &end})
	requireCode(t, err, timesheet.CodeInvalidDateRange)

	_, err = f.engine.Projects.Update(f.ctx, alice, projA, timesheet.ProjectUpdate{Name: &name})
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
}

func TestProjectService_UpdateEndDateKeepsTaskDueDatesInside(t *testing.T) {
	due := calendar.MustDate(2025, time.November, 30)

	tests := []struct {
		name    string
		project timesheet.ProjectID
		end     calendar.Date
		wantErr bool
	}{
		{"end moved before a task due date", projB, calendar.MustDate(2025, time.October, 31), true},
		{"end moved onto the due date", projB, due, false},
		{"end moved later", projB, calendar.MustDate(2026, time.June, 30), false},
		{"first end date with no dated tasks", projA, calendar.MustDate(2025, time.August, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a task of project B due on 2025-11-30
			f := newFixture(t)
			_, err := f.engine.Tasks.Update(f.ctx, coordB, taskB, timesheet.TaskUpdate{DueDate: &due})
			require.NoError(t, err)

			// WHEN: the project's end date is changed
			coord := coordB
			if tt.project == projA {
				coord = coordA
			}
			end := tt.end
			p, err := f.engine.Projects.Update(f.ctx, coord, tt.project, timesheet.ProjectUpdate{EndDate: &end})

			// THEN: an end date before an active task's due date is a conflict
			if tt.wantErr {
				assert.ErrorIs(t, err, timesheet.ErrConflict)
				assert.Contains(t, err.Error(), string(taskB))
				stored, gerr := f.store.GetProject(f.ctx, tt.project)
				require.NoError(t, gerr)
				assert.Equal(t, calendar.MustDate(2025, time.December, 31), stored.EndDate, "project left unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.end, p.EndDate)
		})
	}
}
