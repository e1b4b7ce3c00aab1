package timesheet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/timesheet"
)

func TestTaskService_Create(t *testing.T) {
	f := newFixture(t)

	task, err := f.engine.Tasks.Create(f.ctx, coordB, timesheet.TaskInput{
		ProjectID: projB, Title: "Follow up", AssignedTo: bobID,
		DueDate: candidateDate(0),
	})
	require.NoError(t, err)
	assert.Equal(t, timesheet.TaskTodo, task.Status)
	assert.Equal(t, areaB, task.AreaID)
	assert.Equal(t, bobID, task.AssignedTo)

	_, err = f.engine.Tasks.Create(f.ctx, coordA, timesheet.TaskInput{ProjectID: projB, Title: "x"})
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Tasks.Create(f.ctx, bob, timesheet.TaskInput{ProjectID: projB, Title: "x"})
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	// Due date window: not before today, not after the project end.
	_, err = f.engine.Tasks.Create(f.ctx, coordB, timesheet.TaskInput{
		ProjectID: projB, Title: "late", DueDate: candidateDate(-1),
	})
	requireCode(t, err, timesheet.CodeInvalidDateRange)
	_, err = f.engine.Tasks.Create(f.ctx, coordB, timesheet.TaskInput{
		ProjectID: projB, Title: "too far", DueDate: calendar.MustDate(2026, time.January, 1),
	})
	requireCode(t, err, timesheet.CodeInvalidDateRange)
	_, err = f.engine.Tasks.Create(f.ctx, coordB, timesheet.TaskInput{
		ProjectID: projB, Title: "last day", DueDate: calendar.MustDate(2025, time.December, 31),
	})
	assert.NoError(t, err)

	_, err = f.engine.Tasks.Create(f.ctx, coordB, timesheet.TaskInput{ProjectID: projB, Title: "x", AssignedTo: "ghost"})
	assert.True(t, timesheet.IsNotFound(err))
}

func TestTaskService_ChangeStatusStampsCompletion(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Tasks.ChangeStatus(f.ctx, coordA, taskA, timesheet.TaskDone)
	requireCode(t, err, timesheet.CodeInvalidStatusTransition)

	_, err = f.engine.Tasks.ChangeStatus(f.ctx, coordA, taskA, timesheet.TaskInProgress)
	require.NoError(t, err)
	done, err := f.engine.Tasks.ChangeStatus(f.ctx, coordA, taskA, timesheet.TaskDone)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, testNow, *done.CompletedAt)

	reopened, err := f.engine.Tasks.ChangeStatus(f.ctx, coordA, taskA, timesheet.TaskInProgress)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	// The assignee may move their own task; an area colleague may not.
	_, err = f.engine.Tasks.ChangeStatus(f.ctx, alice, taskBAlice, timesheet.TaskInProgress)
	assert.NoError(t, err)
	_, err = f.engine.Tasks.ChangeStatus(f.ctx, alice, taskA2, timesheet.TaskInProgress)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
}

func TestTaskService_Delete(t *testing.T) {
	f := newFixture(t)
	logEntry(t, f, alice, candidate(taskA, 0, "1"))

	err := f.engine.Tasks.Delete(f.ctx, coordA, taskA)
	assert.ErrorIs(t, err, timesheet.ErrConflict)

	err = f.engine.Tasks.Delete(f.ctx, alice, taskA2)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)

	require.NoError(t, f.engine.Tasks.Delete(f.ctx, coordA, taskA2))
	_, err = f.engine.Tasks.Get(f.ctx, coordA, taskA2)
	assert.True(t, timesheet.IsNotFound(err))

	// Deleted tasks no longer accept time.
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, alice, candidate(taskA2, 0, "1"))
	assert.True(t, timesheet.IsNotFound(err))
}

func TestTaskService_ListAndAssign(t *testing.T) {
	f := newFixture(t)

	tasks, err := f.engine.Tasks.List(f.ctx, alice, timesheet.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, tasks, 4, "three in area A plus the B task assigned to alice")

	tasks, err = f.engine.Tasks.List(f.ctx, nomad, timesheet.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = f.engine.Tasks.Assign(f.ctx, alice, taskA, aliceID)
	assert.ErrorIs(t, err, timesheet.ErrForbidden)
	_, err = f.engine.Tasks.Assign(f.ctx, coordA, taskA, nomadID)
	require.NoError(t, err)

	tasks, err = f.engine.Tasks.List(f.ctx, nomad, timesheet.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskA, tasks[0].ID)

	// Now that nomad is the assignee they can log time on it.
	_, err = f.engine.TimeEntries.CreateOrMerge(f.ctx, nomad, candidate(taskA, 0, "2"))
	assert.NoError(t, err)
}
