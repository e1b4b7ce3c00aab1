package timesheet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/timesheet-engine/timesheet"
)

func TestProjectStatus_Transitions(t *testing.T) {
	allowed := map[[2]timesheet.ProjectStatus]bool{
		{timesheet.ProjectActive, timesheet.ProjectOnHold}:    true,
		{timesheet.ProjectActive, timesheet.ProjectCompleted}: true,
		{timesheet.ProjectActive, timesheet.ProjectCancelled}: true,
		{timesheet.ProjectOnHold, timesheet.ProjectActive}:    true,
		{timesheet.ProjectOnHold, timesheet.ProjectCancelled}: true,
	}
	for _, from := range timesheet.ProjectStatuses() {
		for _, to := range timesheet.ProjectStatuses() {
			assert.Equal(t, allowed[[2]timesheet.ProjectStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, timesheet.ProjectCompleted.IsTerminal())
	assert.True(t, timesheet.ProjectCancelled.IsTerminal())
	assert.False(t, timesheet.ProjectOnHold.IsTerminal())
	assert.False(t, timesheet.ProjectStatus("ARCHIVED").Valid())
}

func TestTaskStatus_Transitions(t *testing.T) {
	allowed := map[[2]timesheet.TaskStatus]bool{
		{timesheet.TaskTodo, timesheet.TaskInProgress}:   true,
		{timesheet.TaskInProgress, timesheet.TaskTodo}:   true,
		{timesheet.TaskInProgress, timesheet.TaskReview}: true,
		{timesheet.TaskInProgress, timesheet.TaskDone}:   true,
		{timesheet.TaskReview, timesheet.TaskInProgress}: true,
		{timesheet.TaskReview, timesheet.TaskDone}:       true,
		{timesheet.TaskDone, timesheet.TaskInProgress}:   true,
	}
	for _, from := range timesheet.TaskStatuses() {
		for _, to := range timesheet.TaskStatuses() {
			assert.Equal(t, allowed[[2]timesheet.TaskStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, timesheet.TaskStatus("BLOCKED").CanTransitionTo(timesheet.TaskDone))
}

// Every task status can reach every other one; tasks never get stuck.
func TestTaskStatus_EveryStateReachable(t *testing.T) {
	for _, start := range timesheet.TaskStatuses() {
		seen := map[timesheet.TaskStatus]bool{start: true}
		queue := []timesheet.TaskStatus{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range timesheet.TaskStatuses() {
				if !seen[next] && cur.CanTransitionTo(next) {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		assert.Len(t, seen, len(timesheet.TaskStatuses()), "from %s", start)
	}
}
