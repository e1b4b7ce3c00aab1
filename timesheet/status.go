package timesheet

// =============================================================================
// STATUS STATE MACHINES
// =============================================================================

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectActive:    {ProjectOnHold, ProjectCompleted, ProjectCancelled},
	ProjectOnHold:    {ProjectActive, ProjectCancelled},
	ProjectCompleted: {},
	ProjectCancelled: {},
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskTodo:       {TaskInProgress},
	TaskInProgress: {TaskTodo, TaskReview, TaskDone},
	TaskReview:     {TaskInProgress, TaskDone},
	TaskDone:       {TaskInProgress},
}

func (s ProjectStatus) Valid() bool {
	_, ok := projectTransitions[s]
	return ok
}

// CanTransitionTo reports whether s -> next is an allowed transition.
// Staying in the same status is not a transition.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s ProjectStatus) IsTerminal() bool {
	return s.Valid() && len(projectTransitions[s]) == 0
}

func (s TaskStatus) Valid() bool {
	_, ok := taskTransitions[s]
	return ok
}

func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ProjectStatuses and TaskStatuses list every state, in declaration order.
func ProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled}
}

func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskTodo, TaskInProgress, TaskReview, TaskDone}
}
