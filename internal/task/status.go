// Package task runs the chore lifecycle: creation, submission, and the
// parent's approve or reject decision with its point and progress fan-out.
package task

import "github.com/dukerupert/chorequest/internal/model"

// transitions lists the states each state may move to.
var transitions = map[model.TaskStatus][]model.TaskStatus{
	model.TaskPending:   {model.TaskSubmitted, model.TaskExpired},
	model.TaskSubmitted: {model.TaskApproved, model.TaskRejected, model.TaskExpired},
	model.TaskRejected:  {model.TaskSubmitted, model.TaskExpired},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to model.TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s model.TaskStatus) bool {
	return len(transitions[s]) == 0
}
