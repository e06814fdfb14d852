package authtask

var taskTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskStatusCreated: {
		TaskStatusRunning:  {},
		TaskStatusFinished: {},
		TaskStatusCanceled: {},
	},
	TaskStatusRunning: {
		TaskStatusFinished: {},
		TaskStatusCanceled: {},
	},
}

func checkTransition(from, to TaskStatus) error {
	if from.IsTerminal() {
		return newError(ErrAlreadyTerminal, map[string]any{
			"from": from,
			"to":   to,
		})
	}

	if allowed, ok := taskTransitions[from]; ok {
		if _, exists := allowed[to]; exists {
			return nil
		}
	}

	return newError(ErrInvalidTransition, map[string]any{
		"from": from,
		"to":   to,
	})
}

// TaskTransition describes an applied status change.
type TaskTransition struct {
	Task    *AsyncTask
	From    TaskStatus
	To      TaskStatus
	Outcome Outcome
}

// TaskHook runs after a terminal transition has been written.
type TaskHook func(tr TaskTransition)
