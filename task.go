package authtask

import (
	"sync"
	"time"
)

// TaskStatus is the lifecycle status of an AsyncTask.
type TaskStatus string

const (
	TaskStatusCreated  TaskStatus = "CREATED"
	TaskStatusRunning  TaskStatus = "RUNNING"
	TaskStatusFinished TaskStatus = "FINISHED"
	TaskStatusCanceled TaskStatus = "CANCELED"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusFinished || s == TaskStatusCanceled
}

// Outcome is the terminal state applied to a task by TaskRegistry.Finish.
type Outcome struct {
	Status TaskStatus
	Result any
	Err    error
}

// Succeeded is a FINISHED outcome carrying result.
func Succeeded(result any) Outcome {
	return Outcome{Status: TaskStatusFinished, Result: result}
}

// Failed is a FINISHED outcome carrying err.
func Failed(err error) Outcome {
	return Outcome{Status: TaskStatusFinished, Err: err}
}

// Canceled is a CANCELED outcome. A nil err becomes ErrCanceledByUser.
func Canceled(err error) Outcome {
	if err == nil {
		err = newError(ErrCanceledByUser, nil)
	}
	return Outcome{Status: TaskStatusCanceled, Err: err}
}

// AsyncTask is the session local handle of one asynchronous operation.
// Outcome fields are written together under the task lock.
type AsyncTask struct {
	mu sync.RWMutex

	id          string
	displayName string
	seq         uint64
	job         Job
	running     bool
	status      TaskStatus
	result      any
	err         error
	createdAt   time.Time
	finishedAt  time.Time
}

func (t *AsyncTask) ID() string          { return t.id }
func (t *AsyncTask) DisplayName() string { return t.displayName }
func (t *AsyncTask) CreatedAt() time.Time {
	return t.createdAt
}

// Job returns the attached job, nil until AttachJob.
func (t *AsyncTask) Job() Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job
}

// Running is true from creation until the terminal transition.
func (t *AsyncTask) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *AsyncTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the stored result and error. Both are nil while running.
func (t *AsyncTask) Result() (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.err
}

func (t *AsyncTask) FinishedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finishedAt
}

// Info returns a consistent snapshot of the task.
func (t *AsyncTask) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := TaskInfo{
		ID:        t.id,
		Name:      t.displayName,
		Status:    t.status,
		Running:   t.running,
		Result:    t.result,
		Error:     ErrorInfoFrom(t.err),
		CreatedAt: t.createdAt,
	}
	if t.job != nil {
		info.Kind = t.job.Kind()
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		info.FinishedAt = &finished
	}
	return info
}

func (t *AsyncTask) attach(job Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job != nil {
		return newError(ErrJobAlreadyAttached, map[string]any{
			"task_id":  t.id,
			"job_kind": t.job.Kind(),
		})
	}
	t.job = job
	return nil
}

func (t *AsyncTask) transition(to TaskStatus) (TaskStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.status
	if err := checkTransition(from, to); err != nil {
		return from, err
	}
	t.status = to
	return from, nil
}

// complete applies outcome as a single unit. It returns ErrAlreadyTerminal
// without touching the task when a terminal transition already happened.
func (t *AsyncTask) complete(outcome Outcome, now time.Time) (TaskStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.status
	if err := checkTransition(from, outcome.Status); err != nil {
		return from, err
	}

	t.running = false
	t.status = outcome.Status
	if outcome.Err != nil {
		t.err = outcome.Err
		t.result = nil
	} else {
		t.result = outcome.Result
		t.err = nil
	}
	t.finishedAt = now
	return from, nil
}

// TaskInfo is a read only view of a task for API responses and events.
type TaskInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Kind       JobKind    `json:"kind,omitempty"`
	Status     TaskStatus `json:"status"`
	Running    bool       `json:"running"`
	Result     any        `json:"result,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
