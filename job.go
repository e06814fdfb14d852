package authtask

import (
	"context"
	"sync"
)

// JobKind identifies the kind of deferred work a job describes.
type JobKind string

const (
	JobKindFederatedAuth JobKind = "federated_auth"
	JobKindFunc          JobKind = "func"
)

// Job describes what a task waits for. What a job can do is expressed by the
// optional RunnableJob, CancelableJob and EventDescriber interfaces.
type Job interface {
	Kind() JobKind
	Name() string
}

// RunnableJob performs its work synchronously when run.
type RunnableJob interface {
	Job
	Run(ctx context.Context) (any, error)
}

// TaskControl lets a cancellation hook finish its own task.
type TaskControl interface {
	Task() *AsyncTask
	Finish(outcome Outcome) bool
}

// CancelableJob reacts to user cancellation. Cancel must finish the task
// through ctl with a CANCELED or failed outcome.
type CancelableJob interface {
	Job
	Cancel(ctx context.Context, ctl TaskControl) error
}

// AttemptJob is a job correlated to an authentication attempt.
type AttemptJob interface {
	Job
	AttemptID() string
}

// AuthAttemptJob is a placeholder job waiting for the terminal status of
// an authentication attempt.
type AuthAttemptJob interface {
	AttemptJob
	ProviderID() string
	LinkWithActiveUser() bool
	AuthResult() []AuthInfo
	SetAuthResult(records []AuthInfo) bool
}

// EventDescriber builds the session event emitted when its task finishes.
type EventDescriber interface {
	DescribeOutcome(info TaskInfo) SessionEvent
}

// FuncJob runs fn when the task runs. Canceling it cancels the context
// passed to fn and finishes the task as CANCELED.
type FuncJob struct {
	kind JobKind
	name string
	fn   func(ctx context.Context) (any, error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewFuncJob returns a runnable, cancelable job named name.
func NewFuncJob(name string, fn func(ctx context.Context) (any, error)) *FuncJob {
	return &FuncJob{kind: JobKindFunc, name: name, fn: fn}
}

// WithKind overrides the reported job kind.
func (j *FuncJob) WithKind(kind JobKind) *FuncJob {
	if kind != "" {
		j.kind = kind
	}
	return j
}

func (j *FuncJob) Kind() JobKind { return j.kind }
func (j *FuncJob) Name() string  { return j.name }

func (j *FuncJob) Run(ctx context.Context) (any, error) {
	if j.fn == nil {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
	defer cancel()

	return j.fn(runCtx)
}

func (j *FuncJob) Cancel(_ context.Context, ctl TaskControl) error {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()

	ctl.Finish(Canceled(nil))
	if cancel != nil {
		cancel()
	}
	return nil
}
