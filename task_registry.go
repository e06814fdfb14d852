package authtask

import (
	"context"
	"sort"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TaskRegistry owns the asynchronous tasks of one session.
type TaskRegistry struct {
	mu     sync.RWMutex
	tasks  map[string]*AsyncTask
	seq    uint64
	hooks  []TaskHook
	now    func() time.Time
	newID  func() string
	logger Logger
}

// TaskRegistryOption customizes a TaskRegistry.
type TaskRegistryOption func(*TaskRegistry)

// WithTaskClock injects the clock used for task timestamps.
func WithTaskClock(clock func() time.Time) TaskRegistryOption {
	return func(r *TaskRegistry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithTaskIDGenerator overrides task id generation.
func WithTaskIDGenerator(gen func() string) TaskRegistryOption {
	return func(r *TaskRegistry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithTaskLogger sets the registry logger.
func WithTaskLogger(logger Logger) TaskRegistryOption {
	return func(r *TaskRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTaskLoggerProvider resolves the registry logger from provider.
func WithTaskLoggerProvider(provider LoggerProvider) TaskRegistryOption {
	return func(r *TaskRegistry) {
		_, r.logger = ResolveLogger("authtask.tasks", provider, r.logger)
	}
}

// WithTaskFinishHook registers a hook run after every terminal transition.
func WithTaskFinishHook(hook TaskHook) TaskRegistryOption {
	return func(r *TaskRegistry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// NewTaskRegistry returns an empty registry.
func NewTaskRegistry(opts ...TaskRegistryOption) *TaskRegistry {
	r := &TaskRegistry{
		tasks:  map[string]*AsyncTask{},
		now:    time.Now,
		newID:  uuid.NewString,
		logger: NoopLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// OnFinish registers a hook run after every terminal transition.
func (r *TaskRegistry) OnFinish(hook TaskHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

// CreateTask allocates a running task in CREATED status with no job.
func (r *TaskRegistry) CreateTask(displayName string) *AsyncTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	task := &AsyncTask{
		id:          r.newID(),
		displayName: displayName,
		seq:         r.seq,
		running:     true,
		status:      TaskStatusCreated,
		createdAt:   r.now(),
	}
	r.tasks[task.id] = task

	r.logger.Debug("task created", "task_id", task.id, "name", displayName)
	return task
}

// AttachJob binds job to task. A task takes exactly one job.
func (r *TaskRegistry) AttachJob(task *AsyncTask, job Job) error {
	if task == nil {
		return newError(ErrTaskNotFound, nil)
	}
	if job == nil {
		return newError(ErrNoJob, map[string]any{"task_id": task.id})
	}
	return task.attach(job)
}

// Start moves a CREATED task to RUNNING.
func (r *TaskRegistry) Start(task *AsyncTask) error {
	if task == nil {
		return newError(ErrTaskNotFound, nil)
	}
	_, err := task.transition(TaskStatusRunning)
	return err
}

// Get returns the task with id.
func (r *TaskRegistry) Get(id string) (*AsyncTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Remove drops the task with id, running or not.
func (r *TaskRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// Tasks returns all tasks in creation order.
func (r *TaskRegistry) Tasks() []*AsyncTask {
	r.mu.RLock()
	out := make([]*AsyncTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	r.mu.RUnlock()

	sortTasks(out)
	return out
}

// Len returns the number of tasks held.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// FindOption customizes FindTasksByJobType.
type FindOption func(*findOptions)

type findOptions struct {
	includeTerminal bool
}

// IncludeTerminal makes FindTasksByJobType return finished tasks too.
func IncludeTerminal() FindOption {
	return func(o *findOptions) {
		o.includeTerminal = true
	}
}

// FindTasksByJobType returns running tasks whose job is of kind, in creation order.
func (r *TaskRegistry) FindTasksByJobType(kind JobKind, opts ...FindOption) []*AsyncTask {
	options := findOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	var out []*AsyncTask
	for _, task := range r.Tasks() {
		job := task.Job()
		if job == nil || job.Kind() != kind {
			continue
		}
		if !options.includeTerminal && !task.Running() {
			continue
		}
		out = append(out, task)
	}
	return out
}

// Finish applies outcome to task. It returns false, and logs a warning, when
// the task was already terminal; the stored outcome is left untouched.
func (r *TaskRegistry) Finish(task *AsyncTask, outcome Outcome) bool {
	if task == nil {
		return false
	}

	from, err := task.complete(outcome, r.now())
	if err != nil {
		if HasTextCode(err, TextCodeAlreadyTerminal) {
			r.logger.Warn("task already terminal",
				"task_id", task.id,
				"status", from,
				"ignored_status", outcome.Status,
			)
		} else {
			r.logger.Error("invalid task outcome", "task_id", task.id, "error", err)
		}
		return false
	}

	r.logger.Debug("task finished", "task_id", task.id, "from", from, "to", outcome.Status)

	r.mu.RLock()
	hooks := append([]TaskHook(nil), r.hooks...)
	r.mu.RUnlock()

	tr := TaskTransition{Task: task, From: from, To: outcome.Status, Outcome: outcome}
	for _, hook := range hooks {
		hook(tr)
	}
	return true
}

type taskControl struct {
	registry *TaskRegistry
	task     *AsyncTask
}

func (c taskControl) Task() *AsyncTask { return c.task }

func (c taskControl) Finish(outcome Outcome) bool {
	return c.registry.Finish(c.task, outcome)
}

// Cancel asks the task job to cancel itself. Canceling a terminal task is a
// no-op; jobs that are not cancelable yield ErrUnsupportedOperation.
func (r *TaskRegistry) Cancel(ctx context.Context, task *AsyncTask) error {
	if task == nil {
		return newError(ErrTaskNotFound, nil)
	}

	if !task.Running() {
		r.logger.Debug("cancel ignored for terminal task", "task_id", task.id, "status", task.Status())
		return nil
	}

	cancelable, ok := task.Job().(CancelableJob)
	if !ok {
		return newError(ErrUnsupportedOperation, map[string]any{
			"task_id":   task.id,
			"operation": "cancel",
		})
	}

	if err := cancelable.Cancel(ctx, taskControl{registry: r, task: task}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to cancel task")
	}

	if task.Running() {
		r.logger.Warn("cancel hook left task running", "task_id", task.id)
		r.Finish(task, Canceled(nil))
	}
	return nil
}

// Run executes a runnable job on the calling goroutine and finishes the task
// with its result. The job error, if any, is stored and returned.
func (r *TaskRegistry) Run(ctx context.Context, task *AsyncTask) error {
	if task == nil {
		return newError(ErrTaskNotFound, nil)
	}

	runnable, ok := task.Job().(RunnableJob)
	if !ok {
		return newError(ErrUnsupportedOperation, map[string]any{
			"task_id":   task.id,
			"operation": "run",
		})
	}

	if err := r.Start(task); err != nil {
		return err
	}

	result, err := runnable.Run(ctx)
	if !task.Running() {
		r.logger.Debug("task finished before its job returned", "task_id", task.id, "status", task.Status())
		return err
	}

	switch {
	case err != nil && ctx.Err() != nil:
		r.Finish(task, Canceled(wrapError(ErrCanceledByUser, err, nil)))
	case err != nil:
		r.Finish(task, Failed(err))
	default:
		r.Finish(task, Succeeded(result))
	}
	return err
}

// Sweep evicts terminal tasks that finished at least retention ago and
// returns how many were removed. Running tasks are never evicted.
func (r *TaskRegistry) Sweep(retention time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, task := range r.tasks {
		if task.Running() {
			continue
		}
		finishedAt := task.FinishedAt()
		if finishedAt.IsZero() || now.Sub(finishedAt) < retention {
			continue
		}
		delete(r.tasks, id)
		removed++
	}

	if removed > 0 {
		r.logger.Debug("swept terminal tasks", "count", removed)
	}
	return removed
}

func sortTasks(tasks []*AsyncTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].createdAt.Equal(tasks[j].createdAt) {
			return tasks[i].seq < tasks[j].seq
		}
		return tasks[i].createdAt.Before(tasks[j].createdAt)
	})
}
