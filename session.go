package authtask

import (
	"context"
	"sync"
	"time"
)

// MessageLevel classifies a session visible message.
type MessageLevel string

const (
	MessageLevelWarning MessageLevel = "warning"
	MessageLevelError   MessageLevel = "error"
)

// SessionMessage is a non fatal notice shown to the session user.
type SessionMessage struct {
	Level   MessageLevel `json:"level"`
	Message string       `json:"message"`
	Time    time.Time    `json:"time"`
}

// Session is the node resident state of one client session.
type Session struct {
	id       string
	tasks    *TaskRegistry
	events   *EventSink
	activity ActivitySink
	logger   Logger
	now      func() time.Time

	// writer serializes task transitions that must not interleave, such as
	// event correlation and user cancellation.
	writer sync.Mutex

	mu          sync.RWMutex
	messages    []SessionMessage
	maxMessages int
	userID      string
}

// SessionOption customizes a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	now           func() time.Time
	logger        Logger
	activity      ActivitySink
	eventCapacity int
	maxMessages   int
	taskOptions   []TaskRegistryOption
}

// WithSessionClock injects the clock used by the session and its tasks.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(o *sessionOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithSessionLogger sets the logger shared by the session and its tasks.
func WithSessionLogger(logger Logger) SessionOption {
	return func(o *sessionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSessionActivitySink records task activity to sink.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(o *sessionOptions) {
		o.activity = normalizeActivitySink(sink)
	}
}

// WithSessionEventCapacity bounds the session event sink.
func WithSessionEventCapacity(capacity int) SessionOption {
	return func(o *sessionOptions) {
		if capacity > 0 {
			o.eventCapacity = capacity
		}
	}
}

// WithSessionMaxMessages bounds the session message list.
func WithSessionMaxMessages(max int) SessionOption {
	return func(o *sessionOptions) {
		if max > 0 {
			o.maxMessages = max
		}
	}
}

// WithSessionTaskOptions passes options to the session task registry.
func WithSessionTaskOptions(opts ...TaskRegistryOption) SessionOption {
	return func(o *sessionOptions) {
		o.taskOptions = append(o.taskOptions, opts...)
	}
}

// NewSession returns a session with an empty task registry and event sink.
func NewSession(id string, opts ...SessionOption) *Session {
	options := sessionOptions{
		now:           time.Now,
		logger:        NoopLogger(),
		activity:      noopActivitySink{},
		eventCapacity: DefaultEventSinkCapacity,
		maxMessages:   DefaultMaxSessionMessages,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	s := &Session{
		id:          id,
		events:      NewEventSink(options.eventCapacity),
		activity:    options.activity,
		logger:      options.logger,
		now:         options.now,
		maxMessages: options.maxMessages,
	}

	taskOpts := []TaskRegistryOption{
		WithTaskClock(options.now),
		WithTaskLogger(options.logger),
	}
	taskOpts = append(taskOpts, options.taskOptions...)
	taskOpts = append(taskOpts, WithTaskFinishHook(s.onTaskFinished))
	s.tasks = NewTaskRegistry(taskOpts...)

	return s
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Tasks() *TaskRegistry { return s.tasks }
func (s *Session) Events() *EventSink   { return s.events }
func (s *Session) Logger() Logger       { return s.logger }

// Exclusive runs fn while holding the session writer lock.
func (s *Session) Exclusive(fn func() error) error {
	s.writer.Lock()
	defer s.writer.Unlock()
	return fn()
}

// UserID returns the id of the user authenticated in the session, if any.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUserID records the authenticated user.
func (s *Session) SetUserID(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// IsAuthorized reports whether a user is authenticated in the session.
func (s *Session) IsAuthorized() bool {
	return s.UserID() != ""
}

// AddWarning appends a warning visible to the session user.
func (s *Session) AddWarning(message string) {
	s.addMessage(MessageLevelWarning, message)
}

// AddError appends an error visible to the session user.
func (s *Session) AddError(message string) {
	s.addMessage(MessageLevelError, message)
}

func (s *Session) addMessage(level MessageLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) >= s.maxMessages {
		s.messages = s.messages[1:]
	}
	s.messages = append(s.messages, SessionMessage{Level: level, Message: message, Time: s.now()})
}

// Messages returns a copy of the session messages, oldest first.
func (s *Session) Messages() []SessionMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SessionMessage(nil), s.messages...)
}

// CreateAndRunTask registers job as a new task and runs it in the
// background. Failures are stored on the task.
func (s *Session) CreateAndRunTask(ctx context.Context, displayName string, job RunnableJob) (*AsyncTask, error) {
	task := s.tasks.CreateTask(displayName)
	if err := s.tasks.AttachJob(task, job); err != nil {
		s.tasks.Remove(task.ID())
		return nil, err
	}
	s.recordTaskCreated(ctx, task)

	runCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.tasks.Run(runCtx, task); err != nil {
			s.logger.Debug("background task failed", "task_id", task.ID(), "error", err)
		}
	}()

	return task, nil
}

// CancelTask cancels the task with taskID under the session writer lock.
func (s *Session) CancelTask(ctx context.Context, taskID string) error {
	return s.Exclusive(func() error {
		task, ok := s.tasks.Get(taskID)
		if !ok {
			return newError(ErrTaskNotFound, map[string]any{"task_id": taskID})
		}
		return s.tasks.Cancel(ctx, task)
	})
}

func (s *Session) recordTaskCreated(ctx context.Context, task *AsyncTask) {
	event := ActivityEvent{
		EventType: ActivityEventTaskCreated,
		SessionID: s.id,
		TaskID:    task.ID(),
		Status:    string(task.Status()),
		Metadata:  map[string]any{"name": task.DisplayName()},
	}
	if job := task.Job(); job != nil {
		event.Metadata["job_kind"] = job.Kind()
	}
	if attempt, ok := task.Job().(AttemptJob); ok {
		event.AttemptID = attempt.AttemptID()
	}
	recordActivity(ctx, s.activity, s.logger, event, s.now)
}

// onTaskFinished runs after the terminal state write, so the pushed event
// never describes a running task.
func (s *Session) onTaskFinished(tr TaskTransition) {
	info := tr.Task.Info()

	var evt SessionEvent
	if describer, ok := tr.Task.Job().(EventDescriber); ok {
		evt = describer.DescribeOutcome(info)
	} else {
		evt = TaskStatusEvent(info)
	}
	evt.OccurredAt = s.now()
	s.events.Push(evt)

	eventType := ActivityEventTaskFinished
	if tr.To == TaskStatusCanceled {
		eventType = ActivityEventTaskCanceled
	}
	activity := ActivityEvent{
		EventType: eventType,
		SessionID: s.id,
		TaskID:    info.ID,
		Status:    string(tr.To),
		Metadata:  map[string]any{"from": tr.From},
	}
	if info.Error != nil {
		activity.Metadata["error"] = info.Error.Message
	}
	if attempt, ok := tr.Task.Job().(AttemptJob); ok {
		activity.AttemptID = attempt.AttemptID()
	}
	recordActivity(context.Background(), s.activity, s.logger, activity, s.now)
}
