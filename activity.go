package authtask

import (
	"context"
	"time"
)

// ActivityEventType enumerates recorded task and correlation activity.
type ActivityEventType string

const (
	ActivityEventTaskCreated       ActivityEventType = "authtask.task.created"
	ActivityEventTaskFinished      ActivityEventType = "authtask.task.finished"
	ActivityEventTaskCanceled      ActivityEventType = "authtask.task.canceled"
	ActivityEventLoginStarted      ActivityEventType = "authtask.login.started"
	ActivityEventEventRejected     ActivityEventType = "authtask.event.rejected"
	ActivityEventEventUnmatched    ActivityEventType = "authtask.event.unmatched"
	ActivityEventEventDuplicate    ActivityEventType = "authtask.event.duplicate"
	ActivityEventSyncLoginComplete ActivityEventType = "authtask.login.sync_completed"
)

// ActivityEvent captures audit information about a task or an inbound event.
type ActivityEvent struct {
	EventType  ActivityEventType
	SessionID  string
	TaskID     string
	AttemptID  string
	Status     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Recording is best effort.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent, now func() time.Time) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink error", "error", err, "event_type", event.EventType)
	}
}
