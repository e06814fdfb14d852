package repository

import (
	"context"
	"strings"
	"time"

	authtask "github.com/goliatone/go-authtask"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityModel is the Bun model for task and correlation activity.
type ActivityModel struct {
	bun.BaseModel `bun:"table:auth_task_activity"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid"`
	EventType  string         `bun:"event_type,notnull"`
	SessionID  string         `bun:"session_id,notnull"`
	TaskID     string         `bun:"task_id"`
	AttemptID  string         `bun:"attempt_id"`
	Status     string         `bun:"status"`
	Metadata   map[string]any `bun:"metadata,type:jsonb"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
}

// ActivityRepository stores activity events and implements
// authtask.ActivitySink. Records are keyed by a hash of what they describe,
// so a redelivered event maps to the row already written.
type ActivityRepository struct {
	db *bun.DB
}

// NewActivityRepository creates a new repository.
func NewActivityRepository(db *bun.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// EnsureSchema creates the activity table when missing.
func (r *ActivityRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*ActivityModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create activity table")
	}
	return nil
}

// Record implements authtask.ActivitySink.
func (r *ActivityRepository) Record(ctx context.Context, event authtask.ActivityEvent) error {
	model, err := r.fromEvent(event)
	if err != nil {
		return err
	}

	_, err = r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record activity").
			WithMetadata(map[string]any{"event_type": event.EventType})
	}
	return nil
}

// ListBySession returns the activity of a session, oldest first.
func (r *ActivityRepository) ListBySession(ctx context.Context, sessionID string) ([]authtask.ActivityEvent, error) {
	var models []ActivityModel
	err := r.db.NewSelect().
		Model(&models).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC", "event_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list activity")
	}

	events := make([]authtask.ActivityEvent, len(models))
	for i, m := range models {
		events[i] = r.toEvent(&m)
	}
	return events, nil
}

// ListByAttempt returns the activity recorded for an auth attempt.
func (r *ActivityRepository) ListByAttempt(ctx context.Context, attemptID string) ([]authtask.ActivityEvent, error) {
	var models []ActivityModel
	err := r.db.NewSelect().
		Model(&models).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC", "event_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list activity")
	}

	events := make([]authtask.ActivityEvent, len(models))
	for i, m := range models {
		events[i] = r.toEvent(&m)
	}
	return events, nil
}

func activityID(event authtask.ActivityEvent) (uuid.UUID, error) {
	key := strings.Join([]string{
		string(event.EventType),
		event.SessionID,
		event.TaskID,
		event.AttemptID,
		event.Status,
	}, "|")
	return hashid.NewUUID(key)
}

func (r *ActivityRepository) fromEvent(event authtask.ActivityEvent) (*ActivityModel, error) {
	id, err := activityID(event)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive activity id")
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return &ActivityModel{
		ID:         id,
		EventType:  string(event.EventType),
		SessionID:  event.SessionID,
		TaskID:     event.TaskID,
		AttemptID:  event.AttemptID,
		Status:     event.Status,
		Metadata:   event.Metadata,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

func (r *ActivityRepository) toEvent(m *ActivityModel) authtask.ActivityEvent {
	return authtask.ActivityEvent{
		EventType:  authtask.ActivityEventType(m.EventType),
		SessionID:  m.SessionID,
		TaskID:     m.TaskID,
		AttemptID:  m.AttemptID,
		Status:     m.Status,
		Metadata:   m.Metadata,
		OccurredAt: m.OccurredAt,
	}
}
