package activitymap

import (
	"context"
	"strings"
	"time"

	authtask "github.com/goliatone/go-authtask"
)

const (
	// MetadataKeyAttemptID stores the auth attempt id when the object is a task.
	MetadataKeyAttemptID = "attempt_id"
	// MetadataKeyStatus stores the task or auth status carried by the event.
	MetadataKeyStatus = "status"
)

const (
	ObjectTypeTask    = "task"
	ObjectTypeAttempt = "auth_attempt"
)

const (
	defaultChannel = "authtask"
	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an authtask.ActivityEvent into the normalized shape.
// The session is the actor; the task is the object when there is one,
// otherwise the auth attempt.
func Normalize(event authtask.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	objectType, objectID := resolveObject(event)
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.SessionID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithChannel sets the channel for normalized records.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has no session.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Sink forwards normalized activity to a downstream consumer.
type Sink struct {
	forward func(context.Context, Normalized) error
	opts    []Option
}

// NewSink returns an authtask.ActivitySink that normalizes each event and
// hands it to forward.
func NewSink(forward func(context.Context, Normalized) error, opts ...Option) *Sink {
	return &Sink{forward: forward, opts: opts}
}

// Record implements authtask.ActivitySink.
func (s *Sink) Record(ctx context.Context, event authtask.ActivityEvent) error {
	if s == nil || s.forward == nil {
		return nil
	}
	return s.forward(ctx, Normalize(event, s.opts...))
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObject(event authtask.ActivityEvent) (string, string) {
	if taskID := strings.TrimSpace(event.TaskID); taskID != "" {
		return ObjectTypeTask, taskID
	}
	if attemptID := strings.TrimSpace(event.AttemptID); attemptID != "" {
		return ObjectTypeAttempt, attemptID
	}
	return "", ""
}

func normalizeMetadata(event authtask.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	if objectType == ObjectTypeTask && event.AttemptID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyAttemptID]; !exists {
			metadata[MetadataKeyAttemptID] = event.AttemptID
		}
	}

	if event.Status != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyStatus] = event.Status
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
