package authtask

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"
)

// EventListener feeds auth events from the bus into a Correlator. Every node
// runs one; nodes that do not hold the session ignore the event.
type EventListener struct {
	bus        EventBus
	correlator *Correlator
	sessions   *SessionRegistry
	nodeID     string
	topic      string
	interval   time.Duration
	retention  time.Duration
	logger     Logger
}

// EventListenerOption customizes an EventListener.
type EventListenerOption func(*EventListener)

// WithListenerLogger sets the listener logger.
func WithListenerLogger(logger Logger) EventListenerOption {
	return func(l *EventListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithListenerLoggerProvider resolves the listener logger from provider.
func WithListenerLoggerProvider(provider LoggerProvider) EventListenerOption {
	return func(l *EventListener) {
		_, l.logger = ResolveLogger("authtask.listener", provider, l.logger)
	}
}

// WithListenerSweeper makes Run also sweep terminal tasks of sessions.
func WithListenerSweeper(sessions *SessionRegistry) EventListenerOption {
	return func(l *EventListener) {
		l.sessions = sessions
	}
}

// NewEventListener returns a listener for cfg.EventTopic.
func NewEventListener(bus EventBus, correlator *Correlator, cfg Config, opts ...EventListenerOption) *EventListener {
	topic := cfg.EventTopic
	if topic == "" {
		topic = DefaultEventTopic
	}
	l := &EventListener{
		bus:        bus,
		correlator: correlator,
		nodeID:     cfg.NodeID,
		topic:      topic,
		interval:   cfg.SweepInterval,
		retention:  cfg.TaskRetention,
		logger:     NoopLogger(),
	}
	if l.retention <= 0 {
		l.retention = DefaultTaskRetention
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Run subscribes to the event topic and blocks until ctx is done or the
// subscription ends. The sweeper stops with the subscription.
func (l *EventListener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return l.bus.Subscribe(ctx, l.topic, l.Handle)
	})

	if l.sessions != nil {
		g.Go(func() error {
			l.sessions.RunSweeper(ctx, l.interval, l.retention)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("auth event listener stopped", "error", err, "topic", l.topic, "node_id", l.nodeID)
		return err
	}
	l.logger.Debug("auth event listener stopped", "topic", l.topic, "node_id", l.nodeID)
	return nil
}

// Handle decodes and correlates one payload. Bad payloads are logged and
// dropped so a poisoned message is never redelivered forever.
func (l *EventListener) Handle(ctx context.Context, payload []byte) error {
	evt, err := DecodeAuthEvent(payload)
	if err != nil {
		l.logger.Warn("dropping undecodable auth event", "error", err, "topic", l.topic, "node_id", l.nodeID)
		return nil
	}

	resolution, err := l.correlator.HandleEvent(ctx, evt)
	if err != nil {
		l.logger.Warn("dropping auth event", "error", err, "auth_attempt_id", evt.AuthAttemptID, "node_id", l.nodeID)
		return nil
	}

	l.logger.Debug("auth event handled",
		"resolution", resolution,
		"app_session_id", evt.AppSessionID,
		"auth_attempt_id", evt.AuthAttemptID,
		"node_id", l.nodeID,
	)
	return nil
}

// PublishAuthEvent validates evt and publishes it on topic.
func PublishAuthEvent(ctx context.Context, bus EventBus, topic string, evt AuthEvent) error {
	if err := evt.Validate(); err != nil {
		return err
	}

	payload, err := evt.Encode()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode auth event")
	}

	if err := bus.Publish(ctx, topic, payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish auth event").
			WithMetadata(map[string]any{"topic": topic})
	}
	return nil
}
