package bus

import (
	"context"

	authtask "github.com/goliatone/go-authtask"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisBus carries auth events over Redis pub/sub. Redis delivers each
// message to every node subscribed at publish time.
type RedisBus struct {
	client redis.UniversalClient
	logger authtask.Logger
}

// NewRedisBus wraps client.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client, logger: authtask.NoopLogger()}
}

// WithLogger sets the logger used for handler failures.
func (b *RedisBus) WithLogger(logger authtask.Logger) *RedisBus {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Publish sends payload to topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis publish failed").
			WithMetadata(map[string]any{"topic": topic})
	}
	return nil
}

// Subscribe runs handler for each message on topic until ctx is done or the
// subscription is closed.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler func(context.Context, []byte) error) error {
	ps := b.client.Subscribe(ctx, topic)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis subscribe failed").
			WithMetadata(map[string]any{"topic": topic})
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, []byte(msg.Payload)); err != nil {
				b.logger.Warn("redis bus handler error", "error", err, "topic", topic)
			}
		}
	}
}
