// Package bus provides EventBus transports for auth events.
package bus

import (
	"context"
	"sync"

	authtask "github.com/goliatone/go-authtask"
)

const defaultBuffer = 64

// MemoryBus delivers every published payload to every subscriber of the
// topic. Each subscriber models one node in a single process.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan []byte
	next   uint64
	buffer int
	logger authtask.Logger
}

// MemoryOption customizes a MemoryBus.
type MemoryOption func(*MemoryBus)

// WithBuffer sets the per subscriber queue length.
func WithBuffer(size int) MemoryOption {
	return func(b *MemoryBus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger authtask.Logger) MemoryOption {
	return func(b *MemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		subs:   map[string]map[uint64]chan []byte{},
		buffer: defaultBuffer,
		logger: authtask.NoopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish queues payload for every current subscriber of topic. It blocks
// while a subscriber queue is full, until ctx is done.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	targets := make([]chan []byte, 0, len(b.subs[topic]))
	for _, ch := range b.subs[topic] {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe runs handler for each payload on topic until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler func(context.Context, []byte) error) error {
	ch := make(chan []byte, b.buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = map[uint64]chan []byte{}
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				b.logger.Warn("memory bus handler error", "error", err, "topic", topic)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
