package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startSubscriber(t *testing.T, b *MemoryBus, ctx context.Context, topic string, received *[]string, mu *sync.Mutex) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, topic, func(_ context.Context, payload []byte) error {
			mu.Lock()
			*received = append(*received, string(payload))
			mu.Unlock()
			return nil
		})
	}()
	return done
}

func TestMemoryBusFansOutToEverySubscriber(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		nodeA []string
		nodeB []string
	)
	doneA := startSubscriber(t, b, ctx, "auth", &nodeA, &mu)
	doneB := startSubscriber(t, b, ctx, "auth", &nodeB, &mu)

	require.Eventually(t, func() bool { return b.Subscribers("auth") == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(ctx, "auth", []byte("evt-1")))
	require.NoError(t, b.Publish(ctx, "other", []byte("ignored")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(nodeA) == 1 && len(nodeB) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"evt-1"}, nodeA)
	require.Equal(t, []string{"evt-1"}, nodeB)
	mu.Unlock()

	cancel()
	require.ErrorIs(t, <-doneA, context.Canceled)
	require.ErrorIs(t, <-doneB, context.Canceled)
	require.Equal(t, 0, b.Subscribers("auth"))
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Publish(context.Background(), "auth", []byte("nobody")))
}

func TestMemoryBusPublishHonoursContextWhenFull(t *testing.T) {
	b := NewMemoryBus(WithBuffer(1))
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()

	block := make(chan struct{})
	go func() {
		_ = b.Subscribe(subCtx, "auth", func(context.Context, []byte) error {
			<-block
			return nil
		})
	}()
	require.Eventually(t, func() bool { return b.Subscribers("auth") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "auth", []byte("1")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = b.Publish(ctx, "auth", []byte("more"))
	}
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
