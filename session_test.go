package authtask_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authtask "github.com/goliatone/go-authtask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMessagesAreBounded(t *testing.T) {
	session := authtask.NewSession("S", authtask.WithSessionMaxMessages(2))

	session.AddWarning("one")
	session.AddError("two")
	session.AddWarning("three")

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Message)
	assert.Equal(t, authtask.MessageLevelError, messages[0].Level)
	assert.Equal(t, "three", messages[1].Message)
}

func TestSessionUserID(t *testing.T) {
	session := authtask.NewSession("S")
	assert.False(t, session.IsAuthorized())

	session.SetUserID("u-1")
	assert.True(t, session.IsAuthorized())
	assert.Equal(t, "u-1", session.UserID())
}

func TestCreateAndRunTaskEmitsStatusEvent(t *testing.T) {
	sink := &recordingSink{}
	session := authtask.NewSession("S", authtask.WithSessionActivitySink(sink))

	task, err := session.CreateAndRunTask(context.Background(), "report", authtask.NewFuncJob("report", func(context.Context) (any, error) {
		return "ok", nil
	}))
	require.NoError(t, err)

	select {
	case <-session.Events().Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
	}

	events := session.Events().Drain()
	require.Len(t, events, 1)
	assert.Equal(t, authtask.SessionEventTaskStatus, events[0].Type)
	assert.Equal(t, task.ID(), events[0].TaskID)
	require.NotNil(t, events[0].Task)
	assert.False(t, events[0].Task.Running)
	assert.Equal(t, authtask.TaskStatusFinished, events[0].Task.Status)
	assert.Equal(t, "ok", events[0].Task.Result)

	assert.Contains(t, sink.types(), authtask.ActivityEventTaskCreated)
	assert.Contains(t, sink.types(), authtask.ActivityEventTaskFinished)
}

func TestCreateAndRunTaskStoresFailure(t *testing.T) {
	session := authtask.NewSession("S")

	task, err := session.CreateAndRunTask(context.Background(), "broken", authtask.NewFuncJob("broken", func(context.Context) (any, error) {
		return nil, errors.New("broken pipe")
	}))
	require.NoError(t, err)

	select {
	case <-session.Events().Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
	}

	_, err = task.Result()
	require.Error(t, err)
	assert.Equal(t, authtask.TaskStatusFinished, task.Status())

	events := session.Events().Drain()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "broken pipe", events[0].Error.Message)
}

func TestSessionCancelTask(t *testing.T) {
	session := authtask.NewSession("S")

	release := make(chan struct{})
	defer close(release)
	task, err := session.CreateAndRunTask(context.Background(), "slow", authtask.NewFuncJob("slow", func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return nil, nil
		}
	}))
	require.NoError(t, err)

	require.NoError(t, session.CancelTask(context.Background(), task.ID()))
	assert.Equal(t, authtask.TaskStatusCanceled, task.Status())

	err = session.CancelTask(context.Background(), "missing")
	assert.True(t, authtask.HasTextCode(err, authtask.TextCodeTaskNotFound))
}

func TestSessionRegistryGetOrCreate(t *testing.T) {
	registry := authtask.NewSessionRegistry(authtask.WithSessionDefaults(authtask.WithSessionMaxMessages(1)))

	_, ok := registry.Lookup("S")
	assert.False(t, ok)

	first, created := registry.GetOrCreate("S")
	assert.True(t, created)
	second, created := registry.GetOrCreate("S")
	assert.False(t, created)
	assert.Same(t, first, second)

	first.AddWarning("a")
	first.AddWarning("b")
	assert.Len(t, first.Messages(), 1)

	registry.Register(authtask.NewSession("T"))
	assert.Equal(t, 2, registry.Len())

	sessions := registry.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "S", sessions[0].ID())
	assert.Equal(t, "T", sessions[1].ID())

	assert.True(t, registry.Remove("S"))
	assert.False(t, registry.Remove("S"))
	_, ok = registry.Lookup("S")
	assert.False(t, ok)
}

func TestSessionRegistrySweep(t *testing.T) {
	clock := newStepClock()
	registry := authtask.NewSessionRegistry(authtask.WithSessionDefaults(authtask.WithSessionClock(clock.Now)))

	session, _ := registry.GetOrCreate("S")
	tasks := session.Tasks()
	done := tasks.CreateTask("done")
	require.True(t, tasks.Finish(done, authtask.Succeeded(nil)))
	running := tasks.CreateTask("running")

	clock.Advance(time.Hour)
	assert.Equal(t, 1, registry.Sweep(15*time.Minute))

	_, ok := tasks.Get(running.ID())
	assert.True(t, ok)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	registry := authtask.NewSessionRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		registry.RunSweeper(ctx, time.Millisecond, time.Minute)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestEventSinkDropsOldest(t *testing.T) {
	sink := authtask.NewEventSink(2)

	sink.Push(authtask.SessionEvent{TaskID: "1"})
	sink.Push(authtask.SessionEvent{TaskID: "2"})
	sink.Push(authtask.SessionEvent{TaskID: "3"})

	assert.Equal(t, 2, sink.Len())
	assert.Equal(t, uint64(1), sink.Dropped())

	select {
	case <-sink.Ready():
	default:
		t.Fatal("ready signal missing")
	}

	events := sink.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].TaskID)
	assert.Equal(t, "3", events[1].TaskID)
	assert.Zero(t, sink.Len())
}

func TestUserTokens(t *testing.T) {
	assert.Nil(t, authtask.UserTokens(nil))
	assert.Empty(t, authtask.UserTokens([]authtask.AuthInfo{}))

	tokens := authtask.UserTokens(githubRecords)
	require.Len(t, tokens, 1)
	assert.Equal(t, authtask.UserToken{
		Provider:    "github",
		DisplayName: "Octo Cat",
		UserID:      "u-1",
		LoginTime:   loginTime,
	}, tokens[0])
}
