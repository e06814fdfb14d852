package authtask_test

import (
	"context"
	"testing"

	authtask "github.com/goliatone/go-authtask"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newController(f *fixture) *authtask.HTTPController {
	return authtask.NewHTTPController(f.login, f.sessions, authtask.HTTPConfig{})
}

func TestHTTPControllerStartFederatedLogin(t *testing.T) {
	f := newFixture(t)
	f.engine.On("BeginAttempt", mock.Anything, mock.MatchedBy(func(req authtask.AttemptRequest) bool {
		return req.ProviderID == "github" && req.ConfigID == "cfg-1" && req.ForceLogout
	})).Return(&authtask.AttemptStatus{
		AttemptID:   "A1",
		Status:      authtask.AuthStatusInProgress,
		RedirectURL: "https://idp/auth",
	}, nil).Once()

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "github"
	ctx.QueriesM["config_id"] = "cfg-1"
	ctx.QueriesM["force_logout"] = "true"
	ctx.QueriesM["link_user"] = "yes"
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = "S"
	ctx.On("Context").Return(context.Background())

	var payload *authtask.FederatedLoginStatus
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(*authtask.FederatedLoginStatus)
	}).Return(nil)

	require.NoError(t, newController(f).StartFederatedLogin(ctx))
	require.NotNil(t, payload)
	assert.Equal(t, "https://idp/auth", payload.RedirectURL)

	task, ok := f.session.Tasks().Get(payload.TaskID)
	require.True(t, ok)
	job := task.Job().(authtask.AuthAttemptJob)
	assert.False(t, job.LinkWithActiveUser(), "unparseable booleans are false")

	ctx.AssertExpectations(t)
	f.engine.AssertExpectations(t)
}

func TestHTTPControllerMissingSession(t *testing.T) {
	f := newFixture(t)

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "github"
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = "unknown"

	var payload map[string]any
	ctx.On("JSON", goerrors.CodeNotFound, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, newController(f).StartFederatedLogin(ctx))
	info, ok := payload["error"].(*authtask.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, authtask.TextCodeSessionNotFound, info.Code)
	ctx.AssertExpectations(t)
}

func TestHTTPControllerResultWhileRunning(t *testing.T) {
	f := newFixture(t)
	taskID := f.startGithubLogin(t, false)

	ctx := router.NewMockContext()
	ctx.ParamsM["task"] = taskID
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = f.session
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	ctx.On("JSON", goerrors.CodeConflict, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, newController(f).FederatedLoginResult(ctx))
	info := payload["error"].(*authtask.ErrorInfo)
	assert.Equal(t, authtask.TextCodeStillRunning, info.Code)
	ctx.AssertExpectations(t)
}

func TestHTTPControllerResultAfterSuccess(t *testing.T) {
	f := newFixture(t)
	taskID := f.startGithubLogin(t, false)
	f.expectCompletion(false, githubRecords, nil).Once()

	_, err := f.correlator.HandleEvent(context.Background(), successEvent())
	require.NoError(t, err)

	ctx := router.NewMockContext()
	ctx.ParamsM["task"] = taskID
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = f.session
	ctx.On("Context").Return(context.Background())

	var payload map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, newController(f).FederatedLoginResult(ctx))
	tokens := payload["userTokens"].([]authtask.UserToken)
	require.Len(t, tokens, 1)
	assert.Equal(t, "u-1", tokens[0].UserID)
}

func TestHTTPControllerCancelTask(t *testing.T) {
	f := newFixture(t)
	taskID := f.startGithubLogin(t, false)

	ctx := router.NewMockContext()
	ctx.ParamsM["task"] = taskID
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = "S"
	ctx.On("Context").Return(context.Background())

	var payload *authtask.TaskInfo
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(*authtask.TaskInfo)
	}).Return(nil)

	require.NoError(t, newController(f).CancelTask(ctx))
	require.NotNil(t, payload)
	assert.Equal(t, authtask.TaskStatusCanceled, payload.Status)
	assert.False(t, payload.Running)
}

func TestHTTPControllerEvents(t *testing.T) {
	f := newFixture(t)
	taskID := f.startGithubLogin(t, false)
	require.NoError(t, f.login.CancelTask(context.Background(), f.session, taskID))
	f.session.AddWarning("heads up")

	ctx := router.NewMockContext()
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = f.session

	var payload map[string]any
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(map[string]any)
	}).Return(nil).Twice()

	controller := newController(f)
	require.NoError(t, controller.Events(ctx))
	events := payload["events"].([]authtask.SessionEvent)
	require.Len(t, events, 1)
	assert.Equal(t, taskID, events[0].TaskID)
	messages := payload["messages"].([]authtask.SessionMessage)
	require.Len(t, messages, 1)

	require.NoError(t, controller.Events(ctx))
	assert.Empty(t, payload["events"].([]authtask.SessionEvent))
}

func TestHTTPControllerCustomErrorHandler(t *testing.T) {
	f := newFixture(t)

	var handled error
	controller := authtask.NewHTTPController(f.login, f.sessions, authtask.HTTPConfig{
		ErrorHandler: func(_ router.Context, err error) error {
			handled = err
			return nil
		},
	})

	ctx := router.NewMockContext()
	ctx.ParamsM["task"] = "missing"
	ctx.LocalsMock[authtask.DefaultSessionContextKey] = f.session

	require.NoError(t, controller.TaskStatus(ctx))
	assert.True(t, authtask.HasTextCode(handled, authtask.TextCodeTaskNotFound))
}
