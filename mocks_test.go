package authtask_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authtask "github.com/goliatone/go-authtask"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEngine implements authtask.AuthEngine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) BeginAttempt(ctx context.Context, req authtask.AttemptRequest) (*authtask.AttemptStatus, error) {
	args := m.Called(ctx, req)
	status, _ := args.Get(0).(*authtask.AttemptStatus)
	return status, args.Error(1)
}

func (m *MockEngine) QueryAttempt(ctx context.Context, attemptID string) (*authtask.AttemptStatus, error) {
	args := m.Called(ctx, attemptID)
	status, _ := args.Get(0).(*authtask.AttemptStatus)
	return status, args.Error(1)
}

// MockAuthenticator implements authtask.SessionAuthenticator. Calls are
// recorded by session id so the mock never reads the session itself.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) AuthenticateSession(ctx context.Context, session *authtask.Session, req authtask.CompletionRequest) ([]authtask.AuthInfo, error) {
	args := m.Called(ctx, session.ID(), req)
	records, _ := args.Get(0).([]authtask.AuthInfo)
	return records, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []authtask.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event authtask.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []authtask.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authtask.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type plainJob struct{}

func (plainJob) Kind() authtask.JobKind { return "plain" }
func (plainJob) Name() string           { return "plain" }

var loginTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

var githubRecords = []authtask.AuthInfo{{
	ProviderID:  "github",
	DisplayName: "Octo Cat",
	UserID:      "u-1",
	LoginTime:   loginTime,
}}

type fixture struct {
	cfg        authtask.Config
	engine     *MockEngine
	authn      *MockAuthenticator
	activity   *recordingSink
	sessions   *authtask.SessionRegistry
	session    *authtask.Session
	login      *authtask.LoginService
	correlator *authtask.Correlator
}

func newFixture(t *testing.T, mutate ...func(*authtask.Config)) *fixture {
	t.Helper()

	cfg := authtask.DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	f := &fixture{
		cfg:      cfg,
		engine:   &MockEngine{},
		authn:    &MockAuthenticator{},
		activity: &recordingSink{},
	}

	f.sessions = authtask.NewSessionRegistry(
		authtask.WithSessionDefaults(authtask.WithSessionActivitySink(f.activity)),
		authtask.WithSessionDefaults(cfg.SessionOptions()...),
	)
	f.session, _ = f.sessions.GetOrCreate("S")

	providers := authtask.NewProviderRegistry(
		authtask.ProviderDescriptor{ID: "github", Label: "GitHub", Federated: true},
		authtask.ProviderDescriptor{ID: "local", Label: "Local"},
		authtask.ProviderDescriptor{ID: "reverse-proxy", Label: "Reverse proxy", Trusted: true},
	)

	f.login = authtask.NewLoginService(f.engine, f.authn, providers, cfg,
		authtask.WithLoginActivitySink(f.activity),
	)
	f.correlator = authtask.NewCorrelator(f.sessions, f.authn,
		authtask.WithCorrelatorActivitySink(f.activity),
		authtask.WithCorrelatorConfig(cfg),
	)
	return f
}

func (f *fixture) expectBegin(attemptID string) {
	f.engine.On("BeginAttempt", mock.Anything, mock.MatchedBy(func(req authtask.AttemptRequest) bool {
		return req.SessionID == "S" && req.ProviderID == "github"
	})).Return(&authtask.AttemptStatus{
		AttemptID:    attemptID,
		AppSessionID: "S",
		ProviderID:   "github",
		Status:       authtask.AuthStatusInProgress,
		RedirectURL:  "https://idp/auth",
	}, nil).Once()
}

func (f *fixture) startGithubLogin(t *testing.T, link bool) string {
	t.Helper()
	f.expectBegin("A1")

	status, err := f.login.StartFederatedLogin(context.Background(), f.session, authtask.FederatedLoginRequest{
		ProviderID:         "github",
		LinkWithActiveUser: link,
	})
	require.NoError(t, err)
	require.Equal(t, "https://idp/auth", status.RedirectURL)
	require.NotEmpty(t, status.TaskID)
	return status.TaskID
}

func (f *fixture) expectCompletion(link bool, records []authtask.AuthInfo, err error) *mock.Call {
	return f.authn.On("AuthenticateSession", mock.Anything, f.session.ID(), authtask.CompletionRequest{
		AttemptID:          "A1",
		ProviderID:         "github",
		Permissions:        []string{"P"},
		LinkWithActiveUser: link,
	}).Return(records, err)
}

func successEvent() authtask.AuthEvent {
	return authtask.AuthEvent{
		AppSessionID:  "S",
		AuthAttemptID: "A1",
		AuthStatus:    authtask.AuthStatusSuccess,
		Permissions:   []string{"P"},
	}
}
