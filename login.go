package authtask

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// FederatedLoginRequest starts a federated login.
type FederatedLoginRequest struct {
	ProviderID         string         `json:"provider"`
	ConfigID           string         `json:"configId,omitempty"`
	LinkWithActiveUser bool           `json:"linkUser,omitempty"`
	ForceLogout        bool           `json:"forceSessionsLogout,omitempty"`
	Params             map[string]any `json:"params,omitempty"`
}

// Validate checks the request shape.
func (r FederatedLoginRequest) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.ProviderID, validation.Required, validation.Length(1, 128)),
			validation.Field(&r.ConfigID, validation.Length(0, 128)),
		)
	}, "invalid federated login request"); err != nil {
		return err
	}
	return nil
}

// FederatedLoginStatus is returned to the client that started a federated
// login: where to send the user and which task to watch.
type FederatedLoginStatus struct {
	RedirectURL string   `json:"redirectUrl"`
	TaskID      string   `json:"taskId"`
	Task        TaskInfo `json:"task"`
}

// LoginRequest is a login through a provider that may complete synchronously.
type LoginRequest = FederatedLoginRequest

// LoginStatus is the result of a synchronous login or status check. While
// IN_PROGRESS it carries the attempt id and redirect URL; on SUCCESS the
// authentication records.
type LoginStatus struct {
	Status      AuthStatus  `json:"status"`
	AttemptID   string      `json:"authId,omitempty"`
	RedirectURL string      `json:"redirectUrl,omitempty"`
	UserTokens  []UserToken `json:"userTokens,omitempty"`
	Records     []AuthInfo  `json:"-"`
}

// LoginService exposes the login operations used by the API layer.
type LoginService struct {
	engine        AuthEngine
	authenticator SessionAuthenticator
	providers     *ProviderRegistry
	cfg           Config
	activity      ActivitySink
	logger        Logger
	now           func() time.Time
}

// LoginServiceOption customizes a LoginService.
type LoginServiceOption func(*LoginService)

// WithLoginLogger sets the service logger.
func WithLoginLogger(logger Logger) LoginServiceOption {
	return func(s *LoginService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoginLoggerProvider resolves the service logger from provider.
func WithLoginLoggerProvider(provider LoggerProvider) LoginServiceOption {
	return func(s *LoginService) {
		_, s.logger = ResolveLogger("authtask.login", provider, s.logger)
	}
}

// WithLoginActivitySink records login activity.
func WithLoginActivitySink(sink ActivitySink) LoginServiceOption {
	return func(s *LoginService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithLoginClock injects the clock used for activity timestamps.
func WithLoginClock(clock func() time.Time) LoginServiceOption {
	return func(s *LoginService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewLoginService wires a LoginService.
func NewLoginService(engine AuthEngine, authenticator SessionAuthenticator, providers *ProviderRegistry, cfg Config, opts ...LoginServiceOption) *LoginService {
	if providers == nil {
		providers = NewProviderRegistry()
	}
	s := &LoginService{
		engine:        engine,
		authenticator: authenticator,
		providers:     providers,
		cfg:           cfg,
		activity:      noopActivitySink{},
		logger:        NoopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartFederatedLogin begins an attempt with a federated provider and parks a
// task waiting for its terminal event. The session writer lock is held until
// the task exists so an early event cannot miss it.
func (s *LoginService) StartFederatedLogin(ctx context.Context, session *Session, req FederatedLoginRequest) (*FederatedLoginStatus, error) {
	if session == nil {
		return nil, newError(ErrSessionNotFound, nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	provider, err := s.providers.resolveForAPI(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Federated {
		return nil, newError(ErrProviderNotFederated, map[string]any{"provider": provider.ID})
	}

	var out *FederatedLoginStatus
	err = session.Exclusive(func() error {
		status, err := s.begin(ctx, session, req)
		if err != nil {
			return err
		}

		if status.Status != AuthStatusInProgress {
			return newError(ErrProtocol, map[string]any{
				"provider":    provider.ID,
				"auth_status": status.Status,
				"reason":      "unexpected auth status",
			})
		}
		if status.RedirectURL == "" {
			return newError(ErrProtocol, map[string]any{
				"provider": provider.ID,
				"reason":   "missing redirect url",
			})
		}

		tasks := session.Tasks()
		task := tasks.CreateTask(provider.ID + " authentication")
		job := NewFederatedAuthJob(status.AttemptID, provider.ID, s.linkPolicy(req.LinkWithActiveUser))
		if err := tasks.AttachJob(task, job); err != nil {
			tasks.Remove(task.ID())
			return err
		}
		if err := tasks.Start(task); err != nil {
			tasks.Remove(task.ID())
			return err
		}

		s.logger.Info("federated login started",
			"session_id", session.ID(),
			"provider", provider.ID,
			"task_id", task.ID(),
			"auth_attempt_id", status.AttemptID,
		)
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLoginStarted,
			SessionID: session.ID(),
			TaskID:    task.ID(),
			AttemptID: status.AttemptID,
			Status:    string(status.Status),
			Metadata:  map[string]any{"provider": provider.ID},
		}, s.now)

		out = &FederatedLoginStatus{
			RedirectURL: status.RedirectURL,
			TaskID:      task.ID(),
			Task:        task.Info(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PollFederatedLoginResult returns the records of a finished federated login
// task, or the error it finished with.
func (s *LoginService) PollFederatedLoginResult(ctx context.Context, session *Session, taskID string) ([]AuthInfo, error) {
	if session == nil {
		return nil, newError(ErrSessionNotFound, nil)
	}

	task, ok := session.Tasks().Get(taskID)
	if !ok {
		return nil, newError(ErrTaskNotFound, map[string]any{"task_id": taskID})
	}
	if task.Running() {
		return nil, newError(ErrStillRunning, map[string]any{"task_id": taskID})
	}

	job, ok := task.Job().(AuthAttemptJob)
	if !ok || job.Kind() != JobKindFederatedAuth {
		return nil, newError(ErrWrongTaskType, map[string]any{"task_id": taskID})
	}

	if _, err := task.Result(); err != nil {
		return nil, err
	}

	records := job.AuthResult()
	if records == nil {
		records = []AuthInfo{}
	}
	return records, nil
}

// SyncLoginStatus checks an attempt directly with the engine and completes
// the session on SUCCESS. No task is involved.
func (s *LoginService) SyncLoginStatus(ctx context.Context, session *Session, attemptID string, linkWithActiveUser bool) (*LoginStatus, error) {
	if session == nil {
		return nil, newError(ErrSessionNotFound, nil)
	}
	if s.engine == nil {
		return nil, newError(ErrProtocol, map[string]any{"reason": "no authentication engine configured"})
	}

	status, err := s.engine.QueryAttempt(ctx, attemptID)
	if err != nil {
		return nil, wrapEngineError(err, "failed to query auth attempt")
	}
	return s.resolve(ctx, session, status, s.linkPolicy(linkWithActiveUser))
}

// Login begins an attempt and, for providers that answer immediately,
// completes it in the same call. Federated providers answer IN_PROGRESS with
// the attempt id to check later through SyncLoginStatus.
func (s *LoginService) Login(ctx context.Context, session *Session, req LoginRequest) (*LoginStatus, error) {
	if session == nil {
		return nil, newError(ErrSessionNotFound, nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.providers.resolveForAPI(req.ProviderID); err != nil {
		return nil, err
	}

	status, err := s.begin(ctx, session, req)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, session, status, s.linkPolicy(req.LinkWithActiveUser))
}

// CancelTask cancels a task owned by session.
func (s *LoginService) CancelTask(ctx context.Context, session *Session, taskID string) error {
	if session == nil {
		return newError(ErrSessionNotFound, nil)
	}
	return session.CancelTask(ctx, taskID)
}

// TaskStatus returns a snapshot of a task. With removeOnFinish a terminal
// task is dropped from the session after being read.
func (s *LoginService) TaskStatus(session *Session, taskID string, removeOnFinish bool) (*TaskInfo, error) {
	if session == nil {
		return nil, newError(ErrSessionNotFound, nil)
	}

	task, ok := session.Tasks().Get(taskID)
	if !ok {
		return nil, newError(ErrTaskNotFound, map[string]any{"task_id": taskID})
	}

	info := task.Info()
	if removeOnFinish && !info.Running {
		session.Tasks().Remove(taskID)
	}
	return &info, nil
}

func (s *LoginService) begin(ctx context.Context, session *Session, req FederatedLoginRequest) (*AttemptStatus, error) {
	if s.engine == nil {
		return nil, newError(ErrProtocol, map[string]any{"reason": "no authentication engine configured"})
	}

	status, err := s.engine.BeginAttempt(ctx, AttemptRequest{
		SessionID:   session.ID(),
		ProviderID:  req.ProviderID,
		ConfigID:    req.ConfigID,
		Params:      req.Params,
		ForceLogout: req.ForceLogout,
	})
	if err != nil {
		s.logger.Error("begin auth attempt failed", "error", err, "provider", req.ProviderID)
		return nil, wrapEngineError(err, "user authentication failed")
	}
	if status == nil {
		return nil, newError(ErrProtocol, map[string]any{"reason": "empty attempt status"})
	}
	return status, nil
}

func (s *LoginService) resolve(ctx context.Context, session *Session, status *AttemptStatus, link bool) (*LoginStatus, error) {
	switch status.Status {
	case AuthStatusInProgress:
		return &LoginStatus{
			Status:      status.Status,
			AttemptID:   status.AttemptID,
			RedirectURL: status.RedirectURL,
		}, nil

	case AuthStatusSuccess:
		if s.authenticator == nil {
			return nil, newError(ErrProtocol, map[string]any{"reason": "no session authenticator configured"})
		}
		records, err := s.authenticator.AuthenticateSession(ctx, session, CompletionRequest{
			AttemptID:          status.AttemptID,
			ProviderID:         status.ProviderID,
			Permissions:        status.Permissions,
			LinkWithActiveUser: link,
		})
		if err != nil {
			return nil, wrapEngineError(err, "session authentication failed")
		}
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventSyncLoginComplete,
			SessionID: session.ID(),
			AttemptID: status.AttemptID,
			Status:    string(status.Status),
		}, s.now)
		return &LoginStatus{
			Status:     status.Status,
			AttemptID:  status.AttemptID,
			UserTokens: UserTokens(records),
			Records:    records,
		}, nil

	case AuthStatusError:
		return nil, authFailedError(status.ErrorMessage, status.ErrorCode, map[string]any{
			"auth_attempt_id": status.AttemptID,
		})

	case AuthStatusExpired:
		return nil, newError(ErrAttemptExpired, map[string]any{"auth_attempt_id": status.AttemptID})

	default:
		return nil, newError(ErrProtocol, map[string]any{
			"auth_attempt_id": status.AttemptID,
			"auth_status":     status.Status,
			"reason":          "unknown auth status",
		})
	}
}

func (s *LoginService) linkPolicy(requested bool) bool {
	return requested && s.cfg.LinkExternalCredentials
}

func wrapEngineError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, message).WithCode(goerrors.CodeUnauthorized)
}
