package authtask

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Resolution reports what HandleEvent did with an event.
type Resolution string

const (
	ResolutionApplied       Resolution = "applied"
	ResolutionNotOwned      Resolution = "not_owned"
	ResolutionNoRelatedTask Resolution = "no_related_task"
	ResolutionDuplicate     Resolution = "duplicate"
	ResolutionRejected      Resolution = "rejected"
)

// Correlator applies terminal authentication events to the task waiting for
// them. Events for sessions held by other nodes and repeated deliveries are
// absorbed without side effects.
type Correlator struct {
	sessions          *SessionRegistry
	authenticator     SessionAuthenticator
	activity          ActivitySink
	logger            Logger
	now               func() time.Time
	configurationMode bool
}

// CorrelatorOption customizes a Correlator.
type CorrelatorOption func(*Correlator)

// WithCorrelatorLogger sets the correlator logger.
func WithCorrelatorLogger(logger Logger) CorrelatorOption {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCorrelatorLoggerProvider resolves the correlator logger from provider.
func WithCorrelatorLoggerProvider(provider LoggerProvider) CorrelatorOption {
	return func(c *Correlator) {
		_, c.logger = ResolveLogger("authtask.correlator", provider, c.logger)
	}
}

// WithCorrelatorActivitySink records rejected and unmatched events.
func WithCorrelatorActivitySink(sink ActivitySink) CorrelatorOption {
	return func(c *Correlator) {
		c.activity = normalizeActivitySink(sink)
	}
}

// WithCorrelatorClock injects the clock used for activity timestamps.
func WithCorrelatorClock(clock func() time.Time) CorrelatorOption {
	return func(c *Correlator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCorrelatorConfig applies cfg. In configuration mode credentials are
// never linked with the active user.
func WithCorrelatorConfig(cfg Config) CorrelatorOption {
	return func(c *Correlator) {
		c.configurationMode = cfg.ConfigurationMode
	}
}

// NewCorrelator returns a correlator resolving sessions through sessions and
// completing successful attempts with authenticator.
func NewCorrelator(sessions *SessionRegistry, authenticator SessionAuthenticator, opts ...CorrelatorOption) *Correlator {
	c := &Correlator{
		sessions:      sessions,
		authenticator: authenticator,
		activity:      noopActivitySink{},
		logger:        NoopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// HandleEvent applies evt. Only malformed events produce an error; a session
// that is not resident here yields ResolutionNotOwned and a nil error.
func (c *Correlator) HandleEvent(ctx context.Context, evt AuthEvent) (Resolution, error) {
	if err := evt.Validate(); err != nil {
		c.logger.Warn("rejected auth event",
			"error", err,
			"app_session_id", evt.AppSessionID,
			"auth_attempt_id", evt.AuthAttemptID,
			"auth_status", evt.AuthStatus,
		)
		c.record(ctx, ActivityEventEventRejected, evt, "", map[string]any{"error": ErrorInfoFrom(err).Message})
		return ResolutionRejected, err
	}

	session, ok := c.sessions.Lookup(evt.AppSessionID)
	if !ok {
		c.logger.Debug("auth event for session not resident on this node",
			"app_session_id", evt.AppSessionID,
			"auth_attempt_id", evt.AuthAttemptID,
		)
		return ResolutionNotOwned, nil
	}

	var resolution Resolution
	err := session.Exclusive(func() error {
		resolution = c.apply(ctx, session, evt)
		return nil
	})
	return resolution, err
}

func (c *Correlator) apply(ctx context.Context, session *Session, evt AuthEvent) Resolution {
	task, job := c.findTask(session, evt.AuthAttemptID)
	if task == nil {
		c.logger.Warn("no related authentication task",
			"app_session_id", session.ID(),
			"auth_attempt_id", evt.AuthAttemptID,
		)
		session.AddWarning(fmt.Sprintf(
			"No related authentication task was found in session %s, probably authentication was canceled",
			session.ID(),
		))
		c.record(ctx, ActivityEventEventUnmatched, evt, "", nil)
		return ResolutionNoRelatedTask
	}

	if !task.Running() {
		c.logger.Debug("auth event for terminal task ignored",
			"task_id", task.ID(),
			"status", task.Status(),
			"auth_attempt_id", evt.AuthAttemptID,
		)
		c.record(ctx, ActivityEventEventDuplicate, evt, task.ID(), nil)
		return ResolutionDuplicate
	}

	outcome := c.outcome(ctx, session, job, evt)
	if !session.Tasks().Finish(task, outcome) {
		return ResolutionDuplicate
	}
	return ResolutionApplied
}

// findTask returns the federated auth task waiting for attemptID, running
// tasks first. Terminal matches are returned so repeated deliveries can be
// told apart from unknown attempts.
func (c *Correlator) findTask(session *Session, attemptID string) (*AsyncTask, AuthAttemptJob) {
	var (
		matches []*AsyncTask
		jobs    []AuthAttemptJob
	)
	for _, task := range session.Tasks().FindTasksByJobType(JobKindFederatedAuth, IncludeTerminal()) {
		job, ok := task.Job().(AuthAttemptJob)
		if !ok || job.AttemptID() != attemptID {
			continue
		}
		matches = append(matches, task)
		jobs = append(jobs, job)
	}

	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		c.logger.Error("multiple tasks for one auth attempt",
			"app_session_id", session.ID(),
			"auth_attempt_id", attemptID,
			"count", len(matches),
		)
	}

	for i, task := range matches {
		if task.Running() {
			return task, jobs[i]
		}
	}
	return matches[0], jobs[0]
}

func (c *Correlator) outcome(ctx context.Context, session *Session, job AuthAttemptJob, evt AuthEvent) Outcome {
	meta := map[string]any{
		"auth_attempt_id": evt.AuthAttemptID,
		"auth_status":     evt.AuthStatus,
	}

	switch evt.AuthStatus {
	case AuthStatusSuccess:
		records, err := c.complete(ctx, session, job, evt)
		if err != nil {
			c.logger.Error("session authentication failed",
				"error", err,
				"app_session_id", session.ID(),
				"auth_attempt_id", evt.AuthAttemptID,
			)
			session.AddError(ErrorInfoFrom(err).Message)
			return Failed(err)
		}
		job.SetAuthResult(records)
		return Succeeded(records)

	case AuthStatusError:
		return Failed(authFailedError(evt.ErrorMessage, evt.ErrorCode, meta))

	case AuthStatusExpired:
		return Failed(newError(ErrAttemptExpired, meta))

	default:
		c.logger.Error("invalid auth status for terminal event",
			"auth_status", evt.AuthStatus,
			"app_session_id", session.ID(),
			"auth_attempt_id", evt.AuthAttemptID,
		)
		err := newError(ErrProtocol, meta)
		session.AddError(fmt.Sprintf("Invalid auth status: %s", evt.AuthStatus))
		return Failed(err)
	}
}

func (c *Correlator) complete(ctx context.Context, session *Session, job AuthAttemptJob, evt AuthEvent) ([]AuthInfo, error) {
	if c.authenticator == nil {
		return nil, newError(ErrProtocol, map[string]any{"reason": "no session authenticator configured"})
	}

	records, err := c.authenticator.AuthenticateSession(ctx, session, CompletionRequest{
		AttemptID:          evt.AuthAttemptID,
		ProviderID:         job.ProviderID(),
		Permissions:        evt.Permissions,
		LinkWithActiveUser: job.LinkWithActiveUser() && !c.configurationMode,
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session authentication failed")
	}
	if records == nil {
		records = []AuthInfo{}
	}
	return records, nil
}

func (c *Correlator) record(ctx context.Context, eventType ActivityEventType, evt AuthEvent, taskID string, meta map[string]any) {
	recordActivity(ctx, c.activity, c.logger, ActivityEvent{
		EventType: eventType,
		SessionID: evt.AppSessionID,
		TaskID:    taskID,
		AttemptID: evt.AuthAttemptID,
		Status:    string(evt.AuthStatus),
		Metadata:  meta,
	}, c.now)
}
