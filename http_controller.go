package authtask

import (
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultSessionContextKey is the router locals key holding the session.
const DefaultSessionContextKey = "authtask_session"

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// SessionContextKey is the router locals key holding either a *Session or
	// a session id (default: "authtask_session")
	SessionContextKey string

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController exposes the login and task operations over HTTP.
type HTTPController struct {
	login    *LoginService
	sessions *SessionRegistry
	config   HTTPConfig
	logger   Logger
}

// NewHTTPController creates a controller. sessions resolves session ids
// found in request locals.
func NewHTTPController(login *LoginService, sessions *SessionRegistry, cfg HTTPConfig) *HTTPController {
	if cfg.SessionContextKey == "" {
		cfg.SessionContextKey = DefaultSessionContextKey
	}
	return &HTTPController{
		login:    login,
		sessions: sessions,
		config:   cfg,
		logger:   NoopLogger(),
	}
}

// WithLogger sets the controller logger.
func (c *HTTPController) WithLogger(logger Logger) *HTTPController {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithLoggerProvider resolves the controller logger from provider.
func (c *HTTPController) WithLoggerProvider(provider LoggerProvider) *HTTPController {
	_, c.logger = ResolveLogger("authtask.http", provider, c.logger)
	return c
}

// RegisterRoutes registers the controller routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/federated/:provider", c.StartFederatedLogin)
	group.Post("/attempts/:attempt/status", c.SyncLoginStatus)
	group.Get("/tasks/:task/result", c.FederatedLoginResult)
	group.Get("/tasks/:task", c.TaskStatus)
	group.Delete("/tasks/:task", c.CancelTask)
	group.Get("/events", c.Events)
}

// StartFederatedLogin begins a federated login for the request session.
func (c *HTTPController) StartFederatedLogin(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	status, err := c.login.StartFederatedLogin(ctx.Context(), session, FederatedLoginRequest{
		ProviderID:         ctx.Param("provider"),
		ConfigID:           ctx.Query("config_id"),
		LinkWithActiveUser: queryBool(ctx, "link_user"),
		ForceLogout:        queryBool(ctx, "force_logout"),
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, status)
}

// FederatedLoginResult returns the user tokens of a finished login task.
func (c *HTTPController) FederatedLoginResult(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	records, err := c.login.PollFederatedLoginResult(ctx.Context(), session, ctx.Param("task"))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"userTokens": UserTokens(records),
	})
}

// TaskStatus returns a task snapshot. remove=true drops a finished task.
func (c *HTTPController) TaskStatus(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	info, err := c.login.TaskStatus(session, ctx.Param("task"), queryBool(ctx, "remove"))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, info)
}

// CancelTask cancels a task and returns its final snapshot.
func (c *HTTPController) CancelTask(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	taskID := ctx.Param("task")
	if err := c.login.CancelTask(ctx.Context(), session, taskID); err != nil {
		return c.handleError(ctx, err)
	}

	info, err := c.login.TaskStatus(session, taskID, false)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, info)
}

// SyncLoginStatus checks an attempt with the engine.
func (c *HTTPController) SyncLoginStatus(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	status, err := c.login.SyncLoginStatus(ctx.Context(), session, ctx.Param("attempt"), queryBool(ctx, "link_user"))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, status)
}

// Events drains the session events and returns them with session messages.
func (c *HTTPController) Events(ctx router.Context) error {
	session, err := c.session(ctx)
	if err != nil {
		return c.handleError(ctx, err)
	}

	events := session.Events().Drain()
	if events == nil {
		events = []SessionEvent{}
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"events":   events,
		"messages": session.Messages(),
	})
}

func (c *HTTPController) session(ctx router.Context) (*Session, error) {
	switch v := ctx.Locals(c.config.SessionContextKey).(type) {
	case *Session:
		if v != nil {
			return v, nil
		}
	case string:
		if c.sessions != nil {
			if s, ok := c.sessions.Lookup(v); ok {
				return s, nil
			}
		}
	}
	return nil, newError(ErrSessionNotFound, map[string]any{"context_key": c.config.SessionContextKey})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = goerrors.CodeInternal
	}

	c.logger.Info("authtask request failed",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return ctx.JSON(status, map[string]any{
		"error": ErrorInfoFrom(richErr),
	})
}

func queryBool(ctx router.Context, key string) bool {
	v, err := strconv.ParseBool(ctx.Query(key))
	return err == nil && v
}
