package authtask

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// AuthEngine starts and inspects authentication attempts. Implementations
// publish the terminal AuthEvent for federated attempts out of band.
type AuthEngine interface {
	BeginAttempt(ctx context.Context, req AttemptRequest) (*AttemptStatus, error)
	QueryAttempt(ctx context.Context, attemptID string) (*AttemptStatus, error)
}

// SessionAuthenticator applies the credentials of a successful attempt to a
// session and returns one record per authenticated provider.
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, session *Session, req CompletionRequest) ([]AuthInfo, error)
}

// SessionAuthenticatorFunc adapts a function to SessionAuthenticator.
type SessionAuthenticatorFunc func(ctx context.Context, session *Session, req CompletionRequest) ([]AuthInfo, error)

// AuthenticateSession implements SessionAuthenticator.
func (f SessionAuthenticatorFunc) AuthenticateSession(ctx context.Context, session *Session, req CompletionRequest) ([]AuthInfo, error) {
	return f(ctx, session, req)
}

// CompletionRequest carries what the completion procedure needs from the
// attempt that finished.
type CompletionRequest struct {
	AttemptID          string
	ProviderID         string
	Permissions        []string
	LinkWithActiveUser bool
}

// EventBus is the publish/subscribe transport between nodes. Delivery is
// at-least-once and unordered. Subscribe blocks until ctx is done.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte) error) error
}

type staticLoggerProvider struct {
	logger Logger
}

func (p staticLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

// ResolveLogger picks the logger for name, preferring the provider, then the
// fallback logger, then a default glog logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return provider, resolved
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticLoggerProvider{logger: logger}, logger
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithName("authtask"),
		glog.WithLoggerTypePretty(),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	).GetLogger("authtask")
}

type noopLogger struct{}

func (*noopLogger) Trace(string, ...any)                 {}
func (*noopLogger) Debug(string, ...any)                 {}
func (*noopLogger) Info(string, ...any)                  {}
func (*noopLogger) Warn(string, ...any)                  {}
func (*noopLogger) Error(string, ...any)                 {}
func (*noopLogger) Fatal(string, ...any)                 {}
func (l *noopLogger) WithContext(context.Context) Logger { return l }

// NoopLogger discards everything.
func NoopLogger() Logger {
	return &noopLogger{}
}
