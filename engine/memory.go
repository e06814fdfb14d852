// Package engine contains an in-memory AuthEngine for development and tests.
package engine

import (
	"context"
	"net/url"
	"sync"
	"time"

	authtask "github.com/goliatone/go-authtask"
	"github.com/google/uuid"
)

// DefaultAttemptTTL bounds how long an attempt may stay IN_PROGRESS.
const DefaultAttemptTTL = 10 * time.Minute

// Publisher delivers terminal auth events, usually onto an EventBus.
type Publisher func(ctx context.Context, evt authtask.AuthEvent) error

// BusPublisher publishes events on topic of bus.
func BusPublisher(bus authtask.EventBus, topic string) Publisher {
	return func(ctx context.Context, evt authtask.AuthEvent) error {
		return authtask.PublishAuthEvent(ctx, bus, topic, evt)
	}
}

// ProviderConfig configures how the engine answers for a provider.
type ProviderConfig struct {
	ID string
	// Federated providers answer IN_PROGRESS with a redirect URL and finish
	// through Complete. Others succeed immediately.
	Federated   bool
	RedirectURL string
	Permissions []string
}

// Completion is the terminal result reported for a federated attempt.
type Completion struct {
	Status       authtask.AuthStatus
	Permissions  []string
	ErrorMessage string
	ErrorCode    string
}

type attempt struct {
	status    authtask.AttemptStatus
	createdAt time.Time
	consumed  bool
}

// MemoryEngine keeps attempts in memory.
type MemoryEngine struct {
	mu        sync.Mutex
	attempts  map[string]*attempt
	providers map[string]ProviderConfig
	publish   Publisher
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	logger    authtask.Logger
}

// Option customizes a MemoryEngine.
type Option func(*MemoryEngine)

func WithProvider(cfg ProviderConfig) Option {
	return func(e *MemoryEngine) {
		if cfg.ID != "" {
			e.providers[cfg.ID] = cfg
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *MemoryEngine) {
		e.publish = p
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(e *MemoryEngine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *MemoryEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(e *MemoryEngine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

func WithLogger(logger authtask.Logger) Option {
	return func(e *MemoryEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewMemoryEngine returns an engine with no providers.
func NewMemoryEngine(opts ...Option) *MemoryEngine {
	e := &MemoryEngine{
		attempts:  map[string]*attempt{},
		providers: map[string]ProviderConfig{},
		ttl:       DefaultAttemptTTL,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    authtask.NoopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// BeginAttempt implements authtask.AuthEngine.
func (e *MemoryEngine) BeginAttempt(ctx context.Context, req authtask.AttemptRequest) (*authtask.AttemptStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	provider, ok := e.providers[req.ProviderID]
	if !ok {
		return nil, authtask.ErrProviderNotFound.Clone().WithMetadata(map[string]any{"provider": req.ProviderID})
	}

	a := &attempt{
		status: authtask.AttemptStatus{
			AttemptID:    e.newID(),
			AppSessionID: req.SessionID,
			ProviderID:   provider.ID,
		},
		createdAt: e.now(),
	}

	if provider.Federated {
		a.status.Status = authtask.AuthStatusInProgress
		a.status.RedirectURL = redirectURL(provider.RedirectURL, a.status.AttemptID)
	} else {
		a.status.Status = authtask.AuthStatusSuccess
		a.status.Permissions = append([]string{}, provider.Permissions...)
		a.consumed = true
	}

	e.attempts[a.status.AttemptID] = a
	e.logger.Debug("auth attempt started",
		"auth_attempt_id", a.status.AttemptID,
		"provider", provider.ID,
		"status", a.status.Status,
	)

	out := a.status
	return &out, nil
}

// QueryAttempt implements authtask.AuthEngine. A successful attempt is
// reported once; afterwards it reads as EXPIRED. An attempt that expires
// while being queried still publishes its EXPIRED event.
func (e *MemoryEngine) QueryAttempt(ctx context.Context, attemptID string) (*authtask.AttemptStatus, error) {
	e.mu.Lock()
	a, ok := e.attempts[attemptID]
	if !ok {
		e.mu.Unlock()
		return nil, authtask.ErrAttemptNotFound.Clone().WithMetadata(map[string]any{"auth_attempt_id": attemptID})
	}

	expired := e.expireLocked(a)

	out := a.status
	if out.Status == authtask.AuthStatusSuccess {
		if a.consumed {
			out.Status = authtask.AuthStatusExpired
			out.Permissions = nil
		} else {
			a.consumed = true
		}
	}
	e.mu.Unlock()

	// the caller already sees EXPIRED; a failed publish is only logged.
	e.emitAll(ctx, expired)
	return &out, nil
}

// Complete records the terminal status of a federated attempt and publishes
// the matching event. The completion is validated before the attempt
// changes, and the attempt goes back to IN_PROGRESS when publishing fails.
func (e *MemoryEngine) Complete(ctx context.Context, attemptID string, c Completion) error {
	e.mu.Lock()
	a, ok := e.attempts[attemptID]
	if !ok {
		e.mu.Unlock()
		return authtask.ErrAttemptNotFound.Clone().WithMetadata(map[string]any{"auth_attempt_id": attemptID})
	}
	expired := e.expireLocked(a)
	if a.status.Status != authtask.AuthStatusInProgress {
		status := a.status.Status
		e.mu.Unlock()
		e.emitAll(ctx, expired)
		return authtask.ErrProtocol.Clone().WithMetadata(map[string]any{
			"auth_attempt_id": attemptID,
			"auth_status":     status,
			"reason":          "attempt already terminal",
		})
	}

	next := a.status
	next.Status = c.Status
	next.RedirectURL = ""
	next.Permissions = c.Permissions
	next.ErrorMessage = c.ErrorMessage
	next.ErrorCode = c.ErrorCode

	evt := next.Event()
	if err := validateCompletion(evt); err != nil {
		e.mu.Unlock()
		return err
	}

	previous := a.status
	a.status = next
	a.consumed = c.Status == authtask.AuthStatusSuccess
	e.mu.Unlock()

	if err := e.emit(ctx, evt); err != nil {
		e.mu.Lock()
		if a.status.Status == next.Status {
			a.status = previous
			a.consumed = false
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

// ExpireStale moves attempts past their TTL to EXPIRED, publishes an event
// for each and returns how many expired.
func (e *MemoryEngine) ExpireStale(ctx context.Context) (int, error) {
	e.mu.Lock()
	var events []authtask.AuthEvent
	for _, a := range e.attempts {
		events = append(events, e.expireLocked(a)...)
	}
	e.mu.Unlock()

	for _, evt := range events {
		if err := e.emit(ctx, evt); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

// expireLocked returns the EXPIRED event to publish when a moves past its
// TTL. Callers emit it after releasing the lock.
func (e *MemoryEngine) expireLocked(a *attempt) []authtask.AuthEvent {
	if a.status.Status != authtask.AuthStatusInProgress {
		return nil
	}
	if e.now().Sub(a.createdAt) < e.ttl {
		return nil
	}
	a.status.Status = authtask.AuthStatusExpired
	a.status.RedirectURL = ""
	return []authtask.AuthEvent{a.status.Event()}
}

func validateCompletion(evt authtask.AuthEvent) error {
	if !evt.AuthStatus.IsTerminal() {
		return authtask.ErrProtocol.Clone().WithMetadata(map[string]any{
			"auth_attempt_id": evt.AuthAttemptID,
			"auth_status":     evt.AuthStatus,
			"reason":          "completion status must be terminal",
		})
	}
	return evt.Validate()
}

func (e *MemoryEngine) emitAll(ctx context.Context, events []authtask.AuthEvent) {
	for _, evt := range events {
		_ = e.emit(ctx, evt)
	}
}

func (e *MemoryEngine) emit(ctx context.Context, evt authtask.AuthEvent) error {
	if e.publish == nil {
		return nil
	}
	if err := e.publish(ctx, evt); err != nil {
		e.logger.Error("publish auth event failed", "error", err, "auth_attempt_id", evt.AuthAttemptID)
		return err
	}
	return nil
}

func redirectURL(base, attemptID string) string {
	if base == "" {
		base = "/auth/federated"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("attempt", attemptID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
