package authtask

import (
	"context"
	"sort"
	"sync"
	"time"
)

const minSweepInterval = time.Second

// SessionRegistry maps session ids to the sessions resident on this node.
// A lookup miss means the session lives elsewhere and is not an error.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	options  []SessionOption
	logger   Logger
}

// SessionRegistryOption customizes a SessionRegistry.
type SessionRegistryOption func(*SessionRegistry)

// WithSessionDefaults applies opts to every session created by GetOrCreate.
func WithSessionDefaults(opts ...SessionOption) SessionRegistryOption {
	return func(r *SessionRegistry) {
		r.options = append(r.options, opts...)
	}
}

// WithSessionRegistryLogger sets the registry logger.
func WithSessionRegistryLogger(logger Logger) SessionRegistryOption {
	return func(r *SessionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry(opts ...SessionRegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions: map[string]*Session{},
		logger:   NoopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lookup returns the session with id when it is resident on this node.
func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Register adds session, replacing any session with the same id.
func (r *SessionRegistry) Register(session *Session) {
	if session == nil {
		return
	}
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()
}

// GetOrCreate returns the session with id, creating it when missing.
func (r *SessionRegistry) GetOrCreate(id string) (*Session, bool) {
	r.mu.RLock()
	if s, ok := r.sessions[id]; ok {
		r.mu.RUnlock()
		return s, false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := NewSession(id, r.options...)
	r.sessions[id] = s
	r.logger.Debug("session registered", "session_id", id)
	return s, true
}

// Remove forgets the session with id.
func (r *SessionRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.logger.Debug("session removed", "session_id", id)
	return true
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the resident sessions ordered by id.
func (r *SessionRegistry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Sweep evicts terminal tasks older than retention from every session and
// returns the number of tasks removed.
func (r *SessionRegistry) Sweep(retention time.Duration) int {
	removed := 0
	for _, s := range r.Sessions() {
		removed += s.Tasks().Sweep(retention)
	}
	return removed
}

// StartSweeper runs RunSweeper in a new goroutine.
func (r *SessionRegistry) StartSweeper(ctx context.Context, interval, retention time.Duration) {
	go r.RunSweeper(ctx, interval, retention)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(retention); n > 0 {
				r.logger.Debug("task sweep", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
