package authtask

import (
	"sync"
	"time"
)

const (
	SessionEventAuthResult SessionEventType = "auth_result"
	SessionEventTaskStatus SessionEventType = "task_status"
)

// SessionEventType names the kind of outward notification.
type SessionEventType string

// AuthInfo is one authentication record produced by the completion procedure.
type AuthInfo struct {
	ProviderID  string
	ConfigID    string
	DisplayName string
	UserID      string
	LoginTime   time.Time
	Message     string
}

// Token returns the client facing view of the record.
func (a AuthInfo) Token() UserToken {
	return UserToken{
		Provider:    a.ProviderID,
		ConfigID:    a.ConfigID,
		DisplayName: a.DisplayName,
		LoginTime:   a.LoginTime,
		UserID:      a.UserID,
		Message:     a.Message,
	}
}

// UserToken is an authentication record as sent to clients.
type UserToken struct {
	Provider    string    `json:"provider"`
	ConfigID    string    `json:"configId,omitempty"`
	DisplayName string    `json:"displayName"`
	LoginTime   time.Time `json:"loginTime"`
	UserID      string    `json:"userId"`
	Message     string    `json:"message,omitempty"`
}

// UserTokens converts records to tokens.
func UserTokens(records []AuthInfo) []UserToken {
	if records == nil {
		return nil
	}
	out := make([]UserToken, 0, len(records))
	for _, record := range records {
		out = append(out, record.Token())
	}
	return out
}

// SessionEvent is queued for push delivery to the session client.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	TaskID     string           `json:"taskId,omitempty"`
	UserTokens []UserToken      `json:"userTokens,omitempty"`
	Error      *ErrorInfo       `json:"error,omitempty"`
	Task       *TaskInfo        `json:"task,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// TaskStatusEvent is the event used for tasks whose job does not describe
// its own outcome.
func TaskStatusEvent(info TaskInfo) SessionEvent {
	return SessionEvent{
		Type:   SessionEventTaskStatus,
		TaskID: info.ID,
		Error:  info.Error,
		Task:   &info,
	}
}

// EventSink is a bounded, best effort queue of session events. When full the
// oldest event is dropped.
type EventSink struct {
	mu       sync.Mutex
	events   []SessionEvent
	capacity int
	dropped  uint64
	ready    chan struct{}
}

// NewEventSink returns a sink holding up to capacity events.
func NewEventSink(capacity int) *EventSink {
	if capacity <= 0 {
		capacity = DefaultEventSinkCapacity
	}
	return &EventSink{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends evt and wakes a waiting consumer.
func (s *EventSink) Push(evt SessionEvent) {
	s.mu.Lock()
	if len(s.events) >= s.capacity {
		s.events = s.events[1:]
		s.dropped++
	}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Drain returns and clears all queued events.
func (s *EventSink) Drain() []SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func (s *EventSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Dropped counts events lost to overflow.
func (s *EventSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Ready signals that events were pushed since the last receive.
func (s *EventSink) Ready() <-chan struct{} {
	return s.ready
}
