package authtask

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// AuthStatus is the status of an authentication attempt.
type AuthStatus string

const (
	AuthStatusInProgress AuthStatus = "IN_PROGRESS"
	AuthStatusSuccess    AuthStatus = "SUCCESS"
	AuthStatusError      AuthStatus = "ERROR"
	AuthStatusExpired    AuthStatus = "EXPIRED"
)

// IsTerminal reports whether the attempt can no longer progress.
func (s AuthStatus) IsTerminal() bool {
	switch s {
	case AuthStatusSuccess, AuthStatusError, AuthStatusExpired:
		return true
	}
	return false
}

// AuthEvent is the terminal authentication event delivered over the bus.
// A nil Permissions means the field was absent or null; it is encoded as null
// so an empty list survives a round trip.
type AuthEvent struct {
	AppSessionID  string     `json:"appSessionId"`
	AuthAttemptID string     `json:"authAttemptId"`
	AuthStatus    AuthStatus `json:"authStatus"`
	Permissions   []string   `json:"permissions"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	ErrorCode     string     `json:"errorCode,omitempty"`
}

// Validate checks the event shape. SUCCESS requires permissions.
func (e AuthEvent) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.AppSessionID, validation.Required),
			validation.Field(&e.AuthAttemptID, validation.Required),
			validation.Field(&e.AuthStatus,
				validation.Required,
				validation.In(
					AuthStatusInProgress,
					AuthStatusSuccess,
					AuthStatusError,
					AuthStatusExpired,
				),
			),
		)
	}, "invalid auth event"); err != nil {
		return wrapError(ErrMalformedEvent, err, map[string]any{
			"auth_attempt_id": e.AuthAttemptID,
		})
	}

	if e.AuthStatus == AuthStatusSuccess && e.Permissions == nil {
		return newError(ErrMissingPermissions, map[string]any{
			"app_session_id":  e.AppSessionID,
			"auth_attempt_id": e.AuthAttemptID,
		})
	}
	return nil
}

// DecodeAuthEvent parses a bus payload.
func DecodeAuthEvent(payload []byte) (AuthEvent, error) {
	var evt AuthEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return AuthEvent{}, wrapError(ErrMalformedEvent, err, map[string]any{
			"reason": "invalid json",
		})
	}
	return evt, nil
}

// Encode serializes the event for the bus.
func (e AuthEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// AttemptRequest asks the engine to begin an attempt.
type AttemptRequest struct {
	SessionID   string
	ProviderID  string
	ConfigID    string
	Params      map[string]any
	ForceLogout bool
}

// AttemptStatus is the engine view of an attempt.
type AttemptStatus struct {
	AttemptID    string
	AppSessionID string
	ProviderID   string
	Status       AuthStatus
	Permissions  []string
	RedirectURL  string
	ErrorMessage string
	ErrorCode    string
}

// Event converts a status into the event published for it.
func (s AttemptStatus) Event() AuthEvent {
	return AuthEvent{
		AppSessionID:  s.AppSessionID,
		AuthAttemptID: s.AttemptID,
		AuthStatus:    s.Status,
		Permissions:   s.Permissions,
		ErrorMessage:  s.ErrorMessage,
		ErrorCode:     s.ErrorCode,
	}
}
