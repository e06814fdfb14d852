package authtask

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeProviderRequired     = "authtask_provider_required"
	TextCodeProviderNotFound     = "authtask_provider_not_found"
	TextCodeProviderNotFederated = "authtask_provider_not_federated"
	TextCodeProviderTrusted      = "authtask_provider_trusted"
	TextCodeMalformedEvent       = "authtask_malformed_event"
	TextCodeMissingPermissions   = "authtask_missing_permissions"
	TextCodeTaskNotFound         = "authtask_task_not_found"
	TextCodeSessionNotFound      = "authtask_session_not_found"
	TextCodeStillRunning         = "authtask_task_still_running"
	TextCodeWrongTaskType        = "authtask_wrong_task_type"
	TextCodeJobAlreadyAttached   = "authtask_job_already_attached"
	TextCodeNoJob                = "authtask_task_without_job"
	TextCodeInvalidTransition    = "authtask_invalid_transition"
	TextCodeAlreadyTerminal      = "authtask_already_terminal"
	TextCodeUnsupported          = "authtask_unsupported_operation"
	TextCodeProtocol             = "authtask_protocol_error"
	TextCodeCanceledByUser       = "authtask_canceled_by_user"
	TextCodeAttemptExpired       = "authtask_attempt_expired"
	TextCodeAuthFailed           = "authtask_auth_failed"
	TextCodeAttemptNotFound      = "authtask_attempt_not_found"
)

// ErrProviderRequired is returned when a login request names no provider.
var ErrProviderRequired = goerrors.New("authentication provider is required", goerrors.CategoryValidation).
	WithTextCode(TextCodeProviderRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrProviderNotFound is returned when the provider is not registered.
var ErrProviderNotFound = goerrors.New("authentication provider not found", goerrors.CategoryValidation).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(goerrors.CodeBadRequest)

// ErrProviderNotFederated is returned when a federated login targets a
// provider without federation support.
var ErrProviderNotFederated = goerrors.New("authentication provider does not support federated login", goerrors.CategoryValidation).
	WithTextCode(TextCodeProviderNotFederated).
	WithCode(goerrors.CodeBadRequest)

// ErrProviderTrusted is returned when a trusted provider is used through the API.
var ErrProviderTrusted = goerrors.New("authentication provider cannot be used for api login", goerrors.CategoryValidation).
	WithTextCode(TextCodeProviderTrusted).
	WithCode(goerrors.CodeBadRequest)

// ErrMalformedEvent is returned for auth events that fail validation.
var ErrMalformedEvent = goerrors.New("malformed auth event", goerrors.CategoryValidation).
	WithTextCode(TextCodeMalformedEvent).
	WithCode(goerrors.CodeBadRequest)

// ErrMissingPermissions is returned for SUCCESS events without permissions.
var ErrMissingPermissions = goerrors.New("successful auth event without permissions", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingPermissions).
	WithCode(goerrors.CodeBadRequest)

// ErrTaskNotFound is returned when the session has no task with the given id.
var ErrTaskNotFound = goerrors.New("task not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTaskNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSessionNotFound is returned when a session is not resident on this node.
var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAttemptNotFound is returned by engines for unknown attempt ids.
var ErrAttemptNotFound = goerrors.New("authentication attempt not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAttemptNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStillRunning is returned when reading the result of a running task.
var ErrStillRunning = goerrors.New("task is still running", goerrors.CategoryConflict).
	WithTextCode(TextCodeStillRunning).
	WithCode(goerrors.CodeConflict)

// ErrWrongTaskType is returned when a task is not a federated auth task.
var ErrWrongTaskType = goerrors.New("task is not a federated authentication task", goerrors.CategoryBadInput).
	WithTextCode(TextCodeWrongTaskType).
	WithCode(goerrors.CodeBadRequest)

// ErrJobAlreadyAttached is returned when attaching a second job to a task.
var ErrJobAlreadyAttached = goerrors.New("task already has a job", goerrors.CategoryConflict).
	WithTextCode(TextCodeJobAlreadyAttached).
	WithCode(goerrors.CodeConflict)

// ErrNoJob is returned when an operation needs the task job and there is none.
var ErrNoJob = goerrors.New("task has no job", goerrors.CategoryConflict).
	WithTextCode(TextCodeNoJob).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when a task status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid task status transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyTerminal marks a task that already reached FINISHED or CANCELED.
// It is logged and absorbed, never returned to callers of Finish.
var ErrAlreadyTerminal = goerrors.New("task already terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyTerminal).
	WithCode(goerrors.CodeConflict)

// ErrUnsupportedOperation is returned when canceling a job that cannot be canceled.
var ErrUnsupportedOperation = goerrors.New("operation not supported by job", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnsupported).
	WithCode(goerrors.CodeBadRequest)

// ErrProtocol is returned when the authentication engine reports a status
// that is not valid at that point of the flow.
var ErrProtocol = goerrors.New("unexpected authentication status", goerrors.CategoryOperation).
	WithTextCode(TextCodeProtocol).
	WithCode(goerrors.CodeInternal)

// ErrCanceledByUser is the outcome of a task canceled by its owner.
var ErrCanceledByUser = goerrors.New("canceled by the user", goerrors.CategoryOperation).
	WithTextCode(TextCodeCanceledByUser).
	WithCode(goerrors.CodeConflict)

// ErrAttemptExpired is the outcome of an attempt reported as EXPIRED.
var ErrAttemptExpired = goerrors.New("authorization has already been processed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAttemptExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthFailed is the base for errors reported by the authentication engine.
var ErrAuthFailed = goerrors.New("authentication failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed).
	WithCode(goerrors.CodeUnauthorized)

func newError(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

func wrapError(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := newError(base, meta)
	if err != nil {
		clone.Source = err
	}
	return clone
}

// NewAuthFailedError builds the error stored on a task when the engine
// reports ERROR. An empty message falls back to the generic one.
func NewAuthFailedError(message, code string) *goerrors.Error {
	return authFailedError(message, code, nil)
}

func authFailedError(message, code string, meta map[string]any) *goerrors.Error {
	merged := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	if code != "" {
		merged["engine_code"] = code
	}

	clone := newError(ErrAuthFailed, merged)
	if message != "" {
		clone.Message = message
	}
	return clone
}

// HasTextCode reports whether err is a rich error with the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == code
}

// IsCanceledByUser reports whether err is the user cancellation outcome.
func IsCanceledByUser(err error) bool {
	return HasTextCode(err, TextCodeCanceledByUser)
}

// IsAttemptExpired reports whether err is the expired attempt outcome.
func IsAttemptExpired(err error) bool {
	return HasTextCode(err, TextCodeAttemptExpired)
}

// ErrorInfo is the client facing description of a failure.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorInfoFrom converts err into an ErrorInfo. Engine errors keep the code
// reported by the engine.
func ErrorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return &ErrorInfo{Message: err.Error()}
	}

	info := &ErrorInfo{Message: richErr.Message, Code: richErr.TextCode}
	if code, ok := richErr.Metadata["engine_code"].(string); ok && code != "" {
		info.Code = code
	}
	return info
}
