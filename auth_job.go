package authtask

import (
	"context"
	"sync"
)

// FederatedAuthJob is the placeholder job of a federated login task. It does
// no work; it holds the attempt id used for correlation and, once the attempt
// succeeds, the authentication records.
type FederatedAuthJob struct {
	attemptID          string
	providerID         string
	linkWithActiveUser bool

	mu         sync.RWMutex
	authResult []AuthInfo
	resultSet  bool
}

// NewFederatedAuthJob returns a job waiting for attemptID.
func NewFederatedAuthJob(attemptID, providerID string, linkWithActiveUser bool) *FederatedAuthJob {
	return &FederatedAuthJob{
		attemptID:          attemptID,
		providerID:         providerID,
		linkWithActiveUser: linkWithActiveUser,
	}
}

func (j *FederatedAuthJob) Kind() JobKind            { return JobKindFederatedAuth }
func (j *FederatedAuthJob) Name() string             { return "Federated authentication" }
func (j *FederatedAuthJob) AttemptID() string        { return j.attemptID }
func (j *FederatedAuthJob) ProviderID() string       { return j.providerID }
func (j *FederatedAuthJob) LinkWithActiveUser() bool { return j.linkWithActiveUser }

// AuthResult returns the records stored on success.
func (j *FederatedAuthJob) AuthResult() []AuthInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.authResult
}

// SetAuthResult stores records. Only the first call has an effect.
func (j *FederatedAuthJob) SetAuthResult(records []AuthInfo) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resultSet {
		return false
	}
	j.authResult = records
	j.resultSet = true
	return true
}

// Cancel finishes the task as canceled by the user.
func (j *FederatedAuthJob) Cancel(_ context.Context, ctl TaskControl) error {
	ctl.Finish(Canceled(nil))
	return nil
}

// DescribeOutcome builds the auth_result event for the finished task.
func (j *FederatedAuthJob) DescribeOutcome(info TaskInfo) SessionEvent {
	evt := SessionEvent{
		Type:   SessionEventAuthResult,
		TaskID: info.ID,
		Error:  info.Error,
	}
	if info.Error == nil {
		evt.UserTokens = UserTokens(j.AuthResult())
	}
	return evt
}
