// Package accountpool tracks a pool of upstream credential-backed accounts,
// selecting among them round-robin per requested model and moving each
// account's health state as requests against it succeed or fail.
package accountpool

import "time"

// Account is one pool entry: a credential reference plus the health
// counters that decide whether it is eligible for selection.
type Account struct {
	UUID          string `json:"uuid"`
	CredentialRef string `json:"credentialRef"`

	IsHealthy  bool `json:"isHealthy"`
	IsDisabled bool `json:"isDisabled"`

	UsageCount int `json:"usageCount"`
	ErrorCount int `json:"errorCount"`

	LastUsed             *time.Time `json:"lastUsed,omitempty"`
	LastErrorTime        *time.Time `json:"lastErrorTime,omitempty"`
	LastErrorMessage     string     `json:"lastErrorMessage,omitempty"`
	LastHealthCheckTime  *time.Time `json:"lastHealthCheckTime,omitempty"`
	LastHealthCheckModel string     `json:"lastHealthCheckModel,omitempty"`

	NotSupportedModels map[string]struct{} `json:"notSupportedModels,omitempty"`

	CachedEmail  string `json:"cachedEmail,omitempty"`
	CachedUserID string `json:"cachedUserId,omitempty"`
}

// Status is the derived pool membership of an account.
type Status int

const (
	StatusHealthy Status = iota
	StatusChecking
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusChecking:
		return "checking"
	case StatusBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// DeriveStatus computes an account's pool membership from its raw fields.
func (a *Account) DeriveStatus() Status {
	if !a.IsHealthy || a.IsDisabled {
		return StatusBanned
	}
	if a.ErrorCount > 0 {
		return StatusChecking
	}
	return StatusHealthy
}

// SupportsModel reports whether model has not been marked unsupported for
// this account.
func (a *Account) SupportsModel(model string) bool {
	if a.NotSupportedModels == nil {
		return true
	}
	_, excluded := a.NotSupportedModels[model]
	return !excluded
}

// Eligible reports whether the account is a selection candidate for model:
// healthy, not disabled, and the model is not on its unsupported list.
func (a *Account) Eligible(model string) bool {
	return a.IsHealthy && !a.IsDisabled && a.SupportsModel(model)
}

// MarkUsed records a successful dispatch: bumps usage and the last-used
// timestamp. Does not touch error state.
func (a *Account) MarkUsed(now time.Time) {
	a.UsageCount++
	a.LastUsed = &now
}

// MarkError increments the error counter and flips IsHealthy=false once
// maxErrorCount is reached. Never decreases ErrorCount; the monotonicity
// invariant the health-probe reset relies on.
func (a *Account) MarkError(now time.Time, message string, maxErrorCount int) {
	a.ErrorCount++
	a.LastErrorTime = &now
	a.LastErrorMessage = message
	if a.ErrorCount >= maxErrorCount {
		a.IsHealthy = false
	}
}

// MarkUnhealthy immediately bans the account, used for fatal-classified
// errors that should not wait for the error-count threshold. Like
// MarkError it also increments ErrorCount.
func (a *Account) MarkUnhealthy(now time.Time, message string) {
	a.ErrorCount++
	a.IsHealthy = false
	a.LastErrorTime = &now
	a.LastErrorMessage = message
}

// MarkHealthy resets error state, typically after a manual reset or a
// successful health probe.
func (a *Account) MarkHealthy(now time.Time, checkModel string) {
	a.ErrorCount = 0
	a.LastErrorTime = nil
	a.LastErrorMessage = ""
	a.IsHealthy = true
	a.LastHealthCheckTime = &now
	if checkModel != "" {
		a.LastHealthCheckModel = checkModel
	}
}
