package connector

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRefreshable is returned by RefreshCredentials for platforms whose
// tokens never expire and therefore have nothing to refresh (e.g. Slack
// bot tokens).
var ErrNotRefreshable = errors.New("connector: credential type is not refreshable")

// TransientPlatformError signals a retryable failure -- the orchestrator
// reschedules the job with backoff. RetryAfter is optional; zero means
// "use the orchestrator's default backoff."
type TransientPlatformError struct {
	Platform   Platform
	Detail     string
	RetryAfter time.Duration
}

func (e *TransientPlatformError) Error() string {
	return fmt.Sprintf("%s: transient error: %s", e.Platform, e.Detail)
}

// ExpiredCredentials signals the stored credential is no longer valid.
// The orchestrator attempts RefreshCredentials; if that also fails the
// connection transitions to PermanentAuthFailure and status "expired".
type ExpiredCredentials struct {
	Platform Platform
}

func (e *ExpiredCredentials) Error() string {
	return fmt.Sprintf("%s: credentials expired", e.Platform)
}

// PermanentAuthFailure signals that refresh itself failed -- no further
// automatic retry is attempted.
type PermanentAuthFailure struct {
	Platform Platform
	Cause    error
}

func (e *PermanentAuthFailure) Error() string {
	return fmt.Sprintf("%s: permanent auth failure: %v", e.Platform, e.Cause)
}

func (e *PermanentAuthFailure) Unwrap() error { return e.Cause }

// RateLimited signals the platform rejected the call with a rate limit;
// ResetAt, if known, is when the orchestrator should reschedule the job.
type RateLimited struct {
	Platform Platform
	ResetAt  time.Time
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("%s: rate limited until %s", e.Platform, e.ResetAt.Format(time.RFC3339))
}

// MissingPermissions signals a scope/permission gap. The connector is
// considered partially functional, not broken -- callers continue using
// whatever scopes are actually granted.
type MissingPermissions struct {
	Platform Platform
	Scopes   []string
}

func (e *MissingPermissions) Error() string {
	return fmt.Sprintf("%s: missing permissions: %v", e.Platform, e.Scopes)
}

// InvariantViolation signals a fatal, unexpected condition (e.g. the
// platform API returned data that contradicts its own documented
// contract). The connector is marked unhealthy and the failure surfaces
// for human review; the orchestrator does not retry.
type InvariantViolation struct {
	Platform Platform
	Detail   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: invariant violation: %s", e.Platform, e.Detail)
}
