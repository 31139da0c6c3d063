// Package apierrors implements the error taxonomy shared across the
// discovery pipeline. The API facade (internal/api) builds these kinds,
// maps repository and validation errors into them, and renders them as
// HTTP responses; the lower layers return their own errors.
package apierrors

import (
	"fmt"
	"net/http"
)

// Severity classifies how loudly an error should be surfaced to operators.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is the canonical shape returned to API clients:
// {code, message, statusCode, severity, details?, fieldErrors?, suggestions?}
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	StatusCode  int               `json:"statusCode"`
	Severity    Severity          `json:"severity"`
	Details     map[string]any    `json:"details,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`

	// cause is never serialized; it lets callers still use errors.Is/As.
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Wrap attaches a lower-level cause without changing the public shape.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// NotFound builds a resource-specific 404. Per spec.md §9 Open Questions,
// the error code is parameterized by resource rather than fixed, so
// "feedback not found" and "automation not found" are distinguishable by
// the code field of the HTTP body and in logs, while the message names only
// the resource type.
func NotFound(resource string) *Error {
	return &Error{
		Code:       fmt.Sprintf("%s_NOT_FOUND", screamingSnake(resource)),
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Severity:   SeverityInfo,
	}
}

// CrossTenantNotFound is NotFound's specialization for spec.md §4.10:
// cross-tenant access always returns 404, never 403, and never echoes
// the owning tenant id back to the caller.
func CrossTenantNotFound(resource string) *Error {
	e := NotFound(resource)
	e.Message = fmt.Sprintf("%s does not exist or you do not have access to it", resource)
	return e
}

func Unauthorized(message string) *Error {
	return &Error{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Severity:   SeverityWarning,
	}
}

func Validation(fieldErrors map[string]string) *Error {
	return &Error{
		Code:        "VALIDATION_FAILED",
		Message:     "one or more fields failed validation",
		StatusCode:  http.StatusBadRequest,
		Severity:    SeverityInfo,
		FieldErrors: fieldErrors,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
		Severity:   SeverityWarning,
	}
}

func RateLimited(message string, retryAfterSeconds int) *Error {
	return &Error{
		Code:       "RATE_LIMITED",
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Severity:   SeverityWarning,
		Details:    map[string]any{"retryAfterSeconds": retryAfterSeconds},
	}
}

func Internal(message string) *Error {
	return &Error{
		Code:       "INTERNAL",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Severity:   SeverityCritical,
		Suggestions: []string{
			"retry the request",
			"contact support if the problem persists",
		},
	}
}

func screamingSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == ' ' || c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
