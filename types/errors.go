package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultErrorCode is used when the provider omits error.code
	DefaultErrorCode = "global/unknown"
	// DefaultSuggestion is used when the provider omits error.suggestion
	DefaultSuggestion = "No suggestion available"
	// DefaultErrorMessage is used when the provider omits the error object
	DefaultErrorMessage = "An unknown error occurred"
)

// ConfigError reports missing or invalid required input
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ProviderError is a non-200 response from the provider API
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Suggestion string
}

// NewProviderError fills in the documented defaults for absent fields
func NewProviderError(status int, code, message, suggestion string) *ProviderError {
	if code == "" {
		code = DefaultErrorCode
	}
	if suggestion == "" {
		suggestion = DefaultSuggestion
	}
	return &ProviderError{
		StatusCode: status,
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Diagnostic renders the single operator-facing failure line
func (e *ProviderError) Diagnostic() string {
	return fmt.Sprintf("Error code: %d, %s Message: %s Suggestion: %s",
		e.StatusCode, e.Code, e.Message, e.Suggestion)
}

// TimeoutError is returned when an instance stays terminating past the wait budget
type TimeoutError struct {
	InstanceID string
	Timeout    time.Duration
	Elapsed    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("instance %s terminate timeout reached after %s (budget %s)",
		e.InstanceID, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// UnexpectedStateError is returned when the wait ends on a status other than terminated
type UnexpectedStateError struct {
	InstanceID string
	Status     InstanceStatus
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("instance %s status is %q, expected %q", e.InstanceID, e.Status, StatusTerminated)
}

// PolicyDeniedError is returned when the termination guard rejects a request
type PolicyDeniedError struct {
	Reasons []string
}

func (e *PolicyDeniedError) Error() string {
	if len(e.Reasons) == 0 {
		return "termination denied by policy"
	}
	return "termination denied by policy: " + strings.Join(e.Reasons, "; ")
}
