// Package errors defines the failure taxonomy of the model invocation layer.
//
// Provider and rate-limit failures are typed so middleware can label logs and
// metrics; ModelCallError is the single failure the adapter surfaces once its
// retry budget is spent.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType categorizes model call failures for logging and metrics.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates a local or remote rate limit.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider failed or returned nothing usable.
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the request itself was rejected.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions.
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded.
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeCanceled indicates the caller gave up.
	ErrorTypeCanceled ErrorType = "canceled"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common model call errors.
var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrEmptyCompletion indicates the provider answered without any content.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrEmptyPrompt indicates an invocation without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrMaxRetriesExceeded indicates maximum retry attempts exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ProviderError captures a structured error response from the model endpoint.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	Cause      error     `json:"-"`
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap exposes the SDK error, if any.
func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failure looks transient.
// The adapter retries every failure regardless; this only feeds classification.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// TypeForStatus maps an HTTP status from the provider to an ErrorType.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized:
		return ErrorTypeAuth
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status == http.StatusPaymentRequired:
		return ErrorTypeQuota
	case status >= http.StatusInternalServerError:
		return ErrorTypeProvider
	case status >= http.StatusBadRequest:
		return ErrorTypeValidation
	default:
		return ErrorTypeUnknown
	}
}

// RateLimitError reports that the local limiter could not admit a call
// before the caller's deadline.
type RateLimitError struct {
	Provider   string        `json:"provider"`
	Limit      float64       `json:"limit"`
	RetryAfter time.Duration `json:"retry_after"`
	Cause      error         `json:"-"`
}

// Error returns formatted rate limit error with retry guidance.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// Unwrap exposes the limiter error.
func (e *RateLimitError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrRateLimitExceeded) match typed rate limit errors.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// ModelCallError is raised once every attempt of a model invocation failed.
// The last underlying error is attached and reachable through errors.As.
type ModelCallError struct {
	Attempts int
	Last     error
}

// Error returns the attempt count and the final failure.
func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last underlying error.
func (e *ModelCallError) Unwrap() error { return e.Last }

// Is lets errors.Is(err, ErrMaxRetriesExceeded) match exhausted calls.
func (e *ModelCallError) Is(target error) bool { return target == ErrMaxRetriesExceeded }

// IsModelCallFailure reports whether err is an exhausted model invocation.
func IsModelCallFailure(err error) bool {
	var mce *ModelCallError
	return errors.As(err, &mce)
}
