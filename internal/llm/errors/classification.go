package errors

import (
	"context"
	"errors"
	"strings"
)

// ClassifyLLMError turns any model call failure into a CallError.
// Typed errors are checked first, then sentinels, then message patterns.
func ClassifyLLMError(err error) *CallError {
	if err == nil {
		return nil
	}

	if ce := classifyTypedErrors(err); ce != nil {
		return ce
	}

	if ce := classifySentinelErrors(err); ce != nil {
		return ce
	}

	return classifyStringPatternErrors(err)
}

func classifyTypedErrors(err error) *CallError {
	var mce *ModelCallError
	if errors.As(err, &mce) && mce.Last != nil {
		inner := ClassifyLLMError(mce.Last)
		inner.Retryable = false
		if inner.Details == nil {
			inner.Details = map[string]any{}
		}
		inner.Details["attempts"] = mce.Attempts
		inner.Cause = err
		return inner
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return &CallError{
			Type:      providerErr.Type,
			Message:   providerErr.Message,
			Code:      providerErr.Code,
			Retryable: providerErr.IsRetryable(),
			Details: map[string]any{
				"provider":    providerErr.Provider,
				"status_code": providerErr.StatusCode,
			},
			Cause: err,
		}
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &CallError{
			Type:      ErrorTypeRateLimit,
			Message:   rateLimitErr.Error(),
			Code:      "RATE_LIMIT",
			Retryable: true,
			Details: map[string]any{
				"provider":    rateLimitErr.Provider,
				"retry_after": rateLimitErr.RetryAfter.String(),
			},
			Cause: err,
		}
	}

	return nil
}

func classifySentinelErrors(err error) *CallError {
	switch {
	case errors.Is(err, context.Canceled):
		return &CallError{Type: ErrorTypeCanceled, Message: err.Error(), Code: "CANCELED", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &CallError{Type: ErrorTypeTimeout, Message: err.Error(), Code: "TIMEOUT", Retryable: true, Cause: err}
	case errors.Is(err, ErrRateLimitExceeded):
		return &CallError{Type: ErrorTypeRateLimit, Message: err.Error(), Code: "RATE_LIMIT", Retryable: true, Cause: err}
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrEmptyCompletion):
		return &CallError{Type: ErrorTypeProvider, Message: err.Error(), Code: "PROVIDER_UNAVAILABLE", Retryable: true, Cause: err}
	case errors.Is(err, ErrEmptyPrompt):
		return &CallError{Type: ErrorTypeValidation, Message: err.Error(), Code: "VALIDATION", Cause: err}
	}
	return nil
}

func classifyStringPatternErrors(err error) *CallError {
	errMsg := strings.ToLower(err.Error())
	details := map[string]any{"original_error": err.Error()}

	switch {
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "429"):
		return &CallError{Type: ErrorTypeRateLimit, Message: "Rate limit exceeded", Code: "RATE_LIMIT", Retryable: true, Details: details, Cause: err}
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return &CallError{Type: ErrorTypeTimeout, Message: "Request timeout", Code: "TIMEOUT", Retryable: true, Details: details, Cause: err}
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "authentication"):
		return &CallError{Type: ErrorTypeAuth, Message: "Authentication failed", Code: "AUTH_FAILED", Details: details, Cause: err}
	case strings.Contains(errMsg, "forbidden") || strings.Contains(errMsg, "permission"):
		return &CallError{Type: ErrorTypePermission, Message: "Permission denied", Code: "PERMISSION_DENIED", Details: details, Cause: err}
	case strings.Contains(errMsg, "quota"):
		return &CallError{Type: ErrorTypeQuota, Message: "Quota exceeded", Code: "QUOTA_EXCEEDED", Details: details, Cause: err}
	case strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "eof"):
		return &CallError{Type: ErrorTypeNetwork, Message: "Network error", Code: "NETWORK_ERROR", Retryable: true, Details: details, Cause: err}
	default:
		return &CallError{Type: ErrorTypeUnknown, Message: "Unknown error", Code: "UNKNOWN", Details: details, Cause: err}
	}
}
