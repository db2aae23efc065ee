package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// classifyErrorType determines the ErrorType from the provider's error code,
// falling back to the HTTP status.
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "quota"), strings.Contains(lowerCode, "insufficient"):
		return llmerrors.ErrorTypeQuota
	case strings.Contains(lowerCode, "rate"), strings.Contains(lowerCode, "limit"):
		return llmerrors.ErrorTypeRateLimit
	case strings.Contains(lowerCode, "timeout"):
		return llmerrors.ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth"), strings.Contains(lowerCode, "api_key"):
		return llmerrors.ErrorTypeAuth
	case strings.Contains(lowerCode, "permission"), strings.Contains(lowerCode, "forbidden"):
		return llmerrors.ErrorTypePermission
	}
	return llmerrors.TypeForStatus(statusCode)
}

// toProviderError converts SDK and transport failures into a ProviderError.
// Context errors pass through untouched so callers can still match them.
func toProviderError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &llmerrors.ProviderError{
			Provider:   provider,
			StatusCode: apiErr.StatusCode,
			Message:    msg,
			Code:       apiErr.Code,
			Type:       classifyErrorType(apiErr.StatusCode, apiErr.Code),
			Cause:      err,
		}
	}

	return &llmerrors.ProviderError{
		Provider: provider,
		Message:  err.Error(),
		Type:     llmerrors.ErrorTypeNetwork,
		Cause:    err,
	}
}
