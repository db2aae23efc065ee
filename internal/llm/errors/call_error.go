package errors

import (
	"fmt"
)

// CallError is the classified view of a model call failure.
// It carries the type, code, and details used as log attributes and metric
// labels; Cause keeps the original chain intact.
type CallError struct {
	Type      ErrorType      `json:"type"`
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details"`
	Cause     error          `json:"-"`
}

// Error returns formatted error string with type and code context.
func (e *CallError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *CallError) Unwrap() error {
	return e.Cause
}

// LogAttrs flattens the classification into slog key/value pairs.
func (e *CallError) LogAttrs() []any {
	attrs := []any{"error_type", string(e.Type), "error_code", e.Code, "retryable", e.Retryable}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	return attrs
}
