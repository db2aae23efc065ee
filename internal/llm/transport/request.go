package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Request is one prompt sent to the model endpoint.
type Request struct {
	// Provider names the backend, used for logging and metric labels.
	Provider string `json:"provider"`

	// Model is the model identifier passed to the provider.
	Model string `json:"model"`

	// Prompt is the fully rendered user message.
	Prompt string `json:"prompt"`

	// Temperature is forwarded verbatim; graders run at 0 by default.
	Temperature float64 `json:"temperature"`

	// Timeout bounds a single attempt. Zero leaves the caller's deadline in charge.
	Timeout time.Duration `json:"timeout"`

	// TraceID correlates log lines of one invocation across attempts.
	TraceID string `json:"trace_id"`
}

// Response is the raw reply of the model endpoint.
type Response struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latency_ms"`

	// CacheHit is set when the reply was served from the reply cache.
	CacheHit bool `json:"-"`
}

// CacheKey derives a stable reply-cache key for the request.
// Whitespace at the edges of the prompt is not significant.
func (r *Request) CacheKey() string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(r.Provider))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(r.Model)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(r.Temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(r.Prompt)))
	return "grader:reply:" + hex.EncodeToString(h.Sum(nil))
}
