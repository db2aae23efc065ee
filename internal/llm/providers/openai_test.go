package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/providers"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func newServer(t *testing.T, status int, body any, seen *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if seen != nil {
			seen.Store(payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func handlerFor(srv *httptest.Server) *providers.OpenAIHandler {
	return providers.NewOpenAIHandler(configuration.ProviderConfig{
		BaseURL: srv.URL + "/",
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
}

// TestOpenAIHandler_Success sends the prompt as one user message and returns
// the first choice.
func TestOpenAIHandler_Success(t *testing.T) {
	var seen atomic.Value
	srv := newServer(t, http.StatusOK, completionBody(`{"score": 8}`), &seen)
	h := handlerFor(srv)

	resp, err := h.Handle(context.Background(), &transport.Request{Prompt: "grade this", Temperature: 0})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 8}`, resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, providers.ProviderOpenAI, h.Name())

	payload, ok := seen.Load().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", payload["model"])
	msgs, ok := payload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	msg := msgs[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "grade this", msg["content"])
}

// TestOpenAIHandler_Errors maps endpoint failures onto the error taxonomy.
func TestOpenAIHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		wantType llmerrors.ErrorType
		wantSent error
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     map[string]any{"error": map[string]any{"message": "slow down", "type": "requests", "code": "rate_limit_exceeded"}},
			wantType: llmerrors.ErrorTypeRateLimit,
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     map[string]any{"error": map[string]any{"message": "bad key", "type": "invalid_request_error"}},
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     map[string]any{"error": map[string]any{"message": "oops"}},
			wantType: llmerrors.ErrorTypeProvider,
		},
		{
			name:     "empty completion",
			status:   http.StatusOK,
			body:     completionBody(""),
			wantType: llmerrors.ErrorTypeProvider,
			wantSent: llmerrors.ErrEmptyCompletion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)

			_, err := handlerFor(srv).Handle(context.Background(), &transport.Request{Prompt: "p"})
			require.Error(t, err)

			var pe *llmerrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			if tt.wantSent != nil {
				assert.ErrorIs(t, err, tt.wantSent)
			} else {
				assert.Equal(t, tt.status, pe.StatusCode)
			}
		})
	}
}

// TestOpenAIHandler_EmptyPrompt rejects blank prompts without a network call.
func TestOpenAIHandler_EmptyPrompt(t *testing.T) {
	h := providers.NewOpenAIHandler(configuration.ProviderConfig{Model: "m"})
	_, err := h.Handle(context.Background(), &transport.Request{Prompt: "  "})
	require.ErrorIs(t, err, llmerrors.ErrEmptyPrompt)
}

// TestOpenAIHandler_Timeout surfaces the per-attempt deadline.
func TestOpenAIHandler_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	// Cleanups run last-in first-out, so the handler is released before Close
	// waits on it.
	t.Cleanup(func() { close(release) })

	h := handlerFor(srv)
	_, err := h.Handle(context.Background(), &transport.Request{Prompt: "p", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
