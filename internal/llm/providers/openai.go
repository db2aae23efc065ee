// Package providers holds the core handlers that talk to model endpoints.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// ProviderOpenAI names the OpenAI-compatible chat completions backend.
const ProviderOpenAI = "openai"

// OpenAIHandler sends one prompt as a single user message to an
// OpenAI-compatible chat completions endpoint.
//
// A fresh SDK client is built for every call so no connection state is shared
// between grading jobs. SDK-level retries are off; the retry middleware owns
// that policy.
type OpenAIHandler struct {
	config configuration.ProviderConfig
	now    func() time.Time
}

// NewOpenAIHandler creates the core handler for cfg.
func NewOpenAIHandler(cfg configuration.ProviderConfig) *OpenAIHandler {
	if cfg.Name == "" {
		cfg.Name = ProviderOpenAI
	}
	return &OpenAIHandler{config: cfg, now: time.Now}
}

// Name returns the provider name.
func (h *OpenAIHandler) Name() string { return h.config.Name }

func (h *OpenAIHandler) newClient() openai.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if h.config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(h.config.APIKey))
	}
	if h.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(h.config.BaseURL))
	}
	return openai.NewClient(opts...)
}

// Handle implements transport.Handler.
func (h *OpenAIHandler) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, llmerrors.ErrEmptyPrompt
	}

	model := req.Model
	if model == "" {
		model = h.config.Model
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = h.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}

	client := h.newClient()
	start := h.now()
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(h.config.Name, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, &llmerrors.ProviderError{
			Provider: h.config.Name,
			Message:  fmt.Sprintf("model %s returned no content", model),
			Type:     llmerrors.ErrorTypeProvider,
			Cause:    llmerrors.ErrEmptyCompletion,
		}
	}

	respModel := completion.Model
	if respModel == "" {
		respModel = model
	}
	return &transport.Response{
		Content:   completion.Choices[0].Message.Content,
		Model:     respModel,
		LatencyMs: h.now().Sub(start).Milliseconds(),
	}, nil
}

var _ transport.Handler = (*OpenAIHandler)(nil)
