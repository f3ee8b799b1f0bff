package bot

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/c360/botapi/errors"
	"github.com/c360/botapi/pkg/retry"
)

// OpenAIEngine calls an external OpenAI-compatible chat completion service.
//
// This implementation works with:
//   - OpenAI (cloud)
//   - LocalAI / Ollama (self-hosted)
//   - Any OpenAI-compatible chat API
//
// Uses the standard OpenAI SDK for consistency and compatibility.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	prompt string
	retry  retry.Config
	logger *slog.Logger

	// Per-user rolling conversation history
	mu         sync.Mutex
	history    map[string][]openai.ChatCompletionMessage
	maxHistory int
}

// OpenAIConfig configures the OpenAI engine.
type OpenAIConfig struct {
	// BaseURL is the base URL of the chat completion service.
	// Examples:
	//   - "https://api.openai.com/v1" (OpenAI cloud)
	//   - "http://localhost:11434/v1" (Ollama)
	BaseURL string

	// Model is the chat model to use, e.g. "gpt-4o-mini".
	Model string

	// APIKey for authentication (optional for local services).
	APIKey string

	// SystemPrompt steers the bot's persona (optional).
	SystemPrompt string

	// Timeout for HTTP requests (default: 30s).
	Timeout time.Duration

	// MaxHistory is the number of prior messages kept per user as
	// conversation context (default: 20).
	MaxHistory int

	// Logger for error logging (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// NewOpenAIEngine creates a new OpenAI-backed engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.Model == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "bot", "NewOpenAIEngine",
			"model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 20
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need a real key
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIEngine{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		prompt:     cfg.SystemPrompt,
		retry:      errors.DefaultRetryConfig().ToRetryConfig(),
		logger:     logger.With("engine", "openai", "model", cfg.Model),
		history:    make(map[string][]openai.ChatCompletionMessage),
		maxHistory: maxHistory,
	}, nil
}

// Name identifies the engine implementation.
func (e *OpenAIEngine) Name() string { return "openai" }

// Respond sends the user's message plus rolling history to the chat API.
func (e *OpenAIEngine) Respond(ctx context.Context, userID, content string) (string, error) {
	messages := e.buildMessages(userID, content)

	resp, err := retry.DoWithResult(ctx, e.retry, func() (openai.ChatCompletionResponse, error) {
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    e.model,
			Messages: messages,
		})
		if err != nil && !isRetryableAPIError(err) {
			return resp, retry.NonRetryable(err)
		}
		return resp, err
	})
	if err != nil {
		e.logger.Warn("chat completion failed", "user_id", userID, "error", err)
		return "", errors.WrapTransient(err, "OpenAIEngine", "Respond", "chat completion")
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)

	e.remember(userID, content, reply)
	return reply, nil
}

// buildMessages assembles system prompt + history + the new user message.
func (e *OpenAIEngine) buildMessages(userID, content string) []openai.ChatCompletionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	var messages []openai.ChatCompletionMessage
	if e.prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: e.prompt,
		})
	}
	messages = append(messages, e.history[userID]...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	return messages
}

// remember appends the exchange to the user's rolling history window.
func (e *OpenAIEngine) remember(userID, content, reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := append(e.history[userID],
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
	if len(h) > e.maxHistory {
		h = h[len(h)-e.maxHistory:]
	}
	e.history[userID] = h
}

// isRetryableAPIError reports whether an OpenAI API error is worth retrying.
// Rate limits and server-side failures are transient; everything else
// (bad request, auth, context length) is not.
func isRetryableAPIError(err error) bool {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Network-level failures have no APIError; let the retry layer try again.
	return true
}
