package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 2 * time.Minute
)

// ErrTruncated means the model hit its token limit before finishing the section.
var ErrTruncated = errors.New("model output truncated")

// Client produces one section text per call.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	// MaxTokens caps the completion; zero leaves it to the provider.
	MaxTokens int
	Timeout   time.Duration
}

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai request failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openai request failed with status %d", e.StatusCode)
}

// Retryable reports whether a later attempt can succeed: rate limits and server errors.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable is false only for errors the provider will keep returning.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

type HTTPClient struct {
	apiKey       string
	defaultModel string
	endpoint     string
	httpClient   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient talks to an OpenAI-compatible chat completion endpoint. OPENAI_BASE_URL
// points it at another provider or a local gateway.
func NewHTTPClient(apiKey string, model string) *HTTPClient {
	if model == "" {
		model = defaultModel
	}
	endpoint := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	return &HTTPClient{
		apiKey:       apiKey,
		defaultModel: model,
		endpoint:     endpoint,
		httpClient:   &http.Client{},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", &StatusError{StatusCode: http.StatusUnauthorized, Message: "OPENAI_API_KEY is required"}
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= 400 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil && parsed.Error != nil {
			statusErr.Message = parsed.Error.Message
		}
		return "", statusErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode openai response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai returned zero choices")
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "length" {
		return "", ErrTruncated
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return content, nil
}
