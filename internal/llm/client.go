// Package llm is a small client for OpenAI-compatible chat-completion
// endpoints, plus the lenient JSON extraction the planner and the intent
// resolver share.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotConfigured means no API key is set. Callers map it to a
// service-unavailable response rather than retrying.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Chatter is the slice of the client the planner and the intent resolver
// depend on; tests substitute scripted fakes.
type Chatter interface {
	// Chat sends one system+user exchange and returns the assistant text.
	Chat(ctx context.Context, system, user string) (string, error)
	// ChatJSON is Chat with the response constrained to a JSON object.
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

// Client talks to one chat-completions endpoint with one model.
type Client struct {
	apiKey   string
	model    string
	endpoint string // defaults to https://api.openai.com/v1/chat/completions
	client   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint points the client at a non-default endpoint (proxies,
// compatible local servers).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient substitutes the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a chat client. An empty model falls back to gpt-4o-mini.
func New(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.openai.com/v1/chat/completions",
		client:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Chat sends one exchange and returns the assistant's raw text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// ChatJSON forces a JSON-object response. The returned text should still go
// through ExtractJSON before decoding; some models wrap even constrained
// output in fences.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, &responseFormat{Type: "json_object"})
}

func (c *Client) complete(ctx context.Context, system, user string, format *responseFormat) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, _ := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: format,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("llm: %s (%s)", result.Error.Message, result.Error.Type)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("llm: response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}
