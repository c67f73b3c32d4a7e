// Package openaicompat implements llm.ChatClient for every backend that
// speaks the OpenAI chat completions protocol: Groq, OpenRouter, Ollama
// and OpenAI itself.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/resilience"
)

// DefaultBaseURL returns the public endpoint of backend, or "" when the
// backend does not speak this protocol.
func DefaultBaseURL(b llm.Backend) string {
	switch b {
	case llm.BackendGroq:
		return "https://api.groq.com/openai/v1"
	case llm.BackendOpenRouter:
		return "https://openrouter.ai/api/v1"
	case llm.BackendOllama:
		return "http://localhost:11434/v1"
	case llm.BackendOpenAI:
		return "https://api.openai.com/v1"
	}
	return ""
}

// Client wraps a go-openai client pointed at one backend.
type Client struct {
	backend llm.Backend
	client  *openai.Client
	breaker *resilience.Breaker
}

var _ llm.ChatClient = (*Client)(nil)

// New creates a client for backend. An empty baseURL selects DefaultBaseURL.
// Ollama ignores the key, so an empty one is replaced with a placeholder.
func New(backend llm.Backend, baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL(backend)
	}
	if apiKey == "" && backend == llm.BackendOllama {
		apiKey = "ollama"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{backend: backend, client: openai.NewClientWithConfig(cfg)}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Backend returns the backend this client talks to.
func (c *Client) Backend() llm.Backend { return c.backend }

// Chat sends one chat completion request.
func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := c.guard(func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, creq)
		return err
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("%s chat: %w", c.backend, transport(err))
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("%s chat: %w: response has no choices", c.backend, domain.ErrTransport)
	}
	return llm.Response{
		Content:   resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// Ping lists models: a cheap call that checks reachability and credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.guard(func() error {
		_, err := c.client.ListModels(ctx)
		return transport(err)
	})
}

func (c *Client) guard(call func() error) error {
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

// transport tags API and network errors. The status code is kept in the
// message so logs show rate limits apart from outages.
func transport(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: API error %d: %s", domain.ErrTransport, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: HTTP %d: %w", domain.ErrTransport, reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}
