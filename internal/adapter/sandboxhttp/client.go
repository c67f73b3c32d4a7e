// Package sandboxhttp implements the sandbox Executor port against the
// sandbox service's HTTP API.
package sandboxhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
	portsandbox "github.com/Strob0t/CodeCouncil/internal/port/sandbox"
	"github.com/Strob0t/CodeCouncil/internal/resilience"
)

// requestSlack is added to the execution timeout so the service can
// report its own timeout before ours fires.
const requestSlack = 30 * time.Second

// Client talks to the sandbox service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ portsandbox.Executor = (*Client)(nil)

// NewClient creates a sandbox client. Per-call deadlines come from the
// context; the HTTP client itself has no timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type createRequest struct {
	Environment string `json:"environment"`
	Timeout     int    `json:"timeout"`
}

type createResponse struct {
	SandboxID string `json:"sandbox_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Create provisions a sandbox that lives for at most timeout.
func (c *Client) Create(ctx context.Context, environment string, timeout time.Duration) (sandbox.Handle, error) {
	var resp createResponse
	err := c.doJSON(ctx, http.MethodPost, "/sandbox/create", createRequest{
		Environment: environment,
		Timeout:     int(timeout.Seconds()),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create sandbox: %w", err)
	}
	if resp.SandboxID == "" {
		return "", fmt.Errorf("create sandbox: %w: empty sandbox id", domain.ErrTransport)
	}
	return sandbox.Handle(resp.SandboxID), nil
}

type executeRequest struct {
	Files    map[string]string `json:"files"`
	Commands []string          `json:"commands"`
	Timeout  int               `json:"timeout"`
}

type executeResponse struct {
	ExecutionID string                  `json:"execution_id"`
	Status      string                  `json:"status"`
	Results     []sandbox.CommandResult `json:"results"`
}

// Execute uploads files and runs commands in order. The returned slice
// ends at the first command that exited non-zero.
func (c *Client) Execute(ctx context.Context, h sandbox.Handle, files map[string]string, commands []string, timeout time.Duration) ([]sandbox.CommandResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+requestSlack)
		defer cancel()
	}
	var resp executeResponse
	err := c.doJSON(ctx, http.MethodPost, "/sandbox/"+url.PathEscape(string(h))+"/execute", executeRequest{
		Files:    files,
		Commands: commands,
		Timeout:  int(timeout.Seconds()),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("execute in sandbox %s: %w", h, err)
	}
	for i, r := range resp.Results {
		if r.ExitCode != 0 {
			return resp.Results[:i+1], nil
		}
	}
	return resp.Results, nil
}

type statusResponse struct {
	SandboxID  string         `json:"sandbox_id"`
	Status     string         `json:"status"`
	Uptime     float64        `json:"uptime"`
	Resources  map[string]any `json:"resources"`
	Executions int            `json:"executions"`
}

// Status reports the live state of a sandbox.
func (c *Client) Status(ctx context.Context, h sandbox.Handle) (sandbox.Status, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/sandbox/"+url.PathEscape(string(h))+"/status", nil, &resp); err != nil {
		return sandbox.Status{}, fmt.Errorf("sandbox %s status: %w", h, err)
	}
	return sandbox.Status{State: resp.Status, Uptime: int(resp.Uptime), ExecutionCount: resp.Executions}, nil
}

// Destroy releases a sandbox.
func (c *Client) Destroy(ctx context.Context, h sandbox.Handle) (sandbox.Summary, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/sandbox/"+url.PathEscape(string(h)), nil, &resp); err != nil {
		return sandbox.Summary{}, fmt.Errorf("destroy sandbox %s: %w", h, err)
	}
	return sandbox.Summary{Uptime: int(resp.Uptime), ExecutionCount: resp.Executions}, nil
}

// Healthy reports whether the service answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: http request: %w", domain.ErrTransport, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %w", domain.ErrTransport, err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("sandbox service %s: %w", path, domain.ErrNotFound)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: sandbox API error %d: %s", domain.ErrTransport, resp.StatusCode, string(data))
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%w: unmarshal response: %w", domain.ErrTransport, err)
			}
		}
		return nil
	}

	if c.breaker == nil {
		return call()
	}
	// The breaker is shared by every session; a missing sandbox belongs to
	// one session and says nothing about the service.
	var missing error
	err := c.breaker.Execute(func() error {
		err := call()
		if errors.Is(err, domain.ErrNotFound) {
			missing = err
			return nil
		}
		return err
	})
	if missing != nil {
		return missing
	}
	return err
}
