// Package webhook implements a progress sink that POSTs events as JSON.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/port/notifier"
)

const sinkName = "webhook"

// maxErrorBody caps how much of a failing response ends up in the error.
const maxErrorBody = 512

// Sink delivers progress events to a single URL.
type Sink struct {
	url        string
	httpClient *http.Client
}

var _ notifier.Sink = (*Sink)(nil)

// NewSink creates a webhook sink. Deadlines come from the caller's context.
func NewSink(url string) *Sink {
	return &Sink{url: url, httpClient: http.DefaultClient}
}

func (s *Sink) Name() string { return sinkName }

func (s *Sink) Notify(ctx context.Context, ev event.Progress) error {
	if s.url == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL supplied by the session owner
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func init() {
	notifier.Register(sinkName, func(config map[string]string) (notifier.Sink, error) {
		if config["url"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewSink(config["url"]), nil
	})
}
