// Package discord implements a progress sink for Discord incoming webhooks.
package discord

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

const sinkName = "discord"

const maxErrorBody = 512

// Embed colors.
const (
	colorProgress = 0x3498DB
	colorDone     = 0x2ECC71
	colorPartial  = 0xF39C12
)

// Sink posts progress events as Discord embeds.
type Sink struct {
	webhookURL string
	httpClient *http.Client
}

var _ notifier.Sink = (*Sink)(nil)

// NewSink creates a Discord sink for the given webhook URL.
func NewSink(webhookURL string) *Sink {
	return &Sink{webhookURL: webhookURL, httpClient: http.DefaultClient}
}

func (s *Sink) Name() string { return sinkName }

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Footer      *footer `json:"footer,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

func (s *Sink) Notify(ctx context.Context, ev event.Progress) error {
	if s.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embed{render(ev)}})
	if err != nil {
		return fmt.Errorf("discord marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Discord answers 204 on success.
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("discord API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func render(ev event.Progress) embed {
	e := embed{
		Description: fmt.Sprintf("%d/%d features passing (%.1f%%)", ev.Passing, ev.Total, ev.Percentage),
		Color:       colorProgress,
		Footer:      &footer{Text: "Session " + ev.SessionID},
	}
	switch {
	case ev.Event != event.TypeImplementationComplete:
		e.Title = "Implementing " + ev.Project
	case ev.Total > 0 && ev.Passing == ev.Total:
		e.Title = "Implementation complete: " + ev.Project
		e.Color = colorDone
	default:
		e.Title = "Implementation finished with failures: " + ev.Project
		e.Color = colorPartial
	}
	return e
}

func init() {
	notifier.Register(sinkName, func(config map[string]string) (notifier.Sink, error) {
		if config["url"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewSink(config["url"]), nil
	})
}
