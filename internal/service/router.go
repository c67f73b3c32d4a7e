package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
)

// Pinger is implemented by clients that support a cheap connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Candidate is a backend offered to the router at construction.
type Candidate struct {
	Backend llm.Backend
	Client  llm.ChatClient
	APIKey  string
	// Probe asks the router to Ping the client once before admitting it.
	Probe bool
}

// Route is the router's answer: which backend and model serve a request.
type Route struct {
	Backend llm.Backend
	Model   string
	Client  llm.ChatClient
}

// ProviderRouter maps task profiles to initialized backends. The backend
// table is fixed after NewProviderRouter and safe for concurrent reads.
type ProviderRouter struct {
	clients map[llm.Backend]llm.ChatClient
}

const probeTimeout = 5 * time.Second

// NewProviderRouter admits each candidate that has the credentials its
// catalog entry requires and, when asked, answers a single Ping. Excluded
// backends are logged and never retried.
func NewProviderRouter(ctx context.Context, candidates []Candidate) *ProviderRouter {
	r := &ProviderRouter{clients: make(map[llm.Backend]llm.ChatClient, len(candidates))}
	for _, c := range candidates {
		spec, known := providerCatalog[c.Backend]
		switch {
		case !known || c.Client == nil:
			continue
		case spec.RequiresKey && c.APIKey == "":
			slog.Debug("provider skipped: no credentials", "backend", c.Backend, "env", spec.KeyEnv)
			continue
		}
		if p, ok := c.Client.(Pinger); ok && c.Probe {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := p.Ping(pctx)
			cancel()
			if err != nil {
				slog.Warn("provider skipped: precheck failed", "backend", c.Backend, "error", err)
				continue
			}
		}
		r.clients[c.Backend] = c.Client
	}
	slog.Info("provider router ready", "backends", r.Available())
	return r
}

// Select resolves profile to the first available backend in its preference
// list, else any available backend.
func (r *ProviderRouter) Select(profile council.TaskProfile) (Route, error) {
	prefs, ok := routingTable[profile]
	if !ok {
		prefs = routingTable[council.ProfileBalanced]
	}
	for _, b := range prefs {
		if c, ok := r.clients[b]; ok {
			return Route{Backend: b, Model: providerCatalog[b].ModelFor(profile), Client: c}, nil
		}
	}
	for _, b := range allBackends {
		if c, ok := r.clients[b]; ok {
			return Route{Backend: b, Model: providerCatalog[b].ModelFor(profile), Client: c}, nil
		}
	}
	return Route{}, fmt.Errorf("profile %s: %w", profile, domain.ErrProviderUnavailable)
}

// Client returns the client for a specific backend.
func (r *ProviderRouter) Client(b llm.Backend) (llm.ChatClient, error) {
	c, ok := r.clients[b]
	if !ok {
		return nil, fmt.Errorf("backend %s: %w", b, domain.ErrProviderUnavailable)
	}
	return c, nil
}

// Available lists admitted backends in catalog order.
func (r *ProviderRouter) Available() []llm.Backend {
	out := make([]llm.Backend, 0, len(r.clients))
	for _, b := range allBackends {
		if _, ok := r.clients[b]; ok {
			out = append(out, b)
		}
	}
	return out
}
