package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CodeCouncil/internal/adapter/anthropic"
	"github.com/Strob0t/CodeCouncil/internal/adapter/openaicompat"
	"github.com/Strob0t/CodeCouncil/internal/config"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/resilience"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

// buildRouter offers every configured backend to the router. Each client gets
// its own breaker so one failing vendor does not trip the others.
func buildRouter(ctx context.Context, cfg *config.Config) *service.ProviderRouter {
	breaker := func() *resilience.Breaker {
		return resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	}

	compat := []struct {
		backend llm.Backend
		prov    config.Provider
		probe   bool
	}{
		{llm.BackendGroq, cfg.Providers.Groq, false},
		{llm.BackendOpenRouter, cfg.Providers.OpenRouter, false},
		{llm.BackendOllama, cfg.Providers.Ollama, true},
		{llm.BackendOpenAI, cfg.Providers.OpenAI, false},
	}

	candidates := make([]service.Candidate, 0, len(compat)+1)
	for _, c := range compat {
		client := openaicompat.New(c.backend, c.prov.BaseURL, c.prov.APIKey, c.prov.Timeout)
		client.SetBreaker(breaker())
		candidates = append(candidates, service.Candidate{
			Backend: c.backend,
			Client:  client,
			APIKey:  c.prov.APIKey,
			Probe:   c.probe,
		})
	}

	ac := anthropic.NewClient(cfg.Providers.Anthropic.BaseURL, cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Timeout)
	ac.SetBreaker(breaker())
	candidates = append(candidates, service.Candidate{
		Backend: llm.BackendAnthropic,
		Client:  ac,
		APIKey:  cfg.Providers.Anthropic.APIKey,
	})

	return service.NewProviderRouter(ctx, candidates)
}

// buildCouncil seats one member per configured role. Members and chairman
// share the council backend; when it is unavailable the balanced route and
// its default model stand in so the council still answers.
func buildCouncil(cfg *config.Config, router *service.ProviderRouter) ([]service.Member, llm.ChatClient, string, error) {
	client, err := router.Client(llm.Backend(cfg.Council.Backend))
	fallbackModel := ""
	if err != nil {
		route, rerr := router.Select(council.ProfileBalanced)
		if rerr != nil {
			return nil, nil, "", fmt.Errorf("council backend %s: %w", cfg.Council.Backend, err)
		}
		slog.Warn("council backend unavailable, using fallback",
			"backend", cfg.Council.Backend, "fallback", route.Backend, "model", route.Model)
		client = route.Client
		fallbackModel = route.Model
	}

	members := make([]service.Member, 0, len(council.Roles()))
	for _, role := range council.Roles() {
		model, ok := cfg.Council.Models[string(role)]
		if !ok {
			continue
		}
		if fallbackModel != "" {
			model = fallbackModel
		}
		members = append(members, service.Member{Role: role, Model: model, Client: client})
	}
	if len(members) == 0 {
		return nil, nil, "", errors.New("council.models names no known role")
	}

	chairmanModel := cfg.Council.ChairmanModel
	if fallbackModel != "" {
		chairmanModel = fallbackModel
	}
	return members, client, chairmanModel, nil
}

// unavailableCouncil answers council requests when no member could be seated.
type unavailableCouncil struct {
	err error
}

func (u unavailableCouncil) Plan(context.Context, service.PlanRequest) (council.Plan, error) {
	return council.Plan{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, u.err)
}

func (u unavailableCouncil) Verdict(context.Context, service.VerdictRequest) (council.Verdict, error) {
	return council.Verdict{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, u.err)
}
