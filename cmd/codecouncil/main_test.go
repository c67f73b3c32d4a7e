package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/CodeCouncil/internal/config"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

type stubClient struct{}

func (stubClient) Chat(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Content: "{}"}, nil
}

func routerWith(backends ...llm.Backend) *service.ProviderRouter {
	candidates := make([]service.Candidate, 0, len(backends))
	for _, b := range backends {
		candidates = append(candidates, service.Candidate{Backend: b, Client: stubClient{}, APIKey: "key"})
	}
	return service.NewProviderRouter(context.Background(), candidates)
}

func TestBuildCouncilUsesConfiguredModels(t *testing.T) {
	cfg := config.Defaults()
	members, chairman, chairmanModel, err := buildCouncil(&cfg, routerWith(llm.BackendOpenRouter))
	if err != nil {
		t.Fatalf("buildCouncil: %v", err)
	}
	if chairman == nil {
		t.Fatal("expected a chairman client")
	}
	if chairmanModel != cfg.Council.ChairmanModel {
		t.Errorf("expected chairman model %q, got %q", cfg.Council.ChairmanModel, chairmanModel)
	}
	if len(members) != len(cfg.Council.Models) {
		t.Fatalf("expected %d members, got %d", len(cfg.Council.Models), len(members))
	}
	for _, m := range members {
		if m.Model != cfg.Council.Models[string(m.Role)] {
			t.Errorf("role %s: expected model %q, got %q", m.Role, cfg.Council.Models[string(m.Role)], m.Model)
		}
	}
}

func TestBuildCouncilFallsBackToAvailableBackend(t *testing.T) {
	cfg := config.Defaults()
	members, _, chairmanModel, err := buildCouncil(&cfg, routerWith(llm.BackendGroq))
	if err != nil {
		t.Fatalf("buildCouncil: %v", err)
	}
	if chairmanModel == cfg.Council.ChairmanModel {
		t.Error("expected the fallback model for the chairman")
	}
	for _, m := range members {
		if m.Model != chairmanModel {
			t.Errorf("role %s: expected fallback model %q, got %q", m.Role, chairmanModel, m.Model)
		}
	}
}

func TestBuildCouncilNoBackends(t *testing.T) {
	cfg := config.Defaults()
	_, _, _, err := buildCouncil(&cfg, routerWith())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	u := unavailableCouncil{err: err}
	if _, err := u.Plan(context.Background(), service.PlanRequest{}); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("Plan: expected ErrProviderUnavailable, got %v", err)
	}
}

func TestBuildCouncilUnknownRoles(t *testing.T) {
	cfg := config.Defaults()
	cfg.Council.Models = map[string]string{"marketing": "x/y"}
	if _, _, _, err := buildCouncil(&cfg, routerWith(llm.BackendOpenRouter)); err == nil {
		t.Fatal("expected error when no known role is configured")
	}
}

func TestReadSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(path, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, err := readSource(path)
	if err != nil {
		t.Fatalf("readSource: %v", err)
	}
	if !strings.Contains(code, "print") {
		t.Errorf("unexpected content %q", code)
	}

	if _, err := readSource(filepath.Join(t.TempDir(), "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("expected %q, got %q", version, out.String())
	}
}

func TestMigrateRejectsBadSteps(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "down", "zero"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "invalid steps") {
		t.Fatalf("expected invalid steps error, got %v", err)
	}
}
