package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	cchttp "github.com/Strob0t/CodeCouncil/internal/adapter/http"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

type mockReviewer struct {
	lastReview service.ReviewRequest
	lastScan   service.AnalysisRequest
	err        error
}

func (m *mockReviewer) Review(_ context.Context, req service.ReviewRequest) (council.ReviewOutcome, error) {
	m.lastReview = req
	if m.err != nil {
		return council.ReviewOutcome{}, m.err
	}
	return council.ReviewOutcome{Report: council.Report{OverallScore: 82, QualityGate: council.GatePassed}}, nil
}

func (m *mockReviewer) SecurityScan(_ context.Context, req service.AnalysisRequest) (council.AgentResult, error) {
	m.lastScan = req
	return council.AgentResult{Role: council.RoleSecurity, Score: 90, Status: council.AgentCompleted}, m.err
}

func (m *mockReviewer) PerformanceScan(_ context.Context, req service.AnalysisRequest) (council.AgentResult, error) {
	m.lastScan = req
	return council.AgentResult{Role: council.RolePerformance, Score: 75, Status: council.AgentCompleted}, m.err
}

func (m *mockReviewer) GenerateTests(_ context.Context, _, _, framework string, _ council.TaskProfile) (council.TestBundle, error) {
	return council.TestBundle{Framework: framework, TestCode: "test('x', () => {})"}, m.err
}

func (m *mockReviewer) Fix(_ context.Context, code, _ string, findings []council.Finding, _ council.TaskProfile) (council.FixResult, error) {
	return council.FixResult{FixedCode: code, FixesApplied: len(findings)}, m.err
}

type mockCouncil struct {
	err error
}

func (m *mockCouncil) Plan(_ context.Context, req service.PlanRequest) (council.Plan, error) {
	if m.err != nil {
		return council.Plan{}, m.err
	}
	return council.Plan{
		Architecture: "plan for " + req.Request,
		Features:     []council.FeatureSpec{{ID: "F1", Category: "core"}},
		Consensus:    0.75,
	}, nil
}

func (m *mockCouncil) Verdict(context.Context, service.VerdictRequest) (council.Verdict, error) {
	return council.Verdict{Approved: true, Security: 9, Consensus: 0.5}, m.err
}

type mockSessions struct {
	started []service.StartRequest
	startErr error
}

func (m *mockSessions) Start(_ context.Context, req service.StartRequest) (service.StartResult, error) {
	if m.startErr != nil {
		return service.StartResult{}, m.startErr
	}
	m.started = append(m.started, req)
	return service.StartResult{SessionID: "session-1", Status: session.StatusStarted, SandboxID: "sbx-1"}, nil
}

func (m *mockSessions) Status(_ context.Context, id string) (session.Snapshot, error) {
	if id != "session-1" {
		return session.Snapshot{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return session.Snapshot{
		Session:       session.Session{ID: id, Status: session.StatusRunning, CommitCount: 2},
		SandboxStatus: "unknown",
	}, nil
}

func (m *mockSessions) List(context.Context) ([]session.Session, error) {
	return []session.Session{{ID: "session-1"}}, nil
}

func (m *mockSessions) Features(_ context.Context, id string) ([]ledger.FeatureRecord, error) {
	if id != "session-1" {
		return nil, domain.ErrNotFound
	}
	return []ledger.FeatureRecord{{FeatureSpec: council.FeatureSpec{ID: "F1"}}}, nil
}

type fixture struct {
	router   chi.Router
	reviews  *mockReviewer
	council  *mockCouncil
	sessions *mockSessions
}

func newFixture() *fixture {
	f := &fixture{reviews: &mockReviewer{}, council: &mockCouncil{}, sessions: &mockSessions{}}
	h := &cchttp.Handlers{
		Reviews:   f.reviews,
		Council:   f.council,
		Sessions:  f.sessions,
		Providers: func() []llm.Backend { return []llm.Backend{llm.BackendGroq} },
		Checks: []cchttp.HealthCheck{
			{Name: "sandbox", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
	}
	r := chi.NewRouter()
	cchttp.MountRoutes(r, h, nil, nil)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestReviewDefaultsAndProfile(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/council/review", `{"code": "let x = 1", "llm_preference": "quality"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if f.reviews.lastReview.Language != "javascript" {
		t.Errorf("expected default language, got %q", f.reviews.lastReview.Language)
	}
	if f.reviews.lastReview.Profile != council.ProfileQuality {
		t.Errorf("expected quality profile, got %s", f.reviews.lastReview.Profile)
	}
	out := decode[council.ReviewOutcome](t, rec)
	if out.Report.OverallScore != 82 {
		t.Errorf("unexpected report %+v", out.Report)
	}
}

func TestReviewAcceptsRoleAliases(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/council/review", `{"code": "x", "quality_gates": ["testing", "architect", " Security "]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := f.reviews.lastReview.Gates
	if len(got) != 3 || got[0] != "testing" || got[1] != "architect" {
		t.Errorf("gates not passed through: %v", got)
	}
}

func TestReviewValidation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing code", `{"language": "go"}`, "code is required"},
		{"unknown gate", `{"code": "x", "quality_gates": ["style"]}`, "quality_gates[0] must be one of"},
		{"malformed", `{"code":`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/council/review", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("expected %q in %s", tt.want, rec.Body)
			}
		})
	}
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: gate bogus", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: timeout", domain.ErrTransport), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f := newFixture()
		f.reviews.err = tt.err
		rec := f.do(http.MethodPost, "/council/review", `{"code": "x"}`)
		if rec.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, rec.Code)
		}
	}
}

func TestScansDefaultToFastProfile(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/council/security", "/council/performance"} {
		rec := f.do(http.MethodPost, path, `{"code": "x"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if f.reviews.lastScan.Profile != council.ProfileFast {
			t.Errorf("%s: expected fast profile, got %s", path, f.reviews.lastScan.Profile)
		}
	}
}

func TestGenerateTestsAndFix(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/council/qa/generate-tests", `{"code": "x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if b := decode[council.TestBundle](t, rec); b.Framework != "jest" {
		t.Errorf("expected default jest framework, got %q", b.Framework)
	}

	rec = f.do(http.MethodPost, "/council/fix", `{"code": "x", "language": "go",
		"findings": [{"severity": "high", "description": "sql injection"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if res := decode[council.FixResult](t, rec); res.FixesApplied != 1 {
		t.Errorf("unexpected fix result %+v", res)
	}

	if rec := f.do(http.MethodPost, "/council/fix", `{"code": "x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("fix without language should be 400, got %d", rec.Code)
	}
}

func TestPlanAndVerdict(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/council/plan", `{"request": "todo app", "context": {"stack": "node"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	plan := decode[map[string]any](t, rec)
	if plan["plan_id"] == "" || plan["architecture"] != "plan for todo app" || plan["council_consensus"] != 0.75 {
		t.Errorf("unexpected plan %v", plan)
	}

	rec = f.do(http.MethodPost, "/council/verdict", `{"code": "x", "tests": "it works"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	v := decode[map[string]any](t, rec)
	if v["verdict"] != "APPROVE" || v["approved"] != true {
		t.Errorf("unexpected verdict %v", v)
	}

	f.council.err = fmt.Errorf("stage 1: %w", domain.ErrTransport)
	if rec := f.do(http.MethodPost, "/council/plan", `{"request": "x"}`); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when every member fails, got %d", rec.Code)
	}
}

func TestImplementLifecycle(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/code/implement", `{
		"plan": {"features": [{"id": "F1", "category": "core"}]},
		"project_dir": "todo",
		"webhook_url": "http://hooks.local/progress",
		"environment": "python-3.11"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if len(f.sessions.started) != 1 || f.sessions.started[0].Environment != "python-3.11" {
		t.Fatalf("unexpected start requests %+v", f.sessions.started)
	}
	res := decode[service.StartResult](t, rec)
	if res.SessionID != "session-1" || res.Status != session.StatusStarted {
		t.Errorf("unexpected start result %+v", res)
	}

	rec = f.do(http.MethodGet, "/code/status/session-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decode[map[string]any](t, rec)
	if snap["sandbox_status"] != "unknown" || snap["git_commits"] != float64(2) {
		t.Errorf("unexpected snapshot %v", snap)
	}

	if rec := f.do(http.MethodGet, "/code/status/session-404", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/code/status/session-1/features", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for features, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/code/sessions", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for list, got %d", rec.Code)
	}
}

func TestImplementValidation(t *testing.T) {
	f := newFixture()

	if rec := f.do(http.MethodPost, "/code/implement", `{"plan": {}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing project should be 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/code/implement", `{"project_dir": "p", "webhook_url": "not a url"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad webhook should be 400, got %d", rec.Code)
	}

	f.sessions.startErr = fmt.Errorf("%w: plan has no features", domain.ErrValidation)
	rec := f.do(http.MethodPost, "/code/implement", `{"project_dir": "p"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "plan has no features") {
		t.Errorf("expected 400 with service message, got %d: %s", rec.Code, rec.Body)
	}
}

func TestHealthDegraded(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Errorf("failing check should degrade health, got %v", body["status"])
	}
	comps, _ := body["components"].(map[string]any)
	if !strings.HasPrefix(fmt.Sprint(comps["sandbox"]), "error:") {
		t.Errorf("unexpected components %v", comps)
	}

	rec = f.do(http.MethodGet, "/providers", "")
	if !strings.Contains(rec.Body.String(), "groq") {
		t.Errorf("expected groq in providers, got %s", rec.Body)
	}
}
