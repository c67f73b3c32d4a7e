package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/session"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
	"github.com/Strob0t/CodeCouncil/internal/service"
)

const defaultBodyLimit = 1 << 20

// Reviewer runs multi-agent reviews and single-role scans.
type Reviewer interface {
	Review(ctx context.Context, req service.ReviewRequest) (council.ReviewOutcome, error)
	SecurityScan(ctx context.Context, req service.AnalysisRequest) (council.AgentResult, error)
	PerformanceScan(ctx context.Context, req service.AnalysisRequest) (council.AgentResult, error)
	GenerateTests(ctx context.Context, code, language, framework string, profile council.TaskProfile) (council.TestBundle, error)
	Fix(ctx context.Context, code, language string, findings []council.Finding, profile council.TaskProfile) (council.FixResult, error)
}

// Deliberator runs the three-stage council.
type Deliberator interface {
	Plan(ctx context.Context, req service.PlanRequest) (council.Plan, error)
	Verdict(ctx context.Context, req service.VerdictRequest) (council.Verdict, error)
}

// Sessions starts and inspects implementation sessions.
type Sessions interface {
	Start(ctx context.Context, req service.StartRequest) (service.StartResult, error)
	Status(ctx context.Context, id string) (session.Snapshot, error)
	List(ctx context.Context) ([]session.Session, error)
	Features(ctx context.Context, id string) ([]ledger.FeatureRecord, error)
}

// HealthCheck probes one dependency for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds the services behind the REST surface.
type Handlers struct {
	Reviews   Reviewer
	Council   Deliberator
	Sessions  Sessions
	Providers func() []llm.Backend
	Checks    []HealthCheck
	BodyLimit int64

	// RequestTimeout bounds every REST request; zero disables it.
	RequestTimeout time.Duration
}

func (h *Handlers) limit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return defaultBodyLimit
}

// --- council ---

type planResponse struct {
	PlanID string `json:"plan_id"`
	council.Plan
}

// PlanFeature handles POST /council/plan.
func (h *Handlers) PlanFeature(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[planRequest](w, r, h.limit())
	if !ok {
		return
	}
	plan, err := h.Council.Plan(r.Context(), service.PlanRequest{
		Request: req.Request,
		Context: renderContext(req.Context),
	})
	if err != nil {
		writeDomainError(w, r, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, planResponse{PlanID: uuid.NewString(), Plan: plan})
}

type verdictResponse struct {
	ReviewID string `json:"review_id"`
	Decision string `json:"verdict"`
	council.Verdict
}

// ReviewVerdict handles POST /council/verdict.
func (h *Handlers) ReviewVerdict(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[verdictRequest](w, r, h.limit())
	if !ok {
		return
	}
	ctxText := req.Context
	if req.Tests != "" {
		ctxText = strings.TrimSpace(ctxText + "\n\nTests:\n" + req.Tests)
	}
	v, err := h.Council.Verdict(r.Context(), service.VerdictRequest{
		Code:     req.Code,
		Language: languageOr(req.Language, "javascript"),
		Context:  ctxText,
	})
	if err != nil {
		writeDomainError(w, r, err, "review not found")
		return
	}
	label := "REVISE"
	if v.Approved {
		label = "APPROVE"
	}
	writeJSON(w, http.StatusOK, verdictResponse{ReviewID: uuid.NewString(), Decision: label, Verdict: v})
}

// Review handles POST /council/review.
func (h *Handlers) Review(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[reviewRequest](w, r, h.limit())
	if !ok {
		return
	}
	out, err := h.Reviews.Review(r.Context(), service.ReviewRequest{
		Code:     req.Code,
		Language: languageOr(req.Language, "javascript"),
		Context:  req.Context,
		Gates:    req.QualityGates,
		Profile:  council.ParseProfile(req.LLMPreference),
	})
	if err != nil {
		writeDomainError(w, r, err, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// SecurityScan handles POST /council/security.
func (h *Handlers) SecurityScan(w http.ResponseWriter, r *http.Request) {
	h.scan(w, r, h.Reviews.SecurityScan)
}

// PerformanceScan handles POST /council/performance.
func (h *Handlers) PerformanceScan(w http.ResponseWriter, r *http.Request) {
	h.scan(w, r, h.Reviews.PerformanceScan)
}

func (h *Handlers) scan(w http.ResponseWriter, r *http.Request, run func(context.Context, service.AnalysisRequest) (council.AgentResult, error)) {
	req, ok := readJSON[scanRequest](w, r, h.limit())
	if !ok {
		return
	}
	pref := req.LLMPreference
	if pref == "" {
		pref = string(council.ProfileFast)
	}
	res, err := run(r.Context(), service.AnalysisRequest{
		Code:     req.Code,
		Language: languageOr(req.Language, "javascript"),
		Profile:  council.ParseProfile(pref),
	})
	if err != nil {
		writeDomainError(w, r, err, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateTests handles POST /council/qa/generate-tests.
func (h *Handlers) GenerateTests(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[generateTestsRequest](w, r, h.limit())
	if !ok {
		return
	}
	bundle, err := h.Reviews.GenerateTests(r.Context(), req.Code,
		languageOr(req.Language, "javascript"),
		languageOr(req.TestFramework, "jest"),
		council.ParseProfile(req.LLMPreference))
	if err != nil {
		writeDomainError(w, r, err, "tests not found")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// ApplyFixes handles POST /council/fix.
func (h *Handlers) ApplyFixes(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fixRequest](w, r, h.limit())
	if !ok {
		return
	}
	res, err := h.Reviews.Fix(r.Context(), req.Code, req.Language, req.Findings, council.ParseProfile(req.LLMPreference))
	if err != nil {
		writeDomainError(w, r, err, "fix not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- implementation sessions ---

// Implement handles POST /code/implement.
func (h *Handlers) Implement(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[implementRequest](w, r, h.limit())
	if !ok {
		return
	}
	res, err := h.Sessions.Start(r.Context(), service.StartRequest{
		Plan:          req.Plan,
		Project:       req.Project,
		WebhookURL:    req.WebhookURL,
		MaxIterations: req.MaxIterations,
		Environment:   req.Environment,
	})
	if err != nil {
		writeDomainError(w, r, err, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// SessionStatus handles GET /code/status/{id}.
func (h *Handlers) SessionStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Sessions.Status(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SessionFeatures handles GET /code/status/{id}/features.
func (h *Handlers) SessionFeatures(w http.ResponseWriter, r *http.Request) {
	records, err := h.Sessions.Features(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ListSessions handles GET /code/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sessions.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "no sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "total": len(list)})
}

// --- meta ---

type healthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Providers  []llm.Backend     `json:"providers"`
	Components map[string]string `json:"components"`
}

// Health handles GET /health. Failing components degrade the status but
// still answer 200 so orchestrators keep routing council traffic.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		Service:    "codecouncil",
		Providers:  h.providers(),
		Components: make(map[string]string, len(h.Checks)),
	}
	for _, c := range h.Checks {
		if err := c.Check(r.Context()); err != nil {
			resp.Components[c.Name] = "error: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[c.Name] = "ok"
	}
	if len(resp.Providers) == 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListProviders handles GET /providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.providers()})
}

func (h *Handlers) providers() []llm.Backend {
	if h.Providers == nil {
		return []llm.Backend{}
	}
	if p := h.Providers(); p != nil {
		return p
	}
	return []llm.Backend{}
}

// renderContext flattens the free-form context object into prompt text.
func renderContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
