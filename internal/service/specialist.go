package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cotel "github.com/Strob0t/CodeCouncil/internal/adapter/otel"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
)

// AnalysisRequest is the input of a single specialist analysis.
type AnalysisRequest struct {
	Code     string
	Language string
	Context  string
	Profile  council.TaskProfile
}

// analysisData feeds the analyze_*.tmpl templates.
type analysisData struct {
	Language  string
	Code      string
	Context   string
	Framework string
	Findings  []council.Finding
}

type analysisPayload struct {
	Findings   []council.Finding `json:"findings"`
	Score      *float64          `json:"score"`
	Coverage   map[string]any    `json:"coverage"`
	Benchmarks map[string]any    `json:"benchmarks"`
	Metrics    map[string]any    `json:"metrics"`
}

// SpecialistAgent runs one role's structured analysis through the router.
type SpecialistAgent struct {
	spec        council.RoleSpec
	router      *ProviderRouter
	temperature float64
	timeout     time.Duration
	metrics     *cotel.Metrics
}

// NewSpecialistAgent returns the agent for role. timeout bounds each chat
// call; zero means no extra deadline.
func NewSpecialistAgent(role council.Role, router *ProviderRouter, timeout time.Duration, metrics *cotel.Metrics) *SpecialistAgent {
	return &SpecialistAgent{
		spec:        role.Spec(),
		router:      router,
		temperature: 0.3,
		timeout:     timeout,
		metrics:     metrics,
	}
}

// Role returns the agent's role.
func (a *SpecialistAgent) Role() council.Role { return a.spec.Role }

// Analyze asks the model for findings and a score. A response that cannot
// be parsed yields a degraded result instead of an error; only routing and
// transport failures are returned.
func (a *SpecialistAgent) Analyze(ctx context.Context, req AnalysisRequest) (council.AgentResult, error) {
	prompt, err := renderPrompt("analyze_"+string(a.spec.Role)+".tmpl", analysisData{
		Language: req.Language,
		Code:     sanitizePromptInput(req.Code),
		Context:  sanitizePromptInput(req.Context),
	})
	if err != nil {
		return council.AgentResult{}, err
	}

	text, err := a.chat(ctx, req.Profile, prompt)
	if err != nil {
		return council.AgentResult{}, fmt.Errorf("%s: %w", a.spec.AgentName, err)
	}

	payload, err := parseStructured[analysisPayload](text)
	if err != nil {
		slog.WarnContext(ctx, "agent output degraded", "agent", a.spec.AgentName, "error", err, "response", truncate(text, 200))
		a.metrics.AgentCall(ctx, string(a.spec.Role), "", "degraded")
		return a.degraded(), nil
	}
	return a.result(payload), nil
}

func (a *SpecialistAgent) result(p analysisPayload) council.AgentResult {
	findings := make([]council.Finding, 0, len(p.Findings))
	for _, f := range p.Findings {
		f.Severity = council.NormalizeSeverity(string(f.Severity))
		findings = append(findings, f)
	}

	score := council.NeutralScore
	if p.Score != nil {
		score = council.ClampScore(int(*p.Score))
	}

	res := council.AgentResult{
		AgentName: a.spec.AgentName,
		Role:      a.spec.Role,
		Status:    council.AgentCompleted,
		Findings:  findings,
		Score:     score,
	}
	switch a.spec.Role {
	case council.RoleQA:
		res.ExtraMetrics = map[string]any{"coverage": p.Coverage}
	case council.RolePerformance:
		res.ExtraMetrics = map[string]any{"benchmarks": p.Benchmarks}
	case council.RoleArchitecture:
		res.ExtraMetrics = map[string]any{"metrics": p.Metrics}
	}
	return res
}

// degraded is the stand-in result for an unparsable response.
func (a *SpecialistAgent) degraded() council.AgentResult {
	return council.AgentResult{
		AgentName: a.spec.AgentName,
		Role:      a.spec.Role,
		Status:    council.AgentCompleted,
		Findings: []council.Finding{{
			Severity:    council.SeverityMedium,
			Type:        council.FindingAnalysisError,
			Description: fmt.Sprintf("Could not parse %s analysis", a.spec.Role),
			Location:    "N/A",
			Fix:         "Manual review recommended",
		}},
		Score: council.NeutralScore,
	}
}

// GenerateTests asks for a test suite for code. An unparsable answer falls
// back to the first fenced block (or the whole answer) as the test code.
func (a *SpecialistAgent) GenerateTests(ctx context.Context, code, language, framework string, profile council.TaskProfile) (council.TestBundle, error) {
	if framework == "" {
		framework = defaultFramework(language)
	}
	prompt, err := renderPrompt("generate_tests.tmpl", analysisData{
		Language:  language,
		Code:      sanitizePromptInput(code),
		Framework: framework,
	})
	if err != nil {
		return council.TestBundle{}, err
	}

	text, err := a.chat(ctx, profile, prompt)
	if err != nil {
		return council.TestBundle{}, fmt.Errorf("generate tests: %w", err)
	}

	bundle, err := parseStructured[council.TestBundle](text)
	if err != nil || bundle.TestCode == "" {
		testCode, ok := firstCodeFence(text)
		if !ok {
			testCode = text
		}
		return council.TestBundle{
			TestCode:         testCode,
			TestCases:        []council.TestCase{{Name: "generated_test", Type: "unit", Description: "Generated test"}},
			Framework:        framework,
			CoverageEstimate: 70,
		}, nil
	}
	if bundle.Framework == "" {
		bundle.Framework = framework
	}
	if bundle.TestCases == nil {
		bundle.TestCases = []council.TestCase{}
	}
	return bundle, nil
}

// Fix asks the model to apply findings to code. An unparsable answer falls
// back to the first fenced block, or the original code, flagged for review.
func (a *SpecialistAgent) Fix(ctx context.Context, code, language string, findings []council.Finding, profile council.TaskProfile) (council.FixResult, error) {
	clean := make([]council.Finding, len(findings))
	for i, f := range findings {
		f.Description = sanitizePromptInput(f.Description)
		f.Fix = sanitizePromptInput(f.Fix)
		clean[i] = f
	}
	prompt, err := renderPrompt("fix.tmpl", analysisData{
		Language: language,
		Code:     sanitizePromptInput(code),
		Findings: clean,
	})
	if err != nil {
		return council.FixResult{}, err
	}

	text, err := a.chat(ctx, profile, prompt)
	if err != nil {
		return council.FixResult{}, fmt.Errorf("fix: %w", err)
	}

	res, err := parseStructured[council.FixResult](text)
	if err != nil || res.FixedCode == "" {
		fixed, ok := firstCodeFence(text)
		if !ok {
			fixed = code
		}
		return council.FixResult{
			FixedCode:    fixed,
			Changes:      []council.Change{{Description: "Applied fixes", File: "main", Lines: "N/A"}},
			FixesApplied: len(findings),
			NeedsReview:  true,
		}, nil
	}
	if res.Changes == nil {
		res.Changes = []council.Change{}
	}
	return res, nil
}

// chat routes profile through the role's pinning rules, then sends prompt.
func (a *SpecialistAgent) chat(ctx context.Context, profile council.TaskProfile, prompt string) (string, error) {
	route, err := a.router.Select(a.spec.Role.ProfileFor(profile))
	if err != nil {
		return "", err
	}

	ctx, span := cotel.StartAgentSpan(ctx, string(a.spec.Role), string(route.Backend), route.Model)
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := route.Client.Chat(ctx, llm.Request{
		Model:       route.Model,
		Messages:    llm.UserPrompt(prompt),
		Temperature: a.temperature,
	})
	if err != nil {
		a.metrics.AgentCall(ctx, string(a.spec.Role), string(route.Backend), "error")
		span.RecordError(err)
		return "", asTransport(err)
	}
	a.metrics.AgentCall(ctx, string(a.spec.Role), string(route.Backend), "ok")
	a.metrics.Cost(ctx, string(route.Backend), EstimateCost(route.Backend, resp.TokensIn, resp.TokensOut))
	return resp.Content, nil
}

// asTransport tags err as a transport failure unless it already is one.
func asTransport(err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}

func defaultFramework(language string) string {
	switch language {
	case "python":
		return "pytest"
	case "go":
		return "testing"
	default:
		return "jest"
	}
}
