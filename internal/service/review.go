package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	cotel "github.com/Strob0t/CodeCouncil/internal/adapter/otel"
	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/cache"
	"github.com/Strob0t/CodeCouncil/internal/port/messagequeue"
)

// ReviewRequest is the input of a full multi-agent review.
type ReviewRequest struct {
	Code     string
	Language string
	Context  string
	// Gates names the roles to run; empty selects qa, security and performance.
	Gates   []string
	Profile council.TaskProfile
}

// ReviewService fans a review out to the selected specialists and has the
// chairman synthesize their results.
type ReviewService struct {
	agents   map[council.Role]*SpecialistAgent
	cache    cache.Cache
	cacheTTL time.Duration
	queue    messagequeue.Queue
	metrics  *cotel.Metrics
}

// NewReviewService builds one specialist per role. cache and queue may be nil.
func NewReviewService(router *ProviderRouter, callTimeout time.Duration, c cache.Cache, cacheTTL time.Duration, q messagequeue.Queue, metrics *cotel.Metrics) *ReviewService {
	agents := make(map[council.Role]*SpecialistAgent, len(council.Roles()))
	for _, r := range council.Roles() {
		agents[r] = NewSpecialistAgent(r, router, callTimeout, metrics)
	}
	return &ReviewService{agents: agents, cache: c, cacheTTL: cacheTTL, queue: q, metrics: metrics}
}

// Review runs every selected gate concurrently. Any transport failure fails
// the whole request; unparsable agent output is absorbed per agent.
func (s *ReviewService) Review(ctx context.Context, req ReviewRequest) (council.ReviewOutcome, error) {
	if err := requireCode(req.Code, req.Language); err != nil {
		return council.ReviewOutcome{}, err
	}
	gates, err := resolveGates(req.Gates)
	if err != nil {
		return council.ReviewOutcome{}, err
	}

	key := reviewCacheKey(req, gates)
	if out, ok := cache.GetJSON[council.ReviewOutcome](ctx, s.cache, key); ok {
		slog.DebugContext(ctx, "review cache hit", "key", key)
		return out, nil
	}

	names := make([]string, len(gates))
	for i, g := range gates {
		names[i] = string(g)
	}
	ctx, span := cotel.StartReviewSpan(ctx, req.Language, names)
	defer span.End()
	start := time.Now()

	results := make([]council.AgentResult, len(gates))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range gates {
		agent := s.agents[role]
		g.Go(func() error {
			res, err := agent.Analyze(gctx, AnalysisRequest{
				Code:     req.Code,
				Language: req.Language,
				Context:  req.Context,
				Profile:  req.Profile,
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return council.ReviewOutcome{}, fmt.Errorf("review: %w", err)
	}

	out := council.ReviewOutcome{Agents: results, Report: Synthesize(results)}
	s.metrics.Review(ctx, time.Since(start).Seconds(), string(out.Report.QualityGate))

	cache.SetJSON(ctx, s.cache, key, out, s.cacheTTL)
	s.publish(ctx, messagequeue.SubjectReviewComplete, messagequeue.ReviewCompletedPayload{
		CacheKey:     key,
		Language:     req.Language,
		Gates:        names,
		OverallScore: out.Report.OverallScore,
		QualityGate:  string(out.Report.QualityGate),
	})
	return out, nil
}

// SecurityScan runs the security specialist alone.
func (s *ReviewService) SecurityScan(ctx context.Context, req AnalysisRequest) (council.AgentResult, error) {
	return s.scan(ctx, council.RoleSecurity, req)
}

// PerformanceScan runs the performance specialist alone.
func (s *ReviewService) PerformanceScan(ctx context.Context, req AnalysisRequest) (council.AgentResult, error) {
	return s.scan(ctx, council.RolePerformance, req)
}

func (s *ReviewService) scan(ctx context.Context, role council.Role, req AnalysisRequest) (council.AgentResult, error) {
	if err := requireCode(req.Code, req.Language); err != nil {
		return council.AgentResult{}, err
	}
	return s.agents[role].Analyze(ctx, req)
}

// GenerateTests delegates to the QA specialist.
func (s *ReviewService) GenerateTests(ctx context.Context, code, language, framework string, profile council.TaskProfile) (council.TestBundle, error) {
	if err := requireCode(code, language); err != nil {
		return council.TestBundle{}, err
	}
	return s.agents[council.RoleQA].GenerateTests(ctx, code, language, framework, profile)
}

// Fix asks the QA specialist to apply findings to code.
func (s *ReviewService) Fix(ctx context.Context, code, language string, findings []council.Finding, profile council.TaskProfile) (council.FixResult, error) {
	if err := requireCode(code, language); err != nil {
		return council.FixResult{}, err
	}
	if len(findings) == 0 {
		return council.FixResult{}, fmt.Errorf("%w: findings are required", domain.ErrValidation)
	}
	return s.agents[council.RoleQA].Fix(ctx, code, language, findings, profile)
}

func (s *ReviewService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil || !s.queue.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

func requireCode(code, language string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: code is required", domain.ErrValidation)
	}
	if strings.TrimSpace(language) == "" {
		return fmt.Errorf("%w: language is required", domain.ErrValidation)
	}
	return nil
}

// resolveGates parses gate names, dropping duplicates and keeping order.
func resolveGates(names []string) ([]council.Role, error) {
	if len(names) == 0 {
		return council.DefaultGates(), nil
	}
	seen := make(map[council.Role]bool, len(names))
	out := make([]council.Role, 0, len(names))
	for _, n := range names {
		r, err := council.ParseRole(n)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown quality gate %q", domain.ErrValidation, n)
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func reviewCacheKey(req ReviewRequest, gates []council.Role) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{req.Code, req.Language, req.Context, string(req.Profile)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, g := range gates {
		h.Write([]byte(g))
		h.Write([]byte{0})
	}
	return "review:" + hex.EncodeToString(h.Sum(nil))
}
