package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codecouncil"

// Metrics holds the council and implementer instruments. A nil *Metrics
// records nothing, so services can run without telemetry.
type Metrics struct {
	AgentCalls           metric.Int64Counter
	DegradedResults      metric.Int64Counter
	Deliberations        metric.Int64Counter
	VerificationAttempts metric.Int64Counter
	FeaturesPassed       metric.Int64Counter
	Sessions             metric.Int64Counter
	ReviewDuration       metric.Float64Histogram
	LLMCost              metric.Float64Histogram
}

// NewMetrics registers every instrument on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.AgentCalls, err = meter.Int64Counter("council.agent.calls",
		metric.WithDescription("Specialist and council member chat calls")); err != nil {
		return nil, err
	}
	if m.DegradedResults, err = meter.Int64Counter("council.agent.degraded",
		metric.WithDescription("Agent responses that could not be parsed")); err != nil {
		return nil, err
	}
	if m.Deliberations, err = meter.Int64Counter("council.deliberations",
		metric.WithDescription("Three-stage deliberations by outcome")); err != nil {
		return nil, err
	}
	if m.VerificationAttempts, err = meter.Int64Counter("implementer.verification.attempts",
		metric.WithDescription("Sandbox verification attempts")); err != nil {
		return nil, err
	}
	if m.FeaturesPassed, err = meter.Int64Counter("implementer.features.passed",
		metric.WithDescription("Features whose verification succeeded")); err != nil {
		return nil, err
	}
	if m.Sessions, err = meter.Int64Counter("implementer.sessions",
		metric.WithDescription("Implementation sessions by terminal status")); err != nil {
		return nil, err
	}
	if m.ReviewDuration, err = meter.Float64Histogram("council.review.duration_seconds",
		metric.WithDescription("Full review latency in seconds")); err != nil {
		return nil, err
	}
	if m.LLMCost, err = meter.Float64Histogram("council.llm.cost_usd",
		metric.WithDescription("Estimated cost per chat call in USD")); err != nil {
		return nil, err
	}
	return m, nil
}

// AgentCall counts one chat call for role with outcome ok|error|degraded.
func (m *Metrics) AgentCall(ctx context.Context, role, backend, outcome string) {
	if m == nil {
		return
	}
	m.AgentCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
	if outcome == "degraded" {
		m.DegradedResults.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
	}
}

// Cost records the estimated USD cost of one call.
func (m *Metrics) Cost(ctx context.Context, backend string, usd float64) {
	if m == nil {
		return
	}
	m.LLMCost.Record(ctx, usd, metric.WithAttributes(attribute.String("backend", backend)))
}

// Deliberation counts a finished deliberation by kind (plan|verdict) and outcome.
func (m *Metrics) Deliberation(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.Deliberations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// Review records the latency of a full review.
func (m *Metrics) Review(ctx context.Context, seconds float64, gate string) {
	if m == nil {
		return
	}
	m.ReviewDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("quality_gate", gate)))
}

// Verification counts one sandbox attempt.
func (m *Metrics) Verification(ctx context.Context, environment string, ok bool) {
	if m == nil {
		return
	}
	m.VerificationAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", environment),
		attribute.Bool("passed", ok),
	))
}

// FeaturePassed counts one feature marked passing.
func (m *Metrics) FeaturePassed(ctx context.Context) {
	if m == nil {
		return
	}
	m.FeaturesPassed.Add(ctx, 1)
}

// SessionEnded counts a session reaching a terminal status.
func (m *Metrics) SessionEnded(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
