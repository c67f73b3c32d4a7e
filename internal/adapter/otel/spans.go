package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codecouncil"

// StartReviewSpan starts a span covering a full multi-agent review.
func StartReviewSpan(ctx context.Context, language string, gates []string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.review",
		trace.WithAttributes(
			attribute.String("review.language", language),
			attribute.StringSlice("review.gates", gates),
		),
	)
}

// StartAgentSpan starts a span for one specialist call.
func StartAgentSpan(ctx context.Context, role, backend, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.agent",
		trace.WithAttributes(
			attribute.String("agent.role", role),
			attribute.String("llm.backend", backend),
			attribute.String("llm.model", model),
		),
	)
}

// StartStageSpan starts a span for one deliberation stage (1, 2 or 3).
func StartStageSpan(ctx context.Context, kind string, stage int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "council.deliberation.stage",
		trace.WithAttributes(
			attribute.String("deliberation.kind", kind),
			attribute.Int("deliberation.stage", stage),
		),
	)
}

// StartSessionSpan starts a span for a whole implementation session.
func StartSessionSpan(ctx context.Context, sessionID, project string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "implementer.session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.project", project),
		),
	)
}

// StartFeatureSpan starts a span for one feature's generate/verify cycle.
func StartFeatureSpan(ctx context.Context, sessionID, featureID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "implementer.feature",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("feature.id", featureID),
		),
	)
}
