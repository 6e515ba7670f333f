package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
)

var _ strategy.Strategy = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	s      strategy.Strategy
}

func Tracing(tracer trace.Tracer, s strategy.Strategy) strategy.Strategy {
	return &tracing{tracer, s}
}

func (tm *tracing) ConfigureFit(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	ctx, span := tm.tracer.Start(ctx, "configure-fit", trace.WithAttributes(
		attribute.Int("round", round),
	))
	defer span.End()

	return tm.s.ConfigureFit(ctx, round, global)
}

func (tm *tracing) AggregateFit(ctx context.Context, round int, outcomes map[string]strategy.FitOutcome) (params.Parameters, map[string]float64, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate-fit", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("outcomes", len(outcomes)),
	))
	defer span.End()

	return tm.s.AggregateFit(ctx, round, outcomes)
}

func (tm *tracing) ConfigureEvaluate(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	ctx, span := tm.tracer.Start(ctx, "configure-evaluate", trace.WithAttributes(
		attribute.Int("round", round),
	))
	defer span.End()

	return tm.s.ConfigureEvaluate(ctx, round, global)
}

func (tm *tracing) AggregateEvaluate(ctx context.Context, round int, outcomes map[string]strategy.EvalOutcome) (float64, map[string]float64, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate-evaluate", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("outcomes", len(outcomes)),
	))
	defer span.End()

	return tm.s.AggregateEvaluate(ctx, round, outcomes)
}
