package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
)

var _ strategy.Strategy = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	s       strategy.Strategy
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, s strategy.Strategy) strategy.Strategy {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		s:       s,
	}
}

func (mm *metricsMiddleware) ConfigureFit(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "configure-fit").Add(1)
		mm.latency.With("method", "configure-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.s.ConfigureFit(ctx, round, global)
}

func (mm *metricsMiddleware) AggregateFit(ctx context.Context, round int, outcomes map[string]strategy.FitOutcome) (params.Parameters, map[string]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate-fit").Add(1)
		mm.latency.With("method", "aggregate-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.s.AggregateFit(ctx, round, outcomes)
}

func (mm *metricsMiddleware) ConfigureEvaluate(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "configure-evaluate").Add(1)
		mm.latency.With("method", "configure-evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.s.ConfigureEvaluate(ctx, round, global)
}

func (mm *metricsMiddleware) AggregateEvaluate(ctx context.Context, round int, outcomes map[string]strategy.EvalOutcome) (float64, map[string]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate-evaluate").Add(1)
		mm.latency.With("method", "aggregate-evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.s.AggregateEvaluate(ctx, round, outcomes)
}
