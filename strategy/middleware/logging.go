package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
)

var _ strategy.Strategy = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	s      strategy.Strategy
}

func Logging(logger *slog.Logger, s strategy.Strategy) strategy.Strategy {
	return &loggingMiddleware{
		logger: logger,
		s:      s,
	}
}

func (lm *loggingMiddleware) ConfigureFit(ctx context.Context, round int, global params.Parameters) (directives map[string]strategy.Directive, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("round", round),
			slog.Int("selected", len(directives)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Configure fit failed", args...)

			return
		}
		lm.logger.Info("Configure fit completed successfully", args...)
	}(time.Now())

	return lm.s.ConfigureFit(ctx, round, global)
}

func (lm *loggingMiddleware) AggregateFit(ctx context.Context, round int, outcomes map[string]strategy.FitOutcome) (aggregated params.Parameters, metrics map[string]float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("round", round),
			slog.Int("outcomes", len(outcomes)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate fit failed", args...)

			return
		}
		args = append(args, slog.Any("metrics", metrics))
		lm.logger.Info("Aggregate fit completed successfully", args...)
	}(time.Now())

	return lm.s.AggregateFit(ctx, round, outcomes)
}

func (lm *loggingMiddleware) ConfigureEvaluate(ctx context.Context, round int, global params.Parameters) (directives map[string]strategy.Directive, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("round", round),
			slog.Int("selected", len(directives)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Configure evaluate failed", args...)

			return
		}
		lm.logger.Info("Configure evaluate completed successfully", args...)
	}(time.Now())

	return lm.s.ConfigureEvaluate(ctx, round, global)
}

func (lm *loggingMiddleware) AggregateEvaluate(ctx context.Context, round int, outcomes map[string]strategy.EvalOutcome) (loss float64, metrics map[string]float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("round", round),
			slog.Int("outcomes", len(outcomes)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate evaluate failed", args...)

			return
		}
		args = append(args, slog.Float64("loss", loss))
		lm.logger.Info("Aggregate evaluate completed successfully", args...)
	}(time.Now())

	return lm.s.AggregateEvaluate(ctx, round, outcomes)
}
