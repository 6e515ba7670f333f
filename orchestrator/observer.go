package orchestrator

import (
	"context"
	"log/slog"
)

// Observer receives structured round records at defined transition points.
// It replaces any ambient logging: the orchestrator writes observations only
// through it.
type Observer interface {
	Transition(ctx context.Context, e Event)
	RoundFinalized(ctx context.Context, r RoundRecord)
}

type logObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns the default sink, logging transitions and finalized
// rounds through slog.
func NewLogObserver(logger *slog.Logger) Observer {
	return &logObserver{logger: logger}
}

func (o *logObserver) Transition(ctx context.Context, e Event) {
	o.logger.InfoContext(ctx, "Round transition",
		slog.Int("round", e.Round),
		slog.String("phase", e.Phase),
		slog.Int("selected_count", e.Selected),
		slog.Int("success_count", e.Successes),
		slog.Int("failure_count", e.Failures),
		slog.Any("aggregated_metrics", e.Metrics),
	)
}

func (o *logObserver) RoundFinalized(ctx context.Context, r RoundRecord) {
	args := []any{
		slog.Int("round", r.Round),
		slog.Int("selected_count", len(r.Selected)),
		slog.Int("success_count", len(r.Successes)),
		slog.Int("failure_count", len(r.Failures)),
		slog.String("duration", r.FinishTime.Sub(r.StartTime).String()),
		slog.Any("metrics", r.Metrics),
	}
	if r.Evaluated {
		args = append(args, slog.Float64("eval_loss", r.EvalLoss))
	}
	o.logger.InfoContext(ctx, "Round finished", args...)
}

type multiObserver struct {
	observers []Observer
}

// NewMultiObserver fans observations out to every given observer in order.
func NewMultiObserver(observers ...Observer) Observer {
	return &multiObserver{observers: observers}
}

func (o *multiObserver) Transition(ctx context.Context, e Event) {
	for _, obs := range o.observers {
		obs.Transition(ctx, e)
	}
}

func (o *multiObserver) RoundFinalized(ctx context.Context, r RoundRecord) {
	for _, obs := range o.observers {
		obs.RoundFinalized(ctx, r)
	}
}
