package checkpoint

import (
	"context"
	"log/slog"

	"github.com/absmach/fedsim/orchestrator"
)

var _ orchestrator.Observer = (*observer)(nil)

// observer checkpoints every finalized round and its aggregated model.
// Persistence failures are logged, never fatal to the run.
type observer struct {
	store  *Store
	runID  string
	logger *slog.Logger
}

func NewObserver(store *Store, runID string, logger *slog.Logger) orchestrator.Observer {
	return &observer{
		store:  store,
		runID:  runID,
		logger: logger,
	}
}

func (o *observer) Transition(_ context.Context, _ orchestrator.Event) {}

func (o *observer) RoundFinalized(ctx context.Context, r orchestrator.RoundRecord) {
	if err := o.store.SaveRound(o.runID, r); err != nil {
		o.logger.WarnContext(ctx, "Failed to checkpoint round",
			slog.Int("round", r.Round), slog.Any("error", err))
	}
	if r.EmptyRound {
		return
	}
	if err := o.store.SaveModel(r.Round, r.Parameters); err != nil {
		o.logger.WarnContext(ctx, "Failed to checkpoint model",
			slog.Int("round", r.Round), slog.Any("error", err))
	}
}
