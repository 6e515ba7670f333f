package client

import (
	"context"
	"fmt"

	"github.com/absmach/fedsim/params"
)

var _ Proxy = (*LocalProxy)(nil)

// LocalProxy is the in-process proxy variant: a direct call into a Trainer.
// numSamples is the size of the client's local dataset, used as the
// aggregation weight whenever the trainer does not report one itself.
type LocalProxy struct {
	id         string
	trainer    Trainer
	numSamples int
}

func NewLocalProxy(id string, trainer Trainer, numSamples int) *LocalProxy {
	return &LocalProxy{
		id:         id,
		trainer:    trainer,
		numSamples: numSamples,
	}
}

func (p *LocalProxy) ID() string {
	return p.id
}

func (p *LocalProxy) Fit(ctx context.Context, global params.Parameters, cfg Config) (FitResult, error) {
	res, err := p.trainer.Train(ctx, global.Clone(), cfg)
	if err != nil {
		return FitResult{}, fmt.Errorf("client %s fit: %w", p.id, err)
	}
	if res.NumSamples <= 0 {
		res.NumSamples = p.numSamples
	}

	return res, nil
}

func (p *LocalProxy) Evaluate(ctx context.Context, global params.Parameters, cfg Config) (EvalResult, error) {
	res, err := p.trainer.Evaluate(ctx, global.Clone(), cfg)
	if err != nil {
		return EvalResult{}, fmt.Errorf("client %s evaluate: %w", p.id, err)
	}
	if res.NumSamples <= 0 {
		res.NumSamples = p.numSamples
	}

	return res, nil
}
