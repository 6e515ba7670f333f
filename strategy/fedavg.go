package strategy

import (
	"context"
	"fmt"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/pkg/errors"
)

// FedAvgConfig tunes participation and reproducibility. Seed anchors every
// round's client selection; two runs with the same seed, pool, and fractions
// select the same clients every round.
type FedAvgConfig struct {
	FitFraction  float64
	EvalFraction float64
	Seed         int64
	FitConfig    client.Config
	EvalConfig   client.Config
}

var _ Strategy = (*FedAvg)(nil)

// FedAvg implements Federated Averaging: every selected client trains on an
// identical copy of the global parameters and the new global model is the
// sample-count-weighted average of the updates. Weighting by sample count
// approximates minimizing the global empirical loss under uneven per-client
// data volumes; an unweighted mode is deliberately absent since it would
// bias the model toward small clients.
type FedAvg struct {
	pool *client.Pool
	cfg  FedAvgConfig
}

func NewFedAvg(pool *client.Pool, cfg FedAvgConfig) *FedAvg {
	return &FedAvg{
		pool: pool,
		cfg:  cfg,
	}
}

// Distinct per-round seed streams for fit and evaluate selection.
func (f *FedAvg) fitSeed(round int) int64 {
	return f.cfg.Seed + 2*int64(round)
}

func (f *FedAvg) evalSeed(round int) int64 {
	return f.cfg.Seed + 2*int64(round) + 1
}

func (f *FedAvg) ConfigureFit(_ context.Context, round int, global params.Parameters) (map[string]Directive, error) {
	selected := f.pool.Sample(f.cfg.FitFraction, f.fitSeed(round))

	directives := make(map[string]Directive, len(selected))
	for _, id := range selected {
		directives[id] = Directive{
			Parameters: global,
			Config:     f.cfg.FitConfig,
		}
	}

	return directives, nil
}

func (f *FedAvg) AggregateFit(_ context.Context, round int, outcomes map[string]FitOutcome) (params.Parameters, map[string]float64, error) {
	weighted := make([]params.Weighted, 0, len(outcomes))
	metricResults := make([]client.FitResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil || o.Result.NumSamples <= 0 {
			continue
		}
		weighted = append(weighted, params.Weighted{
			Params: o.Result.Parameters,
			Weight: float64(o.Result.NumSamples),
		})
		metricResults = append(metricResults, o.Result)
	}

	if len(weighted) == 0 {
		return nil, nil, fmt.Errorf("round %d: %w", round, errors.ErrNoResults)
	}

	aggregated, err := params.WeightedAverage(weighted)
	if err != nil {
		return nil, nil, fmt.Errorf("round %d: %w", round, err)
	}

	metrics := weightedMetrics(metricResults)

	return aggregated, metrics, nil
}

func (f *FedAvg) ConfigureEvaluate(_ context.Context, round int, global params.Parameters) (map[string]Directive, error) {
	selected := f.pool.Sample(f.cfg.EvalFraction, f.evalSeed(round))

	directives := make(map[string]Directive, len(selected))
	for _, id := range selected {
		directives[id] = Directive{
			Parameters: global,
			Config:     f.cfg.EvalConfig,
		}
	}

	return directives, nil
}

func (f *FedAvg) AggregateEvaluate(_ context.Context, round int, outcomes map[string]EvalOutcome) (float64, map[string]float64, error) {
	var lossSum, weightSum float64
	results := make([]client.FitResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil || o.Result.NumSamples <= 0 {
			continue
		}
		w := float64(o.Result.NumSamples)
		lossSum += o.Result.Loss * w
		weightSum += w
		results = append(results, client.FitResult{
			NumSamples: o.Result.NumSamples,
			Metrics:    o.Result.Metrics,
		})
	}

	if weightSum == 0 {
		return 0, nil, fmt.Errorf("round %d: %w", round, errors.ErrNoResults)
	}

	return lossSum / weightSum, weightedMetrics(results), nil
}

// weightedMetrics computes the sample-weighted mean of every reported metric.
// A metric's denominator covers only the clients that reported it, so clients
// with disjoint metric sets do not drag each other toward zero.
func weightedMetrics(results []client.FitResult) map[string]float64 {
	sums := make(map[string]float64)
	weights := make(map[string]float64)
	for _, r := range results {
		w := float64(r.NumSamples)
		for k, v := range r.Metrics {
			sums[k] += v * w
			weights[k] += w
		}
	}

	out := make(map[string]float64, len(sums))
	for k, s := range sums {
		out[k] = s / weights[k]
	}

	return out
}
