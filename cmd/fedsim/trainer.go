package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
)

// linearTrainer fits y = w·x + b by mini-batch SGD on a synthetic local
// dataset. Each virtual client draws its features from a shifted
// distribution, so the federation trains on non-IID partitions without any
// external ML dependency.
type linearTrainer struct {
	xs     [][]float64
	ys     []float64
	epochs int
	lr     float64
}

type syntheticDataset struct {
	xs [][]float64
	ys []float64
}

// makeDataset samples n points around a client-specific feature shift. The
// underlying truth is shared across clients so federated averaging has a
// common optimum to converge to.
func makeDataset(rng *rand.Rand, n, dim int, trueW []float64, trueB, shift float64) syntheticDataset {
	xs := make([][]float64, n)
	ys := make([]float64, n)
	for i := range xs {
		x := make([]float64, dim)
		y := trueB
		for j := range x {
			x[j] = rng.NormFloat64() + shift
			y += trueW[j] * x[j]
		}
		xs[i] = x
		ys[i] = y + 0.01*rng.NormFloat64()
	}

	return syntheticDataset{xs: xs, ys: ys}
}

func newLinearTrainer(ds syntheticDataset, epochs int, lr float64) *linearTrainer {
	return &linearTrainer{
		xs:     ds.xs,
		ys:     ds.ys,
		epochs: epochs,
		lr:     lr,
	}
}

func unpack(p params.Parameters) (w []float64, b float64, err error) {
	if len(p) != 2 || len(p[1].Data) != 1 {
		return nil, 0, fmt.Errorf("expected [weights, bias] parameter layout")
	}

	return p[0].Data, p[1].Data[0], nil
}

func pack(w []float64, b float64) params.Parameters {
	return params.Parameters{
		{Name: "w", Shape: []int{len(w)}, Data: w},
		{Name: "b", Shape: []int{1}, Data: []float64{b}},
	}
}

func (t *linearTrainer) Train(ctx context.Context, p params.Parameters, cfg client.Config) (client.FitResult, error) {
	w, b, err := unpack(p)
	if err != nil {
		return client.FitResult{}, err
	}

	epochs := t.epochs
	if v, ok := cfg["local_epochs"].(int); ok && v > 0 {
		epochs = v
	}

	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-ctx.Done():
			return client.FitResult{}, ctx.Err()
		default:
		}
		for i, x := range t.xs {
			pred := b
			for j, v := range x {
				pred += w[j] * v
			}
			grad := pred - t.ys[i]
			for j, v := range x {
				w[j] -= t.lr * grad * v
			}
			b -= t.lr * grad
		}
	}

	loss := t.mse(w, b)

	return client.FitResult{
		Parameters: pack(w, b),
		NumSamples: len(t.xs),
		Metrics:    map[string]float64{"train_loss": loss},
	}, nil
}

func (t *linearTrainer) Evaluate(_ context.Context, p params.Parameters, _ client.Config) (client.EvalResult, error) {
	w, b, err := unpack(p)
	if err != nil {
		return client.EvalResult{}, err
	}

	return client.EvalResult{
		Loss:       t.mse(w, b),
		NumSamples: len(t.xs),
	}, nil
}

func (t *linearTrainer) mse(w []float64, b float64) float64 {
	var sum float64
	for i, x := range t.xs {
		pred := b
		for j, v := range x {
			pred += w[j] * v
		}
		diff := pred - t.ys[i]
		sum += diff * diff
	}

	return sum / float64(len(t.xs))
}
