package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/orchestrator"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/strategy"
)

type recordingObserver struct {
	mu      sync.Mutex
	events  []orchestrator.Event
	records []orchestrator.RoundRecord
}

func (o *recordingObserver) Transition(_ context.Context, e orchestrator.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) RoundFinalized(_ context.Context, r orchestrator.RoundRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, r)
}

func (o *recordingObserver) phases() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	for i, e := range o.events {
		out[i] = e.Phase
	}

	return out
}

type fnTrainer struct {
	train func(ctx context.Context, p params.Parameters, cfg client.Config) (client.FitResult, error)
	eval  func(ctx context.Context, p params.Parameters, cfg client.Config) (client.EvalResult, error)
}

func (t fnTrainer) Train(ctx context.Context, p params.Parameters, cfg client.Config) (client.FitResult, error) {
	return t.train(ctx, p, cfg)
}

func (t fnTrainer) Evaluate(ctx context.Context, p params.Parameters, cfg client.Config) (client.EvalResult, error) {
	if t.eval == nil {
		return client.EvalResult{}, fmt.Errorf("no eval")
	}

	return t.eval(ctx, p, cfg)
}

func constTrainer(value float64, samples int) fnTrainer {
	return fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			return client.FitResult{Parameters: scalar(value), NumSamples: samples}, nil
		},
	}
}

func scalar(v float64) params.Parameters {
	return params.Parameters{{Name: "w", Shape: []int{1}, Data: []float64{v}}}
}

func build(t *testing.T, trainers map[string]client.Trainer, fitFraction float64, cfg orchestrator.Config, hook orchestrator.EvalHook) (*orchestrator.Orchestrator, *recordingObserver) {
	t.Helper()

	pool := client.NewPool()
	for id, tr := range trainers {
		require.NoError(t, pool.Register(client.NewLocalProxy(id, tr, 10)))
	}

	strat := strategy.NewFedAvg(pool, strategy.FedAvgConfig{FitFraction: fitFraction, Seed: 1})
	obs := &recordingObserver{}

	return orchestrator.New(pool, strat, scalar(0), obs, hook, cfg), obs
}

func TestRunConstantModelFixedPoint(t *testing.T) {
	// Clients weighted 10/20/30 all report [1.0]; aggregation must be the
	// trivial fixed point [1.0].
	trainers := map[string]client.Trainer{
		"a": constTrainer(1.0, 10),
		"b": constTrainer(1.0, 20),
		"c": constTrainer(1.0, 30),
	}

	orch, _ := build(t, trainers, 1.0, orchestrator.Config{Rounds: 3}, nil)
	state, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, state.Round)
	require.Len(t, records, 3)
	assert.InDelta(t, 1.0, state.Parameters[0].Data[0], 1e-9)
}

func TestRunWeightedAggregation(t *testing.T) {
	trainers := map[string]client.Trainer{
		"a": constTrainer(2.0, 1),
		"b": constTrainer(4.0, 3),
	}

	orch, _ := build(t, trainers, 1.0, orchestrator.Config{Rounds: 1}, nil)
	state, _, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 3.5, state.Parameters[0].Data[0], 1e-9)
}

func TestRunToleratesPersistentClientFailure(t *testing.T) {
	failing := fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			return client.FitResult{}, fmt.Errorf("device offline")
		},
	}
	trainers := map[string]client.Trainer{
		"a": constTrainer(1.0, 10),
		"b": constTrainer(1.0, 10),
		"c": failing,
	}

	orch, obs := build(t, trainers, 1.0, orchestrator.Config{Rounds: 3}, nil)
	state, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, state.Round)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Len(t, r.Successes, 2)
		assert.Len(t, r.Failures, 1)
		assert.Contains(t, r.Failures["c"], "device offline")
	}
	assert.Len(t, obs.records, 3)
}

func TestRunAbortsWhenAllClientsFail(t *testing.T) {
	failing := fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			return client.FitResult{}, fmt.Errorf("boom")
		},
	}
	trainers := map[string]client.Trainer{"a": failing, "b": failing}

	orch, obs := build(t, trainers, 1.0, orchestrator.Config{Rounds: 5}, nil)
	state, records, err := orch.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoResults)
	assert.Contains(t, err.Error(), "round 1")
	assert.Empty(t, records)
	assert.Equal(t, 0, state.Round)
	assert.Contains(t, obs.phases(), orchestrator.Aborted.String())
}

func TestRunEmptyRoundIsNoOp(t *testing.T) {
	// fraction 0 selects nobody: rounds are no-ops that still advance.
	trainers := map[string]client.Trainer{"a": constTrainer(1.0, 10)}

	orch, _ := build(t, trainers, 0.0, orchestrator.Config{Rounds: 2}, nil)
	state, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, state.Round)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.EmptyRound)
		assert.Empty(t, r.Selected)
	}
	// The initial parameters survive untouched.
	assert.InDelta(t, 0.0, state.Parameters[0].Data[0], 1e-9)
}

func TestRunEmptyRoundFailsWhenConfigured(t *testing.T) {
	trainers := map[string]client.Trainer{"a": constTrainer(1.0, 10)}

	orch, _ := build(t, trainers, 0.0, orchestrator.Config{Rounds: 2, FailOnEmptyRound: true}, nil)
	_, _, err := orch.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "selected no clients")
}

func TestRunPerCallTimeout(t *testing.T) {
	slow := fnTrainer{
		train: func(ctx context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			select {
			case <-ctx.Done():
				return client.FitResult{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return client.FitResult{Parameters: scalar(9), NumSamples: 1}, nil
			}
		},
	}
	trainers := map[string]client.Trainer{
		"fast": constTrainer(2.0, 1),
		"slow": slow,
	}

	orch, _ := build(t, trainers, 1.0, orchestrator.Config{Rounds: 1, CallTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	state, records, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, records, 1)
	assert.Len(t, records[0].Failures, 1)
	assert.InDelta(t, 2.0, state.Parameters[0].Data[0], 1e-9)
}

func TestRunBarrierWaitsForAllClients(t *testing.T) {
	var inFlight, maxInFlight int64
	barrierTrainer := fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				prev := atomic.LoadInt64(&maxInFlight)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxInFlight, prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)

			return client.FitResult{Parameters: scalar(1), NumSamples: 1}, nil
		},
	}

	trainers := make(map[string]client.Trainer)
	for i := 0; i < 10; i++ {
		trainers[fmt.Sprintf("client-%02d", i)] = barrierTrainer
	}

	orch, _ := build(t, trainers, 1.0, orchestrator.Config{Rounds: 2, ConcurrencyLimit: 3}, nil)
	_, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Len(t, r.Successes, 10, "aggregation started before the barrier")
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(3))
}

func TestRunCancellationStopsNewRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var rounds int64
	counting := fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			if atomic.AddInt64(&rounds, 1) >= 2 {
				cancel()
			}

			return client.FitResult{Parameters: scalar(1), NumSamples: 1}, nil
		},
	}

	orch, _ := build(t, map[string]client.Trainer{"a": counting}, 1.0, orchestrator.Config{Rounds: 100}, nil)
	state, records, err := orch.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	// The in-flight round drained to the barrier and was recorded.
	assert.GreaterOrEqual(t, len(records), 2)
	assert.Less(t, len(records), 100)
	assert.Equal(t, len(records), state.Round)
}

func TestRunInvokesEvalHook(t *testing.T) {
	var hookRounds []int
	hook := func(_ context.Context, round int, p params.Parameters) (map[string]float64, error) {
		hookRounds = append(hookRounds, round)

		return map[string]float64{"server_accuracy": 0.9}, nil
	}

	trainers := map[string]client.Trainer{"a": constTrainer(1.0, 10)}
	orch, _ := build(t, trainers, 1.0, orchestrator.Config{Rounds: 3}, hook)

	_, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, hookRounds)
	for _, r := range records {
		assert.Equal(t, 0.9, r.HookMetrics["server_accuracy"])
	}
}

func TestRunDistributedEvaluation(t *testing.T) {
	tr := fnTrainer{
		train: func(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
			return client.FitResult{Parameters: scalar(1), NumSamples: 4}, nil
		},
		eval: func(_ context.Context, _ params.Parameters, _ client.Config) (client.EvalResult, error) {
			return client.EvalResult{Loss: 0.25, NumSamples: 4, Metrics: map[string]float64{"accuracy": 0.75}}, nil
		},
	}

	pool := client.NewPool()
	require.NoError(t, pool.Register(client.NewLocalProxy("a", tr, 4)))
	strat := strategy.NewFedAvg(pool, strategy.FedAvgConfig{FitFraction: 1, EvalFraction: 1, Seed: 1})
	obs := &recordingObserver{}
	orch := orchestrator.New(pool, strat, scalar(0), obs, nil, orchestrator.Config{Rounds: 1})

	_, records, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.True(t, records[0].Evaluated)
	assert.InDelta(t, 0.25, records[0].EvalLoss, 1e-9)
	assert.InDelta(t, 0.75, records[0].EvalMetrics["accuracy"], 1e-9)
	assert.Contains(t, obs.phases(), orchestrator.Evaluating.String())
}

func TestRunPhaseOrder(t *testing.T) {
	trainers := map[string]client.Trainer{"a": constTrainer(1.0, 10)}
	orch, obs := build(t, trainers, 1.0, orchestrator.Config{Rounds: 1}, nil)

	_, _, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		orchestrator.Sampling.String(),
		orchestrator.Fitting.String(),
		orchestrator.Aggregating.String(),
		orchestrator.Done.String(),
	}, obs.phases())
}
