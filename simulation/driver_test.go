package simulation_test

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/pkg/checkpoint"
	"github.com/absmach/fedsim/simulation"
)

type constTrainer struct {
	value   float64
	samples int
	fail    bool
}

func (t constTrainer) Train(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
	if t.fail {
		return client.FitResult{}, fmt.Errorf("training crashed")
	}

	return client.FitResult{
		Parameters: params.Parameters{{Name: "w", Shape: []int{1}, Data: []float64{t.value}}},
		NumSamples: t.samples,
	}, nil
}

func (t constTrainer) Evaluate(_ context.Context, _ params.Parameters, _ client.Config) (client.EvalResult, error) {
	return client.EvalResult{Loss: 0.5, NumSamples: t.samples}, nil
}

func initial() params.Parameters {
	return params.Parameters{{Name: "w", Shape: []int{1}, Data: []float64{0}}}
}

func TestDriverRunFixedPoint(t *testing.T) {
	// 3 clients weighted 10/20/30 all reporting [1.0]: global stays [1.0].
	samples := []int{10, 20, 30}
	factory := func(i int) (client.Trainer, int, error) {
		return constTrainer{value: 1.0, samples: samples[i]}, samples[i], nil
	}

	driver := simulation.NewDriver(simulation.Config{
		NumClients:  3,
		Rounds:      2,
		FitFraction: 1.0,
		Seed:        7,
	}, initial(), factory)

	state, records, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, state.Round)
	require.Len(t, records, 2)
	assert.InDelta(t, 1.0, state.Parameters[0].Data[0], 1e-9)
}

func TestDriverRunWithPersistentFailure(t *testing.T) {
	factory := func(i int) (client.Trainer, int, error) {
		return constTrainer{value: 1.0, samples: 10, fail: i == 2}, 10, nil
	}

	driver := simulation.NewDriver(simulation.Config{
		NumClients:  3,
		Rounds:      3,
		FitFraction: 1.0,
	}, initial(), factory)

	state, records, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, state.Round)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Len(t, r.Successes, 2)
		assert.Len(t, r.Failures, 1)
	}
}

func TestDriverFactoryErrorIsFatal(t *testing.T) {
	factory := func(i int) (client.Trainer, int, error) {
		if i == 1 {
			return nil, 0, fmt.Errorf("no data partition")
		}

		return constTrainer{value: 1, samples: 1}, 1, nil
	}

	driver := simulation.NewDriver(simulation.Config{
		NumClients:  2,
		Rounds:      1,
		FitFraction: 1.0,
	}, initial(), factory)

	_, _, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trainer 1")
}

func TestDriverValidatesConfig(t *testing.T) {
	factory := func(_ int) (client.Trainer, int, error) {
		return constTrainer{value: 1, samples: 1}, 1, nil
	}

	_, _, err := simulation.NewDriver(simulation.Config{Rounds: 1}, initial(), factory).Run(context.Background())
	assert.Error(t, err)

	_, _, err = simulation.NewDriver(simulation.Config{NumClients: 1}, initial(), factory).Run(context.Background())
	assert.Error(t, err)

	bad := params.Parameters{{Name: "w", Shape: []int{2}, Data: []float64{1}}}
	_, _, err = simulation.NewDriver(simulation.Config{NumClients: 1, Rounds: 1}, bad, factory).Run(context.Background())
	assert.Error(t, err)
}

func TestDriverEvalHookObservedEachRound(t *testing.T) {
	factory := func(_ int) (client.Trainer, int, error) {
		return constTrainer{value: 2, samples: 4}, 4, nil
	}

	var hookCalls int
	driver := simulation.NewDriver(simulation.Config{
		NumClients:  2,
		Rounds:      2,
		FitFraction: 1.0,
	}, initial(), factory,
		simulation.WithEvalHook(func(_ context.Context, round int, p params.Parameters) (map[string]float64, error) {
			hookCalls++

			return map[string]float64{"global_loss": float64(round)}, nil
		}),
	)

	_, records, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, hookCalls)
	assert.Equal(t, 1.0, records[0].HookMetrics["global_loss"])
	assert.Equal(t, 2.0, records[1].HookMetrics["global_loss"])
}

func TestDriverCheckpointsRounds(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(dir, "rounds"), filepath.Join(dir, "models"))
	require.NoError(t, err)

	factory := func(_ int) (client.Trainer, int, error) {
		return constTrainer{value: 1, samples: 2}, 2, nil
	}

	driver := simulation.NewDriver(simulation.Config{
		NumClients:  2,
		Rounds:      2,
		FitFraction: 1.0,
	}, initial(), factory,
		simulation.WithObserver(checkpoint.NewObserver(store, "sim-test", slog.Default())),
	)

	_, _, err = driver.Run(context.Background())
	require.NoError(t, err)

	versions, err := store.ListModels()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	record, err := store.LoadRound("sim-test", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, record.Round)
}

func TestDriverDistributedEvaluation(t *testing.T) {
	factory := func(_ int) (client.Trainer, int, error) {
		return constTrainer{value: 1, samples: 5}, 5, nil
	}

	driver := simulation.NewDriver(simulation.Config{
		NumClients:   3,
		Rounds:       1,
		FitFraction:  1.0,
		EvalFraction: 1.0,
	}, initial(), factory)

	_, records, err := driver.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.True(t, records[0].Evaluated)
	assert.InDelta(t, 0.5, records[0].EvalLoss, 1e-9)
}
