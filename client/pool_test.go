package client_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/pkg/errors"
)

type staticTrainer struct {
	result client.FitResult
}

func (t staticTrainer) Train(_ context.Context, _ params.Parameters, _ client.Config) (client.FitResult, error) {
	return t.result, nil
}

func (t staticTrainer) Evaluate(_ context.Context, _ params.Parameters, _ client.Config) (client.EvalResult, error) {
	return client.EvalResult{}, nil
}

func newPool(t *testing.T, n int) *client.Pool {
	t.Helper()

	pool := client.NewPool()
	for i := 0; i < n; i++ {
		proxy := client.NewLocalProxy(fmt.Sprintf("client-%02d", i), staticTrainer{}, 10)
		require.NoError(t, pool.Register(proxy))
	}

	return pool
}

func TestPoolRegister(t *testing.T) {
	pool := client.NewPool()
	proxy := client.NewLocalProxy("client-00", staticTrainer{}, 10)

	require.NoError(t, pool.Register(proxy))
	assert.ErrorIs(t, pool.Register(proxy), errors.ErrDuplicateClient)
	assert.ErrorIs(t, pool.Register(client.NewLocalProxy("", staticTrainer{}, 1)), errors.ErrEmptyKey)
	assert.Equal(t, 1, pool.Size())
}

func TestPoolGet(t *testing.T) {
	pool := newPool(t, 3)

	proxy, err := pool.Get("client-01")
	require.NoError(t, err)
	assert.Equal(t, "client-01", proxy.ID())

	_, err = pool.Get("missing")
	assert.ErrorIs(t, err, errors.ErrUnknownClient)
}

func TestPoolSample(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		fraction float64
		selected int
	}{
		{"full pool", 10, 1.0, 10},
		{"half pool rounds up", 5, 0.5, 3},
		{"tiny fraction selects one", 10, 0.01, 1},
		{"zero fraction selects none", 10, 0.0, 0},
		{"fraction above one is clamped", 4, 1.5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newPool(t, tt.size)
			selected := pool.Sample(tt.fraction, 7)
			assert.Len(t, selected, tt.selected)

			seen := make(map[string]bool)
			for _, id := range selected {
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestPoolSampleDeterministic(t *testing.T) {
	pool := newPool(t, 20)

	first := pool.Sample(0.3, 12345)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, pool.Sample(0.3, 12345))
	}

	// A different seed should eventually pick a different set.
	different := false
	for seed := int64(0); seed < 20 && !different; seed++ {
		other := pool.Sample(0.3, seed)
		if !assert.ObjectsAreEqual(first, other) {
			different = true
		}
	}
	assert.True(t, different, "sampling ignored the seed")
}

func TestPoolSampleFullRegardlessOfSeed(t *testing.T) {
	pool := newPool(t, 6)
	all := pool.IDs()

	for seed := int64(0); seed < 5; seed++ {
		assert.Equal(t, all, pool.Sample(1.0, seed))
	}
}

func TestPoolSampleEmptyPool(t *testing.T) {
	pool := client.NewPool()
	assert.Empty(t, pool.Sample(1.0, 1))
}
