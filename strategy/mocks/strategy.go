package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
)

// Strategy is a mock implementation of the strategy.Strategy interface.
type Strategy struct {
	mock.Mock
}

func (m *Strategy) ConfigureFit(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	args := m.Called(ctx, round, global)

	return args.Get(0).(map[string]strategy.Directive), args.Error(1)
}

func (m *Strategy) AggregateFit(ctx context.Context, round int, outcomes map[string]strategy.FitOutcome) (params.Parameters, map[string]float64, error) {
	args := m.Called(ctx, round, outcomes)

	var p params.Parameters
	if args.Get(0) != nil {
		p = args.Get(0).(params.Parameters)
	}
	var metrics map[string]float64
	if args.Get(1) != nil {
		metrics = args.Get(1).(map[string]float64)
	}

	return p, metrics, args.Error(2)
}

func (m *Strategy) ConfigureEvaluate(ctx context.Context, round int, global params.Parameters) (map[string]strategy.Directive, error) {
	args := m.Called(ctx, round, global)

	return args.Get(0).(map[string]strategy.Directive), args.Error(1)
}

func (m *Strategy) AggregateEvaluate(ctx context.Context, round int, outcomes map[string]strategy.EvalOutcome) (float64, map[string]float64, error) {
	args := m.Called(ctx, round, outcomes)

	var metrics map[string]float64
	if args.Get(1) != nil {
		metrics = args.Get(1).(map[string]float64)
	}

	return args.Get(0).(float64), metrics, args.Error(2)
}
