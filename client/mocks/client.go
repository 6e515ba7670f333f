package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
)

// Proxy is a mock implementation of the client.Proxy interface.
type Proxy struct {
	mock.Mock
}

func (m *Proxy) ID() string {
	args := m.Called()

	return args.String(0)
}

func (m *Proxy) Fit(ctx context.Context, p params.Parameters, cfg client.Config) (client.FitResult, error) {
	args := m.Called(ctx, p, cfg)

	return args.Get(0).(client.FitResult), args.Error(1)
}

func (m *Proxy) Evaluate(ctx context.Context, p params.Parameters, cfg client.Config) (client.EvalResult, error) {
	args := m.Called(ctx, p, cfg)

	return args.Get(0).(client.EvalResult), args.Error(1)
}

// Trainer is a mock implementation of the client.Trainer interface.
type Trainer struct {
	mock.Mock
}

func (m *Trainer) Train(ctx context.Context, p params.Parameters, cfg client.Config) (client.FitResult, error) {
	args := m.Called(ctx, p, cfg)

	return args.Get(0).(client.FitResult), args.Error(1)
}

func (m *Trainer) Evaluate(ctx context.Context, p params.Parameters, cfg client.Config) (client.EvalResult, error) {
	args := m.Called(ctx, p, cfg)

	return args.Get(0).(client.EvalResult), args.Error(1)
}
