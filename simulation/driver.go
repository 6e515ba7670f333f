// Package simulation maps a configured number of virtual clients onto a
// client pool and drives the round orchestrator to completion. It is the
// externally visible entry point for in-process federated runs.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/google/uuid"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/orchestrator"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
	"github.com/absmach/fedsim/strategy/middleware"
)

// TrainerFactory builds the local trainer for one virtual client, returning
// the trainer and the size of the client's local dataset. It is invoked once
// per client before the first round.
type TrainerFactory func(index int) (client.Trainer, int, error)

// Config shapes a simulated run.
type Config struct {
	NumClients       int
	Rounds           int
	FitFraction      float64
	EvalFraction     float64
	Seed             int64
	ConcurrencyLimit int
	CallTimeout      time.Duration
	FailOnEmptyRound bool
	FitConfig        client.Config
	EvalConfig       client.Config
}

type Driver struct {
	cfg        Config
	initial    params.Parameters
	factory    TrainerFactory
	hook       orchestrator.EvalHook
	logger     *slog.Logger
	observers  []orchestrator.Observer
	decorators []StrategyDecorator
	runID      string
}

type Option func(*Driver)

// StrategyDecorator wraps the strategy with extra middleware, e.g. metrics
// or tracing, after the built-in logging layer.
type StrategyDecorator func(strategy.Strategy) strategy.Strategy

func WithStrategyDecorator(dec StrategyDecorator) Option {
	return func(d *Driver) {
		d.decorators = append(d.decorators, dec)
	}
}

func WithEvalHook(hook orchestrator.EvalHook) Option {
	return func(d *Driver) {
		d.hook = hook
	}
}

func WithObserver(obs orchestrator.Observer) Option {
	return func(d *Driver) {
		d.observers = append(d.observers, obs)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

func WithRunID(id string) Option {
	return func(d *Driver) {
		d.runID = id
	}
}

func NewDriver(cfg Config, initial params.Parameters, factory TrainerFactory, opts ...Option) *Driver {
	d := &Driver{
		cfg:     cfg,
		initial: initial,
		factory: factory,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// RunID identifies this driver's run in logs and checkpoints.
func (d *Driver) RunID() string {
	return d.runID
}

// Run builds the pool, wires the strategy and orchestrator, and drives all
// configured rounds. It returns the final global state, the per-round
// records, and the first fatal error along with the round it struck.
func (d *Driver) Run(ctx context.Context) (orchestrator.GlobalState, []orchestrator.RoundRecord, error) {
	if d.cfg.NumClients <= 0 {
		return orchestrator.GlobalState{}, nil, fmt.Errorf("at least one virtual client is required")
	}
	if d.cfg.Rounds <= 0 {
		return orchestrator.GlobalState{}, nil, fmt.Errorf("at least one round is required")
	}
	if err := d.initial.Validate(); err != nil {
		return orchestrator.GlobalState{}, nil, fmt.Errorf("initial parameters: %w", err)
	}

	namegen := namegenerator.NewGenerator()

	pool := client.NewPool()
	for i := 0; i < d.cfg.NumClients; i++ {
		trainer, numSamples, err := d.factory(i)
		if err != nil {
			return orchestrator.GlobalState{}, nil, fmt.Errorf("failed to build trainer %d: %w", i, err)
		}

		id := fmt.Sprintf("client-%03d", i)
		if err := pool.Register(client.NewLocalProxy(id, trainer, numSamples)); err != nil {
			return orchestrator.GlobalState{}, nil, fmt.Errorf("failed to register client %d: %w", i, err)
		}

		d.logger.Info("Registered virtual client",
			slog.String("run_id", d.runID),
			slog.String("id", id),
			slog.String("name", namegen.Generate()),
			slog.Int("num_samples", numSamples),
		)
	}

	var strat strategy.Strategy = strategy.NewFedAvg(pool, strategy.FedAvgConfig{
		FitFraction:  d.cfg.FitFraction,
		EvalFraction: d.cfg.EvalFraction,
		Seed:         d.cfg.Seed,
		FitConfig:    d.cfg.FitConfig,
		EvalConfig:   d.cfg.EvalConfig,
	})
	strat = middleware.Logging(d.logger, strat)
	for _, dec := range d.decorators {
		strat = dec(strat)
	}

	observers := append([]orchestrator.Observer{orchestrator.NewLogObserver(d.logger)}, d.observers...)

	orch := orchestrator.New(pool, strat, d.initial, orchestrator.NewMultiObserver(observers...), d.hook, orchestrator.Config{
		Rounds:           d.cfg.Rounds,
		ConcurrencyLimit: d.cfg.ConcurrencyLimit,
		CallTimeout:      d.cfg.CallTimeout,
		FailOnEmptyRound: d.cfg.FailOnEmptyRound,
	})

	return orch.Run(ctx)
}
