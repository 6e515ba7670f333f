// Package orchestrator drives the federated round loop: sample participants,
// dispatch local work concurrently, wait at the round barrier, aggregate, and
// move the global model forward one round at a time.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
	"github.com/absmach/fedsim/strategy"
)

const defConcurrency = 8

// EvalHook is the optional server-side evaluation collaborator, invoked once
// per round with the freshly aggregated parameters. Its result is observed
// and recorded, never fed back into aggregation.
type EvalHook func(ctx context.Context, round int, p params.Parameters) (map[string]float64, error)

// Config bounds a run.
type Config struct {
	// Rounds is the fixed number of rounds to drive.
	Rounds int
	// ConcurrencyLimit caps in-flight client calls within a round.
	ConcurrencyLimit int
	// CallTimeout bounds a single client call; a timed-out call counts as
	// that client's failure for the round. Zero disables the timeout.
	CallTimeout time.Duration
	// FailOnEmptyRound aborts the run when a round selects no clients.
	// When false such a round is a no-op that still advances the round index.
	FailOnEmptyRound bool
}

// Orchestrator owns the GlobalState. All strategy transitions happen on the
// goroutine that called Run; only client calls fan out.
type Orchestrator struct {
	pool     *client.Pool
	strat    strategy.Strategy
	observer Observer
	hook     EvalHook
	cfg      Config
	state    GlobalState
}

func New(pool *client.Pool, strat strategy.Strategy, initial params.Parameters, observer Observer, hook EvalHook, cfg Config) *Orchestrator {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = defConcurrency
	}

	return &Orchestrator{
		pool:     pool,
		strat:    strat,
		observer: observer,
		hook:     hook,
		cfg:      cfg,
		state: GlobalState{
			Parameters: initial.Clone(),
		},
	}
}

// Run drives the configured number of rounds to completion. It returns the
// final state, the records of every finished round, and the first fatal
// error, if any. Rounds already completed are never rolled back; on error the
// returned state reflects the last successful aggregation. Cancelling ctx
// stops before the next round starts; an in-flight round drains to the
// barrier first.
func (o *Orchestrator) Run(ctx context.Context) (GlobalState, []RoundRecord, error) {
	records := make([]RoundRecord, 0, o.cfg.Rounds)

	for round := 1; round <= o.cfg.Rounds; round++ {
		select {
		case <-ctx.Done():
			o.transition(ctx, Event{Round: round, Phase: Aborted.String()})

			return o.state, records, ctx.Err()
		default:
		}

		record, err := o.runRound(ctx, round)
		if err != nil {
			o.transition(ctx, Event{Round: round, Phase: Aborted.String()})

			return o.state, records, fmt.Errorf("run aborted at round %d: %w", round, err)
		}

		records = append(records, record)
		o.state.Round = round
		o.observer.RoundFinalized(ctx, record)
	}

	o.transition(ctx, Event{Round: o.state.Round, Phase: Done.String()})

	return o.state, records, nil
}

// State returns a snapshot of the current global state. Not safe to call
// concurrently with Run.
func (o *Orchestrator) State() GlobalState {
	return GlobalState{
		Parameters: o.state.Parameters.Clone(),
		Round:      o.state.Round,
	}
}

func (o *Orchestrator) runRound(ctx context.Context, round int) (RoundRecord, error) {
	record := RoundRecord{
		Round:     round,
		StartTime: time.Now(),
	}

	o.transition(ctx, Event{Round: round, Phase: Sampling.String()})
	directives, err := o.strat.ConfigureFit(ctx, round, o.state.Parameters)
	if err != nil {
		return RoundRecord{}, err
	}

	if len(directives) == 0 {
		if o.cfg.FailOnEmptyRound {
			return RoundRecord{}, fmt.Errorf("round %d selected no clients", round)
		}
		record.EmptyRound = true
		record.FinishTime = time.Now()

		return record, nil
	}

	for id := range directives {
		record.Selected = append(record.Selected, id)
	}
	sort.Strings(record.Selected)

	o.transition(ctx, Event{Round: round, Phase: Fitting.String(), Selected: len(directives)})
	outcomes := dispatch(ctx, o.pool, directives, o.cfg,
		func(ctx context.Context, p client.Proxy, d strategy.Directive) strategy.FitOutcome {
			res, err := p.Fit(ctx, d.Parameters, d.Config)

			return strategy.FitOutcome{Result: res, Err: err}
		})

	for id, out := range outcomes {
		if out.Err != nil {
			if record.Failures == nil {
				record.Failures = make(map[string]string)
			}
			record.Failures[id] = out.Err.Error()

			continue
		}
		record.Successes = append(record.Successes, id)
	}
	sort.Strings(record.Successes)

	o.transition(ctx, Event{
		Round:     round,
		Phase:     Aggregating.String(),
		Selected:  len(directives),
		Successes: len(record.Successes),
		Failures:  len(record.Failures),
	})
	aggregated, metrics, err := o.strat.AggregateFit(ctx, round, outcomes)
	if err != nil {
		return RoundRecord{}, err
	}
	o.state.Parameters = aggregated
	record.Parameters = aggregated.Clone()
	record.Metrics = metrics

	o.evaluate(ctx, round, &record)

	record.FinishTime = time.Now()

	return record, nil
}

// evaluate runs the distributed evaluation pass and the server-side hook.
// Both are observational: their failures are recorded, never fatal.
func (o *Orchestrator) evaluate(ctx context.Context, round int, record *RoundRecord) {
	evalDirectives, err := o.strat.ConfigureEvaluate(ctx, round, o.state.Parameters)
	if err == nil && len(evalDirectives) > 0 {
		o.transition(ctx, Event{Round: round, Phase: Evaluating.String(), Selected: len(evalDirectives)})
		outcomes := dispatch(ctx, o.pool, evalDirectives, o.cfg,
			func(ctx context.Context, p client.Proxy, d strategy.Directive) strategy.EvalOutcome {
				res, err := p.Evaluate(ctx, d.Parameters, d.Config)

				return strategy.EvalOutcome{Result: res, Err: err}
			})

		loss, evalMetrics, err := o.strat.AggregateEvaluate(ctx, round, outcomes)
		if err == nil {
			record.Evaluated = true
			record.EvalLoss = loss
			record.EvalMetrics = evalMetrics
		}
	}

	if o.hook != nil {
		metrics, err := o.hook(ctx, round, o.state.Parameters.Clone())
		if err == nil {
			record.HookMetrics = metrics
		}
	}
}

// dispatch fans a round's calls out across a bounded worker group and blocks
// until every call has returned, failed, or timed out. This wait is the round
// barrier: nothing downstream sees partial results.
func dispatch[O any](ctx context.Context, pool *client.Pool, directives map[string]strategy.Directive, cfg Config,
	call func(ctx context.Context, p client.Proxy, d strategy.Directive) O,
) map[string]O {
	var mu sync.Mutex
	outcomes := make(map[string]O, len(directives))

	g := &errgroup.Group{}
	g.SetLimit(cfg.ConcurrencyLimit)

	for id, d := range directives {
		id, d := id, d
		g.Go(func() error {
			callCtx := ctx
			cancel := func() {}
			if cfg.CallTimeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
			}
			defer cancel()

			var out O
			proxy, err := pool.Get(id)
			if err != nil {
				out = failedOutcome[O](err)
			} else {
				out = call(callCtx, proxy, d)
			}

			mu.Lock()
			outcomes[id] = out
			mu.Unlock()

			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func failedOutcome[O any](err error) O {
	var out O
	switch o := any(&out).(type) {
	case *strategy.FitOutcome:
		o.Err = err
	case *strategy.EvalOutcome:
		o.Err = err
	}

	return out
}

func (o *Orchestrator) transition(ctx context.Context, e Event) {
	o.observer.Transition(ctx, e)
}
