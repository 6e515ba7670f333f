// Package strategy decides which clients take part in a round and how their
// results fold into the next global model.
package strategy

import (
	"context"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
)

// Phase tracks a round's aggregation lifecycle.
type Phase uint8

const (
	Configuring Phase = iota
	Dispatched
	Collecting
	Aggregated
	Failed
)

func (p Phase) String() string {
	switch p {
	case Configuring:
		return "Configuring"
	case Dispatched:
		return "Dispatched"
	case Collecting:
		return "Collecting"
	case Aggregated:
		return "Aggregated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Directive is one client's instruction for a round: the parameters to train
// or evaluate on and the round-scoped config forwarded untouched.
type Directive struct {
	Parameters params.Parameters
	Config     client.Config
}

// FitOutcome is a collected fit call: either a result or the client's error,
// never both.
type FitOutcome struct {
	Result client.FitResult
	Err    error
}

// EvalOutcome is a collected evaluate call.
type EvalOutcome struct {
	Result client.EvalResult
	Err    error
}

// Strategy configures each round's participation and aggregates what comes
// back. Aggregate methods discard failed outcomes and fail with
// errors.ErrNoResults only when nothing at all succeeded.
type Strategy interface {
	ConfigureFit(ctx context.Context, round int, global params.Parameters) (map[string]Directive, error)
	AggregateFit(ctx context.Context, round int, outcomes map[string]FitOutcome) (params.Parameters, map[string]float64, error)
	ConfigureEvaluate(ctx context.Context, round int, global params.Parameters) (map[string]Directive, error)
	AggregateEvaluate(ctx context.Context, round int, outcomes map[string]EvalOutcome) (float64, map[string]float64, error)
}
