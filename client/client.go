// Package client defines the capability a federation participant exposes to
// the coordinator, the result types it reports back, and the registry the
// coordinator samples participants from.
package client

import (
	"context"

	"github.com/absmach/fedsim/params"
)

// Config carries round-scoped hints such as the local epoch count. It is
// forwarded to clients unchanged and never interpreted by the coordinator.
type Config map[string]any

// FitResult is what a client reports after one round of local training.
// NumSamples is the number of local training examples used and becomes the
// client's aggregation weight; results with NumSamples <= 0 are not eligible
// for aggregation.
type FitResult struct {
	Parameters params.Parameters  `json:"parameters" cbor:"1,keyasint"`
	NumSamples int                `json:"num_samples" cbor:"2,keyasint"`
	Metrics    map[string]float64 `json:"metrics,omitempty" cbor:"3,keyasint,omitempty"`
}

// EvalResult is what a client reports after evaluating parameters on its
// local data.
type EvalResult struct {
	Loss       float64            `json:"loss" cbor:"1,keyasint"`
	NumSamples int                `json:"num_samples" cbor:"2,keyasint"`
	Metrics    map[string]float64 `json:"metrics,omitempty" cbor:"3,keyasint,omitempty"`
}

// Proxy is the uniform capability wrapping one participant. The orchestrator
// is agnostic to whether a proxy trains in-process or forwards over a
// transport; both variants satisfy this interface. Fit and Evaluate may be
// called concurrently with calls on other proxies but proxies share no
// mutable state with each other.
type Proxy interface {
	ID() string
	Fit(ctx context.Context, p params.Parameters, cfg Config) (FitResult, error)
	Evaluate(ctx context.Context, p params.Parameters, cfg Config) (EvalResult, error)
}

// Trainer is the local training collaborator a LocalProxy delegates to. The
// coordinator treats it as a black box: it never inspects how training
// happens, only the parameters and metrics that come back.
type Trainer interface {
	Train(ctx context.Context, p params.Parameters, cfg Config) (FitResult, error)
	Evaluate(ctx context.Context, p params.Parameters, cfg Config) (EvalResult, error)
}
