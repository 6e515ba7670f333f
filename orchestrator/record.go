package orchestrator

import (
	"time"

	"github.com/absmach/fedsim/params"
)

// Phase is the orchestrator's position in the round state machine.
type Phase uint8

const (
	Ready Phase = iota
	Sampling
	Fitting
	Aggregating
	Evaluating
	Done
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "Ready"
	case Sampling:
		return "Sampling"
	case Fitting:
		return "Fitting"
	case Aggregating:
		return "Aggregating"
	case Evaluating:
		return "Evaluating"
	case Done:
		return "Done"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// GlobalState is the coordinator-owned model state. It is mutated only
// between rounds, never while client calls are in flight.
type GlobalState struct {
	Parameters params.Parameters `json:"parameters"`
	Round      int               `json:"round"`
}

// RoundRecord is the immutable account of one finished round, kept for the
// caller's observability. Later rounds depend only on the aggregated
// parameters it produced.
type RoundRecord struct {
	Round       int                `json:"round"`
	Selected    []string           `json:"selected_clients"`
	Successes   []string           `json:"successes,omitempty"`
	Failures    map[string]string  `json:"failures,omitempty"`
	Parameters  params.Parameters  `json:"aggregated_parameters,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	EvalLoss    float64            `json:"eval_loss,omitempty"`
	EvalMetrics map[string]float64 `json:"eval_metrics,omitempty"`
	HookMetrics map[string]float64 `json:"hook_metrics,omitempty"`
	Evaluated   bool               `json:"evaluated"`
	EmptyRound  bool               `json:"empty_round,omitempty"`
	StartTime   time.Time          `json:"start_time"`
	FinishTime  time.Time          `json:"finish_time"`
}

// Event is one structured observation at a state transition.
type Event struct {
	Round     int                `json:"round"`
	Phase     string             `json:"phase"`
	Selected  int                `json:"selected_count"`
	Successes int                `json:"success_count"`
	Failures  int                `json:"failure_count"`
	Metrics   map[string]float64 `json:"aggregated_metrics,omitempty"`
}
