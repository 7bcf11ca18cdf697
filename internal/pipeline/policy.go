package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/gate"
)

// Thresholds are the tunable acceptance bars of the state machine.
type Thresholds struct {
	High             float64 // accept at or above
	Low              float64 // rows below need review
	MinViable        float64 // below this after a retry, arbitrate
	MaxRetries       int
	LayoutConfidence float64         // layout score that allows the rules fast path
	TotalsTolerance  decimal.Decimal // net totals further apart than this disagree
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		High:             0.90,
		Low:              0.60,
		MinViable:        0.40,
		MaxRetries:       3,
		LayoutConfidence: 0.75,
		TotalsTolerance:  decimal.New(1, 0),
	}
}

// ThresholdsFromConfig maps the PIPELINE_* settings.
func ThresholdsFromConfig(cfg common.PipelineConfig) Thresholds {
	th := DefaultThresholds()
	th.High = cfg.High
	th.Low = cfg.Low
	th.MinViable = cfg.MinViable
	th.MaxRetries = cfg.MaxRetries
	th.LayoutConfidence = cfg.LayoutConfidence
	return th
}

// Snapshot is what the decision function sees after a candidate was scored.
type Snapshot struct {
	Candidates  []gate.Scored // every admitted candidate, in generation order
	RetriesUsed int
	Tried       []constants.Strategy
	Arbitrated  bool
}

// Decision is the next state and, for a retry, the strategy to run.
type Decision struct {
	Next      State
	Strategy  constants.Strategy
	Reason    string
	Exhausted bool // the retry budget ran out
}

// decision reasons, logged and used in tests
const (
	ReasonAccepted      = "accepted"
	ReasonLowConfidence = "below_min_viable"
	ReasonDisagreement  = "candidates_disagree"
	ReasonRetry         = "below_acceptance"
	ReasonExhausted     = "retry_budget_exhausted"
	ReasonArbitrated    = "arbitrated"
	ReasonNothingLeft   = "nothing_left_to_try"
)

// Policy is the pure decision function of the orchestrator.
type Policy struct {
	Thresholds
	Retry *RetryController
}

// Next decides what follows SCORED. The order of the checks is the contract:
// accept, arbitrate on doubt, retry, arbitrate on exhaustion, finalize.
func (p Policy) Next(s Snapshot) Decision {
	if s.Arbitrated {
		return Decision{Next: StateFinalized, Reason: ReasonArbitrated}
	}

	best := Best(s.Candidates)
	if !best.IsZero() && best.Confidence() >= p.High && best.Passed() && best.MinRowConfidence() >= p.Low {
		return Decision{Next: StateAccepted, Reason: ReasonAccepted}
	}

	viable := Viable(s.Candidates)
	if s.RetriesUsed >= 1 && len(viable) >= 2 {
		if best.Confidence() < p.MinViable {
			return Decision{Next: StateArbitrating, Reason: ReasonLowConfidence}
		}
		if Disagree(viable, p.TotalsTolerance) {
			return Decision{Next: StateArbitrating, Reason: ReasonDisagreement}
		}
	}

	if s.RetriesUsed < p.MaxRetries {
		if next, ok := p.retry().Next(s.Tried); ok {
			return Decision{Next: StateRetrying, Strategy: next, Reason: ReasonRetry}
		}
	}

	exhausted := s.RetriesUsed >= p.MaxRetries
	if len(viable) >= 2 {
		return Decision{Next: StateArbitrating, Reason: ReasonExhausted, Exhausted: exhausted}
	}
	if exhausted {
		return Decision{Next: StateFinalized, Reason: ReasonExhausted, Exhausted: true}
	}
	return Decision{Next: StateFinalized, Reason: ReasonNothingLeft}
}

func (p Policy) retry() *RetryController {
	if p.Retry == nil {
		return NewRetryController(nil)
	}
	return p.Retry
}

// Viable filters the candidates that may compete.
func Viable(cands []gate.Scored) []gate.Scored {
	var out []gate.Scored
	for _, c := range cands {
		if !c.IsZero() && c.Viable() {
			out = append(out, c)
		}
	}
	return out
}

// Best is the viable candidate with the highest confidence. Ties go to the
// deterministic strategy, then to the earlier candidate. The zero Scored means
// nothing is viable.
func Best(cands []gate.Scored) gate.Scored {
	var best gate.Scored
	for _, c := range Viable(cands) {
		switch {
		case best.IsZero(), c.Confidence() > best.Confidence():
			best = c
		case c.Confidence() == best.Confidence() && best.Strategy().ModelAssisted() && !c.Strategy().ModelAssisted():
			best = c
		}
	}
	return best
}

// Disagree reports whether any two candidates differ in row count or in net
// total by more than tol.
func Disagree(cands []gate.Scored, tol decimal.Decimal) bool {
	nets := make([]decimal.Decimal, len(cands))
	for i, c := range cands {
		nets[i] = c.Candidate().Net()
	}
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			if cands[i].RowCount() != cands[j].RowCount() {
				return true
			}
			if nets[i].Sub(nets[j]).Abs().GreaterThan(tol) {
				return true
			}
		}
	}
	return false
}
