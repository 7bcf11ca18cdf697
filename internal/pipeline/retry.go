package pipeline

import (
	"slices"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
)

// RetryController walks a fixed strategy ladder.
type RetryController struct {
	ladder []constants.Strategy
}

// NewRetryController uses constants.RetryLadder when ladder is empty.
func NewRetryController(ladder []constants.Strategy) *RetryController {
	if len(ladder) == 0 {
		ladder = constants.RetryLadder
	}
	return &RetryController{ladder: slices.Clone(ladder)}
}

// Initial is the rules fast path for a confident ledger, the model otherwise.
func (r *RetryController) Initial(lay layout.Layout, min float64) constants.Strategy {
	if lay.Confident(min) {
		return constants.StrategyRules
	}
	return constants.StrategyModel
}

// Next returns the first ladder strategy not in tried.
func (r *RetryController) Next(tried []constants.Strategy) (constants.Strategy, bool) {
	for _, s := range r.ladder {
		if !slices.Contains(tried, s) {
			return s, true
		}
	}
	return "", false
}
