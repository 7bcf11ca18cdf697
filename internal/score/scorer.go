// Package score turns a validated candidate into confidences. Everything here is
// pure: the same candidate and validation result always give the same numbers.
package score

import (
	"math"
	"slices"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

// Weights combine the candidate-level signals. They should sum to 1.
type Weights struct {
	Pass  float64
	Prior float64
	Agree float64
}

// Config holds the scoring constants.
type Config struct {
	Weights   Weights
	Priors    map[constants.Strategy]float64
	Penalties map[string]float64
	Low       float64 // rows below this need review
	FailScale float64 // multiplier applied to a failing candidate
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{Pass: 0.5, Prior: 0.2, Agree: 0.3},
		Priors: map[constants.Strategy]float64{
			constants.StrategyRules:           0.95,
			constants.StrategyRulesRelaxed:    0.85,
			constants.StrategyModel:           0.80,
			constants.StrategyModelCorrective: 0.75,
			constants.StrategyArbitrated:      0.80,
		},
		Penalties: map[string]float64{
			entity.FlagDateUnresolved:     0.6,
			entity.FlagMissingAmount:      0.6,
			entity.FlagSignMismatch:       0.5,
			entity.FlagBalanceBreak:       0.4,
			entity.FlagDateNotMonotonic:   0.3,
			entity.FlagDirectionInferred:  0.35,
			entity.FlagDateAmbiguous:      0.1,
			entity.FlagMissingDescription: 0.1,
			entity.FlagNoBalance:          0.1,
		},
		Low:       0.60,
		FailScale: 0.5,
	}
}

// Row is the score of one transaction.
type Row struct {
	Confidence  float64
	NeedsReview bool
	Codes       []string // violation codes charged to the row
}

// Result is the score of a candidate.
type Result struct {
	Confidence float64
	PassRate   float64
	Agreement  float64
	Prior      float64
	Rows       []Row
}

// Scorer applies a Config.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Prior returns the starting confidence of a strategy.
func (s *Scorer) Prior(strategy constants.Strategy) float64 {
	if p, ok := s.cfg.Priors[strategy]; ok {
		return p
	}
	return s.cfg.Priors[constants.StrategyModel]
}

// Score computes row and candidate confidence.
func (s *Scorer) Score(c *entity.Candidate, v entity.ValidationResult) Result {
	prior := s.Prior(c.Strategy)
	n := len(c.Transactions)
	res := Result{Prior: prior, Rows: make([]Row, n)}
	if n == 0 {
		return res
	}

	clean, agreed := 0, 0
	for i, t := range c.Transactions {
		var (
			codes   []string
			penalty float64
			hasErr  bool
		)
		for _, viol := range v.ForRow(i) {
			if !slices.Contains(codes, viol.Code) {
				codes = append(codes, viol.Code)
				penalty += s.cfg.Penalties[viol.Code]
			}
			if viol.Severity == entity.SeverityError {
				hasErr = true
			}
		}
		if !t.Balance.Valid {
			codes = append(codes, entity.FlagNoBalance)
			penalty += s.cfg.Penalties[entity.FlagNoBalance]
		}

		conf := clamp(prior * (1 - penalty))
		res.Rows[i] = Row{
			Confidence:  conf,
			NeedsReview: conf < s.cfg.Low || forcesReview(t, codes),
			Codes:       codes,
		}
		if !hasErr {
			clean++
		}
		if resolvedWithoutAmbiguity(t, codes) {
			agreed++
		}
	}

	res.PassRate = float64(clean) / float64(n)
	res.Agreement = float64(agreed) / float64(n)
	w := s.cfg.Weights
	conf := w.Pass*res.PassRate + w.Prior*prior + w.Agree*res.Agreement
	if v.Status == entity.ValidationFail {
		conf *= s.cfg.FailScale
	}
	res.Confidence = clamp(conf)
	return res
}

// forcesReview reports rows that need a human whatever their confidence: the
// date is a best guess or the arbitrator saw the candidates disagree.
func forcesReview(t entity.Transaction, codes []string) bool {
	for _, f := range []string{entity.FlagDateNotMonotonic, entity.FlagDateUnresolved, entity.FlagArbitrationSplit} {
		if t.HasFlag(f) || slices.Contains(codes, f) {
			return true
		}
	}
	return false
}

func resolvedWithoutAmbiguity(t entity.Transaction, codes []string) bool {
	if !t.DateResolved || t.Amount.IsZero() {
		return false
	}
	for _, c := range codes {
		switch c {
		case entity.FlagDateAmbiguous, entity.FlagDirectionInferred, entity.FlagDateUnresolved, entity.FlagMissingAmount:
			return false
		}
	}
	return true
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
