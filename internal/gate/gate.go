// Package gate is the single path by which a candidate becomes eligible to win:
// date normalization, validation and scoring, in that order.
package gate

import (
	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/dates"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/score"
	"github.com/joseph-ayodele/statements-tracker/internal/validate"
)

// flags the gate owns and recomputes on every admission
var gateFlags = []string{
	entity.FlagMissingAmount,
	entity.FlagMissingDescription,
	entity.FlagSignMismatch,
	entity.FlagBalanceBreak,
	entity.FlagDirectionInferred,
	entity.FlagNoBalance,
}

// Expectation is the per-run context a candidate is judged against.
type Expectation struct {
	ExpectedRows int
	Hints        []string // prior layout hints, may pin the date order
}

// Scored is an admitted candidate. Its fields are unexported so the only way to
// obtain one is Gate.Admit.
type Scored struct {
	cand       *entity.Candidate
	validation entity.ValidationResult
	score      score.Result
	dates      dates.Decision
}

// Gate bundles the deterministic stages.
type Gate struct {
	dates     *dates.Normalizer
	validator *validate.Validator
	scorer    *score.Scorer
}

func New(n *dates.Normalizer, v *validate.Validator, s *score.Scorer) *Gate {
	return &Gate{dates: n, validator: v, scorer: s}
}

// Admit works on a copy; c is left untouched.
func (g *Gate) Admit(c *entity.Candidate, exp Expectation) Scored {
	cand := c.Clone()
	for i := range cand.Transactions {
		cand.Transactions[i].Row = i
		cand.Transactions[i].RemoveFlags(gateFlags...)
	}

	decision := g.dates.Normalize(cand, exp.Hints)
	result := g.validator.Validate(cand, validate.Expectation{ExpectedRows: exp.ExpectedRows})
	sc := g.scorer.Score(cand, result)

	for i := range cand.Transactions {
		t := &cand.Transactions[i]
		row := sc.Rows[i]
		for _, code := range row.Codes {
			t.AddFlag(code)
		}
		t.Confidence = row.Confidence
		t.NeedsReview = row.NeedsReview
	}
	return Scored{cand: cand, validation: result, score: sc, dates: decision}
}

// Confidence is the candidate confidence in [0,1].
func (s Scored) Confidence() float64 { return s.score.Confidence }

// Validation returns the validator verdict.
func (s Scored) Validation() entity.ValidationResult { return s.validation }

// Score returns the full scoring breakdown.
func (s Scored) Score() score.Result { return s.score }

// DateDecision reports how the date order was chosen.
func (s Scored) DateDecision() dates.Decision { return s.dates }

func (s Scored) ID() string { return s.cand.ID }
func (s Scored) Variant() string { return s.cand.Variant }
func (s Scored) Strategy() constants.Strategy { return s.cand.Strategy }
func (s Scored) Provenance() string { return s.cand.Provenance }
func (s Scored) SchemaType() constants.SchemaType { return s.cand.SchemaType }
func (s Scored) SchemaTypeRef() *string { return s.cand.SchemaTypeRef() }
func (s Scored) Failure() error { return s.cand.Failure }
func (s Scored) RowCount() int { return len(s.cand.Transactions) }
func (s Scored) Layout() constants.LayoutVariant { return s.cand.Layout }
func (s Scored) IsZero() bool { return s.cand == nil }

// Viable reports whether the candidate may compete: it has rows and was not a
// generation failure.
func (s Scored) Viable() bool { return s.cand.Viable() }

// Passed reports a clean validation (no warnings).
func (s Scored) Passed() bool { return s.validation.Status == entity.ValidationPass }

// MinRowConfidence is 0 for an empty candidate.
func (s Scored) MinRowConfidence() float64 {
	if len(s.cand.Transactions) == 0 {
		return 0
	}
	m := 1.0
	for _, t := range s.cand.Transactions {
		if t.Confidence < m {
			m = t.Confidence
		}
	}
	return m
}

// Candidate returns a copy of the admitted candidate.
func (s Scored) Candidate() *entity.Candidate { return s.cand.Clone() }

// Transactions returns a copy of the admitted rows.
func (s Scored) Transactions() []entity.Transaction { return s.cand.Clone().Transactions }
