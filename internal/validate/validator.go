// Package validate checks the internal consistency of a candidate.
package validate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/money"
)

// Config holds the validator tolerances.
type Config struct {
	BalanceEpsilon    decimal.Decimal // per-row running balance tolerance
	DriftAllowance    decimal.Decimal // cumulative rounding drift tolerated across rows
	RowCountTolerance float64         // allowed relative deviation from the region row count
	MaxErrorRowRatio  float64         // above this share of error rows the candidate fails
}

func DefaultConfig() Config {
	return Config{
		BalanceEpsilon:    decimal.New(1, -2),
		DriftAllowance:    decimal.New(1, 0),
		RowCountTolerance: 0.25,
		MaxErrorRowRatio:  0.25,
	}
}

// Expectation is what the regions told us about the document.
type Expectation struct {
	ExpectedRows int // row lines seen by the region extractor; 0 = unknown
}

// Validator never mutates the candidate.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs the row and document checks. A failing result never removes rows.
func (v *Validator) Validate(c *entity.Candidate, exp Expectation) entity.ValidationResult {
	var res entity.ValidationResult
	n := len(c.Transactions)
	if n == 0 {
		res.Violations = append(res.Violations, docViolation(entity.CodeNoTransactions, entity.SeverityError, "candidate has no rows"))
		res.Status = entity.ValidationFail
		return res
	}

	errorRows := map[int]bool{}
	add := func(row int, code string, sev entity.Severity, detail string) {
		res.Violations = append(res.Violations, entity.Violation{Code: code, Row: row, Severity: sev, Detail: detail})
		if sev == entity.SeverityError {
			errorRows[row] = true
		}
	}

	var prev decimal.NullDecimal
	drift, drifted := decimal.Zero, false
	for i, t := range c.Transactions {
		if !t.DateResolved {
			add(i, entity.FlagDateUnresolved, entity.SeverityError, fmt.Sprintf("raw date %q", t.RawDate))
		}
		if t.Amount.IsZero() {
			add(i, entity.FlagMissingAmount, entity.SeverityError, "")
		}
		if t.Description == "" {
			add(i, entity.FlagMissingDescription, entity.SeverityWarning, "")
		}
		if signMismatch(t) {
			add(i, entity.FlagSignMismatch, entity.SeverityError,
				fmt.Sprintf("amount %s on a %s row", money.Format(t.Amount), t.Direction))
		}
		if t.Evidence == entity.EvidenceSign {
			add(i, entity.FlagDirectionInferred, entity.SeverityWarning, "")
		}
		if t.HasFlag(entity.FlagDateAmbiguous) {
			add(i, entity.FlagDateAmbiguous, entity.SeverityWarning, "")
		}
		if t.HasFlag(entity.FlagDateNotMonotonic) {
			add(i, entity.FlagDateNotMonotonic, entity.SeverityError, "")
		}

		if t.Balance.Valid {
			if prev.Valid {
				want := prev.Decimal.Add(t.Amount)
				diff := want.Sub(t.Balance.Decimal).Abs()
				switch {
				case diff.GreaterThan(v.cfg.BalanceEpsilon):
					add(i, entity.FlagBalanceBreak, entity.SeverityError,
						fmt.Sprintf("expected %s, printed %s", money.Format(want), money.Format(t.Balance.Decimal)))
				default:
					drift = drift.Add(diff)
					if !drifted && drift.GreaterThan(v.cfg.DriftAllowance) {
						drifted = true
						add(i, entity.FlagBalanceBreak, entity.SeverityError,
							fmt.Sprintf("cumulative rounding drift %s", money.Format(drift)))
					}
				}
			}
			prev = t.Balance
		}
	}

	if exp.ExpectedRows > 0 {
		dev := math.Abs(float64(n-exp.ExpectedRows)) / float64(exp.ExpectedRows)
		if dev > v.cfg.RowCountTolerance {
			res.Violations = append(res.Violations, docViolation(entity.CodeRowCountImplausible, entity.SeverityWarning,
				fmt.Sprintf("%d rows, regions had %d", n, exp.ExpectedRows)))
		}
	}
	if !c.HasBalances() {
		res.Violations = append(res.Violations, docViolation(entity.CodeBalanceUnverifiable, entity.SeverityWarning, ""))
	}

	res.RowErrors = len(errorRows)
	switch {
	case float64(res.RowErrors)/float64(n) > v.cfg.MaxErrorRowRatio:
		res.Violations = append(res.Violations, docViolation(entity.CodeErrorRatioExceeded, entity.SeverityError,
			fmt.Sprintf("%d of %d rows have errors", res.RowErrors, n)))
		res.Status = entity.ValidationFail
	case len(res.Violations) > 0:
		res.Status = entity.ValidationPassWarnings
	default:
		res.Status = entity.ValidationPass
	}
	return res
}

func signMismatch(t entity.Transaction) bool {
	switch t.Direction {
	case entity.DirectionDebit:
		return t.Amount.IsPositive()
	case entity.DirectionCredit:
		return t.Amount.IsNegative()
	}
	return false
}

func docViolation(code string, sev entity.Severity, detail string) entity.Violation {
	return entity.Violation{Code: code, Row: -1, Severity: sev, Detail: detail}
}
