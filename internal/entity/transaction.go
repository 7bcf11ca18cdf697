package entity

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the debit/credit side of a transaction.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Evidence records what decided a row's direction.
type Evidence string

const (
	EvidenceColumn  Evidence = "column"  // separate withdrawal/deposit columns
	EvidenceMarker  Evidence = "marker"  // CR/DR annotation
	EvidenceBalance Evidence = "balance" // running balance delta
	EvidenceModel   Evidence = "model"   // stated by the model
	EvidenceSign    Evidence = "sign"    // printed sign only
)

// Row flags shared by the date normalizer, validator and scorer.
const (
	FlagDateUnresolved     = "date_unresolved"
	FlagDateAmbiguous      = "date_ambiguous"
	FlagDateNotMonotonic   = "date_not_monotonic"
	FlagMissingAmount      = "missing_amount"
	FlagMissingDescription = "missing_description"
	FlagSignMismatch       = "sign_mismatch"
	FlagBalanceBreak       = "balance_break"
	FlagDirectionInferred  = "direction_inferred"
	FlagNoBalance          = "no_balance"
	FlagArbitrationSplit   = "arbitration_disagreement"
)

// Transaction is an intermediate row of a candidate.
type Transaction struct {
	Row          int                 `json:"row"`
	Page         int                 `json:"page"`
	RawDate      string              `json:"raw_date"`
	Date         time.Time           `json:"-"`
	DateResolved bool                `json:"date_resolved"`
	Description  string              `json:"description"`
	Amount       decimal.Decimal     `json:"amount"` // debits negative
	Direction    Direction           `json:"direction"`
	Balance      decimal.NullDecimal `json:"balance"`
	Evidence     Evidence            `json:"evidence"`
	Confidence   float64             `json:"confidence"`
	NeedsReview  bool                `json:"needs_review"`
	Flags        []string            `json:"flags,omitempty"`
	Raw          string              `json:"raw,omitempty"`
}

// ISODate returns the normalized date or "" when unresolved.
func (t Transaction) ISODate() string {
	if !t.DateResolved {
		return ""
	}
	return t.Date.Format("2006-01-02")
}

// HasFlag reports whether the row carries flag.
func (t Transaction) HasFlag(flag string) bool {
	return slices.Contains(t.Flags, flag)
}

// AddFlag records flag once.
func (t *Transaction) AddFlag(flag string) {
	if !t.HasFlag(flag) {
		t.Flags = append(t.Flags, flag)
	}
}

// RemoveFlags drops the given flags.
func (t *Transaction) RemoveFlags(flags ...string) {
	t.Flags = slices.DeleteFunc(t.Flags, func(f string) bool {
		return slices.Contains(flags, f)
	})
}

// clone copies the row including its flag slice.
func (t Transaction) clone() Transaction {
	t.Flags = slices.Clone(t.Flags)
	return t
}
