package entity

import (
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/constants"
)

// Candidate is one complete proposed transaction list for a document.
// Confidence lives on gate.Scored, never here.
type Candidate struct {
	ID           string
	Variant      string
	Strategy     constants.Strategy
	Provenance   string
	SchemaType   constants.SchemaType
	Layout       constants.LayoutVariant
	Transactions []Transaction
	ExpectedRows int   // row lines seen in the regions it was built from
	Failure      error // non-nil on a generation failure
}

// Viable reports whether the candidate can compete for final.
func (c *Candidate) Viable() bool {
	return c != nil && c.Failure == nil && len(c.Transactions) > 0
}

// Totals sums debit magnitudes and credits.
func (c *Candidate) Totals() (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, t := range c.Transactions {
		if t.Amount.IsNegative() {
			debits = debits.Add(t.Amount.Abs())
		} else {
			credits = credits.Add(t.Amount)
		}
	}
	return debits, credits
}

// Net is the signed sum of all amounts.
func (c *Candidate) Net() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range c.Transactions {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// HasBalances reports whether any row carries a running balance.
func (c *Candidate) HasBalances() bool {
	for _, t := range c.Transactions {
		if t.Balance.Valid {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Candidate) Clone() *Candidate {
	out := *c
	out.Transactions = make([]Transaction, len(c.Transactions))
	for i, t := range c.Transactions {
		out.Transactions[i] = t.clone()
	}
	return &out
}

// SchemaTypeRef returns the schema type for the trace, nil when unknown.
func (c *Candidate) SchemaTypeRef() *string {
	if c == nil || c.SchemaType == "" {
		return nil
	}
	s := string(c.SchemaType)
	return &s
}
