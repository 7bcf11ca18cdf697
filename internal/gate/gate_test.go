package gate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/dates"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/score"
	"github.com/joseph-ayodele/statements-tracker/internal/validate"
)

func newGate() *Gate {
	return New(dates.NewNormalizer(true), validate.NewValidator(validate.DefaultConfig()), score.NewScorer(score.DefaultConfig()))
}

func ledger() *entity.Candidate {
	mk := func(raw, amount, balance string) entity.Transaction {
		a := decimal.RequireFromString(amount)
		dir := entity.DirectionCredit
		if a.IsNegative() {
			dir = entity.DirectionDebit
		}
		return entity.Transaction{
			RawDate:     raw,
			Description: "Payee",
			Amount:      a,
			Direction:   dir,
			Balance:     decimal.NewNullDecimal(decimal.RequireFromString(balance)),
			Evidence:    entity.EvidenceColumn,
		}
	}
	return &entity.Candidate{
		Variant:    "initial:rules",
		Strategy:   constants.StrategyRules,
		Provenance: constants.ProvenanceInitial,
		SchemaType: constants.SchemaDebitCreditBalance,
		Transactions: []entity.Transaction{
			mk("14/01/2024", "-20.00", "980.00"),
			mk("15/01/2024", "-30.00", "950.00"),
			mk("16/01/2024", "200.00", "1150.00"),
		},
	}
}

func TestGate_Admit(t *testing.T) {
	g := newGate()

	t.Run("clean candidate", func(t *testing.T) {
		in := ledger()
		s := g.Admit(in, Expectation{ExpectedRows: 3})

		assert.True(t, s.Viable())
		assert.True(t, s.Passed())
		assert.InDelta(t, 0.99, s.Confidence(), 1e-9)
		assert.InDelta(t, 0.95, s.MinRowConfidence(), 1e-9)
		assert.Equal(t, "2024-01-14", s.Transactions()[0].ISODate())
		assert.Equal(t, "debit_credit_balance", *s.SchemaTypeRef())

		assert.False(t, in.Transactions[0].DateResolved, "input is not modified")
	})

	t.Run("admitting twice is stable", func(t *testing.T) {
		in := ledger()
		in.Transactions[1].Amount = in.Transactions[1].Amount.Neg()
		first := g.Admit(in, Expectation{ExpectedRows: 3})
		second := g.Admit(first.Candidate(), Expectation{ExpectedRows: 3})

		assert.Equal(t, first.Confidence(), second.Confidence())
		assert.Equal(t, first.Transactions(), second.Transactions())
		assert.True(t, second.Transactions()[1].NeedsReview)
		assert.True(t, second.Transactions()[1].HasFlag(entity.FlagSignMismatch))
	})

	t.Run("generation failure is never viable", func(t *testing.T) {
		s := g.Admit(&entity.Candidate{Strategy: constants.StrategyModel, Failure: assert.AnError}, Expectation{})
		assert.False(t, s.Viable())
		assert.Zero(t, s.Confidence())
		assert.Equal(t, entity.ValidationFail, s.Validation().Status)
		assert.Nil(t, s.SchemaTypeRef())
	})

	t.Run("copies are detached", func(t *testing.T) {
		s := g.Admit(ledger(), Expectation{})
		c := s.Candidate()
		c.Transactions[0].Description = "changed"
		require.Len(t, s.Transactions(), 3)
		assert.Equal(t, "Payee", s.Transactions()[0].Description)
	})
}

func TestGate_BackwardsDateNeedsReview(t *testing.T) {
	for _, low := range []float64{0.60, 0.30} {
		cfg := score.DefaultConfig()
		cfg.Low = low
		g := New(dates.NewNormalizer(true), validate.NewValidator(validate.DefaultConfig()), score.NewScorer(cfg))

		in := ledger()
		in.Transactions[1].RawDate = "20/01/2024"
		s := g.Admit(in, Expectation{ExpectedRows: 3})

		tx := s.Transactions()[2]
		assert.True(t, tx.HasFlag(entity.FlagDateNotMonotonic), "low=%v", low)
		assert.True(t, tx.NeedsReview, "low=%v", low)
		assert.Equal(t, "2024-01-16", tx.ISODate(), "best guess date is kept")
		assert.GreaterOrEqual(t, tx.Confidence, low)
	}
}
