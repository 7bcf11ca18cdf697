package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	db, err := Open(ctx, Config{Driver: "sqlite", DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })

	version, err := Migrate(ctx, db, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	return NewStore(db, nil)
}

func sampleTransactions() []entity.Transaction {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []entity.Transaction{
		{
			Row: 0, Page: 1, RawDate: "01/03/2024", Date: day, DateResolved: true,
			Description: "COFFEE HOUSE", Amount: decimal.RequireFromString("-4.50"),
			Direction: entity.DirectionDebit, Balance: decimal.NewNullDecimal(decimal.RequireFromString("995.50")),
			Evidence: entity.EvidenceColumn, Confidence: 0.95, Raw: "01/03/2024 COFFEE HOUSE 4.50 995.50",
		},
		{
			Row: 1, Page: 1, RawDate: "3rd?", Description: "SALARY",
			Amount: decimal.RequireFromString("2500.00"), Direction: entity.DirectionCredit,
			Evidence: entity.EvidenceSign, Confidence: 0.4, NeedsReview: true,
			Flags: []string{entity.FlagDateUnresolved, entity.FlagNoBalance},
		},
	}
}

func TestStore_Statements(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.CreateStatement(ctx, Statement{UserID: "u-1", OriginalFilename: "march.pdf", ContentHash: "abc"})
	require.NoError(t, err)
	assert.NotZero(t, st.ID)
	assert.Equal(t, StatementStatusPending, st.Status)

	got, err := s.FindStatementByHash(ctx, "u-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, "march.pdf", got.OriginalFilename)
	assert.False(t, got.UploadedAt.IsZero())
	assert.Nil(t, got.ParsedAt)
	assert.Nil(t, got.Trace)

	_, err = s.FindStatementByHash(ctx, "u-2", "abc")
	assert.True(t, IsNotFound(err))

	_, err = s.CreateStatement(ctx, Statement{UserID: "u-1", OriginalFilename: "again.pdf", ContentHash: "abc"})
	assert.Error(t, err, "same user and hash must be rejected")

	_, err = s.CreateStatement(ctx, Statement{UserID: "u-2", OriginalFilename: "march.pdf", ContentHash: "abc"})
	require.NoError(t, err)

	all, err := s.ListStatements(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	mine, err := s.ListStatements(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, st.ID, mine[0].ID)

	n, err := s.CountStatements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetStatement(ctx, 999)
	assert.True(t, IsNotFound(err))
}

func TestStore_SaveTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st, err := s.CreateStatement(ctx, Statement{UserID: "u-1", OriginalFilename: "march.pdf", ContentHash: "h1"})
	require.NoError(t, err)

	schema := "debit_credit_balance"
	trace := entity.ParseTrace{
		Initial: entity.StageTrace{Confidence: 0.99, SchemaType: &schema},
		Final:   entity.FinalTrace{Confidence: 0.99, Variant: "initial:rules", SchemaType: &schema},
	}
	txns := sampleTransactions()
	require.NoError(t, s.SaveTransactions(ctx, st.ID, txns, trace))

	got, err := s.Transactions(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "2024-03-01", first.ISODate())
	assert.Equal(t, "-4.50", first.Amount.StringFixed(2))
	require.True(t, first.Balance.Valid)
	assert.Equal(t, "995.50", first.Balance.Decimal.StringFixed(2))
	assert.Equal(t, entity.DirectionDebit, first.Direction)
	assert.Equal(t, entity.EvidenceColumn, first.Evidence)
	assert.Equal(t, txns[0].Raw, first.Raw)
	assert.Empty(t, first.Flags)
	assert.False(t, first.NeedsReview)

	second := got[1]
	assert.False(t, second.DateResolved)
	assert.Equal(t, "3rd?", second.RawDate)
	assert.False(t, second.Balance.Valid)
	assert.True(t, second.NeedsReview)
	assert.Equal(t, []string{entity.FlagDateUnresolved, entity.FlagNoBalance}, second.Flags)
	assert.InDelta(t, 0.4, second.Confidence, 1e-9)

	stored, err := s.GetStatement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TransactionCount)
	require.NotNil(t, stored.ParsedAt)
	require.NotNil(t, stored.Trace)
	assert.Equal(t, trace, *stored.Trace)

	t.Run("a second parse replaces the rows", func(t *testing.T) {
		require.NoError(t, s.SaveTransactions(ctx, st.ID, txns[:1], trace))
		got, err := s.Transactions(ctx, st.ID)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		stored, err := s.GetStatement(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TransactionCount)
	})
}

func TestStore_RecordResult(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st, err := s.CreateStatement(ctx, Statement{UserID: "u-1", OriginalFilename: "a.txt", ContentHash: "h2"})
	require.NoError(t, err)
	require.NoError(t, s.SaveTransactions(ctx, st.ID, sampleTransactions(), entity.ParseTrace{}))

	require.NoError(t, s.RecordResult(ctx, entity.ParseResult{
		Status:           constants.RunStatusSuccess,
		StatementID:      st.ID,
		SchemaVariant:    "retry-1:rules-relaxed",
		SchemaConfidence: 0.97,
		RunID:            "run-1",
		Trace:            entity.ParseTrace{Final: entity.FinalTrace{Variant: "retry-1:rules-relaxed", Confidence: 0.97}},
	}))
	got, err := s.GetStatement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusSuccess), got.Status)
	assert.Equal(t, "retry-1:rules-relaxed", got.SchemaVariant)
	assert.Equal(t, "run-1", got.RunID)
	assert.InDelta(t, 0.97, got.SchemaConfidence, 1e-9)
	assert.Equal(t, 2, got.TransactionCount)

	require.NoError(t, s.RecordResult(ctx, entity.ParseResult{
		Status:      constants.RunStatusError,
		Message:     "document could not be decoded",
		StatementID: st.ID,
	}))
	got, err = s.GetStatement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStatusError), got.Status)
	assert.Equal(t, "document could not be decoded", got.Message)
	assert.Zero(t, got.TransactionCount)

	rows, err := s.Transactions(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "rows of the earlier parse are cleared")
}
