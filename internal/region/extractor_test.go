package region

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/statementtest"
)

func decode(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, err := document.NewDecoder(document.Config{}, nil).Decode(context.Background(), []byte(text))
	require.NoError(t, err)
	return doc
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	ex := NewExtractor(nil)

	t.Run("ledger pages with headers", func(t *testing.T) {
		text, rows := statementtest.Statement(statementtest.Options{Seed: 3, Rows: 30, Style: statementtest.StyleLedger})
		doc := decode(t, text)
		lay := layout.Detect(doc, nil)

		res, err := ex.Extract(ctx, doc, lay, Options{Workers: 2})
		require.NoError(t, err)
		require.Len(t, res.Regions, 2)
		assert.Equal(t, len(rows), RowCount(res.Regions))
		assert.Empty(t, res.Signals)

		first := res.Regions[0]
		assert.Equal(t, 0, first.Page)
		assert.Len(t, first.Rows, 25)
		require.NotNil(t, first.Header)
		kinds := make([]ColumnKind, 0, len(first.Header.Columns))
		for _, c := range first.Header.Columns {
			kinds = append(kinds, c.Kind)
		}
		assert.Equal(t, []ColumnKind{ColumnDebit, ColumnCredit, ColumnBalance}, kinds)
		assert.Equal(t, 1, res.Regions[1].Page)
	})

	t.Run("summary lines and continuations", func(t *testing.T) {
		text := "Date        Details                       Paid out    Paid in     Balance\n" +
			"            Opening balance                                      1,000.00\n" +
			"14/02/2024  Card payment                     25.00                   975.00\n" +
			"            GROCER LONDON\n" +
			"            REF 7781\n" +
			"15/02/2024  Transfer from savings                        100.00    1,075.00\n" +
			"            Total                            25.00       100.00\n"
		doc := decode(t, text)

		res, err := ex.Extract(ctx, doc, layout.Detect(doc, nil), Options{})
		require.NoError(t, err)
		require.Len(t, res.Regions, 1)
		reg := res.Regions[0]
		require.Len(t, reg.Rows, 2)
		assert.Equal(t, "14/02/2024 Card payment 25.00 975.00 GROCER LONDON REF 7781", reg.Rows[0].Text())
		require.NotNil(t, reg.Header)
		assert.Equal(t, "paid out", reg.Header.Columns[0].Name)
	})

	t.Run("relaxed accepts single amount rows", func(t *testing.T) {
		text := "02/03/2024  Coffee   3.20   96.80\n" +
			"03/03/2024  Refund   1.00\n" +
			"04/03/2024  Lunch    9.00   88.80\n" +
			"05/03/2024  Bus      2.00   86.80\n"
		doc := decode(t, text)
		lay := layout.Layout{Variant: constants.LayoutTabularLedger}

		strict, err := ex.Extract(ctx, doc, lay, Options{})
		require.NoError(t, err)
		assert.Equal(t, 3, RowCount(strict.Regions))

		relaxed, err := ex.Extract(ctx, doc, lay, Options{Relaxed: true})
		require.NoError(t, err)
		assert.Equal(t, 4, RowCount(relaxed.Regions))
	})

	t.Run("nothing found is a signal, not an error", func(t *testing.T) {
		doc := decode(t, "Dear customer,\nyour statement is attached.\n")
		res, err := ex.Extract(ctx, doc, layout.Detect(doc, nil), Options{})
		require.NoError(t, err)
		assert.Empty(t, res.Regions)
		assert.Equal(t, []constants.Signal{constants.SignalRegionExtractionEmpty}, res.Signals)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		doc := decode(t, "02/03/2024  Coffee   3.20   96.80\n")
		_, err := ex.Extract(cctx, doc, layout.Layout{}, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestText(t *testing.T) {
	regs := []Region{
		{Page: 0, Rows: []Row{{Line: layout.LineInfo{Line: document.Line{Words: []document.Word{{Text: "a"}}}}}}},
		{Page: 1, Rows: []Row{{Line: layout.LineInfo{Line: document.Line{Words: []document.Word{{Text: "b"}}}}, Continuation: []string{"c"}}}},
	}
	assert.Equal(t, "--- page 1 ---\na\n\n--- page 2 ---\nb c\n", Text(regs))
}
