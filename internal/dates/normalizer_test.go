package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

func candidate(raw ...string) *entity.Candidate {
	c := &entity.Candidate{}
	for i, r := range raw {
		c.Transactions = append(c.Transactions, entity.Transaction{Row: i, RawDate: r})
	}
	return c
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		raw  string
		want []Interpretation
	}{
		{"2024-03-05", []Interpretation{{day(2024, 3, 5), OrderFixed}}},
		{"05/03/2024", []Interpretation{{day(2024, 3, 5), OrderDayFirst}, {day(2024, 5, 3), OrderMonthFirst}}},
		{"25/03/2024", []Interpretation{{day(2024, 3, 25), OrderDayFirst}}},
		{"03/25/24", []Interpretation{{day(2024, 3, 25), OrderMonthFirst}}},
		{"04.04.2024", []Interpretation{{day(2024, 4, 4), OrderFixed}}},
		{"02 Jan 2024", []Interpretation{{day(2024, 1, 2), OrderFixed}}},
		{"02-Jan-24", []Interpretation{{day(2024, 1, 2), OrderFixed}}},
		{"Sept 9, 2024", []Interpretation{{day(2024, 9, 9), OrderFixed}}},
		{"31/02/2024", nil},
		{"pending", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpret(tt.raw))
		})
	}
}

func TestFind(t *testing.T) {
	m, ok := Find("Ref 9912 05 Feb 2024 Card purchase 12.00")
	require.True(t, ok)
	assert.Equal(t, "05 Feb 2024", m.Raw)

	_, ok = Find("Opening balance 1,000.00")
	assert.False(t, ok)
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Run("monotonicity picks the order", func(t *testing.T) {
		// month-first keeps 01/02 -> 01/03 -> 01/04 in sequence; day-first would jump
		// between Feb, Mar and Apr of the same day and go backwards at 02/01
		c := candidate("01/02/2024", "01/03/2024", "01/04/2024", "02/01/2024")
		d := NewNormalizer(true).Normalize(c, nil)
		assert.Equal(t, OrderMonthFirst, d.Order)
		assert.Equal(t, day(2024, 1, 2), c.Transactions[0].Date)
		for _, tx := range c.Transactions {
			assert.False(t, tx.HasFlag(entity.FlagDateAmbiguous))
		}
	})

	t.Run("evidence breaks a tie", func(t *testing.T) {
		c := candidate("03/04/2024", "13/04/2024")
		d := NewNormalizer(false).Normalize(c, nil)
		assert.Equal(t, OrderDayFirst, d.Order)
		assert.True(t, d.Evidenced)
		assert.Equal(t, day(2024, 4, 3), c.Transactions[0].Date)
		assert.False(t, c.Transactions[0].HasFlag(entity.FlagDateAmbiguous))
	})

	t.Run("hint then config without evidence", func(t *testing.T) {
		c := candidate("03/04/2024", "03/04/2024")
		d := NewNormalizer(true).Normalize(c, []string{HintMonthFirst})
		assert.Equal(t, OrderMonthFirst, d.Order)
		assert.Equal(t, day(2024, 3, 4), c.Transactions[0].Date)
		assert.True(t, c.Transactions[0].HasFlag(entity.FlagDateAmbiguous))

		c = candidate("03/04/2024", "03/04/2024")
		d = NewNormalizer(true).Normalize(c, nil)
		assert.Equal(t, OrderDayFirst, d.Order)
	})

	t.Run("out of order rows keep their best guess", func(t *testing.T) {
		c := candidate("2024-01-10", "2024-01-05", "2024-01-12")
		NewNormalizer(true).Normalize(c, nil)
		assert.True(t, c.Transactions[1].HasFlag(entity.FlagDateNotMonotonic))
		assert.Equal(t, day(2024, 1, 5), c.Transactions[1].Date)
		assert.False(t, c.Transactions[2].HasFlag(entity.FlagDateNotMonotonic))
	})

	t.Run("unparseable rows are kept", func(t *testing.T) {
		c := candidate("2024-01-10", "??", "2024-01-11")
		d := NewNormalizer(true).Normalize(c, nil)
		require.Len(t, c.Transactions, 3)
		assert.Equal(t, 1, d.Unresolved)
		assert.False(t, c.Transactions[1].DateResolved)
		assert.True(t, c.Transactions[1].HasFlag(entity.FlagDateUnresolved))
	})

	t.Run("idempotent", func(t *testing.T) {
		c := candidate("03/04/2024", "2024-01-01", "bad")
		n := NewNormalizer(true)
		n.Normalize(c, nil)
		first := c.Clone()
		n.Normalize(c, nil)
		assert.Equal(t, first.Transactions, c.Transactions)
	})
}
