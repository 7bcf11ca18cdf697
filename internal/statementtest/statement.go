// Package statementtest renders synthetic bank statements as pdftotext -layout
// text for tests.
package statementtest

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Style selects the printed column layout.
type Style int

const (
	// StyleLedger prints Date | Description | Withdrawals | Deposits | Balance.
	StyleLedger Style = iota
	// StyleSigned prints Date | Description | Amount | Balance with signed amounts.
	StyleSigned
	// StyleNarrative prints "date description amount" lines without balances.
	StyleNarrative
)

// Row is the ground truth for one printed transaction.
type Row struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal // debits negative
	Balance     decimal.Decimal
}

// Options drive Statement.
type Options struct {
	Seed        int64
	Rows        int
	Style       Style
	Start       time.Time       // default 2024-01-13
	DateLayout  string          // default "02/01/2006"
	Opening     decimal.Decimal // default 10,000.00
	RowsPerPage int             // default 25
	FlipSign    []int           // StyleSigned rows printed with the wrong sign
	Descending  bool            // newest first
}

var summaryWords = []string{"total", "balance", "summary", "page", "forward", "period", "interest"}

// Statement returns the statement text and the rows it contains, in date order.
func Statement(opts Options) (string, []Row) {
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)
	}
	if opts.DateLayout == "" {
		opts.DateLayout = "02/01/2006"
	}
	if opts.Opening.IsZero() {
		opts.Opening = decimal.RequireFromString("10000.00")
	}
	if opts.RowsPerPage <= 0 {
		opts.RowsPerPage = 25
	}

	faker := gofakeit.New(opts.Seed)
	rows := make([]Row, opts.Rows)
	bal := opts.Opening
	for i := range rows {
		amt := decimal.NewFromFloat(faker.Price(1, 400)).Round(2)
		if i%4 != 3 {
			amt = amt.Neg()
		}
		bal = bal.Add(amt)
		rows[i] = Row{
			Date:        opts.Start.AddDate(0, 0, i/2),
			Description: description(faker),
			Amount:      amt,
			Balance:     bal,
		}
	}

	printed := slices.Clone(rows)
	if opts.Descending {
		slices.Reverse(printed)
	}

	var b strings.Builder
	page := 1
	for i, r := range printed {
		if i%opts.RowsPerPage == 0 {
			if i > 0 {
				fmt.Fprintf(&b, "%60s\n\f", fmt.Sprintf("Page %d", page))
				page++
			}
			writeHeader(&b, opts)
		}
		writeRow(&b, opts, r, slices.Contains(opts.FlipSign, rowIndex(opts, i)))
	}
	fmt.Fprintf(&b, "\n%-12s%-32s%42s\n", "", "Closing balance", Format(bal))
	fmt.Fprintf(&b, "%60s\n", fmt.Sprintf("Page %d", page))
	return b.String(), rows
}

func rowIndex(opts Options, printedIdx int) int {
	if opts.Descending {
		return opts.Rows - 1 - printedIdx
	}
	return printedIdx
}

func writeHeader(b *strings.Builder, opts Options) {
	b.WriteString("FIRST EXAMPLE BANK\n")
	b.WriteString("Account statement\n\n")
	switch opts.Style {
	case StyleLedger:
		fmt.Fprintf(b, "%-12s%-32s%14s%14s%14s\n", "Date", "Description", "Withdrawals", "Deposits", "Balance")
	case StyleSigned:
		fmt.Fprintf(b, "%-12s%-32s%14s%14s\n", "Date", "Description", "Amount", "Balance")
	}
}

func writeRow(b *strings.Builder, opts Options, r Row, flip bool) {
	date := r.Date.Format(opts.DateLayout)
	switch opts.Style {
	case StyleLedger:
		out, in := "", ""
		if r.Amount.IsNegative() {
			out = Format(r.Amount.Abs())
		} else {
			in = Format(r.Amount)
		}
		fmt.Fprintf(b, "%-12s%-32s%14s%14s%14s\n", date, r.Description, out, in, Format(r.Balance))
	case StyleSigned:
		amt := r.Amount
		if flip {
			amt = amt.Neg()
		}
		fmt.Fprintf(b, "%-12s%-32s%14s%14s\n", date, r.Description, Format(amt), Format(r.Balance))
	case StyleNarrative:
		fmt.Fprintf(b, "%s  %s  %s\n", date, r.Description, Format(r.Amount))
	}
}

// description is a merchant-like name free of digits and summary words so the
// line is never mistaken for a subtotal.
func description(faker *gofakeit.Faker) string {
	for {
		name := faker.Company()
		lower := strings.ToLower(name)
		if strings.ContainsAny(name, "0123456789()") || len(name) > 30 {
			continue
		}
		if slices.ContainsFunc(summaryWords, func(w string) bool { return strings.Contains(lower, w) }) {
			continue
		}
		if strings.Contains(lower, "date") || strings.Contains(lower, "amount") {
			continue
		}
		return name
	}
}

// Format prints d with two decimals and thousands separators.
func Format(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var grouped []string
	for len(intPart) > 3 {
		grouped = append([]string{intPart[len(intPart)-3:]}, grouped...)
		intPart = intPart[:len(intPart)-3]
	}
	grouped = append([]string{intPart}, grouped...)
	out := strings.Join(grouped, ",") + frac
	if d.IsNegative() {
		return "-" + out
	}
	return out
}
