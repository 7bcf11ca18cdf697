// Package region finds the blocks of transaction rows on each page.
package region

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/statements-tracker/internal/layout"
)

// ColumnKind is the role of a header column.
type ColumnKind string

const (
	ColumnDebit   ColumnKind = "debit"
	ColumnCredit  ColumnKind = "credit"
	ColumnAmount  ColumnKind = "amount"
	ColumnBalance ColumnKind = "balance"
)

// Column is a numeric column named by the header line.
type Column struct {
	Name string
	Kind ColumnKind
	X0   float64
	X1   float64
}

// Center is the horizontal middle of the header label.
func (c Column) Center() float64 { return (c.X0 + c.X1) / 2 }

// Header is a table header line with its numeric columns.
type Header struct {
	Y       float64
	Columns []Column
}

// Row is one transaction line plus any description lines merged under it.
type Row struct {
	Page         int
	Line         layout.LineInfo
	Continuation []string
}

// Text is the raw row string.
func (r Row) Text() string {
	if len(r.Continuation) == 0 {
		return r.Line.Text()
	}
	return r.Line.Text() + " " + strings.Join(r.Continuation, " ")
}

// Region is a contiguous block of rows on one page.
type Region struct {
	Page   int
	Top    float64
	Bottom float64
	Header *Header
	Rows   []Row
}

// RowCount sums the rows of all regions.
func RowCount(regions []Region) int {
	n := 0
	for _, r := range regions {
		n += len(r.Rows)
	}
	return n
}

// Text renders regions as plain lines, one row per line, pages separated by a
// marker line.
func Text(regions []Region) string {
	var b strings.Builder
	page := -1
	for _, r := range regions {
		if r.Page != page {
			if page >= 0 {
				b.WriteString("\n")
			}
			page = r.Page
			b.WriteString("--- page ")
			b.WriteString(strconv.Itoa(page + 1))
			b.WriteString(" ---\n")
		}
		for _, row := range r.Rows {
			b.WriteString(row.Text())
			b.WriteString("\n")
		}
	}
	return b.String()
}
