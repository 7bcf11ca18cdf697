package hypothesis

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/dates"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/money"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

// share of a region's rows a numeric column must appear in to count
const minColumnShare = 0.1

// how far (in tolerances) a header label may sit from its column
const headerReach = 4

// columnMap assigns a kind to each clustered amount column of one region.
type columnMap struct {
	clusters []layout.Cluster
	kinds    []region.ColumnKind // parallel to clusters; "" means ignored
	signed   bool                // amount column carries printed signs
	single   bool                // one amount per row, wherever it is printed
}

func (m columnMap) kindAt(x, tol float64) region.ColumnKind {
	if m.single {
		return region.ColumnAmount
	}
	i := layout.Nearest(m.clusters, x, tol)
	if i < 0 {
		return ""
	}
	return m.kinds[i]
}

func (m columnMap) has(kind region.ColumnKind) bool {
	return slices.Contains(m.kinds, kind)
}

// rules maps columns deterministically. It never calls the model.
func (g *Generator) rules(req Request, tol float64, relaxed bool) *entity.Candidate {
	c := &entity.Candidate{}

	type mappedRow struct {
		row  region.Row
		cols columnMap
	}
	var rows []mappedRow
	var schemas []constants.SchemaType
	for _, reg := range req.Regions {
		cols := mapColumns(reg, tol)
		schemas = append(schemas, schemaOf(cols))
		for _, r := range reg.Rows {
			rows = append(rows, mappedRow{row: r, cols: cols})
		}
	}
	c.SchemaType = dominant(schemas)

	raws := make([]string, len(rows))
	for i, r := range rows {
		raws[i] = r.row.Line.Date.Raw
	}
	if relaxed && descending(raws) {
		slices.Reverse(rows)
		c.Variant = req.Provenance() + ":reversed"
	}

	prev := decimal.NullDecimal{}
	for _, mr := range rows {
		t := readRow(mr.row, mr.cols, tol, prev)
		if t.Balance.Valid {
			prev = t.Balance
		}
		c.Transactions = append(c.Transactions, t)
	}
	return c
}

// mapColumns clusters the right edges of amount tokens and names the clusters,
// from the header when it has one, otherwise by position.
func mapColumns(reg region.Region, tol float64) columnMap {
	var edges []float64
	for _, r := range reg.Rows {
		for _, i := range r.Line.Amounts {
			edges = append(edges, r.Line.Words[i].X1)
		}
	}
	all := layout.ClusterEdges(edges, tol)
	floor := int(math.Ceil(minColumnShare * float64(len(reg.Rows))))
	var clusters []layout.Cluster
	for _, cl := range all {
		if cl.Count >= floor {
			clusters = append(clusters, cl)
		}
	}

	m := columnMap{clusters: clusters, kinds: make([]region.ColumnKind, len(clusters))}
	if !fromHeader(&m, reg.Header, tol) {
		positional(&m, reg.Rows)
	}

	if m.has(region.ColumnAmount) {
		for _, r := range reg.Rows {
			for _, i := range r.Line.Amounts {
				w := r.Line.Words[i]
				if m.kindAt(w.X1, tol) != region.ColumnAmount {
					continue
				}
				if a, ok := money.ParseToken(w.Text); ok && a.Negative {
					m.signed = true
				}
			}
		}
	}
	return m
}

func fromHeader(m *columnMap, h *region.Header, tol float64) bool {
	if h == nil || len(h.Columns) == 0 {
		return false
	}
	mapped := false
	for i, cl := range m.clusters {
		best, bestDist := -1, headerReach*tol
		for j, col := range h.Columns {
			d := math.Min(math.Abs(col.X1-cl.Center), math.Abs(col.Center()-cl.Center))
			if d <= bestDist {
				best, bestDist = j, d
			}
		}
		if best >= 0 {
			m.kinds[i] = h.Columns[best].Kind
			mapped = true
		}
	}
	return mapped
}

// positional: rows that mostly print a single amount carry just that amount.
// Otherwise three or more columns are withdrawal, deposit, balance (the
// rightmost three); two are amount, balance; one is amount.
func positional(m *columnMap, rows []region.Row) {
	multi := 0
	for _, r := range rows {
		if len(r.Line.Amounts) >= 2 {
			multi++
		}
	}
	if 2*multi < len(rows) {
		m.single = true
		for i := range m.kinds {
			m.kinds[i] = region.ColumnAmount
		}
		return
	}
	n := len(m.clusters)
	switch {
	case n >= 3:
		m.kinds[n-3], m.kinds[n-2], m.kinds[n-1] = region.ColumnDebit, region.ColumnCredit, region.ColumnBalance
	case n == 2:
		m.kinds[0], m.kinds[1] = region.ColumnAmount, region.ColumnBalance
	case n == 1:
		m.kinds[0] = region.ColumnAmount
	}
}

func schemaOf(m columnMap) constants.SchemaType {
	switch {
	case m.has(region.ColumnDebit) || m.has(region.ColumnCredit):
		return constants.SchemaDebitCreditBalance
	case m.has(region.ColumnBalance):
		return constants.SchemaAmountBalance
	default:
		return constants.SchemaAmountOnly
	}
}

// dominant is the most frequent schema type, earliest on ties.
func dominant(types []constants.SchemaType) constants.SchemaType {
	if len(types) == 0 {
		return constants.SchemaAmountOnly
	}
	best, bestN := types[0], 0
	for _, t := range types {
		n := 0
		for _, u := range types {
			if u == t {
				n++
			}
		}
		if n > bestN {
			best, bestN = t, n
		}
	}
	return best
}

// descending reports whether consecutive row dates go backwards more often
// than forwards. Ambiguous dates are read day-first throughout; any consistent
// reading gives the same direction for a statement in date order.
func descending(raws []string) bool {
	var prev time.Time
	up, down := 0, 0
	for _, raw := range raws {
		in := dates.Interpret(raw)
		if len(in) == 0 {
			continue
		}
		cur := in[0].Date
		for _, it := range in {
			if it.Order == dates.OrderDayFirst {
				cur = it.Date
			}
		}
		if !prev.IsZero() {
			switch {
			case cur.After(prev):
				up++
			case cur.Before(prev):
				down++
			}
		}
		prev = cur
	}
	return down > up
}

// readRow builds one transaction. Direction precedence: debit/credit column,
// CR/DR marker, running balance delta, printed sign.
func readRow(r region.Row, cols columnMap, tol float64, prev decimal.NullDecimal) entity.Transaction {
	line := r.Line
	t := entity.Transaction{
		Page:    r.Page,
		RawDate: line.Date.Raw,
		Raw:     r.Text(),
	}

	var (
		amount    *money.Amount
		amountCol region.ColumnKind
		marker    money.Marker
	)
	skip := make(map[int]bool, len(line.Amounts)+2)
	for i := line.DateFrom; i < line.DateTo; i++ {
		skip[i] = true
	}

	for _, i := range line.Amounts {
		skip[i] = true
		w := line.Words[i]
		a, ok := money.ParseToken(w.Text)
		if !ok {
			continue
		}
		// a standalone marker right after the amount belongs to it
		if i+1 < len(line.Words) {
			if mk, ok := money.ParseMarker(line.Words[i+1].Text); ok {
				skip[i+1] = true
				if a.Marker == money.MarkerNone {
					a.Marker = mk
				}
			}
		}

		switch kind := cols.kindAt(w.X1, tol); kind {
		case region.ColumnBalance:
			bal := a.Signed()
			if a.Marker == money.MarkerDebit {
				bal = a.Value.Neg()
			}
			t.Balance = decimal.NewNullDecimal(bal)
		case region.ColumnDebit, region.ColumnCredit, region.ColumnAmount:
			if amount == nil || (amount.Value.IsZero() && !a.Value.IsZero()) {
				amount, amountCol = &a, kind
				marker = a.Marker
			}
		}
	}

	var desc []string
	for i, w := range line.Words {
		if !skip[i] {
			desc = append(desc, w.Text)
		}
	}
	desc = append(desc, r.Continuation...)
	t.Description = strings.Join(strings.Fields(strings.Join(desc, " ")), " ")

	var delta *decimal.Decimal
	if prev.Valid && t.Balance.Valid {
		d := t.Balance.Decimal.Sub(prev.Decimal)
		delta = &d
	}

	if amount == nil {
		// only a balance was printed: the movement is the delta
		if delta != nil {
			t.Amount = *delta
			t.Direction = directionOf(*delta)
			t.Evidence = entity.EvidenceBalance
		}
		return t
	}

	switch {
	case amountCol == region.ColumnDebit:
		t.Direction, t.Evidence = entity.DirectionDebit, entity.EvidenceColumn
	case amountCol == region.ColumnCredit:
		t.Direction, t.Evidence = entity.DirectionCredit, entity.EvidenceColumn
	case marker == money.MarkerDebit:
		t.Direction, t.Evidence = entity.DirectionDebit, entity.EvidenceMarker
	case marker == money.MarkerCredit:
		t.Direction, t.Evidence = entity.DirectionCredit, entity.EvidenceMarker
	case delta != nil && delta.Abs().Sub(amount.Value).Abs().LessThanOrEqual(balanceMatch):
		t.Direction, t.Evidence = directionOf(*delta), entity.EvidenceBalance
	default:
		t.Direction, t.Evidence = directionOf(amount.Signed()), entity.EvidenceSign
	}

	switch {
	case t.Evidence == entity.EvidenceColumn, t.Evidence == entity.EvidenceMarker:
		t.Amount = signFor(amount.Value, t.Direction)
	case cols.signed:
		// the printed sign stands, even when it contradicts the evidence
		t.Amount = amount.Signed()
	default:
		t.Amount = signFor(amount.Value, t.Direction)
	}
	return t
}

var balanceMatch = decimal.RequireFromString("0.01")

func directionOf(d decimal.Decimal) entity.Direction {
	if d.IsNegative() {
		return entity.DirectionDebit
	}
	return entity.DirectionCredit
}

func signFor(v decimal.Decimal, dir entity.Direction) decimal.Decimal {
	v = v.Abs()
	if dir == entity.DirectionDebit {
		return v.Neg()
	}
	return v
}
