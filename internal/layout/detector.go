// Package layout classifies the structure of a decoded statement.
package layout

import (
	"math"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
)

const (
	// ColumnTolerance is the right-edge distance (points) within which amounts
	// are considered to share a column.
	ColumnTolerance = 15.0
	// LineTolerance groups words into lines by baseline.
	LineTolerance = 8.0

	minLedgerLines = 3
	minLedgerRatio = 0.6
	hintBonus      = 0.05
)

// Layout is the detector verdict. Score is a plausibility in [0,1], not a probability.
type Layout struct {
	Variant     constants.LayoutVariant
	Score       float64
	RowLines    int
	LedgerLines int
	Alignment   float64
	Signals     []constants.Signal
}

// Confident reports whether the rule-only fast path should be used.
func (l Layout) Confident(min float64) bool {
	return l.Variant == constants.LayoutTabularLedger && l.Score >= min
}

// Detect never fails; an unrecognized document gets LayoutUnknown.
func Detect(doc *document.Document, hints []string) Layout {
	var (
		total, rows, ledgers int
		edges                []float64
	)
	if doc != nil {
		for _, p := range doc.Pages {
			for _, line := range p.Lines(LineTolerance) {
				total++
				info := Classify(line)
				if info.IsRow() {
					rows++
				}
				if !info.IsLedger() {
					continue
				}
				ledgers++
				for _, idx := range info.Amounts {
					edges = append(edges, info.Words[idx].X1)
				}
			}
		}
	}

	l := Layout{RowLines: rows, LedgerLines: ledgers}
	switch {
	case ledgers >= minLedgerLines && float64(ledgers)/float64(rows) >= minLedgerRatio:
		l.Variant = constants.LayoutTabularLedger
		l.Alignment = alignment(edges, ledgers)
		l.Score = 0.5*float64(ledgers)/float64(rows) + 0.5*l.Alignment
	case rows > 0:
		l.Variant = constants.LayoutNarrativeList
		l.Score = 0.5 * float64(rows) / float64(total)
	default:
		l.Variant = constants.LayoutUnknown
		l.Signals = append(l.Signals, constants.SignalLayoutUnrecognized)
		return l
	}

	for _, h := range hints {
		if h == string(l.Variant) {
			l.Score = math.Min(1, l.Score+hintBonus)
			break
		}
	}
	return l
}

// alignment is the share of amount edges that fall in a real column: a cluster
// holding at least a tenth of the ledger lines (and never fewer than two edges).
func alignment(edges []float64, ledgers int) float64 {
	if len(edges) == 0 {
		return 0
	}
	floor := int(math.Ceil(0.1 * float64(ledgers)))
	if floor < 2 {
		floor = 2
	}
	in := 0
	for _, c := range ClusterEdges(edges, ColumnTolerance) {
		if c.Count >= floor {
			in += c.Count
		}
	}
	return float64(in) / float64(len(edges))
}
