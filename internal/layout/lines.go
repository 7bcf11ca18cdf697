package layout

import (
	"sort"

	"github.com/joseph-ayodele/statements-tracker/internal/dates"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/money"
)

// LineInfo is a line annotated with where its date and amounts are.
type LineInfo struct {
	document.Line
	Date     dates.Match
	HasDate  bool
	DateFrom int // word index range of the date, [DateFrom, DateTo)
	DateTo   int
	Amounts  []int // word indexes of amount tokens, left to right
}

// IsRow reports a date line with at least one amount.
func (l LineInfo) IsRow() bool { return l.HasDate && len(l.Amounts) >= 1 }

// IsLedger reports a date line with at least two amounts.
func (l LineInfo) IsLedger() bool { return l.HasDate && len(l.Amounts) >= 2 }

// IsBlank reports a line with neither a date nor an amount.
func (l LineInfo) IsBlank() bool { return !l.HasDate && len(l.Amounts) == 0 }

// Classify finds the date and the amount tokens of a line.
func Classify(line document.Line) LineInfo {
	info := LineInfo{Line: line}
	if m, ok := dates.Find(line.Text()); ok {
		info.Date, info.HasDate = m, true
		info.DateFrom, info.DateTo = line.WordsIn(m.Start, m.End)
	}
	for i, w := range line.Words {
		if info.HasDate && i >= info.DateFrom && i < info.DateTo {
			continue
		}
		if money.IsToken(w.Text) {
			info.Amounts = append(info.Amounts, i)
		}
	}
	return info
}

// Cluster is a group of nearby x positions.
type Cluster struct {
	Center float64
	Count  int
}

// ClusterEdges groups positions whose distance to the running cluster centre is
// within tol. Clusters come back ordered left to right.
func ClusterEdges(xs []float64, tol float64) []Cluster {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var out []Cluster
	sum := 0.0
	for _, x := range sorted {
		if n := len(out); n > 0 && x-out[n-1].Center <= tol {
			c := &out[n-1]
			c.Count++
			sum += x
			c.Center = sum / float64(c.Count)
			continue
		}
		out = append(out, Cluster{Center: x, Count: 1})
		sum = x
	}
	return out
}

// Nearest returns the index of the cluster closest to x, or -1 when none is
// within tol.
func Nearest(clusters []Cluster, x, tol float64) int {
	best, bestDist := -1, tol
	for i, c := range clusters {
		d := x - c.Center
		if d < 0 {
			d = -d
		}
		if d <= bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
