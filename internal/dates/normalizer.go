package dates

import (
	"time"

	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

// Layout hints that pin the numeric date order for a user.
const (
	HintDayFirst   = "dayfirst"
	HintMonthFirst = "monthfirst"
)

// Normalizer resolves raw row dates with a single candidate-wide order.
type Normalizer struct {
	dayFirst bool
}

func NewNormalizer(dayFirst bool) *Normalizer {
	return &Normalizer{dayFirst: dayFirst}
}

// Decision explains how the order was chosen.
type Decision struct {
	Order      Order
	Evidenced  bool // at least one row could only be read one way
	Tied       bool // both orders kept the same number of rows in sequence
	Unresolved int
}

// Normalize resolves every RawDate in c in place. It clears date flags from a
// previous pass first, so running it twice gives the same result.
func (n *Normalizer) Normalize(c *entity.Candidate, hints []string) Decision {
	txns := c.Transactions
	interps := make([][]Interpretation, len(txns))
	var dayVotes, monthVotes int
	for i := range txns {
		t := &txns[i]
		t.RemoveFlags(entity.FlagDateUnresolved, entity.FlagDateAmbiguous, entity.FlagDateNotMonotonic)
		t.Date, t.DateResolved = time.Time{}, false

		interps[i] = Interpret(t.RawDate)
		if len(interps[i]) == 1 {
			switch interps[i][0].Order {
			case OrderDayFirst:
				dayVotes++
			case OrderMonthFirst:
				monthVotes++
			}
		}
	}

	dayScore := sequenceScore(interps, OrderDayFirst)
	monthScore := sequenceScore(interps, OrderMonthFirst)

	d := Decision{Evidenced: dayVotes+monthVotes > 0, Tied: dayScore == monthScore}
	switch {
	case dayScore > monthScore:
		d.Order = OrderDayFirst
	case monthScore > dayScore:
		d.Order = OrderMonthFirst
	case dayVotes != monthVotes:
		d.Order = OrderDayFirst
		if monthVotes > dayVotes {
			d.Order = OrderMonthFirst
		}
	default:
		d.Order = n.fallback(hints)
	}

	var running time.Time
	for i := range txns {
		t := &txns[i]
		if len(interps[i]) == 0 {
			t.AddFlag(entity.FlagDateUnresolved)
			d.Unresolved++
			continue
		}
		t.Date = pick(interps[i], d.Order).Date
		t.DateResolved = true
		if len(interps[i]) > 1 && !d.Evidenced && d.Tied {
			t.AddFlag(entity.FlagDateAmbiguous)
		}
		if !running.IsZero() && t.Date.Before(running) {
			t.AddFlag(entity.FlagDateNotMonotonic)
			continue
		}
		running = t.Date
	}
	return d
}

func (n *Normalizer) fallback(hints []string) Order {
	for _, h := range hints {
		switch h {
		case HintDayFirst:
			return OrderDayFirst
		case HintMonthFirst:
			return OrderMonthFirst
		}
	}
	if n.dayFirst {
		return OrderDayFirst
	}
	return OrderMonthFirst
}

// sequenceScore counts adjacent resolved rows that do not go backwards when
// every row is read with order o.
func sequenceScore(interps [][]Interpretation, o Order) int {
	score := 0
	var prev time.Time
	for _, in := range interps {
		if len(in) == 0 {
			continue
		}
		cur := pick(in, o).Date
		if !prev.IsZero() && !cur.Before(prev) {
			score++
		}
		prev = cur
	}
	return score
}

func pick(in []Interpretation, o Order) Interpretation {
	for _, i := range in {
		if i.Order == o {
			return i
		}
	}
	return in[0]
}
