// Package dates finds statement dates in text and resolves their day/month order.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Order is the field order used to read a numeric date.
type Order int

const (
	OrderFixed      Order = iota // unambiguous (ISO, textual month, or day == month)
	OrderDayFirst                // d/m/y
	OrderMonthFirst              // m/d/y
)

func (o Order) String() string {
	switch o {
	case OrderDayFirst:
		return "dayfirst"
	case OrderMonthFirst:
		return "monthfirst"
	default:
		return "fixed"
	}
}

// Interpretation is one valid reading of a raw date.
type Interpretation struct {
	Date  time.Time
	Order Order
}

const monthNames = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec`

var (
	isoPattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericPattern = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{2,4})\b`)
	textDMYPattern = regexp.MustCompile(`(?i)\b(\d{1,2})[\s-]+(` + monthNames + `)[a-z]*\.?[\s-]+(\d{2,4})\b`)
	textMDYPattern = regexp.MustCompile(`(?i)\b(` + monthNames + `)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
)

// Match is a date found in a line of text.
type Match struct {
	Raw   string
	Start int
	End   int
}

// Find returns the left-most date in s.
func Find(s string) (Match, bool) {
	best := Match{Start: -1}
	for _, re := range []*regexp.Regexp{isoPattern, numericPattern, textDMYPattern, textMDYPattern} {
		loc := re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if best.Start < 0 || loc[0] < best.Start {
			best = Match{Raw: s[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
		}
	}
	return best, best.Start >= 0
}

// Interpret lists every valid reading of raw, at most one per order.
func Interpret(raw string) []Interpretation {
	raw = strings.TrimSpace(raw)

	if m := isoPattern.FindStringSubmatch(raw); m != nil {
		if d, ok := build(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return []Interpretation{{Date: d, Order: OrderFixed}}
		}
		return nil
	}
	if m := numericPattern.FindStringSubmatch(raw); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), year(m[3])
		if y < 0 {
			return nil
		}
		if a == b {
			if d, ok := build(y, a, a); ok {
				return []Interpretation{{Date: d, Order: OrderFixed}}
			}
			return nil
		}
		var out []Interpretation
		if d, ok := build(y, b, a); ok {
			out = append(out, Interpretation{Date: d, Order: OrderDayFirst})
		}
		if d, ok := build(y, a, b); ok {
			out = append(out, Interpretation{Date: d, Order: OrderMonthFirst})
		}
		return out
	}
	if m := textDMYPattern.FindStringSubmatch(raw); m != nil {
		if d, ok := build(year(m[3]), month(m[2]), atoi(m[1])); ok {
			return []Interpretation{{Date: d, Order: OrderFixed}}
		}
		return nil
	}
	if m := textMDYPattern.FindStringSubmatch(raw); m != nil {
		if d, ok := build(atoi(m[3]), month(m[1]), atoi(m[2])); ok {
			return []Interpretation{{Date: d, Order: OrderFixed}}
		}
	}
	return nil
}

func build(y, m, d int) (time.Time, bool) {
	if y < 1900 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func year(s string) int {
	n := atoi(s)
	switch len(s) {
	case 2:
		return 2000 + n
	case 4:
		return n
	default:
		return -1
	}
}

func month(s string) int {
	if len(s) < 3 {
		return -1
	}
	switch strings.ToLower(s[:3]) {
	case "jan":
		return 1
	case "feb":
		return 2
	case "mar":
		return 3
	case "apr":
		return 4
	case "may":
		return 5
	case "jun":
		return 6
	case "jul":
		return 7
	case "aug":
		return 8
	case "sep":
		return 9
	case "oct":
		return 10
	case "nov":
		return 11
	case "dec":
		return 12
	}
	return -1
}
