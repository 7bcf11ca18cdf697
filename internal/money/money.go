// Package money recognizes statement amount tokens and parses them into decimals.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Marker is an explicit credit/debit annotation printed next to an amount.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerCredit
	MarkerDebit
)

// Amount is a parsed amount token.
type Amount struct {
	Value    decimal.Decimal // always non-negative
	Negative bool            // leading/trailing minus or parentheses
	Marker   Marker
}

// Signed applies the printed sign to the absolute value.
func (a Amount) Signed() decimal.Decimal {
	if a.Negative {
		return a.Value.Neg()
	}
	return a.Value
}

// ErrNotAmount is returned by Parse when s holds no recognizable amount.
var ErrNotAmount = errors.New("not an amount")

// two decimals required so dates, years and reference numbers never match;
// the middle alternative covers lakh grouping (1,23,456.00)
var corePattern = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d{1,3}(?:,\d{2})+,\d{3}|\d+)\.\d{2}$`)

var currencyPrefixes = []string{"$", "£", "€", "₹", "R$", "USD", "GBP", "EUR", "INR"}

// ParseToken recognizes a single whitespace-free token such as "1,234.56",
// "(12.00)", "45.10-", "£9.99" or "120.00CR".
func ParseToken(tok string) (Amount, bool) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return Amount{}, false
	}
	var a Amount

	t, a.Marker = stripMarkerSuffix(t)

	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		t = t[1 : len(t)-1]
		a.Negative = true
	}
	if strings.HasPrefix(t, "-") {
		t = t[1:]
		a.Negative = true
	} else if strings.HasPrefix(t, "+") {
		t = t[1:]
	}
	if strings.HasSuffix(t, "-") {
		t = t[:len(t)-1]
		a.Negative = true
	}
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(t, p) {
			t = t[len(p):]
			break
		}
	}
	// sign may follow the currency symbol: $-12.00
	if strings.HasPrefix(t, "-") {
		t = t[1:]
		a.Negative = true
	}

	if !corePattern.MatchString(t) {
		return Amount{}, false
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(t, ",", ""))
	if err != nil {
		return Amount{}, false
	}
	a.Value = v
	return a, true
}

// IsToken reports whether tok is an amount token.
func IsToken(tok string) bool {
	_, ok := ParseToken(tok)
	return ok
}

// ParseMarker recognizes a standalone CR/DR marker token.
func ParseMarker(tok string) (Marker, bool) {
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(tok), "()[].")) {
	case "CR", "CREDIT":
		return MarkerCredit, true
	case "DR", "DEBIT":
		return MarkerDebit, true
	}
	return MarkerNone, false
}

func stripMarkerSuffix(t string) (string, Marker) {
	u := strings.ToUpper(t)
	for _, suf := range []string{"(CR)", "(DR)", "CR", "DR"} {
		if strings.HasSuffix(u, suf) && len(u) > len(suf) {
			rest := strings.TrimSpace(t[:len(t)-len(suf)])
			if strings.Contains(suf, "CR") {
				return rest, MarkerCredit
			}
			return rest, MarkerDebit
		}
	}
	return t, MarkerNone
}

// Parse reads a free-form amount, as produced by a model, into a signed decimal.
// Unlike ParseToken it accepts whole numbers and inner spaces.
func Parse(s string) (decimal.Decimal, error) {
	t := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if a, ok := ParseToken(t); ok {
		if a.Marker == MarkerDebit {
			return a.Value.Neg(), nil
		}
		return a.Signed(), nil
	}
	t = strings.ReplaceAll(t, ",", "")
	for _, p := range currencyPrefixes {
		t = strings.TrimPrefix(t, p)
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, ErrNotAmount
	}
	return d, nil
}

// Format renders d with two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
