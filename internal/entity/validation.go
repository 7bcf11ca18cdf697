package entity

import "slices"

// ValidationStatus is the SchemaValidator verdict.
type ValidationStatus string

const (
	ValidationPass         ValidationStatus = "pass"
	ValidationPassWarnings ValidationStatus = "pass-with-warnings"
	ValidationFail         ValidationStatus = "fail"
)

// Severity of a single violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Document-level violation codes.
const (
	CodeNoTransactions      = "no_transactions"
	CodeRowCountImplausible = "row_count_implausible"
	CodeBalanceUnverifiable = "balance_unverifiable"
	CodeErrorRatioExceeded  = "error_ratio_exceeded"
)

// Violation is one failed check. Row is -1 for document-level checks.
type Violation struct {
	Code     string   `json:"code"`
	Row      int      `json:"row"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// ValidationResult is the structured outcome of validating a candidate.
type ValidationResult struct {
	Status     ValidationStatus `json:"status"`
	Violations []Violation      `json:"violations,omitempty"`
	RowErrors  int              `json:"row_errors"`
}

// Codes lists the distinct violation codes in first-seen order.
func (r ValidationResult) Codes() []string {
	var out []string
	for _, v := range r.Violations {
		if !slices.Contains(out, v.Code) {
			out = append(out, v.Code)
		}
	}
	return out
}

// ForRow returns the violations attached to row.
func (r ValidationResult) ForRow(row int) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Row == row {
			out = append(out, v)
		}
	}
	return out
}
