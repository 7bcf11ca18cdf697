package entity

import "github.com/joseph-ayodele/statements-tracker/constants"

// ParseResult is the JSON contract returned for every run.
type ParseResult struct {
	Status           constants.RunStatus `json:"status"`
	Message          string              `json:"message,omitempty"`
	TransactionCount int                 `json:"transaction_count"`
	StatementID      int64               `json:"statement_id"`
	SchemaConfidence float64             `json:"schema_confidence"`
	SchemaVariant    string              `json:"schema_variant"`
	Trace            ParseTrace          `json:"trace"`

	Transactions []Transaction      `json:"-"`
	RunID        string             `json:"-"`
	Signals      []constants.Signal `json:"-"` // non-fatal taxonomy conditions met during the run
}

// MemorySnapshot is the read-only user context handed to one run.
type MemorySnapshot struct {
	KnownMerchants   []string `toml:"known_merchants" json:"known_merchants"`
	PriorLayoutHints []string `toml:"prior_layout_hints" json:"prior_layout_hints"`
}

// HasHint reports whether hint appears in the prior layout hints.
func (m MemorySnapshot) HasHint(hint string) bool {
	for _, h := range m.PriorLayoutHints {
		if h == hint {
			return true
		}
	}
	return false
}

// UserContext carries the caller identity and memory snapshot into Parse.
type UserContext struct {
	UserID      string
	StatementID int64
	Memory      MemorySnapshot
}
