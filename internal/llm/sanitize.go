package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/statements-tracker/internal/money"
)

// ErrNoJSON is returned when a response holds no JSON object.
var ErrNoJSON = errors.New("no json object in model response")

// ExtractJSON strips markdown fences and returns the text between the first '{'
// and the last '}'.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSON
	}
	return []byte(s[start : end+1]), nil
}

var rowKeys = map[string]struct{}{
	"date": {}, "description": {}, "amount": {}, "direction": {}, "balance": {},
}

var directionSynonyms = map[string]string{
	"debit":      "debit",
	"dr":         "debit",
	"withdrawal": "debit",
	"out":        "debit",
	"credit":     "credit",
	"cr":         "credit",
	"deposit":    "credit",
	"in":         "credit",
}

// SanitizeTransactions normalizes a {"transactions":[...]} payload so the strict
// schema check judges content, not formatting:
// - drops unknown keys at both levels
// - coerces "1,234.56"-style strings to numbers for amount and balance
// - maps direction synonyms (DR, withdrawal, ...) and fills it from the sign
// - turns a missing or null description into ""
//
// It returns the cleaned JSON and a list of what was changed.
func SanitizeTransactions(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	changed := make([]string, 0, 8)
	for k := range m {
		if k != "transactions" {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	rows, ok := m["transactions"].([]any)
	if !ok {
		// leave it for the schema to reject
		out, err := json.Marshal(m)
		return out, changed, err
	}

	kept := make([]any, 0, len(rows))
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			changed = append(changed, fmt.Sprintf("transactions[%d](type)", i))
			continue
		}
		for k := range row {
			if _, ok := rowKeys[k]; !ok {
				delete(row, k)
				changed = append(changed, fmt.Sprintf("transactions[%d].%s(unknown)", i, k))
			}
		}
		for _, k := range []string{"amount", "balance"} {
			if s, ok := row[k].(string); ok {
				d, err := money.Parse(s)
				if err != nil {
					if k == "balance" {
						row[k] = nil
						changed = append(changed, fmt.Sprintf("transactions[%d].balance(unparsed)", i))
					}
					continue
				}
				f, _ := d.Float64()
				row[k] = f
				changed = append(changed, fmt.Sprintf("transactions[%d].%s(coerced)", i, k))
			}
		}
		if d, ok := row["date"].(string); ok {
			row["date"] = strings.TrimSpace(d)
		}
		if d, ok := row["description"].(string); ok {
			row["description"] = strings.TrimSpace(d)
		} else if _, present := row["description"]; !present || row["description"] == nil {
			row["description"] = ""
		}
		if d, ok := row["direction"].(string); ok {
			if norm, ok := directionSynonyms[strings.ToLower(strings.TrimSpace(d))]; ok {
				row["direction"] = norm
			}
		} else if amt, ok := row["amount"].(float64); ok {
			row["direction"] = "credit"
			if amt < 0 {
				row["direction"] = "debit"
			}
			changed = append(changed, fmt.Sprintf("transactions[%d].direction(from_sign)", i))
		}
		kept = append(kept, row)
	}
	m["transactions"] = kept

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Debug("llm.sanitize.applied", "changes", len(changed), "first", changed[0])
	}
	return out, changed, nil
}
