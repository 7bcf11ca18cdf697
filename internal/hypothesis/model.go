package hypothesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/memory"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

type modelRow struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      float64  `json:"amount"`
	Direction   string   `json:"direction"`
	Balance     *float64 `json:"balance"`
}

type modelResponse struct {
	Transactions []modelRow `json:"transactions"`
}

// modelAssisted asks the model for the transaction list. Every way the call or
// its output can go wrong ends in a failure candidate.
func (g *Generator) modelAssisted(ctx context.Context, req Request, logger *slog.Logger) (*entity.Candidate, error) {
	text := g.sourceText(req)
	prompt := g.buildPrompt(req, text)

	raw, err := g.model.Generate(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return failure(constants.SchemaModelJSON, err), nil
	}

	body, err := llm.ExtractJSON(raw)
	if err != nil {
		logger.Warn("hypothesis.model.no_json", "response_len", len(raw))
		return failure(constants.SchemaModelJSON, err), nil
	}
	cleaned, _, err := llm.SanitizeTransactions(body, logger)
	if err != nil {
		return failure(constants.SchemaModelJSON, err), nil
	}
	if err := g.schema.Validate(cleaned); err != nil {
		logger.Warn("hypothesis.model.schema_invalid", "error", err)
		return failure(constants.SchemaModelJSON, err), nil
	}

	var resp modelResponse
	if err := json.Unmarshal(cleaned, &resp); err != nil {
		return failure(constants.SchemaModelJSON, fmt.Errorf("decode transactions: %w", err)), nil
	}

	c := &entity.Candidate{SchemaType: constants.SchemaModelJSON}
	for _, r := range resp.Transactions {
		t := entity.Transaction{
			RawDate:     r.Date,
			Description: r.Description,
			Amount:      decimal.NewFromFloat(r.Amount).Round(2),
			Direction:   entity.Direction(r.Direction),
			Evidence:    entity.EvidenceModel,
			Raw:         r.Date + " " + r.Description,
		}
		if r.Balance != nil {
			t.Balance = decimal.NewNullDecimal(decimal.NewFromFloat(*r.Balance).Round(2))
		}
		c.Transactions = append(c.Transactions, t)
	}
	return c, nil
}

// sourceText is the region text, or the raw page text when no region was found.
func (g *Generator) sourceText(req Request) string {
	text := region.Text(req.Regions)
	if strings.TrimSpace(text) == "" && req.Document != nil {
		var b strings.Builder
		for _, p := range req.Document.Pages {
			for _, line := range p.Lines(layout.LineTolerance) {
				b.WriteString(line.Text())
				b.WriteString("\n")
			}
		}
		text = b.String()
	}
	if len(text) > g.cfg.MaxRegionChars {
		text = text[:g.cfg.MaxRegionChars]
		if i := strings.LastIndexByte(text, '\n'); i > 0 {
			text = text[:i+1]
		}
	}
	return text
}

func (g *Generator) buildPrompt(req Request, text string) string {
	parts := []string{
		"You read bank statements. Return ONLY JSON that matches the JSON Schema provided.",
		"List every transaction row in the order printed.",
		"Copy each date exactly as printed; do not reformat it.",
		"Use a negative amount for money leaving the account and set direction to debit; positive amounts are credits.",
		"Set balance to the running balance printed on the row, or null when there is none.",
		"Skip opening and closing balances, totals, subtotals and page headers.",
		"Never invent rows that are not in the text.",
		"Layout: " + string(req.Layout.Variant) + ".",
	}
	if len(req.Memory.PriorLayoutHints) > 0 {
		parts = append(parts, "Formatting seen before for this user: "+strings.Join(req.Memory.PriorLayoutHints, ", ")+".")
	}
	if merchants := memory.RelevantMerchants(req.Memory.KnownMerchants, text, g.cfg.MerchantLimit); len(merchants) > 0 {
		parts = append(parts, "Merchants this user is known to pay: "+strings.Join(merchants, "; ")+".")
	}
	if req.Strategy == constants.StrategyModelCorrective {
		parts = append(parts, correctiveNotes(req)...)
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\nStatement text:\n")
	b.WriteString(text)
	return b.String()
}

func correctiveNotes(req Request) []string {
	var notes []string
	if len(req.Reasons) > 0 {
		notes = append(notes, "A previous reading was rejected for: "+strings.Join(req.Reasons, ", ")+".")
	}
	if req.Prior != nil && len(req.Prior.Transactions) > 0 {
		notes = append(notes, "That reading found "+strconv.Itoa(len(req.Prior.Transactions))+" rows.")
	}
	if n := region.RowCount(req.Regions); n > 0 {
		notes = append(notes, "The text has about "+strconv.Itoa(n)+" transaction lines.")
	}
	notes = append(notes, "Check each amount's sign against the change in running balance.")
	return notes
}

var schemaText = func() string {
	b, _ := json.MarshalIndent(llm.TransactionsSchema(), "", "  ")
	return string(b)
}()
