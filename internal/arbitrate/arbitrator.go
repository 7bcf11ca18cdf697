// Package arbitrate asks the model to judge between disagreeing candidates.
// The judge never extracts anything itself; it picks one candidate and may
// name rows to drop from it.
package arbitrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/gate"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/money"
)

// Config tunes the prompt and the acceptance bar.
type Config struct {
	MinViable     float64 // arbitrated candidate must score at least this; default 0.40
	SampleRows    int     // rows shown per candidate; default 5
	MaxViolations int     // violation codes shown per candidate; default 3
}

func DefaultConfig() Config {
	return Config{MinViable: 0.40, SampleRows: 5, MaxViolations: 3}
}

// Result is the outcome of one arbitration.
type Result struct {
	Status constants.ArbitrationStatus
	// Winner is the admitted arbitrated candidate; zero unless Status is selected.
	Winner gate.Scored
	// Chosen is the candidate the judge picked, before dropped rows.
	Chosen  gate.Scored
	Dropped []int
	Reason  string
	Err     error // why the arbitration was not conclusive
}

// Selected reports a conclusive arbitration.
func (r Result) Selected() bool { return r.Status == constants.ArbitrationSelected }

type verdict struct {
	WinnerIndex int    `json:"winner_index"`
	DropRows    []int  `json:"drop_rows"`
	Reason      string `json:"reason"`
}

var verdictSchema = llm.MustCompileSchema(llm.ArbitrationSchema())

// Arbitrator is safe for concurrent use.
type Arbitrator struct {
	model  llm.Generator
	gate   *gate.Gate
	cfg    Config
	logger *slog.Logger
}

func New(model llm.Generator, g *gate.Gate, cfg Config, logger *slog.Logger) *Arbitrator {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		model = llm.Disabled{}
	}
	def := DefaultConfig()
	if cfg.MinViable <= 0 {
		cfg.MinViable = def.MinViable
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = def.SampleRows
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = def.MaxViolations
	}
	return &Arbitrator{model: model, gate: g, cfg: cfg, logger: logger}
}

// Arbitrate judges the viable candidates among cands. The error return is only
// for ctx cancellation; every other outcome is a Result status.
func (a *Arbitrator) Arbitrate(ctx context.Context, cands []gate.Scored, exp gate.Expectation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	logger := common.LoggerFrom(ctx, a.logger)
	start := time.Now()

	var viable []gate.Scored
	for _, c := range cands {
		if !c.IsZero() && c.Viable() {
			viable = append(viable, c)
		}
	}
	if len(viable) < 2 {
		return inconclusive(fmt.Errorf("need 2 viable candidates, have %d", len(viable))), nil
	}

	raw, err := a.model.Generate(ctx, a.prompt(viable))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		logger.Warn("arbitrate.unavailable", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{Status: constants.ArbitrationUnavailable, Err: err}, nil
	}

	v, err := parseVerdict(raw)
	if err != nil {
		logger.Warn("arbitrate.unparseable", "error", err, "response_len", len(raw))
		return inconclusive(err), nil
	}
	if v.WinnerIndex >= len(viable) {
		return inconclusive(fmt.Errorf("winner_index %d out of range [0,%d)", v.WinnerIndex, len(viable))), nil
	}

	chosen := viable[v.WinnerIndex]
	cand, dropped := a.build(chosen, v.DropRows)
	if len(cand.Transactions) == 0 {
		return inconclusive(errors.New("every row dropped")), nil
	}
	markDisagreement(cand, viable, v.WinnerIndex)

	// the winner is judged against the regions it was built from
	if cand.ExpectedRows > 0 {
		exp.ExpectedRows = cand.ExpectedRows
	}
	winner := a.gate.Admit(cand, exp)
	res := Result{Chosen: chosen, Dropped: dropped, Reason: v.Reason}
	switch {
	case winner.Validation().Status == entity.ValidationFail:
		res.Status, res.Err = constants.ArbitrationInconclusive, fmt.Errorf("%w: arbitrated candidate failed validation", common.ErrArbitrationInconclusive)
	case winner.Confidence() < a.cfg.MinViable:
		res.Status, res.Err = constants.ArbitrationInconclusive, fmt.Errorf("%w: confidence %.2f below %.2f", common.ErrArbitrationInconclusive, winner.Confidence(), a.cfg.MinViable)
	default:
		res.Status, res.Winner = constants.ArbitrationSelected, winner
	}

	logger.Info("arbitrate.done",
		"status", res.Status,
		"winner_variant", chosen.Variant(),
		"dropped", len(dropped),
		"confidence", winner.Confidence(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func inconclusive(err error) Result {
	return Result{
		Status: constants.ArbitrationInconclusive,
		Err:    fmt.Errorf("%w: %w", common.ErrArbitrationInconclusive, err),
	}
}

// parseVerdict reads the JSON object between the first '{' and the last '}'
// and holds it to the verdict schema.
func parseVerdict(raw string) (verdict, error) {
	var v verdict
	body, err := llm.ExtractJSON(raw)
	if err != nil {
		return v, err
	}
	if err := verdictSchema.Validate(body); err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode verdict: %w", err)
	}
	return v, nil
}

// build copies the chosen rows minus drop, as a fresh arbitrated candidate.
// Out-of-range indexes in drop are ignored.
func (a *Arbitrator) build(chosen gate.Scored, drop []int) (*entity.Candidate, []int) {
	src := chosen.Candidate()
	var dropped []int
	kept := src.Transactions[:0]
	for i, t := range src.Transactions {
		if slices.Contains(drop, i) {
			dropped = append(dropped, i)
			continue
		}
		kept = append(kept, t)
	}
	src.Transactions = kept
	src.ID = uuid.New().String()
	src.Strategy = constants.StrategyArbitrated
	src.Provenance = constants.ProvenanceArbitrated
	src.Variant = constants.ProvenanceArbitrated + ":" + string(chosen.Strategy())
	src.Failure = nil
	return src, dropped
}

// markDisagreement flags every row that some other viable candidate does not
// have, matching on date and amount.
func markDisagreement(c *entity.Candidate, viable []gate.Scored, winner int) {
	var others []map[string]int
	for i, v := range viable {
		if i == winner {
			continue
		}
		others = append(others, rowKeys(v.Transactions()))
	}
	for i := range c.Transactions {
		t := &c.Transactions[i]
		t.RemoveFlags(entity.FlagArbitrationSplit)
		key := rowKey(*t)
		for _, keys := range others {
			if keys[key] == 0 {
				t.AddFlag(entity.FlagArbitrationSplit)
				break
			}
		}
	}
}

func rowKeys(txns []entity.Transaction) map[string]int {
	out := make(map[string]int, len(txns))
	for _, t := range txns {
		out[rowKey(t)]++
	}
	return out
}

func rowKey(t entity.Transaction) string {
	date := t.ISODate()
	if date == "" {
		date = t.RawDate
	}
	return date + "|" + t.Amount.StringFixed(2)
}

func (a *Arbitrator) prompt(viable []gate.Scored) string {
	var b strings.Builder
	b.WriteString("You judge bank statement extractions. You do not extract data yourself.\n")
	b.WriteString("Several readings of the same statement follow. Choose the one that is most plausible: ")
	b.WriteString("running balances that reconcile, realistic row counts, dates in order, amounts with the right sign.\n")
	b.WriteString("You may list rows of the winner (by row number) that are not transactions, such as totals or duplicated lines.\n")
	b.WriteString("Return ONLY JSON: {\"winner_index\": <n>, \"drop_rows\": [<row>...], \"reason\": \"<short reason>\"}\n")

	for i, c := range viable {
		b.WriteString("\n")
		b.WriteString(a.summary(i, c))
	}
	return b.String()
}

func (a *Arbitrator) summary(index int, c gate.Scored) string {
	txns := c.Transactions()
	cand := c.Candidate()
	debits, credits := cand.Totals()

	var b strings.Builder
	fmt.Fprintf(&b, "Candidate %d: variant=%s rows=%d confidence=%.2f debits=%s credits=%s span=%s\n",
		index, c.Variant(), len(txns), c.Confidence(), money.Format(debits), money.Format(credits), span(txns))

	codes := c.Validation().Codes()
	if len(codes) > a.cfg.MaxViolations {
		codes = codes[:a.cfg.MaxViolations]
	}
	if len(codes) > 0 {
		b.WriteString("  violations: " + strings.Join(codes, ", ") + "\n")
	}

	b.WriteString("  first rows:\n")
	for i, t := range txns {
		if i >= a.cfg.SampleRows {
			break
		}
		date := t.ISODate()
		if date == "" {
			date = t.RawDate
		}
		bal := "-"
		if t.Balance.Valid {
			bal = money.Format(t.Balance.Decimal)
		}
		b.WriteString("    " + strconv.Itoa(i) + " | " + date + " | " + t.Description + " | " + money.Format(t.Amount) + " | " + bal + "\n")
	}
	return b.String()
}

// span is "first..last" over resolved dates, "unknown" when none resolved.
func span(txns []entity.Transaction) string {
	var first, last time.Time
	for _, t := range txns {
		if !t.DateResolved {
			continue
		}
		if first.IsZero() || t.Date.Before(first) {
			first = t.Date
		}
		if t.Date.After(last) {
			last = t.Date
		}
	}
	if first.IsZero() {
		return "unknown"
	}
	return first.Format("2006-01-02") + ".." + last.Format("2006-01-02")
}
