package region

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/money"
)

// Lines matching any of these are summaries, not transactions.
var summaryKeywords = []string{
	"opening balance",
	"closing balance",
	"brought forward",
	"carried forward",
	"total",
	"sub total",
	"summary",
	"interest rate",
	"statement period",
	"page ",
}

var columnWords = map[string]ColumnKind{
	"debit":       ColumnDebit,
	"debits":      ColumnDebit,
	"withdrawal":  ColumnDebit,
	"withdrawals": ColumnDebit,
	"paid out":    ColumnDebit,
	"credit":      ColumnCredit,
	"credits":     ColumnCredit,
	"deposit":     ColumnCredit,
	"deposits":    ColumnCredit,
	"paid in":     ColumnCredit,
	"amount":      ColumnAmount,
	"balance":     ColumnBalance,
}

// Options tune one extraction pass.
type Options struct {
	Relaxed       bool    // any date+amount line is a row, whatever the layout
	Workers       int     // pages processed in parallel; <= 0 means 4
	MaxMergeLines int     // continuation lines merged into a row; 0 means 3
	MergeGap      float64 // max vertical gap (points) for a continuation; 0 means 16
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxMergeLines <= 0 {
		o.MaxMergeLines = 3
	}
	if o.MergeGap <= 0 {
		o.MergeGap = 16
	}
	return o
}

// Extractor locates transaction regions.
type Extractor struct {
	summary *ahocorasick.Matcher
	logger  *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		summary: ahocorasick.NewStringMatcher(summaryKeywords),
		logger:  logger,
	}
}

// Result carries the regions and any non-fatal signal.
type Result struct {
	Regions []Region
	Signals []constants.Signal
}

// Extract scans pages in parallel. The only error is ctx cancellation; no rows
// is a valid result carrying SignalRegionExtractionEmpty.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document, lay layout.Layout, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.withDefaults()
	minAmounts := 1
	if lay.Variant == constants.LayoutTabularLedger && !opts.Relaxed {
		minAmounts = 2
	}

	perPage := make([][]Region, len(doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, p := range doc.Pages {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perPage[i] = e.scanPage(p, minAmounts, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, regs := range perPage {
		res.Regions = append(res.Regions, regs...)
	}
	rows := RowCount(res.Regions)
	if rows == 0 {
		res.Signals = append(res.Signals, constants.SignalRegionExtractionEmpty)
	}
	e.logger.Debug("region.extract.ok",
		"layout", lay.Variant,
		"relaxed", opts.Relaxed,
		"regions", len(res.Regions),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) scanPage(p document.Page, minAmounts int, opts Options) []Region {
	var (
		out    []Region
		cur    *Region
		header *Header
		lastY  float64
		merged int
	)
	flush := func() {
		if cur != nil && len(cur.Rows) > 0 {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, line := range p.Lines(layout.LineTolerance) {
		if h, ok := parseHeader(line); ok {
			flush()
			header = h
			continue
		}
		lower := strings.ToLower(line.Text())
		if hits := e.summary.MatchThreadSafe([]byte(lower)); len(hits) > 0 {
			flush()
			continue
		}

		info := layout.Classify(line)
		switch {
		case info.HasDate && len(info.Amounts) >= minAmounts:
			if cur == nil {
				cur = &Region{Page: p.Index, Top: line.Y, Header: header}
			}
			cur.Rows = append(cur.Rows, Row{Page: p.Index, Line: info})
			cur.Bottom = line.Y
			lastY, merged = line.Y, 0
		case info.IsBlank() && cur != nil && merged < opts.MaxMergeLines && line.Y-lastY <= opts.MergeGap:
			last := &cur.Rows[len(cur.Rows)-1]
			last.Continuation = append(last.Continuation, line.Text())
			cur.Bottom = line.Y
			lastY = line.Y
			merged++
		default:
			flush()
		}
	}
	flush()
	return out
}

// parseHeader recognizes a column header: a "date" label plus at least one
// numeric column label.
func parseHeader(line document.Line) (*Header, bool) {
	hasDate := false
	h := &Header{Y: line.Y}
	words := line.Words
	for i := 0; i < len(words); i++ {
		if money.IsToken(words[i].Text) {
			return nil, false
		}
		w := strings.ToLower(strings.Trim(words[i].Text, ":()"))
		if strings.HasPrefix(w, "date") {
			hasDate = true
			continue
		}
		if i+1 < len(words) {
			pair := w + " " + strings.ToLower(words[i+1].Text)
			if kind, ok := columnWords[pair]; ok {
				h.Columns = append(h.Columns, Column{Name: pair, Kind: kind, X0: words[i].X0, X1: words[i+1].X1})
				i++
				continue
			}
		}
		if kind, ok := columnWords[w]; ok {
			h.Columns = append(h.Columns, Column{Name: w, Kind: kind, X0: words[i].X0, X1: words[i].X1})
		}
	}
	if !hasDate || len(h.Columns) == 0 {
		return nil, false
	}
	return h, true
}
