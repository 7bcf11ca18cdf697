// Package pipeline turns statement bytes into one ParseResult: decode, detect
// the layout, find regions, then walk the generate/score/retry/arbitrate state
// machine and assemble the winner.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

// Decoder turns raw bytes into positioned words.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*document.Document, error)
}

// Sink persists a finished run. It is called at most once per run, with the
// complete transaction list.
type Sink interface {
	SaveTransactions(ctx context.Context, statementID int64, txns []entity.Transaction, trace entity.ParseTrace) error
}

// DiscardSink drops results; for dry runs.
type DiscardSink struct{}

func (DiscardSink) SaveTransactions(context.Context, int64, []entity.Transaction, entity.ParseTrace) error {
	return nil
}

// Observer is told about every finished run.
type Observer interface {
	ObserveRun(res entity.ParseResult, elapsed time.Duration)
}

// ParserConfig wires a Parser.
type ParserConfig struct {
	Decoder      Decoder
	Extractor    *region.Extractor
	Orchestrator *Orchestrator
	Assembler    *Assembler
	Sink         Sink     // nil means DiscardSink
	Observer     Observer // optional
	Workers      int      // pages segmented in parallel
}

// Parser is the entry point of the core. It holds no per-run state.
type Parser struct {
	decoder   Decoder
	extractor *region.Extractor
	orch      *Orchestrator
	assembler *Assembler
	sink      Sink
	observer  Observer
	workers   int
	logger    *slog.Logger
}

func NewParser(cfg ParserConfig, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = DiscardSink{}
	}
	if cfg.Extractor == nil {
		cfg.Extractor = region.NewExtractor(logger)
	}
	return &Parser{
		decoder:   cfg.Decoder,
		extractor: cfg.Extractor,
		orch:      cfg.Orchestrator,
		assembler: cfg.Assembler,
		sink:      cfg.Sink,
		observer:  cfg.Observer,
		workers:   cfg.Workers,
		logger:    logger,
	}
}

// Parse always returns a result with trace.final set. Only an undecodable
// document, a sink failure, an internal error or cancellation give
// status "error"; everything else is absorbed into confidences and flags.
func (p *Parser) Parse(ctx context.Context, data []byte, uc entity.UserContext) (res entity.ParseResult) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = common.WithRunID(ctx, runID)
	if uc.UserID != "" {
		ctx = common.WithUserID(ctx, uc.UserID)
	}
	logger := common.LoggerFrom(ctx, p.logger)
	logger.Info("pipeline.parse.start", "statement_id", uc.StatementID, "bytes", len(data))

	defer func() {
		res.RunID = runID
		res.StatementID = uc.StatementID
		logger.Info("pipeline.parse.done",
			"status", res.Status,
			"transactions", res.TransactionCount,
			"confidence", res.SchemaConfidence,
			"variant", res.SchemaVariant,
			"signals", res.Signals,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if p.observer != nil {
			p.observer.ObserveRun(res, time.Since(start))
		}
	}()

	doc, err := p.decoder.Decode(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return errorResult("run canceled")
		}
		logger.Error("pipeline.decode.failed", "error", err)
		return errorResult(common.Fatal("document could not be decoded", err).Error())
	}

	lay := layout.Detect(doc, uc.Memory.PriorLayoutHints)
	var signals []constants.Signal
	signals = append(signals, lay.Signals...)

	segmented, err := p.extractor.Extract(ctx, doc, lay, region.Options{Workers: p.workers})
	if err != nil {
		return errorResult("run canceled")
	}
	signals = append(signals, segmented.Signals...)

	relaxed := func(ctx context.Context) ([]region.Region, error) {
		r, err := p.extractor.Extract(ctx, doc, lay, region.Options{Relaxed: true, Workers: p.workers})
		return r.Regions, err
	}
	in := Input{
		Document: doc,
		Layout:   lay,
		Regions:  segmented.Regions,
		Memory:   uc.Memory,
		Relaxed:  relaxed,
	}
	out, err := p.orch.Run(ctx, in)
	final := p.assembler.Assemble(out)
	signals = append(signals, out.Signals...)

	res = entity.ParseResult{
		Status:           constants.RunStatusSuccess,
		TransactionCount: len(final.Transactions),
		SchemaConfidence: final.Confidence(),
		SchemaVariant:    final.Variant(),
		Trace:            final.Trace,
		Transactions:     final.Transactions,
		Signals:          signals,
	}

	switch {
	case err != nil:
		logger.Error("pipeline.orchestrator.failed", "error", err)
		return failed(res, err.Error())
	case out.Canceled:
		return failed(res, "run canceled")
	}

	if err := p.sink.SaveTransactions(ctx, uc.StatementID, final.Transactions, final.Trace); err != nil {
		logger.Error("pipeline.persist.failed", "error", err)
		msg := "persist transactions: " + err.Error()
		if errors.Is(err, context.Canceled) {
			msg = "run canceled"
		}
		return failed(res, msg)
	}
	return res
}

// failed keeps the trace and the winner summary but drops the rows, so nothing
// partial is reported as stored.
func failed(res entity.ParseResult, msg string) entity.ParseResult {
	res.Status = constants.RunStatusError
	res.Message = msg
	res.Transactions = nil
	res.TransactionCount = 0
	return res
}

// errorResult is a run that never reached the state machine.
func errorResult(msg string) entity.ParseResult {
	return entity.ParseResult{
		Status:        constants.RunStatusError,
		Message:       msg,
		SchemaVariant: constants.ProvenanceEmpty,
		Trace:         entity.ParseTrace{Final: entity.FinalTrace{Variant: constants.ProvenanceEmpty}},
	}
}
