// Package hypothesis turns transaction regions into candidate transaction lists,
// either with deterministic column rules or by asking the model.
package hypothesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

// Request is everything one generation attempt may look at.
type Request struct {
	Regions  []region.Region
	Document *document.Document // page text for the model when no region was found
	Layout   layout.Layout
	Strategy constants.Strategy
	Attempt  int                   // 0 for the initial candidate, N for retry-N
	Prior    *entity.Candidate     // best earlier candidate, for corrective prompts
	Reasons  []string              // violation codes of Prior
	Memory   entity.MemorySnapshot // read-only
}

// Provenance is "initial" or "retry-N".
func (r Request) Provenance() string {
	if r.Attempt <= 0 {
		return constants.ProvenanceInitial
	}
	return constants.RetryProvenance(r.Attempt)
}

// Config tunes the generator.
type Config struct {
	ColumnTolerance  float64 // right-edge clustering for rules; default 15pt
	RelaxedTolerance float64 // clustering for rules-relaxed; default 24pt
	MaxRegionChars   int     // region text sent to the model; default 9000
	MerchantLimit    int     // known merchants named in a prompt; default 20
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		ColumnTolerance:  layout.ColumnTolerance,
		RelaxedTolerance: 24,
		MaxRegionChars:   9000,
		MerchantLimit:    20,
	}
}

// Generator produces one candidate per call. It is safe for concurrent use.
type Generator struct {
	model  llm.Generator
	schema *llm.Schema
	cfg    Config
	logger *slog.Logger
}

var transactionsSchema = llm.MustCompileSchema(llm.TransactionsSchema())

func NewGenerator(model llm.Generator, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		model = llm.Disabled{}
	}
	def := DefaultConfig()
	if cfg.ColumnTolerance <= 0 {
		cfg.ColumnTolerance = def.ColumnTolerance
	}
	if cfg.RelaxedTolerance <= 0 {
		cfg.RelaxedTolerance = def.RelaxedTolerance
	}
	if cfg.MaxRegionChars <= 0 {
		cfg.MaxRegionChars = def.MaxRegionChars
	}
	if cfg.MerchantLimit <= 0 {
		cfg.MerchantLimit = def.MerchantLimit
	}
	return &Generator{model: model, schema: transactionsSchema, cfg: cfg, logger: logger}
}

// Generate builds a candidate for req.Strategy. Model errors and unusable model
// output come back as a candidate with Failure set, never as an error; the
// error return is reserved for ctx cancellation and unknown strategies.
func (g *Generator) Generate(ctx context.Context, req Request) (*entity.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := common.LoggerFrom(ctx, g.logger)
	start := time.Now()

	var (
		c   *entity.Candidate
		err error
	)
	switch req.Strategy {
	case constants.StrategyRules:
		c = g.rules(req, g.cfg.ColumnTolerance, false)
	case constants.StrategyRulesRelaxed:
		c = g.rules(req, g.cfg.RelaxedTolerance, true)
	case constants.StrategyModel, constants.StrategyModelCorrective:
		c, err = g.modelAssisted(ctx, req, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, common.NewAppError("UNKNOWN_STRATEGY", "cannot generate with strategy "+string(req.Strategy), common.ErrInvalidInput)
	}

	c.ID = uuid.New().String()
	c.Strategy = req.Strategy
	c.Provenance = req.Provenance()
	if c.Variant == "" {
		c.Variant = req.Provenance() + ":" + string(req.Strategy)
	}
	c.Layout = req.Layout.Variant
	c.ExpectedRows = region.RowCount(req.Regions)

	if c.Failure != nil {
		logger.Warn("hypothesis.generate.failed",
			"variant", c.Variant,
			"error", c.Failure,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	} else {
		logger.Info("hypothesis.generate.ok",
			"variant", c.Variant,
			"schema_type", c.SchemaType,
			"rows", len(c.Transactions),
			"expected_rows", c.ExpectedRows,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return c, nil
}

func failure(schema constants.SchemaType, err error) *entity.Candidate {
	return &entity.Candidate{
		SchemaType: schema,
		Failure:    fmt.Errorf("%w: %w", common.ErrGenerationFailure, err),
	}
}
