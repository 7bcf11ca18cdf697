package pipeline

import (
	"log/slog"
	"time"

	"github.com/joseph-ayodele/statements-tracker/internal/arbitrate"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/dates"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/gate"
	"github.com/joseph-ayodele/statements-tracker/internal/hypothesis"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
	"github.com/joseph-ayodele/statements-tracker/internal/score"
	"github.com/joseph-ayodele/statements-tracker/internal/validate"
)

// Settings are the knobs New needs.
type Settings struct {
	Thresholds   Thresholds
	DayFirst     bool
	Workers      int
	Document     document.Config
	ModelTimeout time.Duration
}

// SettingsFromConfig reads the pipeline, document and model sections.
func SettingsFromConfig(cfg *common.Config) Settings {
	// a generation may retry inside the guard; leave room for every attempt
	attempts := max(cfg.LLM.MaxAttempts, 1)
	return Settings{
		Thresholds: ThresholdsFromConfig(cfg.Pipeline),
		DayFirst:   cfg.Pipeline.DayFirst,
		Workers:    cfg.Pipeline.Workers,
		Document: document.Config{
			Pdftotext: cfg.Document.Pdftotext,
			MaxPages:  cfg.Document.MaxPages,
		},
		ModelTimeout: time.Duration(attempts+1) * cfg.LLM.Timeout,
	}
}

// NewGate builds the shared deterministic gate with Low taken from th.
func NewGate(th Thresholds, dayFirst bool) *gate.Gate {
	sc := score.DefaultConfig()
	sc.Low = th.Low
	return gate.New(dates.NewNormalizer(dayFirst), validate.NewValidator(validate.DefaultConfig()), score.NewScorer(sc))
}

// New wires the production parser around model. A nil model disables every
// model-assisted strategy and arbitration.
func New(s Settings, model llm.Generator, sink Sink, observer Observer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		model = llm.Disabled{}
	}
	g := NewGate(s.Thresholds, s.DayFirst)
	judge := arbitrate.New(model, g, arbitrate.Config{MinViable: s.Thresholds.MinViable}, logger)
	orch := NewOrchestrator(OrchestratorConfig{
		Generator:    hypothesis.NewGenerator(model, hypothesis.DefaultConfig(), logger),
		Judge:        judge,
		Gate:         g,
		Thresholds:   s.Thresholds,
		ModelTimeout: s.ModelTimeout,
	}, logger)

	return NewParser(ParserConfig{
		Decoder:      document.NewDecoder(s.Document, logger),
		Extractor:    region.NewExtractor(logger),
		Orchestrator: orch,
		Assembler:    NewAssembler(s.Thresholds),
		Sink:         sink,
		Observer:     observer,
		Workers:      s.Workers,
	}, logger)
}
