package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/arbitrate"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/document"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/gate"
	"github.com/joseph-ayodele/statements-tracker/internal/hypothesis"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

// Generator produces one candidate per strategy.
type Generator interface {
	Generate(ctx context.Context, req hypothesis.Request) (*entity.Candidate, error)
}

// Judge arbitrates between viable candidates.
type Judge interface {
	Arbitrate(ctx context.Context, cands []gate.Scored, exp gate.Expectation) (arbitrate.Result, error)
}

// Input is one document, already decoded and segmented.
type Input struct {
	Document *document.Document
	Layout   layout.Layout
	Regions  []region.Region
	Memory   entity.MemorySnapshot

	// Relaxed computes the relaxed segmentation on first use; nil reuses Regions.
	Relaxed func(ctx context.Context) ([]region.Region, error)
}

// Outcome is everything the run decided, ready for the final assembler.
type Outcome struct {
	Initial       gate.Scored
	Retries       []gate.Scored
	RetryDecision constants.RetryDecision // empty when no retry ran
	Arbitration   *arbitrate.Result       // nil when the judge was not consulted
	Path          []State
	Signals       []constants.Signal
	Canceled      bool
}

// Candidates returns the initial candidate followed by the retries.
func (o Outcome) Candidates() []gate.Scored {
	if o.Initial.IsZero() {
		return o.Retries
	}
	return append([]gate.Scored{o.Initial}, o.Retries...)
}

func (o *Outcome) signal(s constants.Signal) {
	for _, have := range o.Signals {
		if have == s {
			return
		}
	}
	o.Signals = append(o.Signals, s)
}

// Orchestrator drives generation, scoring, retries and arbitration for one
// document at a time. It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	gen          Generator
	judge        Judge
	gate         *gate.Gate
	policy       Policy
	modelTimeout time.Duration
	logger       *slog.Logger
}

// OrchestratorConfig wires the collaborators.
type OrchestratorConfig struct {
	Generator    Generator
	Judge        Judge
	Gate         *gate.Gate
	Thresholds   Thresholds
	Retry        *RetryController
	ModelTimeout time.Duration // bound on one model-assisted generation or arbitration; default 2m
}

func NewOrchestrator(cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Minute
	}
	if cfg.Retry == nil {
		cfg.Retry = NewRetryController(nil)
	}
	return &Orchestrator{
		gen:          cfg.Generator,
		judge:        cfg.Judge,
		gate:         cfg.Gate,
		policy:       Policy{Thresholds: cfg.Thresholds, Retry: cfg.Retry},
		modelTimeout: cfg.ModelTimeout,
		logger:       logger,
	}
}

// run is the mutable state of one Run call.
type run struct {
	o       *Orchestrator
	in      Input
	logger  *slog.Logger
	state   State
	out     Outcome
	snap    Snapshot
	base    gate.Expectation
	relaxed []region.Region
}

// Run walks the state machine to FINALIZED. Cancellation is not an error: the
// outcome comes back with Canceled set and whatever was produced so far. The
// error return is reserved for an illegal transition, which is a bug.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Outcome, error) {
	r := &run{
		o:      o,
		in:     in,
		logger: common.LoggerFrom(ctx, o.logger),
		state:  StateInit,
		base: gate.Expectation{
			ExpectedRows: region.RowCount(in.Regions),
			Hints:        in.Memory.PriorLayoutHints,
		},
	}
	r.out.Path = []State{StateInit}

	strategy := o.policy.Retry.Initial(in.Layout, o.policy.LayoutConfidence)
	r.logger.Info("orchestrator.start",
		"layout", in.Layout.Variant,
		"layout_score", in.Layout.Score,
		"strategy", strategy,
		"expected_rows", r.base.ExpectedRows,
	)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return r.cancel()
		}
		scored, err := r.generate(ctx, strategy, attempt)
		if err != nil {
			return r.out, err
		}
		if scored.IsZero() {
			return r.cancel()
		}
		if attempt == 0 {
			r.out.Initial = scored
		} else {
			r.out.Retries = append(r.out.Retries, scored)
		}
		// a model call that outlived the caller is kept, but nothing new starts
		if ctx.Err() != nil {
			return r.cancel()
		}

		d := o.policy.Next(r.snap)
		r.logger.Info("orchestrator.decision",
			"attempt", attempt,
			"variant", scored.Variant(),
			"confidence", scored.Confidence(),
			"validation", scored.Validation().Status,
			"next", d.Next,
			"reason", d.Reason,
		)

		switch d.Next {
		case StateAccepted:
			if err := r.move(StateAccepted); err != nil {
				return r.out, err
			}
			if attempt > 0 {
				r.out.RetryDecision = constants.RetryAccepted
			}
			return r.finalize()

		case StateRetrying:
			if ctx.Err() != nil {
				return r.cancel()
			}
			if err := r.move(StateRetrying); err != nil {
				return r.out, err
			}
			r.snap.RetriesUsed++
			strategy = d.Strategy

		case StateArbitrating:
			if err := r.move(StateArbitrating); err != nil {
				return r.out, err
			}
			if d.Exhausted {
				r.out.signal(constants.SignalRetryBudgetExhausted)
				r.out.RetryDecision = constants.RetryExhausted
			} else {
				r.out.RetryDecision = constants.RetryNeedsArbitration
			}
			if ctx.Err() != nil {
				return r.cancel()
			}
			r.arbitrate(ctx)
			return r.finalize()

		default:
			if d.Exhausted {
				r.out.signal(constants.SignalRetryBudgetExhausted)
			}
			if r.snap.RetriesUsed > 0 {
				r.out.RetryDecision = constants.RetryExhausted
			}
			return r.finalize()
		}
	}
}

// generate produces and admits one candidate. The zero Scored means ctx was
// canceled before a candidate came back.
func (r *run) generate(ctx context.Context, strategy constants.Strategy, attempt int) (gate.Scored, error) {
	req := hypothesis.Request{
		Regions:  r.in.Regions,
		Document: r.in.Document,
		Layout:   r.in.Layout,
		Strategy: strategy,
		Attempt:  attempt,
		Memory:   r.in.Memory,
	}
	if strategy == constants.StrategyRulesRelaxed {
		regs, err := r.relaxedRegions(ctx)
		if err != nil {
			return gate.Scored{}, nil
		}
		req.Regions = regs
	}
	if strategy == constants.StrategyModelCorrective {
		if best := Best(r.snap.Candidates); !best.IsZero() {
			req.Prior = best.Candidate()
			req.Reasons = best.Validation().Codes()
		}
	}

	genCtx, cancel := r.o.detach(ctx, strategy.ModelAssisted())
	c, err := r.o.gen.Generate(genCtx, req)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return gate.Scored{}, nil
		}
		// a generator error outside cancellation still counts as a failed attempt
		c = &entity.Candidate{
			Strategy:   strategy,
			Provenance: req.Provenance(),
			Variant:    req.Provenance() + ":" + string(strategy),
			Failure:    fmt.Errorf("%w: %w", common.ErrGenerationFailure, err),
		}
	}
	if err := r.move(StateGenerated); err != nil {
		return gate.Scored{}, err
	}

	exp := r.base
	if c.ExpectedRows > 0 {
		exp.ExpectedRows = c.ExpectedRows
	}
	scored := r.o.gate.Admit(c, exp)
	if err := r.move(StateScored); err != nil {
		return gate.Scored{}, err
	}

	if scored.Failure() != nil {
		r.out.signal(constants.SignalGenerationFailure)
	}
	if scored.Viable() && scored.Validation().Status == entity.ValidationFail {
		r.out.signal(constants.SignalValidationFailure)
	}
	r.snap.Candidates = append(r.snap.Candidates, scored)
	r.snap.Tried = append(r.snap.Tried, strategy)
	return scored, nil
}

func (r *run) relaxedRegions(ctx context.Context) ([]region.Region, error) {
	if r.relaxed == nil {
		if r.in.Relaxed == nil {
			return r.in.Regions, nil
		}
		regs, err := r.in.Relaxed(ctx)
		if err != nil {
			return nil, err
		}
		r.relaxed = regs
	}
	return r.relaxed, nil
}

func (r *run) arbitrate(ctx context.Context) {
	if r.o.judge == nil {
		res := arbitrate.Result{Status: constants.ArbitrationUnavailable}
		r.out.Arbitration = &res
		r.out.signal(constants.SignalArbitrationUnavailable)
		r.snap.Arbitrated = true
		return
	}

	judgeCtx, cancel := r.o.detach(ctx, true)
	res, err := r.o.judge.Arbitrate(judgeCtx, r.snap.Candidates, r.base)
	cancel()
	if err != nil {
		// only a canceled context gets here; the judge is treated as unavailable
		res = arbitrate.Result{Status: constants.ArbitrationUnavailable, Err: err}
	}
	r.out.Arbitration = &res
	r.snap.Arbitrated = true

	switch res.Status {
	case constants.ArbitrationUnavailable:
		r.out.signal(constants.SignalArbitrationUnavailable)
	case constants.ArbitrationInconclusive:
		r.out.signal(constants.SignalArbitrationInconclusive)
	}
	r.logger.Info("orchestrator.arbitration",
		"status", res.Status,
		"error", res.Err,
	)
}

func (r *run) move(to State) error {
	if !r.state.CanTransition(to) {
		r.logger.Error("orchestrator.illegal_transition", "from", r.state, "to", to)
		return common.Fatal("illegal transition "+r.state.String()+" -> "+to.String(), nil)
	}
	r.logger.Debug("orchestrator.transition", "from", r.state, "to", to)
	r.state = to
	r.out.Path = append(r.out.Path, to)
	return nil
}

func (r *run) finalize() (Outcome, error) {
	if err := r.move(StateFinalized); err != nil {
		return r.out, err
	}
	return r.out, nil
}

func (r *run) cancel() (Outcome, error) {
	r.out.Canceled = true
	if r.snap.RetriesUsed > 0 {
		r.out.RetryDecision = constants.RetryCanceled
	}
	r.logger.Warn("orchestrator.canceled", "state", r.state, "candidates", len(r.snap.Candidates))
	return r.finalize()
}

// detach lets an in-flight model call finish or time out on its own instead of
// being cut off by the caller's cancellation.
func (o *Orchestrator) detach(ctx context.Context, model bool) (context.Context, context.CancelFunc) {
	if !model {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), o.modelTimeout)
}
