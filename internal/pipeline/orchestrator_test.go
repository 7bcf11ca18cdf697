package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/arbitrate"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/hypothesis"
	"github.com/joseph-ayodele/statements-tracker/internal/layout"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/region"
)

type step func(ctx context.Context, req hypothesis.Request) (*entity.Candidate, error)

// scriptedGen answers attempt N with script[N].
type scriptedGen struct {
	mu     sync.Mutex
	script []step
	reqs   []hypothesis.Request
}

func (g *scriptedGen) Generate(ctx context.Context, req hypothesis.Request) (*entity.Candidate, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if req.Attempt >= len(g.script) {
		return nil, errors.New("script exhausted")
	}
	return g.script[req.Attempt](ctx, req)
}

func rows(n int, balances bool) step {
	return func(_ context.Context, req hypothesis.Request) (*entity.Candidate, error) {
		return debits(req.Strategy, req.Attempt, n, balances), nil
	}
}

func fail(err error) step {
	return func(context.Context, hypothesis.Request) (*entity.Candidate, error) {
		return nil, err
	}
}

type fakeModel struct {
	reply string
	err   error
	calls int
}

func (f *fakeModel) Generate(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

var (
	ledgerLayout    = layout.Layout{Variant: constants.LayoutTabularLedger, Score: 0.9}
	narrativeLayout = layout.Layout{Variant: constants.LayoutNarrativeList, Score: 0.4}
)

func newOrchestrator(gen Generator, judge Judge) *Orchestrator {
	th := DefaultThresholds()
	return NewOrchestrator(OrchestratorConfig{
		Generator:  gen,
		Judge:      judge,
		Gate:       NewGate(th, true),
		Thresholds: th,
	}, nil)
}

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("confident ledger is accepted on the first candidate", func(t *testing.T) {
		gen := &scriptedGen{script: []step{rows(10, true)}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: ledgerLayout})
		require.NoError(t, err)

		assert.Equal(t, []State{StateInit, StateGenerated, StateScored, StateAccepted, StateFinalized}, out.Path)
		assert.Equal(t, "initial:rules", out.Initial.Variant())
		assert.Empty(t, out.Retries)
		assert.Empty(t, out.RetryDecision)
		assert.Nil(t, out.Arbitration)
		assert.False(t, out.Canceled)
	})

	t.Run("failed model attempt is retried with rules", func(t *testing.T) {
		gen := &scriptedGen{script: []step{fail(llm.ErrUnavailable), rows(10, true)}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: narrativeLayout})
		require.NoError(t, err)

		assert.Equal(t, []State{
			StateInit, StateGenerated, StateScored, StateRetrying,
			StateGenerated, StateScored, StateAccepted, StateFinalized,
		}, out.Path)
		require.Len(t, gen.reqs, 2)
		assert.Equal(t, constants.StrategyModel, gen.reqs[0].Strategy)
		assert.Equal(t, constants.StrategyRules, gen.reqs[1].Strategy)

		require.False(t, out.Initial.IsZero())
		assert.False(t, out.Initial.Viable())
		assert.ErrorIs(t, out.Initial.Failure(), common.ErrGenerationFailure)
		assert.ErrorIs(t, out.Initial.Failure(), llm.ErrUnavailable)
		assert.Equal(t, constants.RetryAccepted, out.RetryDecision)
		assert.Contains(t, out.Signals, constants.SignalGenerationFailure)
	})

	t.Run("disagreeing retries go to the judge", func(t *testing.T) {
		gen := &scriptedGen{script: []step{fail(llm.ErrUnavailable), rows(52, false), rows(48, false)}}
		model := &fakeModel{reply: `{"winner_index":1}`}
		th := DefaultThresholds()
		g := NewGate(th, true)
		judge := arbitrate.New(model, g, arbitrate.DefaultConfig(), nil)
		orch := NewOrchestrator(OrchestratorConfig{Generator: gen, Judge: judge, Gate: g, Thresholds: th}, nil)

		out, err := orch.Run(ctx, Input{Layout: narrativeLayout})
		require.NoError(t, err)

		assert.Equal(t, 1, model.calls)
		assert.Equal(t, StateArbitrating, out.Path[len(out.Path)-2])
		assert.Equal(t, constants.RetryNeedsArbitration, out.RetryDecision)
		require.NotNil(t, out.Arbitration)
		require.True(t, out.Arbitration.Selected())
		assert.Equal(t, "retry-2:rules-relaxed", out.Arbitration.Chosen.Variant())
		assert.Equal(t, "arbitrated:rules-relaxed", out.Arbitration.Winner.Variant())
		assert.NotContains(t, out.Signals, constants.SignalRetryBudgetExhausted)

		final := NewAssembler(th).Assemble(out)
		assert.Equal(t, "arbitrated:rules-relaxed", final.Variant())
		assert.Len(t, final.Transactions, 48)
		require.NotNil(t, final.Trace.Arbitration)
		assert.Equal(t, "selected", final.Trace.Arbitration.Status)
		assert.Equal(t, "retry-2:rules-relaxed", final.Trace.Arbitration.WinnerVariant)
		require.NotNil(t, final.Trace.Arbitration.WinnerConfidence)
		assert.Equal(t, final.Confidence(), *final.Trace.Arbitration.WinnerConfidence)
		require.NotNil(t, final.Trace.Retry)
		assert.Equal(t, "needs_arbitration", final.Trace.Retry.Decision)
		assert.Len(t, final.Trace.Retry.Candidates, 3)
	})

	t.Run("exhausted ladder with two viable candidates and no judge", func(t *testing.T) {
		relaxedCalls := 0
		relaxed := []region.Region{{Page: 1}}
		relax := func(context.Context) ([]region.Region, error) {
			relaxedCalls++
			return relaxed, nil
		}
		in := Input{Layout: ledgerLayout, Relaxed: relax}
		gen := &scriptedGen{script: []step{
			rows(10, false),
			rows(10, false),
			fail(llm.ErrDisabled),
			fail(llm.ErrDisabled),
		}}
		out, err := newOrchestrator(gen, nil).Run(ctx, in)
		require.NoError(t, err)

		require.Len(t, gen.reqs, 4)
		assert.Equal(t, constants.RetryLadder, []constants.Strategy{
			gen.reqs[0].Strategy, gen.reqs[1].Strategy, gen.reqs[2].Strategy, gen.reqs[3].Strategy,
		})
		assert.Equal(t, relaxed, gen.reqs[1].Regions)
		assert.Equal(t, 1, relaxedCalls)

		corrective := gen.reqs[3]
		require.NotNil(t, corrective.Prior)
		assert.Len(t, corrective.Prior.Transactions, 10)
		assert.Contains(t, corrective.Reasons, entity.CodeBalanceUnverifiable)

		assert.Equal(t, constants.RetryExhausted, out.RetryDecision)
		require.NotNil(t, out.Arbitration)
		assert.Equal(t, constants.ArbitrationUnavailable, out.Arbitration.Status)
		assert.Contains(t, out.Signals, constants.SignalRetryBudgetExhausted)
		assert.Contains(t, out.Signals, constants.SignalArbitrationUnavailable)

		final := NewAssembler(DefaultThresholds()).Assemble(out)
		assert.Equal(t, "initial:rules", final.Variant())
		assert.Equal(t, "unavailable", final.Trace.Arbitration.Status)
		assert.Nil(t, final.Trace.Arbitration.WinnerConfidence)
	})

	t.Run("nothing viable finalizes empty", func(t *testing.T) {
		gen := &scriptedGen{script: []step{
			fail(llm.ErrUnavailable),
			rows(0, false),
			rows(0, false),
			fail(llm.ErrUnavailable),
		}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: narrativeLayout})
		require.NoError(t, err)

		assert.Len(t, out.Retries, 3)
		assert.Nil(t, out.Arbitration)
		assert.Equal(t, constants.RetryExhausted, out.RetryDecision)

		final := NewAssembler(DefaultThresholds()).Assemble(out)
		assert.Equal(t, "empty", final.Variant())
		assert.Zero(t, final.Confidence())
		assert.Empty(t, final.Transactions)
		assert.Equal(t, "empty", final.Trace.Final.Variant)
		assert.Nil(t, final.Trace.Final.SchemaType)
	})

	t.Run("model calls carry their own deadline", func(t *testing.T) {
		var hasDeadline bool
		gen := &scriptedGen{script: []step{func(ctx context.Context, req hypothesis.Request) (*entity.Candidate, error) {
			_, hasDeadline = ctx.Deadline()
			return debits(req.Strategy, req.Attempt, 10, true), nil
		}}}
		_, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: narrativeLayout})
		require.NoError(t, err)
		assert.True(t, hasDeadline)
	})
}

func TestOrchestrator_Cancel(t *testing.T) {
	t.Run("in-flight model call completes and nothing new starts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var inflight error
		gen := &scriptedGen{script: []step{func(gctx context.Context, req hypothesis.Request) (*entity.Candidate, error) {
			cancel()
			inflight = gctx.Err()
			return debits(req.Strategy, req.Attempt, 10, false), nil
		}}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: narrativeLayout})
		require.NoError(t, err)

		assert.NoError(t, inflight)
		assert.True(t, out.Canceled)
		assert.Len(t, gen.reqs, 1)
		assert.False(t, out.Initial.IsZero())
		assert.Equal(t, []State{StateInit, StateGenerated, StateScored, StateFinalized}, out.Path)
	})

	t.Run("rules generation sees the cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		gen := &scriptedGen{script: []step{func(gctx context.Context, _ hypothesis.Request) (*entity.Candidate, error) {
			cancel()
			return nil, gctx.Err()
		}}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: ledgerLayout})
		require.NoError(t, err)

		assert.True(t, out.Canceled)
		assert.True(t, out.Initial.IsZero())
		assert.Equal(t, []State{StateInit, StateFinalized}, out.Path)
	})

	t.Run("canceled during retries records the decision", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		gen := &scriptedGen{script: []step{
			rows(10, false),
			func(_ context.Context, req hypothesis.Request) (*entity.Candidate, error) {
				cancel()
				return debits(req.Strategy, req.Attempt, 10, false), nil
			},
		}}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: ledgerLayout})
		require.NoError(t, err)

		assert.True(t, out.Canceled)
		assert.Equal(t, constants.RetryCanceled, out.RetryDecision)
		assert.Equal(t, StateFinalized, out.Path[len(out.Path)-1])
	})

	t.Run("already canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		gen := &scriptedGen{}
		out, err := newOrchestrator(gen, nil).Run(ctx, Input{Layout: ledgerLayout})
		require.NoError(t, err)
		assert.True(t, out.Canceled)
		assert.Empty(t, gen.reqs)
	})
}
