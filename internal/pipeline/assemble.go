package pipeline

import (
	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/gate"
)

// Final is the selected candidate with its trace.
type Final struct {
	Winner       gate.Scored // zero when nothing was viable
	Transactions []entity.Transaction
	Trace        entity.ParseTrace
}

// Variant is the winner's variant, or "empty".
func (f Final) Variant() string {
	if f.Winner.IsZero() {
		return constants.ProvenanceEmpty
	}
	return f.Winner.Variant()
}

// Confidence is 0 for the empty result.
func (f Final) Confidence() float64 {
	if f.Winner.IsZero() {
		return 0
	}
	return f.Winner.Confidence()
}

// Assembler picks the winner and writes the trace. It is pure.
type Assembler struct {
	th Thresholds
}

func NewAssembler(th Thresholds) *Assembler {
	return &Assembler{th: th}
}

// Assemble selects the arbitrated candidate when arbitration was conclusive,
// else the best viable one, else nothing.
func (a *Assembler) Assemble(out Outcome) Final {
	var f Final
	if out.Arbitration != nil && out.Arbitration.Selected() {
		f.Winner = out.Arbitration.Winner
	} else {
		f.Winner = Best(out.Candidates())
	}

	if !f.Winner.IsZero() {
		f.Transactions = f.Winner.Transactions()
		for i := range f.Transactions {
			t := &f.Transactions[i]
			if t.Confidence < a.th.Low {
				t.NeedsReview = true
			}
		}
	}
	f.Trace = a.trace(out, f)
	return f
}

func (a *Assembler) trace(out Outcome, f Final) entity.ParseTrace {
	var tr entity.ParseTrace
	if !out.Initial.IsZero() {
		tr.Initial = entity.StageTrace{
			Confidence: out.Initial.Confidence(),
			SchemaType: out.Initial.SchemaTypeRef(),
		}
	}

	if len(out.Retries) > 0 {
		decision := out.RetryDecision
		if decision == "" {
			decision = constants.RetryExhausted
		}
		rt := &entity.RetryTrace{Decision: string(decision)}
		for _, c := range out.Candidates() {
			rt.Candidates = append(rt.Candidates, entity.CandidateSummary{
				Variant:    c.Variant(),
				Confidence: c.Confidence(),
				SchemaType: c.SchemaTypeRef(),
			})
		}
		tr.Retry = rt
	}

	if res := out.Arbitration; res != nil {
		at := &entity.ArbitrationTrace{Used: true, Status: string(res.Status)}
		if !res.Chosen.IsZero() {
			at.WinnerVariant = res.Chosen.Variant()
		}
		if res.Selected() {
			conf := res.Winner.Confidence()
			at.WinnerConfidence = &conf
		}
		tr.Arbitration = at
	}

	tr.Final = entity.FinalTrace{
		Confidence: f.Confidence(),
		Variant:    f.Variant(),
	}
	if !f.Winner.IsZero() {
		tr.Final.SchemaType = f.Winner.SchemaTypeRef()
	}
	return tr
}
