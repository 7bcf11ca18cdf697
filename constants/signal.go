package constants

// Signal names a non-fatal condition met during a run. Signals end up in the
// run log and in ParseResult.Signals; they never abort the run.
type Signal string

const (
	SignalLayoutUnrecognized      Signal = "layout_unrecognized"
	SignalRegionExtractionEmpty   Signal = "region_extraction_empty"
	SignalGenerationFailure       Signal = "generation_failure"
	SignalValidationFailure       Signal = "validation_failure"
	SignalArbitrationInconclusive Signal = "arbitration_inconclusive"
	SignalArbitrationUnavailable  Signal = "arbitration_unavailable"
	SignalRetryBudgetExhausted    Signal = "retry_budget_exhausted"
)
