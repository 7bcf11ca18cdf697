package constants

// RunStatus is the top-level status of a ParseResult.
type RunStatus string

// Stable values (rendered by consumers, stored on statements).
const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// ArbitrationStatus is the outcome recorded in trace.arbitration.status.
type ArbitrationStatus string

const (
	ArbitrationSelected     ArbitrationStatus = "selected"
	ArbitrationInconclusive ArbitrationStatus = "inconclusive"
	ArbitrationUnavailable  ArbitrationStatus = "unavailable"
)

// RetryDecision is the value recorded in trace.retry.decision.
type RetryDecision string

const (
	RetryAccepted         RetryDecision = "accepted"          // a retry candidate met the acceptance bar
	RetryNeedsArbitration RetryDecision = "needs_arbitration" // candidates disagreed or stayed below minimum viable
	RetryExhausted        RetryDecision = "exhausted"         // budget spent, best candidate kept
	RetryCanceled         RetryDecision = "canceled"
)

// ModelHealth is the status reported by the model health check.
type ModelHealth string

const (
	ModelHealthOK          ModelHealth = "ok"
	ModelHealthUnavailable ModelHealth = "unavailable"
	ModelHealthDisabled    ModelHealth = "disabled"
	ModelHealthError       ModelHealth = "error"
)
