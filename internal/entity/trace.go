package entity

// ParseTrace is the audit record of every decision taken in one run.
// It is built once by the final assembler and not modified afterwards.
type ParseTrace struct {
	Initial     StageTrace        `json:"initial"`
	Retry       *RetryTrace       `json:"retry,omitempty"`
	Arbitration *ArbitrationTrace `json:"arbitration,omitempty"`
	Final       FinalTrace        `json:"final"`
}

// StageTrace summarizes the initial candidate.
type StageTrace struct {
	Confidence float64 `json:"confidence"`
	SchemaType *string `json:"schema_type"`
}

// RetryTrace records the retry loop outcome and every candidate it considered.
type RetryTrace struct {
	Decision   string             `json:"decision"`
	Candidates []CandidateSummary `json:"candidates"`
}

// CandidateSummary is one entry of trace.retry.candidates.
type CandidateSummary struct {
	Variant    string  `json:"variant"`
	Confidence float64 `json:"confidence"`
	SchemaType *string `json:"schema_type"`
}

// ArbitrationTrace records whether the judge was consulted and what came of it.
type ArbitrationTrace struct {
	Used             bool     `json:"used"`
	Status           string   `json:"status"`
	WinnerVariant    string   `json:"winner_variant,omitempty"`
	WinnerConfidence *float64 `json:"winner_confidence,omitempty"`
}

// FinalTrace describes the selected candidate.
type FinalTrace struct {
	Confidence float64 `json:"confidence"`
	Variant    string  `json:"variant"`
	SchemaType *string `json:"schema_type"`
}
