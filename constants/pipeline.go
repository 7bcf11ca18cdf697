package constants

import "strconv"

// LayoutVariant tags a recognized statement structure.
type LayoutVariant string

const (
	LayoutTabularLedger LayoutVariant = "tabular-ledger"
	LayoutNarrativeList LayoutVariant = "narrative-list"
	LayoutUnknown       LayoutVariant = "unknown"
)

// Strategy is a hypothesis generation mode.
type Strategy string

const (
	StrategyRules           Strategy = "rules"
	StrategyRulesRelaxed    Strategy = "rules-relaxed"
	StrategyModel           Strategy = "model"
	StrategyModelCorrective Strategy = "model-corrective"
	StrategyArbitrated      Strategy = "arbitrated"
)

// RetryLadder is the fixed priority order the retry controller walks.
var RetryLadder = []Strategy{
	StrategyRules,
	StrategyRulesRelaxed,
	StrategyModel,
	StrategyModelCorrective,
}

// ModelAssisted reports whether the strategy calls the inference service.
func (s Strategy) ModelAssisted() bool {
	switch s {
	case StrategyModel, StrategyModelCorrective, StrategyArbitrated:
		return true
	}
	return false
}

// SchemaType names the column mapping a candidate was read with.
type SchemaType string

const (
	SchemaDebitCreditBalance SchemaType = "debit_credit_balance"
	SchemaAmountBalance      SchemaType = "amount_balance"
	SchemaAmountOnly         SchemaType = "amount_only"
	SchemaModelJSON          SchemaType = "model_json"
)

// Provenance values for candidates; retries use RetryProvenance.
const (
	ProvenanceInitial    = "initial"
	ProvenanceArbitrated = "arbitrated"
	ProvenanceEmpty      = "empty"
)

// RetryProvenance labels the candidate produced by the n-th retry.
func RetryProvenance(n int) string {
	return "retry-" + strconv.Itoa(n)
}
