package domain

// Status is the outcome class of an engine step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// Reason explains a partial or failed step.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMalformed         Reason = "malformed"
	ReasonNoData            Reason = "no_data"
	ReasonTooFewOutcomes    Reason = "too_few_outcomes"
	ReasonUnmatchedName     Reason = "unmatched_name"
	ReasonNoEligibleLine    Reason = "no_eligible_line"
	ReasonNoArbitrage       Reason = "no_arbitrage"
	ReasonBelowCutoff       Reason = "below_cutoff"
	ReasonSameBookmaker     Reason = "same_bookmaker"
	ReasonUnsupportedMarket Reason = "unsupported_market"
	ReasonInvalidPrice      Reason = "invalid_price"
	ReasonInvalidWager      Reason = "invalid_wager"
)

// Skip records one piece of input that was dropped and why.
type Skip struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail"`
}
