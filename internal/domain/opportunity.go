package domain

import "time"

// Opportunity is a scored, candidate-for-execution route. Created by the
// scorer, consumed by the risk validator and the execution coordinator, and
// invalid once ValidUntil passes.
type Opportunity struct {
	ID          string
	Route       Route
	InputAmount int64
	// GrossOutput is the simulated base-asset output before network fees and
	// safety margin (venue fees and price impact already applied per hop).
	GrossOutput int64
	// VenueFees sums each hop's fee and impact cost in that hop's own input
	// asset units, so the total mixes denominations on multi-asset routes.
	// Informational only; the profit math never reads it.
	VenueFees int64
	// NetworkFee is the estimated signature + priority fee for the full
	// route, in base units.
	NetworkFee int64
	// SafetyMargin is the configured haircut subtracted from every score.
	SafetyMargin int64
	// NetProfit = GrossOutput - InputAmount - NetworkFee - SafetyMargin.
	NetProfit int64
	// RiskScore orders ties: lower is safer. Fewer hops and deeper liquidity
	// produce a lower score.
	RiskScore  float64
	DetectedAt time.Time
	ValidUntil time.Time
}

// Expired reports whether the opportunity's validity deadline has passed.
func (o Opportunity) Expired(now time.Time) bool {
	return !now.Before(o.ValidUntil)
}

// RiskReason classifies why the risk validator rejected an opportunity.
type RiskReason string

const (
	RiskLowLiquidity        RiskReason = "low_liquidity"
	RiskInsufficientBalance RiskReason = "insufficient_balance"
	RiskPositionTooLarge    RiskReason = "position_too_large"
	RiskSlippageTooHigh     RiskReason = "slippage_too_high"
	RiskCircuitOpen         RiskReason = "circuit_open"
	RiskSentimentVeto       RiskReason = "sentiment_veto"
	RiskExpired             RiskReason = "expired"
)

// RiskRejection is the typed, non-exceptional outcome of a failed risk
// check. It implements error so callers can thread it through normal error
// returns and recover it with errors.As.
type RiskRejection struct {
	Reason RiskReason
	Detail string
}

func (r *RiskRejection) Error() string {
	if r.Detail == "" {
		return "risk rejected: " + string(r.Reason)
	}
	return "risk rejected: " + string(r.Reason) + ": " + r.Detail
}

// ValidatedOpportunity is an opportunity that passed every risk check against
// a specific wallet snapshot. The snapshot is retained so the executor can
// detect state drift between validation and commitment.
type ValidatedOpportunity struct {
	Opportunity Opportunity
	Wallet      WalletSnapshot
	ValidatedAt time.Time
}
