package domain

import "time"

// Quote is a point-in-time price/liquidity observation for one pair on one
// venue. All monetary fields are integer base units of the respective asset;
// all percentages are basis points (1/10000). A Quote is owned by the
// aggregator until handed to the route builder by value.
type Quote struct {
	Pair           TokenPair
	InAmount       int64
	OutAmount      int64
	PriceImpactBps int64
	FeeBps         int64
	// LiquidityUnits is the venue-reported depth for the pair, in base units
	// of the input asset. Used for the builder's liquidity floor and the
	// risk validator's per-hop minimum.
	LiquidityUnits int64
	// RouteHint is the venue's opaque routing payload, echoed back when the
	// swap transaction for this quote is built.
	RouteHint  string
	ObservedAt time.Time
	// ExpiresAt is the staleness deadline. A quote must never be used to
	// size an execution after this instant.
	ExpiresAt time.Time
}

// Stale reports whether the quote's staleness deadline has passed.
func (q Quote) Stale(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// Rate returns output base units per one unit of input, as a float for
// display only. Never use this for sizing; simulation stays in integers.
func (q Quote) Rate() float64 {
	if q.InAmount == 0 {
		return 0
	}
	return float64(q.OutAmount) / float64(q.InAmount)
}

// QuoteRequest is the minimal contract sent to a venue adapter.
type QuoteRequest struct {
	In       Asset
	Out      Asset
	InAmount int64
}
