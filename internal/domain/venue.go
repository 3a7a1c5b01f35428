package domain

import "time"

// Asset identifies a fungible token by its mint address (or a short symbolic
// id in tests). Amounts for an asset are always integer base units: lamports
// for SOL (1e9 per SOL), 1e6 base units for USDC.
type Asset string

// VenueStatus is the operational health of a liquidity source. Venues are
// registered once at startup and never destroyed; failures only degrade or
// disable them.
type VenueStatus string

const (
	VenueHealthy  VenueStatus = "healthy"
	VenueDegraded VenueStatus = "degraded"
	VenueDisabled VenueStatus = "disabled"
)

// Venue is a registered liquidity source.
type Venue struct {
	ID            string
	Name          string
	Status        VenueStatus
	DefaultFeeBps int64
	// RatePerSec is the polling budget granted to the venue's adapter.
	RatePerSec int
}

// TokenPair is an orderable (input, output) asset pair on one venue.
// Derived from the venue's capability list; immutable.
type TokenPair struct {
	In    Asset
	Out   Asset
	Venue string
}

// Key returns a stable identifier for the pair, suitable for cache keys.
func (p TokenPair) Key() string {
	return p.Venue + ":" + string(p.In) + ">" + string(p.Out)
}

// VenueHealth is a point-in-time health/latency summary for one venue,
// maintained by the aggregator and consumed by risk scoring.
type VenueHealth struct {
	VenueID          string
	Status           VenueStatus
	ConsecutiveFails int
	LatencyEWMA      time.Duration
	LastSuccess      time.Time
	LastFailure      time.Time
}
