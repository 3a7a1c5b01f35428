// Package venue defines the common adapter interface that every liquidity
// source implements, plus shared helpers. Concrete adapters live in
// sub-packages (jupiter, raydium, orca); new venues are added by extending
// this closed set, not by branching inside the engine.
package venue

import (
	"context"

	"github.com/juant72/sniperforge/internal/domain"
)

// SwapPayload is a venue-built, unsigned swap transaction for one hop. The
// chain layer signs and submits it.
type SwapPayload struct {
	// TxBase64 is the serialized unsigned transaction.
	TxBase64 string
	// LastValidBlockHeight bounds how long the payload stays submittable.
	LastValidBlockHeight uint64
}

// Adapter is the capability interface for one venue: list tradable pairs,
// fetch a quote, and build a swap transaction for a previously fetched
// quote. Implementations translate provider-specific wire formats into the
// domain shapes; fee and impact figures are always normalized to basis
// points before leaving the adapter.
type Adapter interface {
	// Name returns the venue identifier, stable across restarts.
	Name() string
	// Pairs returns the venue's tradable pair capability list. The list is
	// fixed at construction from the configured asset set.
	Pairs() []domain.TokenPair
	// Quote fetches a point-in-time quote. The returned Quote carries no
	// staleness deadline; the aggregator stamps it.
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
	// BuildSwap builds an unsigned swap transaction executing the given
	// quote for the owner address, honoring the quote's route hint.
	BuildSwap(ctx context.Context, quote domain.Quote, owner string) (SwapPayload, error)
}

// StaticPairs builds the pair capability list an adapter advertises for a
// base asset and a set of trade assets: base against every trade asset in
// both directions, plus every ordered trade-asset cross.
func StaticPairs(venueID string, base domain.Asset, trade []domain.Asset) []domain.TokenPair {
	assets := append([]domain.Asset{base}, trade...)
	pairs := make([]domain.TokenPair, 0, len(assets)*(len(assets)-1))
	for _, in := range assets {
		for _, out := range assets {
			if in == out {
				continue
			}
			pairs = append(pairs, domain.TokenPair{In: in, Out: out, Venue: venueID})
		}
	}
	return pairs
}
