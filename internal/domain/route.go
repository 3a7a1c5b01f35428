package domain

import "strings"

// Route is an ordered sequence of hops that starts and ends at the base
// asset. Routes are constructed per discovery cycle, immutable, and
// discarded once the scoring cycle ends.
type Route struct {
	Base Asset
	Hops []Quote
}

// Key returns a canonical identifier for the route: the ordered pair keys
// joined with "|". Two routes over the same quotes have equal keys, which
// gives the builder and scorer a stable sort independent of traversal order.
func (r Route) Key() string {
	parts := make([]string, len(r.Hops))
	for i, h := range r.Hops {
		parts[i] = h.Pair.Key()
	}
	return strings.Join(parts, "|")
}

// CumulativeFeeBps sums the venue fee of every hop.
func (r Route) CumulativeFeeBps() int64 {
	var total int64
	for _, h := range r.Hops {
		total += h.FeeBps
	}
	return total
}

// MinLiquidity returns the smallest hop liquidity on the route, the binding
// constraint for how much size the route can absorb.
func (r Route) MinLiquidity() int64 {
	if len(r.Hops) == 0 {
		return 0
	}
	min := r.Hops[0].LiquidityUnits
	for _, h := range r.Hops[1:] {
		if h.LiquidityUnits < min {
			min = h.LiquidityUnits
		}
	}
	return min
}

// Venues returns the distinct venue ids touched by the route, in hop order.
func (r Route) Venues() []string {
	seen := make(map[string]bool, len(r.Hops))
	out := make([]string, 0, len(r.Hops))
	for _, h := range r.Hops {
		if !seen[h.Pair.Venue] {
			seen[h.Pair.Venue] = true
			out = append(out, h.Pair.Venue)
		}
	}
	return out
}
