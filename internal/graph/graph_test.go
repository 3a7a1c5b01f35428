package graph

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/domain"
)

func quote(venueID string, in, out domain.Asset, liquidity int64) domain.Quote {
	now := time.Now().UTC()
	return domain.Quote{
		Pair:           domain.TokenPair{In: in, Out: out, Venue: venueID},
		InAmount:       1_000_000_000,
		OutAmount:      1_000_000_000,
		LiquidityUnits: liquidity,
		ObservedAt:     now,
		ExpiresAt:      now.Add(time.Second),
	}
}

func routeKeys(routes []domain.Route) []string {
	keys := make([]string, len(routes))
	for i, r := range routes {
		keys[i] = r.Key()
	}
	sort.Strings(keys)
	return keys
}

func TestBuildCyclesTwoHop(t *testing.T) {
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "SOL", 100e9),
	}
	b := NewBuilder(3, 0)
	routes := b.BuildCycles(quotes, "SOL")
	require.Len(t, routes, 1)
	require.Len(t, routes[0].Hops, 2)
	require.Equal(t, domain.Asset("SOL"), routes[0].Hops[0].Pair.In)
	require.Equal(t, domain.Asset("SOL"), routes[0].Hops[1].Pair.Out)
}

func TestBuildCyclesTriangularAndMultiVenue(t *testing.T) {
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("orca", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "RAY", 100e9),
		quote("raydium", "RAY", "SOL", 100e9),
		quote("jupiter", "USDC", "SOL", 100e9),
	}
	b := NewBuilder(3, 0)
	routes := b.BuildCycles(quotes, "SOL")

	// Two 2-hop cycles (one per SOL>USDC venue) and two 3-hop triangles.
	require.Len(t, routes, 4)
	for _, r := range routes {
		require.GreaterOrEqual(t, len(r.Hops), 2)
		require.LessOrEqual(t, len(r.Hops), 3)
		require.Equal(t, domain.Asset("SOL"), r.Hops[0].Pair.In)
		require.Equal(t, domain.Asset("SOL"), r.Hops[len(r.Hops)-1].Pair.Out)
	}
}

func TestBuildCyclesRespectsMaxHops(t *testing.T) {
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "RAY", 100e9),
		quote("orca", "RAY", "BONK", 100e9),
		quote("jupiter", "BONK", "SOL", 100e9),
	}
	require.Empty(t, NewBuilder(3, 0).BuildCycles(quotes, "SOL"))

	routes := NewBuilder(4, 0).BuildCycles(quotes, "SOL")
	require.Len(t, routes, 1)
	require.Len(t, routes[0].Hops, 4)
}

func TestBuildCyclesSimpleOnly(t *testing.T) {
	// USDC appears mid-route twice only if revisits were allowed.
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "RAY", 100e9),
		quote("orca", "RAY", "USDC", 100e9),
		quote("jupiter", "USDC", "SOL", 100e9),
	}
	routes := NewBuilder(4, 0).BuildCycles(quotes, "SOL")
	for _, r := range routes {
		seen := map[domain.Asset]bool{}
		for _, h := range r.Hops[:len(r.Hops)-1] {
			require.False(t, seen[h.Pair.Out], "asset revisited in %s", r.Key())
			seen[h.Pair.Out] = true
		}
	}
}

func TestBuildCyclesLiquidityFloor(t *testing.T) {
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "SOL", 1e9),
	}
	require.Empty(t, NewBuilder(3, 50e9).BuildCycles(quotes, "SOL"))
	require.Len(t, NewBuilder(3, 1e9).BuildCycles(quotes, "SOL"), 1)
}

func TestBuildCyclesDeterministic(t *testing.T) {
	quotes := []domain.Quote{
		quote("jupiter", "SOL", "USDC", 100e9),
		quote("orca", "SOL", "USDC", 100e9),
		quote("raydium", "USDC", "RAY", 100e9),
		quote("raydium", "RAY", "SOL", 100e9),
		quote("jupiter", "USDC", "SOL", 100e9),
	}
	b := NewBuilder(3, 0)
	want := routeKeys(b.BuildCycles(quotes, "SOL"))
	for i := 0; i < 10; i++ {
		// Rotate the input order; the cycle set must not change.
		quotes = append(quotes[1:], quotes[0])
		require.Equal(t, want, routeKeys(b.BuildCycles(quotes, "SOL")))
	}
}

func TestBuildCyclesNoBaseAsset(t *testing.T) {
	quotes := []domain.Quote{quote("jupiter", "USDC", "RAY", 100e9)}
	require.Empty(t, NewBuilder(3, 0).BuildCycles(quotes, "SOL"))
}
