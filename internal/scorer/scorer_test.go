package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/domain"
)

func hop(venueID string, in, out domain.Asset, inAmt, outAmt, liquidity int64, feeBps, impactBps int64) domain.Quote {
	now := time.Now().UTC()
	return domain.Quote{
		Pair:           domain.TokenPair{In: in, Out: out, Venue: venueID},
		InAmount:       inAmt,
		OutAmount:      outAmt,
		FeeBps:         feeBps,
		PriceImpactBps: impactBps,
		LiquidityUnits: liquidity,
		ObservedAt:     now,
		ExpiresAt:      now.Add(time.Second),
	}
}

func TestScoreTwoHopProfit(t *testing.T) {
	// 1 SOL buys 150 USDC, 150 USDC buys 1.002 SOL, 5 bps venue fee per hop.
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 5, 0),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_002_000_000, 500e9, 5, 0),
	}}
	s := New(1_000_000_000, 1, 800*time.Millisecond, Costs{
		BaseFeePerSig: 5_000,
		PriorityFee:   10_000,
		SafetyMargin:  100_000,
	})

	opp := s.Score(route)
	require.NotNil(t, opp)
	require.Equal(t, int64(1_000_998_250), opp.GrossOutput)
	require.Equal(t, int64(20_000), opp.NetworkFee)
	require.Equal(t, int64(878_250), opp.NetProfit)
	require.Equal(t, int64(1_000_000_000), opp.InputAmount)
	require.NotEmpty(t, opp.ID)
	require.True(t, opp.ValidUntil.After(opp.DetectedAt))
}

func TestScoreZeroFeeRoundTripIsBreakEven(t *testing.T) {
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 0, 0),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_000_000_000, 500e9, 0, 0),
	}}

	// The two hops reproduce the input exactly.
	out := SimulateHop(route.Hops[1], SimulateHop(route.Hops[0], 1_000_000_000))
	require.Equal(t, int64(1_000_000_000), out)

	// Break-even is not an opportunity.
	s := New(1_000_000_000, 1, time.Second, Costs{})
	require.Nil(t, s.Score(route))
}

func TestScoreIdempotent(t *testing.T) {
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 151_000_000_000, 500e9, 5, 10),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_001_000_000, 500e9, 5, 10),
	}}
	s := New(1_000_000_000, 1, time.Second, Costs{BaseFeePerSig: 5_000})

	first := s.Score(route)
	second := s.Score(route)
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.Equal(t, first.NetProfit, second.NetProfit)
	require.Equal(t, first.GrossOutput, second.GrossOutput)
	require.Equal(t, first.VenueFees, second.VenueFees)
}

func TestScoreUnprofitableReturnsNil(t *testing.T) {
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 30, 50),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_000_000_000, 500e9, 30, 50),
	}}
	s := New(1_000_000_000, 1, time.Second, Costs{BaseFeePerSig: 5_000, PriorityFee: 10_000})
	require.Nil(t, s.Score(route))
}

func TestScoreZeroAmountReturnsNil(t *testing.T) {
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 0, 0),
	}}
	require.Nil(t, New(0, 1, time.Second, Costs{}).Score(route))
}

func TestScoreAllThresholdBoundary(t *testing.T) {
	// Net profit is exactly 2_000_000 with zero costs.
	route := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 0, 0),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_002_000_000, 500e9, 0, 0),
	}}
	routes := []domain.Route{route}

	atThreshold := New(1_000_000_000, 2_000_000, time.Second, Costs{})
	require.Len(t, atThreshold.ScoreAll(routes), 1, "net profit equal to the minimum passes")

	aboveThreshold := New(1_000_000_000, 2_000_001, time.Second, Costs{})
	require.Empty(t, aboveThreshold.ScoreAll(routes), "net profit one unit under the minimum is dropped")
}

func TestScoreAllRanking(t *testing.T) {
	better := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("jupiter", "SOL", "USDC", 1_000_000_000, 150_000_000_000, 500e9, 0, 0),
		hop("raydium", "USDC", "SOL", 150_000_000_000, 1_010_000_000, 500e9, 0, 0),
	}}
	worse := domain.Route{Base: "SOL", Hops: []domain.Quote{
		hop("orca", "SOL", "RAY", 1_000_000_000, 400_000_000_000, 500e9, 0, 0),
		hop("raydium", "RAY", "SOL", 400_000_000_000, 1_002_000_000, 500e9, 0, 0),
	}}
	s := New(1_000_000_000, 1, time.Second, Costs{})

	opps := s.ScoreAll([]domain.Route{worse, better})
	require.Len(t, opps, 2)
	require.Greater(t, opps[0].NetProfit, opps[1].NetProfit)
	require.Equal(t, "jupiter", opps[0].Route.Hops[0].Pair.Venue)
}

func TestRankTieBreaksOnRisk(t *testing.T) {
	shallow := domain.Opportunity{NetProfit: 100, RiskScore: 2, Route: domain.Route{Hops: make([]domain.Quote, 2)}}
	deep := domain.Opportunity{NetProfit: 100, RiskScore: 3.5, Route: domain.Route{Hops: make([]domain.Quote, 3)}}

	opps := []domain.Opportunity{deep, shallow}
	Rank(opps)
	require.Equal(t, 2, len(opps[0].Route.Hops))
}
