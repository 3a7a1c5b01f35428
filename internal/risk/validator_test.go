package risk

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
)

type stubGate struct{ state breaker.State }

func (g *stubGate) State() breaker.State { return g.state }

type stubSentiment struct {
	score float64
	err   error
}

func (s *stubSentiment) Score(context.Context, domain.Asset) (float64, error) {
	return s.score, s.err
}

func testLimits() Limits {
	return Limits{
		MinHopLiquidity: 10_000_000_000,
		MaxPositionSize: 5_000_000_000,
		MaxSlippageBps:  100,
	}
}

func testOpportunity() domain.Opportunity {
	now := time.Now().UTC()
	mkHop := func(venueID string, in, out domain.Asset) domain.Quote {
		return domain.Quote{
			Pair:           domain.TokenPair{In: in, Out: out, Venue: venueID},
			InAmount:       1_000_000_000,
			OutAmount:      150_000_000_000,
			PriceImpactBps: 20,
			FeeBps:         5,
			LiquidityUnits: 50_000_000_000,
			ObservedAt:     now,
			ExpiresAt:      now.Add(time.Second),
		}
	}
	return domain.Opportunity{
		ID: "opp1",
		Route: domain.Route{Base: "SOL", Hops: []domain.Quote{
			mkHop("jupiter", "SOL", "USDC"),
			mkHop("raydium", "USDC", "SOL"),
		}},
		InputAmount: 1_000_000_000,
		NetProfit:   900_000,
		DetectedAt:  now,
		ValidUntil:  now.Add(800 * time.Millisecond),
	}
}

func testSnapshot() domain.WalletSnapshot {
	return domain.WalletSnapshot{
		Address:  "wallet1",
		Balances: map[domain.Asset]int64{"SOL": 3_000_000_000},
		Reserved: map[domain.Asset]int64{},
		TakenAt:  time.Now().UTC(),
	}
}

func newValidator(gate Gate, sentiment SentimentSource) *Validator {
	return NewValidator(testLimits(), gate, sentiment, -0.5, slog.New(slog.DiscardHandler))
}

func rejection(t *testing.T, err error) *domain.RiskRejection {
	t.Helper()
	var rej *domain.RiskRejection
	require.ErrorAs(t, err, &rej)
	return rej
}

func TestValidatePasses(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	opp := testOpportunity()

	validated, err := v.Validate(context.Background(), opp, testSnapshot())
	require.NoError(t, err)
	require.Equal(t, opp.ID, validated.Opportunity.ID)
	require.False(t, validated.ValidatedAt.IsZero())
}

func TestValidateExpiredOpportunity(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	opp := testOpportunity()
	opp.ValidUntil = time.Now().UTC().Add(-time.Millisecond)

	_, err := v.Validate(context.Background(), opp, testSnapshot())
	require.Equal(t, domain.RiskExpired, rejection(t, err).Reason)
}

func TestValidateLowLiquidity(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	opp := testOpportunity()
	opp.Route.Hops[1].LiquidityUnits = 1_000_000_000

	_, err := v.Validate(context.Background(), opp, testSnapshot())
	require.Equal(t, domain.RiskLowLiquidity, rejection(t, err).Reason)
}

func TestValidateInsufficientBalance(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	snap := testSnapshot()
	snap.Reserved["SOL"] = 2_500_000_000

	_, err := v.Validate(context.Background(), testOpportunity(), snap)
	require.Equal(t, domain.RiskInsufficientBalance, rejection(t, err).Reason)
}

func TestValidatePositionTooLarge(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	opp := testOpportunity()
	opp.InputAmount = 6_000_000_000
	snap := testSnapshot()
	snap.Balances["SOL"] = 10_000_000_000

	_, err := v.Validate(context.Background(), opp, snap)
	require.Equal(t, domain.RiskPositionTooLarge, rejection(t, err).Reason)
}

func TestValidateSlippageTooHigh(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, nil)
	opp := testOpportunity()
	opp.Route.Hops[0].PriceImpactBps = 150

	_, err := v.Validate(context.Background(), opp, testSnapshot())
	require.Equal(t, domain.RiskSlippageTooHigh, rejection(t, err).Reason)
}

func TestValidateCircuitOpen(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateOpen}, nil)

	_, err := v.Validate(context.Background(), testOpportunity(), testSnapshot())
	require.Equal(t, domain.RiskCircuitOpen, rejection(t, err).Reason)
}

func TestValidateHalfOpenAdmitsTrial(t *testing.T) {
	// HalfOpen must not veto: the breaker itself admits the single trial
	// probe, and a validator veto here would keep the breaker open forever.
	v := newValidator(&stubGate{state: breaker.StateHalfOpen}, nil)

	validated, err := v.Validate(context.Background(), testOpportunity(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, validated)
}

func TestValidateFirstFailureShortCircuits(t *testing.T) {
	// Both liquidity and slippage are out of bounds; liquidity is checked
	// first so it must be the reported reason.
	v := newValidator(&stubGate{state: breaker.StateOpen}, nil)
	opp := testOpportunity()
	opp.Route.Hops[0].LiquidityUnits = 0
	opp.Route.Hops[0].PriceImpactBps = 500

	_, err := v.Validate(context.Background(), opp, testSnapshot())
	require.Equal(t, domain.RiskLowLiquidity, rejection(t, err).Reason)
}

func TestValidateSentimentVeto(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, &stubSentiment{score: -0.8})

	_, err := v.Validate(context.Background(), testOpportunity(), testSnapshot())
	require.Equal(t, domain.RiskSentimentVeto, rejection(t, err).Reason)
}

func TestValidateSentimentErrorIsAdvisory(t *testing.T) {
	v := newValidator(&stubGate{state: breaker.StateClosed}, &stubSentiment{err: errors.New("timeout")})

	validated, err := v.Validate(context.Background(), testOpportunity(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, validated)
}
