package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/scorer"
	"github.com/juant72/sniperforge/internal/venue"
	"github.com/juant72/sniperforge/internal/wallet"
)

// doubler quotes every pair at 2x with no fees, deep liquidity.
type doubler struct {
	name string
}

func (d *doubler) Name() string              { return d.name }
func (d *doubler) Pairs() []domain.TokenPair { return nil }

func (d *doubler) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	now := time.Now().UTC()
	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: d.name},
		InAmount:       req.InAmount,
		OutAmount:      req.InAmount * 2,
		LiquidityUnits: 1_000_000_000_000,
		ObservedAt:     now,
		ExpiresAt:      now.Add(time.Second),
	}, nil
}

func (d *doubler) BuildSwap(_ context.Context, q domain.Quote, _ string) (venue.SwapPayload, error) {
	return venue.SwapPayload{TxBase64: "unsigned:" + q.Pair.Key()}, nil
}

type directory struct {
	adapters map[string]venue.Adapter
}

func (d *directory) Adapter(name string) venue.Adapter { return d.adapters[name] }

func (d *directory) Adapters() []venue.Adapter {
	out := make([]venue.Adapter, 0, len(d.adapters))
	for _, a := range d.adapters {
		out = append(out, a)
	}
	return out
}

type passthroughSigner struct{}

func (passthroughSigner) Address() string { return "wallet1" }

func (passthroughSigner) SignTransaction(tx string) (string, error) { return "signed:" + tx, nil }

// scriptedChain fails submission for sends listed in failSend and
// confirmation for signatures listed in failConfirm, both keyed by send
// ordinal starting at 1.
type scriptedChain struct {
	mu          sync.Mutex
	sends       int
	failSend    map[int]error
	failConfirm map[int]error
	confirmed   []string
}

func (c *scriptedChain) SendTransaction(_ context.Context, signed string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	if err, ok := c.failSend[c.sends]; ok {
		return "", err
	}
	return fmt.Sprintf("sig%d", c.sends), nil
}

func (c *scriptedChain) WaitForConfirmation(_ context.Context, sig string, _, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	fmt.Sscanf(sig, "sig%d", &n)
	if err, ok := c.failConfirm[n]; ok {
		return err
	}
	c.confirmed = append(c.confirmed, sig)
	return nil
}

type memStore struct {
	mu       sync.Mutex
	created  []domain.ExecutionAttempt
	finished []domain.ExecutionAttempt
}

func (s *memStore) Create(_ context.Context, a domain.ExecutionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, a)
	return nil
}

func (s *memStore) Finish(_ context.Context, a domain.ExecutionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, a)
	return nil
}

func (s *memStore) GetByID(context.Context, string) (domain.ExecutionAttempt, error) {
	return domain.ExecutionAttempt{}, domain.ErrNotFound
}

func (s *memStore) ListRecent(context.Context, int) ([]domain.ExecutionAttempt, error) {
	return nil, nil
}

func (s *memStore) ListTerminalBefore(context.Context, time.Time, int) ([]domain.ExecutionAttempt, error) {
	return nil, nil
}

func (s *memStore) SumRealizedProfit(context.Context, time.Time) (int64, error) { return 0, nil }

func threeHopOpportunity() domain.ValidatedOpportunity {
	now := time.Now().UTC()
	mk := func(venueID string, in, out domain.Asset, inAmt int64) domain.Quote {
		return domain.Quote{
			Pair:           domain.TokenPair{In: in, Out: out, Venue: venueID},
			InAmount:       inAmt,
			OutAmount:      inAmt * 2,
			LiquidityUnits: 1_000_000_000_000,
			ObservedAt:     now,
			ExpiresAt:      now.Add(time.Second),
		}
	}
	opp := domain.Opportunity{
		ID: "opp1",
		Route: domain.Route{Base: "SOL", Hops: []domain.Quote{
			mk("jupiter", "SOL", "USDC", 1_000),
			mk("raydium", "USDC", "RAY", 2_000),
			mk("orca", "RAY", "SOL", 4_000),
		}},
		InputAmount: 1_000,
		NetProfit:   7_000,
		DetectedAt:  now,
		ValidUntil:  now.Add(time.Second),
	}
	return domain.ValidatedOpportunity{
		Opportunity: opp,
		ValidatedAt: now,
	}
}

func newTestExecutor(w *wallet.State, chain Submitter, store domain.AttemptStore) *Executor {
	dir := &directory{adapters: map[string]venue.Adapter{
		"jupiter": &doubler{name: "jupiter"},
		"raydium": &doubler{name: "raydium"},
		"orca":    &doubler{name: "orca"},
	}}
	sc := scorer.New(1_000, 1, time.Second, scorer.Costs{})
	brk := breaker.New(breaker.Config{
		FailureWindow:      time.Minute,
		VenueFailThreshold: 100,
		PartialFailLimit:   100,
		MaxLossUnits:       1 << 40,
		CoolDown:           time.Minute,
	}, slog.New(slog.DiscardHandler))
	cfg := Config{
		MinNetProfit:       1,
		ConfirmPoll:        time.Millisecond,
		ConfirmTimeout:     50 * time.Millisecond,
		MitigationSlackBps: 300,
		RetryPolicy:        breaker.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
	return New(w, dir, passthroughSigner{}, chain, sc, brk, store, nil, cfg, slog.New(slog.DiscardHandler))
}

func TestExecuteCompletesCleanRoute(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	chain := &scriptedChain{}
	store := &memStore{}
	ex := newTestExecutor(w, chain, store)

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptCompleted, attempt.Outcome)
	require.Equal(t, 3, attempt.ConfirmedHops())
	require.Equal(t, int64(8_000-1_000), attempt.RealizedProfit)
	require.NotNil(t, attempt.FinishedAt)

	snap := w.Snapshot()
	require.Equal(t, int64(8_000), snap.Available("SOL"), "reservation settled with the final output")
	require.Len(t, store.created, 1)
	require.Len(t, store.finished, 1)
}

func TestExecutePartialFailureMitigatesAndReleasesOnce(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	// Hop 1 (second send) fails terminally after hop 0 confirmed.
	chain := &scriptedChain{failConfirm: map[int]error{2: fmt.Errorf("on chain: %w", domain.ErrTxRejected)}}
	store := &memStore{}
	ex := newTestExecutor(w, chain, store)

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptPartiallyFailed, attempt.Outcome)
	require.Equal(t, domain.HopConfirmed, attempt.Hops[0].State)
	require.Equal(t, domain.HopFailed, attempt.Hops[1].State)
	require.Equal(t, domain.HopSkipped, attempt.Hops[2].State)

	require.NotNil(t, attempt.Mitigation, "mitigation swap was attempted")
	require.Equal(t, domain.HopConfirmed, attempt.Mitigation.State)
	require.Equal(t, domain.Asset("USDC"), attempt.Mitigation.Pair.In)
	require.Equal(t, domain.Asset("SOL"), attempt.Mitigation.Pair.Out)

	// The reservation settled exactly once: 1000 SOL left, the mitigation
	// output (2000 USDC doubled to 4000 SOL) came back.
	snap := w.Snapshot()
	require.Equal(t, int64(0), snap.Reserved["SOL"])
	require.Equal(t, int64(4_000), snap.Available("SOL"))
	require.Len(t, store.finished, 1)
	require.Equal(t, domain.AttemptPartiallyFailed, store.finished[0].Outcome)
}

func TestExecuteFirstHopSubmitFailureAbortsWithoutMitigation(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	chain := &scriptedChain{failSend: map[int]error{1: fmt.Errorf("send: %w", domain.ErrTxRejected)}}
	ex := newTestExecutor(w, chain, &memStore{})

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptAborted, attempt.Outcome)
	require.Nil(t, attempt.Mitigation)
	require.Equal(t, domain.HopFailed, attempt.Hops[0].State)

	// The transaction never left the process; no exposure, full balance back.
	require.Equal(t, int64(1_000), w.Snapshot().Available("SOL"))
}

func TestExecuteFirstHopConfirmFailureIsPartialFailure(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	// The first transaction is submitted but confirmation times out: it may
	// still land on chain, so a clean abort would misstate the exposure.
	chain := &scriptedChain{failConfirm: map[int]error{1: fmt.Errorf("confirm: %w", domain.ErrConfirmTimeout)}}
	store := &memStore{}
	ex := newTestExecutor(w, chain, store)

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptPartiallyFailed, attempt.Outcome)
	require.Equal(t, domain.HopFailed, attempt.Hops[0].State)
	require.NotEmpty(t, attempt.Hops[0].Signature, "the hop was submitted")
	require.Contains(t, attempt.Hops[0].Error, "confirm")
	require.Nil(t, attempt.Mitigation, "base-asset exposure has no reverse swap")
	require.Equal(t, 1, chain.sends, "no mitigation transaction went out")

	// Conservative settlement: the base amount is treated as still held and
	// the reservation is released exactly once.
	snap := w.Snapshot()
	require.Equal(t, int64(0), snap.Reserved["SOL"])
	require.Equal(t, int64(1_000), snap.Available("SOL"))
	require.Zero(t, attempt.RealizedProfit)
	require.Len(t, store.finished, 1)
	require.Equal(t, domain.AttemptPartiallyFailed, store.finished[0].Outcome)
}

func TestExecuteInsufficientBalanceAborts(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 10})
	ex := newTestExecutor(w, &scriptedChain{}, &memStore{})

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptAborted, attempt.Outcome)
	require.Contains(t, attempt.AbortReason, "reserve")
}

// shrinkingAdapter quotes below break-even so revalidation must abort.
type shrinkingAdapter struct{ doubler }

func (s *shrinkingAdapter) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	now := time.Now().UTC()
	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: s.name},
		InAmount:       req.InAmount,
		OutAmount:      req.InAmount / 100,
		LiquidityUnits: 1_000_000_000_000,
		ObservedAt:     now,
		ExpiresAt:      now.Add(time.Second),
	}, nil
}

func TestExecuteStaleQuoteAbortsBeforeSubmission(t *testing.T) {
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	chain := &scriptedChain{}
	ex := newTestExecutor(w, chain, &memStore{})
	ex.venues.(*directory).adapters["jupiter"] = &shrinkingAdapter{doubler{name: "jupiter"}}

	attempt, err := ex.Execute(context.Background(), threeHopOpportunity())
	require.NoError(t, err)
	require.Equal(t, domain.AttemptAborted, attempt.Outcome)
	require.Contains(t, attempt.AbortReason, "below minimum")
	require.Zero(t, chain.sends, "no transaction was submitted")
	require.Equal(t, int64(1_000), w.Snapshot().Available("SOL"))
}
