package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/aggregator"
	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/executor"
	"github.com/juant72/sniperforge/internal/graph"
	"github.com/juant72/sniperforge/internal/risk"
	"github.com/juant72/sniperforge/internal/scorer"
	"github.com/juant72/sniperforge/internal/venue"
	"github.com/juant72/sniperforge/internal/wallet"
)

type profitableAdapter struct {
	name  string
	pairs []domain.TokenPair
}

func (a *profitableAdapter) Name() string              { return a.name }
func (a *profitableAdapter) Pairs() []domain.TokenPair { return a.pairs }

func (a *profitableAdapter) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	now := time.Now().UTC()
	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: a.name},
		InAmount:       req.InAmount,
		OutAmount:      req.InAmount * 2,
		LiquidityUnits: 1_000_000_000_000,
		ObservedAt:     now,
		ExpiresAt:      now.Add(time.Second),
	}, nil
}

func (a *profitableAdapter) BuildSwap(_ context.Context, q domain.Quote, _ string) (venue.SwapPayload, error) {
	return venue.SwapPayload{TxBase64: "tx:" + q.Pair.Key()}, nil
}

type instantChain struct{}

func (instantChain) SendTransaction(context.Context, string) (string, error) { return "sig", nil }

func (instantChain) WaitForConfirmation(context.Context, string, time.Duration, time.Duration) error {
	return nil
}

type noopSigner struct{}

func (noopSigner) Address() string                           { return "wallet1" }
func (noopSigner) SignTransaction(tx string) (string, error) { return tx, nil }

type recordingAlerter struct {
	mu       sync.Mutex
	attempts []domain.ExecutionAttempt
}

func (r *recordingAlerter) AttemptFinished(_ context.Context, a domain.ExecutionAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recordingAlerter) BreakerOpened(context.Context, string) {}

func newTestEngine(t *testing.T, executeEnabled bool, alerter Alerter) (*Engine, *wallet.State) {
	t.Helper()
	return newTestEngineWithBreaker(t, executeEnabled, alerter, breaker.Config{
		FailureWindow:      time.Minute,
		VenueFailThreshold: 100,
		PartialFailLimit:   100,
		MaxLossUnits:       1 << 40,
		CoolDown:           time.Minute,
	})
}

func newTestEngineWithBreaker(t *testing.T, executeEnabled bool, alerter Alerter, brkCfg breaker.Config) (*Engine, *wallet.State) {
	t.Helper()
	adapters := []venue.Adapter{
		&profitableAdapter{name: "jupiter", pairs: []domain.TokenPair{
			{In: "SOL", Out: "USDC", Venue: "jupiter"},
		}},
		&profitableAdapter{name: "raydium", pairs: []domain.TokenPair{
			{In: "USDC", Out: "SOL", Venue: "raydium"},
		}},
	}
	agg, err := aggregator.New(adapters, aggregator.NewHealthTracker(3), nil, nil, aggregator.Options{
		ProbeAmount:     1_000,
		VenueTimeout:    time.Second,
		StalenessWindow: time.Second,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	sc := scorer.New(1_000, 1, time.Second, scorer.Costs{})
	brk := breaker.New(brkCfg, slog.New(slog.DiscardHandler))
	w := wallet.NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000})
	validator := risk.NewValidator(risk.Limits{
		MinHopLiquidity: 1,
		MaxPositionSize: 1_000_000,
		MaxSlippageBps:  100,
	}, brk, nil, -0.5, slog.New(slog.DiscardHandler))
	ex := executor.New(w, agg, noopSigner{}, instantChain{}, sc, brk, nil, nil, executor.Config{
		MinNetProfit:       1,
		ConfirmPoll:        time.Millisecond,
		ConfirmTimeout:     time.Second,
		MitigationSlackBps: 300,
		RetryPolicy:        breaker.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}, slog.New(slog.DiscardHandler))

	eng := New(agg, graph.NewBuilder(3, 0), sc, validator, ex, w, brk, nil, alerter, Config{
		BaseAsset:      "SOL",
		PollInterval:   10 * time.Millisecond,
		ExecuteEnabled: executeEnabled,
		LockTTL:        time.Second,
	}, slog.New(slog.DiscardHandler))
	return eng, w
}

func TestCycleDetectOnlyRecordsOpportunities(t *testing.T) {
	eng, w := newTestEngine(t, false, nil)

	eng.cycle(context.Background())
	eng.wg.Wait()

	opps := eng.RecentOpportunities(10)
	require.NotEmpty(t, opps)
	require.Positive(t, opps[0].NetProfit)
	require.Nil(t, eng.LastAttempt(), "detect mode never executes")
	require.Equal(t, int64(1_000), w.Snapshot().Available("SOL"))
	require.Equal(t, uint64(1), eng.Cycles())
}

func TestCycleTradeModeExecutesTopOpportunity(t *testing.T) {
	alerter := &recordingAlerter{}
	eng, w := newTestEngine(t, true, alerter)

	eng.cycle(context.Background())
	eng.wg.Wait()

	attempt := eng.LastAttempt()
	require.NotNil(t, attempt)
	require.Equal(t, domain.AttemptCompleted, attempt.Outcome)
	require.Positive(t, attempt.RealizedProfit)
	require.Greater(t, w.Snapshot().Available("SOL"), int64(1_000))

	alerter.mu.Lock()
	defer alerter.mu.Unlock()
	require.Len(t, alerter.attempts, 1)
}

func TestCycleSuppressedWhileBreakerOpen(t *testing.T) {
	eng, w := newTestEngine(t, true, nil)
	eng.breaker.Trip("test")

	eng.cycle(context.Background())
	eng.wg.Wait()

	require.Nil(t, eng.LastAttempt())
	require.Equal(t, int64(1_000), w.Snapshot().Available("SOL"))
}

func TestCycleHalfOpenProbeClosesBreaker(t *testing.T) {
	eng, w := newTestEngineWithBreaker(t, true, nil, breaker.Config{
		FailureWindow:      time.Minute,
		VenueFailThreshold: 100,
		PartialFailLimit:   100,
		MaxLossUnits:       1 << 40,
		CoolDown:           50 * time.Millisecond,
	})
	eng.breaker.Trip("manual")

	// Still open: the cycle is suppressed and nothing executes.
	eng.cycle(context.Background())
	eng.wg.Wait()
	require.Nil(t, eng.LastAttempt())

	// After the cool-down the cycle is admitted as the trial probe, the
	// attempt completes, and the breaker closes again.
	time.Sleep(100 * time.Millisecond)
	eng.cycle(context.Background())
	eng.wg.Wait()

	attempt := eng.LastAttempt()
	require.NotNil(t, attempt)
	require.Equal(t, domain.AttemptCompleted, attempt.Outcome)
	require.Equal(t, breaker.StateClosed, eng.breaker.State())
	require.Greater(t, w.Snapshot().Available("SOL"), int64(1_000))
}

func TestCycleHalfOpenRejectionFreesProbeSlot(t *testing.T) {
	eng, w := newTestEngineWithBreaker(t, true, nil, breaker.Config{
		FailureWindow:      time.Minute,
		VenueFailThreshold: 100,
		PartialFailLimit:   100,
		MaxLossUnits:       1 << 40,
		CoolDown:           50 * time.Millisecond,
	})
	// Lock up the whole balance so validation rejects on insufficient funds.
	_, err := w.Reserve("SOL", 1_000)
	require.NoError(t, err)

	eng.breaker.Trip("manual")
	time.Sleep(100 * time.Millisecond)

	eng.cycle(context.Background())
	eng.wg.Wait()
	require.Nil(t, eng.LastAttempt())

	// The rejected cycle gave its probe slot back; the breaker still awaits
	// a trial instead of being wedged with a probe that never reports.
	require.Equal(t, breaker.StateHalfOpen, eng.breaker.State())
	probe, ok := eng.breaker.Admit()
	require.True(t, ok)
	require.True(t, probe)
}

func TestRunStopsOnCancel(t *testing.T) {
	eng, _ := newTestEngine(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on cancellation")
	}
	require.Positive(t, eng.Cycles())
}
