// Package executor drives one validated opportunity through reservation,
// revalidation, per-hop submission and confirmation, and partial-failure
// mitigation. At most one attempt runs at a time; the engine enforces that
// with a distributed lock before calling Execute.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/scorer"
	"github.com/juant72/sniperforge/internal/venue"
	"github.com/juant72/sniperforge/internal/wallet"
)

// Phase labels the coordinator's state machine for logs and the operator
// surface.
type Phase string

const (
	PhaseReserving       Phase = "reserving"
	PhaseRevalidating    Phase = "revalidating"
	PhaseSubmitting      Phase = "submitting"
	PhaseConfirming      Phase = "confirming"
	PhaseMitigating      Phase = "mitigating"
	PhaseCompleted       Phase = "completed"
	PhaseAborted         Phase = "aborted"
	PhasePartiallyFailed Phase = "partially_failed"
)

// VenueDirectory resolves venue adapters by name. The aggregator implements
// it, hiding venues currently excluded by health tracking.
type VenueDirectory interface {
	Adapter(name string) venue.Adapter
	Adapters() []venue.Adapter
}

// TxSigner signs serialized transactions as the fee payer.
type TxSigner interface {
	Address() string
	SignTransaction(txBase64 string) (string, error)
}

// Submitter is the on-chain submission and confirmation surface.
type Submitter interface {
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
	WaitForConfirmation(ctx context.Context, signature string, poll, timeout time.Duration) error
}

// Config bounds one execution attempt.
type Config struct {
	MinNetProfit   int64
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
	// MitigationSlackBps is the extra price degradation accepted when
	// unwinding exposure after a mid-sequence failure.
	MitigationSlackBps int64
	RetryPolicy        breaker.Policy
}

// Executor runs validated opportunities against the chain.
type Executor struct {
	wallet  *wallet.State
	venues  VenueDirectory
	signer  TxSigner
	chain   Submitter
	scorer  *scorer.Scorer
	breaker *breaker.Breaker
	store   domain.AttemptStore
	bus     domain.AttemptBus
	cfg     Config
	logger  *slog.Logger
}

// New wires an Executor. store and bus may be nil in detect-only setups.
func New(w *wallet.State, venues VenueDirectory, signer TxSigner, chain Submitter, sc *scorer.Scorer, brk *breaker.Breaker, store domain.AttemptStore, bus domain.AttemptBus, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		wallet:  w,
		venues:  venues,
		signer:  signer,
		chain:   chain,
		scorer:  sc,
		breaker: brk,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Execute drives the validated opportunity to a terminal attempt. The
// returned attempt is always terminal and always recorded; Execute returns
// an error only for infrastructure failures that prevented any attempt
// record from being produced.
func (e *Executor) Execute(ctx context.Context, vo domain.ValidatedOpportunity) (domain.ExecutionAttempt, error) {
	opp := vo.Opportunity
	log := e.logger.With(slog.String("opportunity_id", opp.ID))
	attempt := domain.ExecutionAttempt{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		Route:         opp.Route,
		InputAmount:   opp.InputAmount,
		ExpectedNet:   opp.NetProfit,
		Outcome:       domain.AttemptInFlight,
		StartedAt:     time.Now().UTC(),
	}
	attempt.Hops = make([]domain.HopResult, len(opp.Route.Hops))
	for i, hop := range opp.Route.Hops {
		attempt.Hops[i] = domain.HopResult{Index: i, Pair: hop.Pair, State: domain.HopPending}
	}

	e.transition(log, PhaseReserving)
	reservation, err := e.wallet.Reserve(opp.Route.Base, opp.InputAmount)
	if err != nil {
		return e.abort(ctx, attempt, fmt.Sprintf("reserve: %v", err), log), nil
	}
	// Every exit path below settles or releases; this is the backstop.
	defer reservation.Release()

	e.transition(log, PhaseRevalidating)
	if reason, stale := e.revalidate(ctx, opp); stale {
		reservation.Release()
		return e.abort(ctx, attempt, reason, log), nil
	}

	if e.store != nil {
		if err := e.store.Create(ctx, attempt); err != nil {
			log.Warn("attempt journal insert failed", slog.String("error", err.Error()))
		}
	}

	amount := opp.InputAmount
	for i := range opp.Route.Hops {
		hop := opp.Route.Hops[i]
		expectedOut := scorer.SimulateHop(hop, amount)
		attempt.Hops[i].InAmount = amount

		e.transition(log, PhaseSubmitting, slog.Int("hop", i))
		sig, err := e.submitHop(ctx, hop, amount)
		if err != nil {
			return e.failHop(ctx, attempt, i, amount, fmt.Sprintf("submit: %v", err), false, reservation, log), nil
		}
		now := time.Now().UTC()
		attempt.Hops[i].Signature = sig
		attempt.Hops[i].State = domain.HopSubmitted
		attempt.Hops[i].SubmittedAt = &now

		e.transition(log, PhaseConfirming, slog.Int("hop", i), slog.String("signature", sig))
		if err := e.confirm(ctx, sig, hop.Pair.Venue); err != nil {
			return e.failHop(ctx, attempt, i, amount, fmt.Sprintf("confirm: %v", err), true, reservation, log), nil
		}
		confirmedAt := time.Now().UTC()
		attempt.Hops[i].State = domain.HopConfirmed
		attempt.Hops[i].ConfirmedAt = &confirmedAt
		attempt.Hops[i].OutAmount = expectedOut
		e.breaker.RecordVenueSuccess(hop.Pair.Venue)
		amount = expectedOut
	}

	attempt.Outcome = domain.AttemptCompleted
	attempt.RealizedProfit = amount - opp.InputAmount - opp.NetworkFee
	reservation.Settle(map[domain.Asset]int64{opp.Route.Base: amount - opp.NetworkFee})
	e.finish(ctx, &attempt, log)
	e.transition(log, PhaseCompleted, slog.Int64("realized_profit", attempt.RealizedProfit))
	return attempt, nil
}

// revalidate refetches the first hop's quote and rescores the route. A net
// profit now under the minimum aborts before any on-chain action.
func (e *Executor) revalidate(ctx context.Context, opp domain.Opportunity) (reason string, stale bool) {
	first := opp.Route.Hops[0]
	ad := e.venues.Adapter(first.Pair.Venue)
	if ad == nil {
		return fmt.Sprintf("venue %s no longer available", first.Pair.Venue), true
	}
	fresh, err := breaker.Retry(ctx, e.cfg.RetryPolicy, func(ctx context.Context) (domain.Quote, error) {
		return ad.Quote(ctx, domain.QuoteRequest{In: first.Pair.In, Out: first.Pair.Out, InAmount: opp.InputAmount})
	})
	if err != nil {
		return fmt.Sprintf("fresh quote unavailable: %v", err), true
	}

	route := opp.Route
	route.Hops = append([]domain.Quote(nil), route.Hops...)
	route.Hops[0] = fresh
	rescored := e.scorer.Score(route)
	if rescored == nil || rescored.NetProfit < e.cfg.MinNetProfit {
		var net int64
		if rescored != nil {
			net = rescored.NetProfit
		}
		return fmt.Sprintf("net profit %d below minimum %d after refresh", net, e.cfg.MinNetProfit), true
	}
	return "", false
}

// submitHop requotes at the live amount, builds, signs and submits the
// hop's transaction. Transient transport errors are retried; venue and
// chain rejections surface unchanged.
func (e *Executor) submitHop(ctx context.Context, hop domain.Quote, amount int64) (string, error) {
	ad := e.venues.Adapter(hop.Pair.Venue)
	if ad == nil {
		return "", fmt.Errorf("venue %s not available: %w", hop.Pair.Venue, domain.ErrVenueDisabled)
	}

	return breaker.Retry(ctx, e.cfg.RetryPolicy, func(ctx context.Context) (string, error) {
		live := hop
		if amount != hop.InAmount {
			fresh, err := ad.Quote(ctx, domain.QuoteRequest{In: hop.Pair.In, Out: hop.Pair.Out, InAmount: amount})
			if err != nil {
				return "", err
			}
			live = fresh
		}
		payload, err := ad.BuildSwap(ctx, live, e.signer.Address())
		if err != nil {
			return "", err
		}
		signed, err := e.signer.SignTransaction(payload.TxBase64)
		if err != nil {
			return "", err
		}
		return e.chain.SendTransaction(ctx, signed)
	})
}

// confirm polls the signature to the configured commitment. Confirmation
// timeout and on-chain failure are both terminal for the hop.
func (e *Executor) confirm(ctx context.Context, signature, venueID string) error {
	err := e.chain.WaitForConfirmation(ctx, signature, e.cfg.ConfirmPoll, e.cfg.ConfirmTimeout)
	if err != nil {
		e.breaker.RecordVenueFailure(venueID)
	}
	return err
}

// failHop routes a terminal hop failure. A first hop that was never
// submitted carries no exposure and aborts cleanly. Everything else goes
// through mitigation: later hops hold an intermediate asset, and a
// submitted-but-unconfirmed transaction may still land on chain, so even a
// first-hop confirmation failure is a partial failure, not a clean abort.
func (e *Executor) failHop(ctx context.Context, attempt domain.ExecutionAttempt, i int, amount int64, reason string, submitted bool, reservation *wallet.Reservation, log *slog.Logger) domain.ExecutionAttempt {
	attempt.Hops[i].State = domain.HopFailed
	attempt.Hops[i].Error = reason
	for j := i + 1; j < len(attempt.Hops); j++ {
		attempt.Hops[j].State = domain.HopSkipped
	}

	if i == 0 && !submitted {
		reservation.Release()
		return e.abort(ctx, attempt, reason, log)
	}
	return e.mitigate(ctx, attempt, i, amount, reservation, log)
}

// mitigate attempts to unwind the intermediate exposure back to the base
// asset at best-effort pricing. The attempt is PartiallyFailed regardless of
// mitigation success and always recorded in full.
func (e *Executor) mitigate(ctx context.Context, attempt domain.ExecutionAttempt, failedHop int, heldAmount int64, reservation *wallet.Reservation, log *slog.Logger) domain.ExecutionAttempt {
	e.transition(log, PhaseMitigating, slog.Int("failed_hop", failedHop))
	held := attempt.Route.Hops[failedHop].Pair.In
	base := attempt.Route.Base

	var recovered int64
	if held == base {
		// First-hop confirmation failure: the input is still denominated in
		// the base asset and there is no reverse swap to make. The
		// unconfirmed transaction may yet land; the next wallet balance
		// refresh reconciles the holding.
		recovered = heldAmount
		reservation.Settle(map[domain.Asset]int64{base: heldAmount})
	} else {
		result := e.unwind(ctx, held, base, heldAmount, log)
		attempt.Mitigation = &result
		if result.State == domain.HopConfirmed {
			recovered = result.OutAmount
			reservation.Settle(map[domain.Asset]int64{base: recovered})
		} else {
			// Unwind failed; the wallet is left holding the intermediate asset.
			reservation.Settle(map[domain.Asset]int64{held: heldAmount})
		}
	}

	attempt.Outcome = domain.AttemptPartiallyFailed
	attempt.RealizedProfit = recovered - attempt.InputAmount
	loss := attempt.InputAmount - recovered
	if loss < 0 {
		loss = 0
	}
	e.breaker.RecordPartialFailure(loss)
	e.finish(ctx, &attempt, log)
	e.transition(log, PhasePartiallyFailed,
		slog.Int("failed_hop", failedHop),
		slog.Int64("loss_units", loss),
		slog.Bool("mitigated", attempt.Mitigation != nil && attempt.Mitigation.State == domain.HopConfirmed))
	return attempt
}

// unwind performs the best-effort reverse swap for mitigation, trying each
// available venue until one quotes the pair within the slack bound.
func (e *Executor) unwind(ctx context.Context, held, base domain.Asset, amount int64, log *slog.Logger) domain.HopResult {
	result := domain.HopResult{
		Pair:     domain.TokenPair{In: held, Out: base},
		InAmount: amount,
		State:    domain.HopFailed,
	}

	for _, ad := range e.venues.Adapters() {
		quote, err := ad.Quote(ctx, domain.QuoteRequest{In: held, Out: base, InAmount: amount})
		if err != nil {
			continue
		}
		if quote.PriceImpactBps > e.cfg.MitigationSlackBps {
			log.Warn("mitigation quote outside slack",
				slog.String("venue", ad.Name()),
				slog.Int64("impact_bps", quote.PriceImpactBps),
				slog.Int64("slack_bps", e.cfg.MitigationSlackBps))
			continue
		}
		payload, err := ad.BuildSwap(ctx, quote, e.signer.Address())
		if err != nil {
			continue
		}
		signed, err := e.signer.SignTransaction(payload.TxBase64)
		if err != nil {
			continue
		}
		sig, err := e.chain.SendTransaction(ctx, signed)
		if err != nil {
			continue
		}
		now := time.Now().UTC()
		result.Pair = quote.Pair
		result.Signature = sig
		result.State = domain.HopSubmitted
		result.SubmittedAt = &now
		if err := e.chain.WaitForConfirmation(ctx, sig, e.cfg.ConfirmPoll, e.cfg.ConfirmTimeout); err != nil {
			result.Error = err.Error()
			return result
		}
		confirmedAt := time.Now().UTC()
		result.State = domain.HopConfirmed
		result.ConfirmedAt = &confirmedAt
		result.OutAmount = scorer.SimulateHop(quote, amount)
		return result
	}

	result.Error = "no venue could unwind the position"
	return result
}

func (e *Executor) abort(ctx context.Context, attempt domain.ExecutionAttempt, reason string, log *slog.Logger) domain.ExecutionAttempt {
	attempt.Outcome = domain.AttemptAborted
	attempt.AbortReason = reason
	for i := range attempt.Hops {
		if attempt.Hops[i].State == domain.HopPending {
			attempt.Hops[i].State = domain.HopSkipped
		}
	}
	e.finish(ctx, &attempt, log)
	e.transition(log, PhaseAborted, slog.String("reason", reason))
	return attempt
}

// finish stamps the terminal time, persists the attempt and publishes it.
// Journal failures are logged, never allowed to mask the outcome.
func (e *Executor) finish(ctx context.Context, attempt *domain.ExecutionAttempt, log *slog.Logger) {
	now := time.Now().UTC()
	attempt.FinishedAt = &now
	if e.store != nil {
		if err := e.store.Finish(ctx, *attempt); err != nil {
			log.Error("attempt journal update failed",
				slog.String("attempt_id", attempt.ID),
				slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		if err := e.bus.Publish(ctx, *attempt); err != nil {
			log.Warn("attempt publish failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Executor) transition(log *slog.Logger, phase Phase, attrs ...any) {
	args := append([]any{slog.String("phase", string(phase))}, attrs...)
	log.Info("execution phase", args...)
}
