// Package engine runs the discovery loop and hands profitable, validated
// opportunities to the execution coordinator. Discovery keeps cycling while
// an execution is in flight; a second execution never starts until the
// first finishes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juant72/sniperforge/internal/aggregator"
	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/executor"
	"github.com/juant72/sniperforge/internal/graph"
	"github.com/juant72/sniperforge/internal/risk"
	"github.com/juant72/sniperforge/internal/scorer"
	"github.com/juant72/sniperforge/internal/wallet"
)

// executionLockKey is the distributed lock serializing execution across
// engine replicas sharing a wallet.
const executionLockKey = "sniperforge:execution"

// recentOpportunityLimit caps the ring kept for the operator surface.
const recentOpportunityLimit = 100

// Alerter receives operator-facing events. Implemented by the notify layer.
type Alerter interface {
	AttemptFinished(ctx context.Context, attempt domain.ExecutionAttempt)
	BreakerOpened(ctx context.Context, reason string)
}

// Config tunes the discovery loop.
type Config struct {
	BaseAsset    domain.Asset
	PollInterval time.Duration
	// ExecuteEnabled gates the trade path; when false the engine only
	// detects and reports opportunities.
	ExecuteEnabled bool
	// LockTTL bounds how long the distributed execution lock may outlive a
	// crashed holder.
	LockTTL time.Duration
}

// Engine wires the discovery pipeline to the executor.
type Engine struct {
	agg       *aggregator.Aggregator
	builder   *graph.Builder
	scorer    *scorer.Scorer
	validator *risk.Validator
	executor  *executor.Executor
	wallet    *wallet.State
	breaker   *breaker.Breaker
	lock      domain.LockManager
	alerter   Alerter
	cfg       Config
	logger    *slog.Logger

	executing atomic.Bool
	wg        sync.WaitGroup

	mu          sync.Mutex
	recentOpps  []domain.Opportunity
	lastAttempt *domain.ExecutionAttempt
	lastState   breaker.State
	cycles      uint64
}

// New builds an Engine. lock and alerter may be nil; executor may be nil
// only when ExecuteEnabled is false.
func New(agg *aggregator.Aggregator, builder *graph.Builder, sc *scorer.Scorer, validator *risk.Validator, ex *executor.Executor, w *wallet.State, brk *breaker.Breaker, lock domain.LockManager, alerter Alerter, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		agg:       agg,
		builder:   builder,
		scorer:    sc,
		validator: validator,
		executor:  ex,
		wallet:    w,
		breaker:   brk,
		lock:      lock,
		alerter:   alerter,
		cfg:       cfg,
		lastState: breaker.StateClosed,
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// Run drives discovery cycles until the context is cancelled, then waits
// for any in-flight execution to finish.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.String("base_asset", string(e.cfg.BaseAsset)),
		slog.Duration("poll_interval", e.cfg.PollInterval),
		slog.Bool("execute_enabled", e.cfg.ExecuteEnabled))

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.logger.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle runs one discovery pass: poll, build, score, and possibly launch an
// execution. A failing cycle logs and returns; the loop never dies to a
// single bad pass.
func (e *Engine) cycle(ctx context.Context) {
	start := time.Now()
	quotes, err := e.agg.Poll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Error("poll cycle failed", slog.String("error", err.Error()))
		}
		return
	}

	routes := e.builder.BuildCycles(quotes, e.cfg.BaseAsset)
	opps := e.scorer.ScoreAll(routes)
	e.record(opps)
	e.watchBreaker(ctx)

	e.logger.Debug("discovery cycle",
		slog.Int("quotes", len(quotes)),
		slog.Int("routes", len(routes)),
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", time.Since(start)))

	if len(opps) == 0 {
		return
	}
	top := opps[0]
	e.logger.Info("opportunity detected",
		slog.String("opportunity_id", top.ID),
		slog.String("route", top.Route.Key()),
		slog.Int64("net_profit", top.NetProfit),
		slog.Float64("risk_score", top.RiskScore))

	if !e.cfg.ExecuteEnabled {
		return
	}
	if e.executing.Load() {
		// Discovery keeps running during execution; we just do not stack
		// attempts.
		return
	}
	probe, ok := e.breaker.Admit()
	if !ok {
		e.logger.Warn("execution suppressed by circuit breaker",
			slog.String("state", string(e.breaker.State())))
		return
	}

	validated, err := e.validator.Validate(ctx, top, e.wallet.Snapshot())
	if err != nil {
		if probe {
			e.breaker.CancelProbe()
		}
		var rej *domain.RiskRejection
		if errors.As(err, &rej) {
			e.logger.Info("opportunity rejected",
				slog.String("opportunity_id", top.ID),
				slog.String("reason", string(rej.Reason)),
				slog.String("detail", rej.Detail))
		} else {
			e.logger.Error("risk validation failed", slog.String("error", err.Error()))
		}
		return
	}

	if !e.executing.CompareAndSwap(false, true) {
		if probe {
			e.breaker.CancelProbe()
		}
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.executing.Store(false)
		e.execute(ctx, *validated, probe)
	}()
}

// execute holds the distributed lock for the attempt's lifetime and settles
// the breaker's half-open probe accounting. When probe is set this attempt
// is the single admitted trial: the slot must be decided (success, failure)
// or cancelled on every path out.
func (e *Engine) execute(ctx context.Context, vo domain.ValidatedOpportunity, probe bool) {
	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx, executionLockKey, e.cfg.LockTTL)
		if err != nil {
			if probe {
				e.breaker.CancelProbe()
			}
			if errors.Is(err, domain.ErrLockHeld) {
				e.logger.Info("execution lock held elsewhere, skipping",
					slog.String("opportunity_id", vo.Opportunity.ID))
			} else {
				e.logger.Error("execution lock acquire failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	attempt, err := e.executor.Execute(ctx, vo)
	if err != nil {
		e.logger.Error("execution failed before producing an attempt",
			slog.String("opportunity_id", vo.Opportunity.ID),
			slog.String("error", err.Error()))
		if probe {
			e.breaker.RecordProbeFailure()
		}
		return
	}

	if probe {
		switch attempt.Outcome {
		case domain.AttemptCompleted:
			e.breaker.RecordProbeSuccess()
		case domain.AttemptPartiallyFailed:
			e.breaker.RecordProbeFailure()
		default:
			// An aborted attempt never reached the venues; it proves nothing
			// about recovery, so the trial slot goes back up for grabs.
			e.breaker.CancelProbe()
		}
	}

	e.mu.Lock()
	e.lastAttempt = &attempt
	e.mu.Unlock()

	if e.alerter != nil {
		e.alerter.AttemptFinished(ctx, attempt)
	}
	e.watchBreaker(ctx)
}

// watchBreaker raises one alert per closed-to-open transition.
func (e *Engine) watchBreaker(ctx context.Context) {
	state := e.breaker.State()
	e.mu.Lock()
	prev := e.lastState
	e.lastState = state
	e.mu.Unlock()
	if state == breaker.StateOpen && prev != breaker.StateOpen {
		e.logger.Warn("circuit breaker opened")
		if e.alerter != nil {
			e.alerter.BreakerOpened(ctx, "failure thresholds exceeded")
		}
	}
}

func (e *Engine) record(opps []domain.Opportunity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycles++
	e.recentOpps = append(e.recentOpps, opps...)
	if n := len(e.recentOpps); n > recentOpportunityLimit {
		e.recentOpps = append([]domain.Opportunity(nil), e.recentOpps[n-recentOpportunityLimit:]...)
	}
}

// RecentOpportunities returns up to limit most recent scored opportunities,
// newest first.
func (e *Engine) RecentOpportunities(limit int) []domain.Opportunity {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recentOpps)
	if limit > n {
		limit = n
	}
	out := make([]domain.Opportunity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.recentOpps[i])
	}
	return out
}

// LastAttempt returns the most recent terminal execution attempt, if any.
func (e *Engine) LastAttempt() *domain.ExecutionAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastAttempt == nil {
		return nil
	}
	cp := *e.lastAttempt
	return &cp
}

// Cycles returns the number of completed discovery cycles.
func (e *Engine) Cycles() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycles
}

// Executing reports whether an execution attempt is currently in flight.
func (e *Engine) Executing() bool {
	return e.executing.Load()
}
