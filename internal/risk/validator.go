// Package risk gates scored opportunities before the executor may commit
// funds to them.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
)

// Limits are the hard bounds every opportunity must clear.
type Limits struct {
	MinHopLiquidity int64
	MaxPositionSize int64
	MaxSlippageBps  int64
}

// SentimentSource scores market mood for an asset in [-1, 1]. It is an
// advisory input; source errors never block validation.
type SentimentSource interface {
	Score(ctx context.Context, asset domain.Asset) (float64, error)
}

// Gate exposes the circuit breaker state to validation.
type Gate interface {
	State() breaker.State
}

// Validator runs the ordered risk checks. The first failing check wins and
// is returned as a typed RiskRejection; later checks are not evaluated.
type Validator struct {
	limits         Limits
	gate           Gate
	sentiment      SentimentSource
	sentimentFloor float64
	logger         *slog.Logger
}

// NewValidator builds a Validator. sentiment may be nil to disable the
// advisory filter.
func NewValidator(limits Limits, gate Gate, sentiment SentimentSource, sentimentFloor float64, logger *slog.Logger) *Validator {
	return &Validator{
		limits:         limits,
		gate:           gate,
		sentiment:      sentiment,
		sentimentFloor: sentimentFloor,
		logger:         logger.With(slog.String("component", "risk")),
	}
}

// Validate checks, in order: opportunity freshness, per-hop liquidity,
// available wallet balance, position size, per-hop slippage, breaker state,
// then the advisory sentiment veto. It returns either a fully validated
// opportunity or a *domain.RiskRejection; there is no partial result.
func (v *Validator) Validate(ctx context.Context, opp domain.Opportunity, snap domain.WalletSnapshot) (*domain.ValidatedOpportunity, error) {
	now := time.Now().UTC()
	if opp.Expired(now) {
		return nil, &domain.RiskRejection{
			Reason: domain.RiskExpired,
			Detail: fmt.Sprintf("valid until %s", opp.ValidUntil.Format(time.RFC3339Nano)),
		}
	}

	for i, hop := range opp.Route.Hops {
		if hop.LiquidityUnits < v.limits.MinHopLiquidity {
			return nil, &domain.RiskRejection{
				Reason: domain.RiskLowLiquidity,
				Detail: fmt.Sprintf("hop %d (%s) liquidity %d < %d", i, hop.Pair.Key(), hop.LiquidityUnits, v.limits.MinHopLiquidity),
			}
		}
	}

	base := opp.Route.Base
	if available := snap.Available(base); available < opp.InputAmount {
		return nil, &domain.RiskRejection{
			Reason: domain.RiskInsufficientBalance,
			Detail: fmt.Sprintf("need %d %s, available %d", opp.InputAmount, base, available),
		}
	}

	if opp.InputAmount > v.limits.MaxPositionSize {
		return nil, &domain.RiskRejection{
			Reason: domain.RiskPositionTooLarge,
			Detail: fmt.Sprintf("input %d > max position %d", opp.InputAmount, v.limits.MaxPositionSize),
		}
	}

	for i, hop := range opp.Route.Hops {
		if hop.PriceImpactBps > v.limits.MaxSlippageBps {
			return nil, &domain.RiskRejection{
				Reason: domain.RiskSlippageTooHigh,
				Detail: fmt.Sprintf("hop %d (%s) impact %d bps > %d bps", i, hop.Pair.Key(), hop.PriceImpactBps, v.limits.MaxSlippageBps),
			}
		}
	}

	// Only a fully open breaker vetoes here. HalfOpen passes: admission of
	// the single trial probe is the breaker's own job, and vetoing it would
	// leave the breaker unable to ever close again.
	if v.gate != nil && v.gate.State() == breaker.StateOpen {
		return nil, &domain.RiskRejection{
			Reason: domain.RiskCircuitOpen,
			Detail: fmt.Sprintf("breaker %s", v.gate.State()),
		}
	}

	if v.sentiment != nil {
		score, err := v.sentiment.Score(ctx, base)
		switch {
		case err != nil:
			// Advisory source only; log and move on.
			v.logger.Warn("sentiment source unavailable",
				slog.String("asset", string(base)),
				slog.String("error", err.Error()))
		case score < v.sentimentFloor:
			return nil, &domain.RiskRejection{
				Reason: domain.RiskSentimentVeto,
				Detail: fmt.Sprintf("score %.2f below floor %.2f", score, v.sentimentFloor),
			}
		}
	}

	return &domain.ValidatedOpportunity{
		Opportunity: opp,
		Wallet:      snap,
		ValidatedAt: now,
	}, nil
}
