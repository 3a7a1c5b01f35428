package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/juant72/sniperforge/internal/domain"
)

// Event type names used for notification filtering.
const (
	EventAttemptCompleted = "attempt_completed"
	EventPartialFailure   = "partial_failure"
	EventAttemptAborted   = "attempt_aborted"
	EventBreakerOpen      = "breaker_open"
)

// Alerts adapts the Notifier to the engine's alert surface, formatting
// execution attempts and breaker transitions into operator messages.
type Alerts struct {
	notifier *Notifier
}

// NewAlerts wraps a Notifier.
func NewAlerts(n *Notifier) *Alerts {
	return &Alerts{notifier: n}
}

// AttemptFinished reports a terminal execution attempt. PartiallyFailed
// attempts carry the full per-hop detail so the operator can reconcile
// exposure by hand.
func (a *Alerts) AttemptFinished(ctx context.Context, attempt domain.ExecutionAttempt) {
	switch attempt.Outcome {
	case domain.AttemptCompleted:
		_ = a.notifier.Notify(ctx, EventAttemptCompleted,
			"Arbitrage completed",
			fmt.Sprintf("route %s\nprofit %d base units over %d hops",
				attempt.Route.Key(), attempt.RealizedProfit, len(attempt.Hops)))
	case domain.AttemptPartiallyFailed:
		_ = a.notifier.Notify(ctx, EventPartialFailure,
			"PARTIAL FAILURE, manual review needed",
			partialFailureDetail(attempt))
	case domain.AttemptAborted:
		_ = a.notifier.Notify(ctx, EventAttemptAborted,
			"Attempt aborted",
			fmt.Sprintf("route %s\nreason: %s", attempt.Route.Key(), attempt.AbortReason))
	}
}

// BreakerOpened reports a circuit breaker trip.
func (a *Alerts) BreakerOpened(ctx context.Context, reason string) {
	_ = a.notifier.Notify(ctx, EventBreakerOpen,
		"Circuit breaker OPEN",
		"execution paused: "+reason)
}

// partialFailureDetail renders per-hop status lines plus the mitigation
// result.
func partialFailureDetail(attempt domain.ExecutionAttempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "attempt %s, route %s\n", attempt.ID, attempt.Route.Key())
	fmt.Fprintf(&b, "input %d, realized %d\n", attempt.InputAmount, attempt.RealizedProfit)
	for _, hop := range attempt.Hops {
		fmt.Fprintf(&b, "hop %d %s: %s", hop.Index, hop.Pair.Key(), hop.State)
		if hop.Signature != "" {
			fmt.Fprintf(&b, " sig=%s", hop.Signature)
		}
		if hop.Error != "" {
			fmt.Fprintf(&b, " err=%s", hop.Error)
		}
		b.WriteByte('\n')
	}
	if m := attempt.Mitigation; m != nil {
		fmt.Fprintf(&b, "mitigation %s: %s recovered=%d", m.Pair.Key(), m.State, m.OutAmount)
		if m.Error != "" {
			fmt.Fprintf(&b, " err=%s", m.Error)
		}
	} else {
		b.WriteString("mitigation: not attempted")
	}
	return b.String()
}
