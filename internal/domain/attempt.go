package domain

import "time"

// AttemptOutcome is the terminal state of an execution attempt.
type AttemptOutcome string

const (
	AttemptInFlight        AttemptOutcome = "in_flight"
	AttemptCompleted       AttemptOutcome = "completed"
	AttemptAborted         AttemptOutcome = "aborted"
	AttemptPartiallyFailed AttemptOutcome = "partially_failed"
)

// HopState tracks one hop through submission and confirmation.
type HopState string

const (
	HopPending   HopState = "pending"
	HopSubmitted HopState = "submitted"
	HopConfirmed HopState = "confirmed"
	HopFailed    HopState = "failed"
	HopSkipped   HopState = "skipped"
)

// HopResult is the per-hop execution record: amounts, on-chain signature,
// and timing. Kept verbose on purpose so a PartiallyFailed attempt carries
// enough detail for manual reconciliation.
type HopResult struct {
	Index       int
	Pair        TokenPair
	InAmount    int64
	OutAmount   int64
	Signature   string
	State       HopState
	SubmittedAt *time.Time
	ConfirmedAt *time.Time
	Error       string
}

// ExecutionAttempt records one in-flight or completed execution of an
// opportunity. The route is snapshotted at commit time so later quote churn
// cannot rewrite history. Terminal outcomes are Completed, Aborted, and
// PartiallyFailed; a PartiallyFailed attempt is never silently discarded.
type ExecutionAttempt struct {
	ID            string
	OpportunityID string
	Route         Route
	InputAmount   int64
	ExpectedNet   int64
	Hops          []HopResult
	// Mitigation is the best-effort unwind swap attempted after a
	// mid-sequence terminal failure, nil when no mitigation ran.
	Mitigation *HopResult
	Outcome    AttemptOutcome
	// RealizedProfit is the realized base-asset delta for terminal attempts:
	// negative when a partial failure left exposure unrecovered.
	RealizedProfit int64
	AbortReason    string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Terminal reports whether the attempt reached a final outcome.
func (a ExecutionAttempt) Terminal() bool {
	switch a.Outcome {
	case AttemptCompleted, AttemptAborted, AttemptPartiallyFailed:
		return true
	}
	return false
}

// ConfirmedHops counts hops that reached on-chain confirmation.
func (a ExecutionAttempt) ConfirmedHops() int {
	n := 0
	for _, h := range a.Hops {
		if h.State == HopConfirmed {
			n++
		}
	}
	return n
}
