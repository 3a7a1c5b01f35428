package domain

import (
	"context"
	"time"
)

// AttemptStore persists the execution-attempt journal.
type AttemptStore interface {
	// Create inserts an attempt at commit time, before the first hop is
	// submitted, so a crash mid-execution still leaves a record.
	Create(ctx context.Context, attempt ExecutionAttempt) error
	// Finish updates the attempt with its terminal outcome and hop detail.
	Finish(ctx context.Context, attempt ExecutionAttempt) error
	GetByID(ctx context.Context, id string) (ExecutionAttempt, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionAttempt, error)
	// ListTerminalBefore returns terminal attempts finished before the
	// cutoff, for archival export.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]ExecutionAttempt, error)
	// SumRealizedProfit sums realized profit over terminal attempts since
	// the given time, in base units.
	SumRealizedProfit(ctx context.Context, since time.Time) (int64, error)
}
