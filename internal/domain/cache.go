package domain

import (
	"context"
	"time"
)

// QuoteCache shares the freshest quote per pair across processes. Entries
// carry their own staleness deadline; readers must still check Stale.
type QuoteCache interface {
	Put(ctx context.Context, quote Quote) error
	Get(ctx context.Context, pair TokenPair) (Quote, error)
}

// LockManager provides a distributed mutual-exclusion primitive. Acquire
// returns an unlock function that is safe to call more than once, or
// ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AttemptBus publishes execution-attempt records to external collaborators
// (telemetry, dashboards, reconciliation tooling).
type AttemptBus interface {
	Publish(ctx context.Context, attempt ExecutionAttempt) error
}

// BlobWriter stores an archival object. Implemented by the S3 layer.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
