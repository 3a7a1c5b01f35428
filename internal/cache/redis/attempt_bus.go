package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/juant72/sniperforge/internal/domain"
)

// attemptStream is the Redis Stream carrying terminal execution attempts for
// external consumers (reconciliation tooling, dashboards).
const attemptStream = "attempts"

// AttemptBus implements domain.AttemptBus on a capped Redis Stream, giving
// consumers durable, ordered delivery with XREAD semantics.
type AttemptBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewAttemptBus creates an AttemptBus. maxLen caps the stream approximately
// via XADD MAXLEN ~.
func NewAttemptBus(c *Client, maxLen int64) *AttemptBus {
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &AttemptBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish appends the attempt to the stream as a single JSON payload plus
// indexed fields consumers can filter on without decoding.
func (ab *AttemptBus) Publish(ctx context.Context, attempt domain.ExecutionAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("redis: marshal attempt %s: %w", attempt.ID, err)
	}
	err = ab.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: attemptStream,
		MaxLen: ab.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      attempt.ID,
			"outcome": string(attempt.Outcome),
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: publish attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AttemptBus = (*AttemptBus)(nil)
