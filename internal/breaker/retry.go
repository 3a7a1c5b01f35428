// Package breaker wraps external calls with bounded retry/backoff and
// maintains the engine's global circuit breaker.
package breaker

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// Policy bounds a retry loop: attempt count and exponential backoff range.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used when a zero Policy is passed to Retry.
var DefaultPolicy = Policy{
	MaxAttempts:    4,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultPolicy.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultPolicy.MaxBackoff
	}
	return p
}

// Retryable classifies an error as transient. Network timeouts and
// rate-limit responses are retryable; on-chain rejections, insufficient
// balance, and context cancellation are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if errors.Is(err, domain.ErrTxRejected) ||
		errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// A deadline blown inside the operation (not on the caller's context)
	// counts as a transient timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// Retry runs op up to policy.MaxAttempts times, sleeping an exponentially
// growing, jittered backoff between attempts. Only errors classified by
// Retryable are retried; the last error is returned when attempts are
// exhausted or the error is terminal.
func Retry[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == policy.MaxAttempts {
			return zero, lastErr
		}

		// Full jitter: sleep a uniform fraction of the current backoff.
		sleep := time.Duration(rand.Int63n(int64(backoff)) + int64(backoff)/2)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return zero, lastErr
}

// RetryVoid is Retry for operations with no result value.
func RetryVoid(ctx context.Context, policy Policy, op func(context.Context) error) error {
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
