package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrStaleQuote          = errors.New("quote past staleness deadline")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrCircuitOpen         = errors.New("circuit breaker open")
	ErrLockHeld            = errors.New("lock already held")
	ErrVenueDisabled       = errors.New("venue disabled")
	ErrExecutionActive     = errors.New("execution already in flight")
	ErrTxRejected          = errors.New("transaction rejected on-chain")
	ErrConfirmTimeout      = errors.New("confirmation timed out")
)
