package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureWindow is the rolling window for failure counting.
	FailureWindow time.Duration
	// VenueFailThreshold opens the breaker when one venue accumulates this
	// many failures inside the window.
	VenueFailThreshold int
	// PartialFailLimit opens the breaker when this many partial failures
	// occur inside the window.
	PartialFailLimit int
	// MaxLossUnits opens the breaker when cumulative realized loss inside
	// the window exceeds this many base units.
	MaxLossUnits int64
	// CoolDown is how long the breaker stays open before allowing a
	// half-open trial probe.
	CoolDown time.Duration
}

// Breaker is the process-wide circuit breaker. It is safe for concurrent
// use; all counters live behind one mutex owned by this type, and readers
// only ever see values through snapshot methods.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	openedAt time.Time
	probing  bool

	venueFails   map[string][]time.Time
	partialFails []time.Time
	lossEvents   []lossEvent

	logger *slog.Logger
}

type lossEvent struct {
	at    time.Time
	units int64
}

// New creates a closed Breaker with the given thresholds.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = time.Minute
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &Breaker{
		cfg:        cfg,
		state:      StateClosed,
		venueFails: make(map[string][]time.Time),
		logger:     logger.With(slog.String("component", "breaker")),
	}
}

// State returns the current state, transitioning Open to HalfOpen once the
// cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(time.Now())
	return b.state
}

// Allow reports whether a new protected operation may proceed. In HalfOpen
// it admits exactly one trial probe; the probe's outcome must be reported
// via RecordProbeSuccess or RecordProbeFailure.
func (b *Breaker) Allow() bool {
	_, ok := b.Admit()
	return ok
}

// Admit is Allow with probe attribution: ok reports whether the operation
// may proceed, and probe whether it was admitted as the half-open trial.
// An admitted probe must end in RecordProbeSuccess, RecordProbeFailure, or
// CancelProbe; otherwise the slot stays taken and the breaker never closes.
func (b *Breaker) Admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(time.Now())

	switch b.state {
	case StateClosed:
		return false, true
	case StateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	default:
		return false, false
	}
}

// CancelProbe frees an admitted half-open probe slot without deciding the
// outcome, so a later operation may probe instead. Used when the admitted
// operation never reached the venues (risk rejection, lock contention,
// aborted attempt).
func (b *Breaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// RecordProbeSuccess closes the breaker after a successful half-open probe.
func (b *Breaker) RecordProbeSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateHalfOpen {
		return
	}
	b.state = StateClosed
	b.probing = false
	b.venueFails = make(map[string][]time.Time)
	b.partialFails = nil
	b.lossEvents = nil
	b.logger.Info("circuit breaker closed after successful probe")
}

// RecordProbeFailure re-opens the breaker after a failed half-open probe.
func (b *Breaker) RecordProbeFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateHalfOpen {
		return
	}
	b.openLocked("probe failed")
}

// RecordVenueFailure registers one failed external call against a venue.
// The breaker opens when the venue's failure count inside the rolling
// window crosses the threshold.
func (b *Breaker) RecordVenueFailure(venueID string) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	fails := pruneTimes(b.venueFails[venueID], now.Add(-b.cfg.FailureWindow))
	fails = append(fails, now)
	b.venueFails[venueID] = fails

	if b.cfg.VenueFailThreshold > 0 && len(fails) >= b.cfg.VenueFailThreshold {
		b.openLocked("venue failure rate: " + venueID)
	}
}

// RecordVenueSuccess clears a venue's rolling failure count.
func (b *Breaker) RecordVenueSuccess(venueID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.venueFails, venueID)
}

// RecordPartialFailure registers a partially failed execution attempt and
// its realized loss. Crossing either the partial-failure count or the loss
// threshold opens the breaker.
func (b *Breaker) RecordPartialFailure(lossUnits int64) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.cfg.FailureWindow)
	b.partialFails = append(pruneTimes(b.partialFails, cutoff), now)
	if lossUnits > 0 {
		b.lossEvents = append(pruneLosses(b.lossEvents, cutoff), lossEvent{at: now, units: lossUnits})
	}

	if b.cfg.PartialFailLimit > 0 && len(b.partialFails) >= b.cfg.PartialFailLimit {
		b.openLocked("partial failure rate")
		return
	}
	if b.cfg.MaxLossUnits > 0 {
		var total int64
		for _, e := range b.lossEvents {
			total += e.units
		}
		if total >= b.cfg.MaxLossUnits {
			b.openLocked("loss threshold")
		}
	}
}

// Trip opens the breaker unconditionally. Reachable from any state.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openLocked(reason)
}

func (b *Breaker) openLocked(reason string) {
	if b.state == StateOpen {
		return
	}
	b.state = StateOpen
	b.openedAt = time.Now()
	b.probing = false
	b.logger.Warn("circuit breaker opened", slog.String("reason", reason))
}

func (b *Breaker) maybeHalfOpenLocked(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.CoolDown {
		b.state = StateHalfOpen
		b.probing = false
		b.logger.Info("circuit breaker half-open, awaiting probe")
	}
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func pruneLosses(es []lossEvent, cutoff time.Time) []lossEvent {
	out := es[:0]
	for _, e := range es {
		if e.at.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
