package aggregator

import (
	"sync"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// ewmaAlpha weights the latest latency sample in the moving average.
const ewmaAlpha = 0.2

// HealthTracker maintains per-venue health and latency statistics. It is
// the aggregator's own view; the circuit breaker keeps its separate global
// counters. A venue is excluded from polling after failThreshold
// consecutive failures and readmitted on the next successful probe.
type HealthTracker struct {
	mu            sync.Mutex
	venues        map[string]*domain.VenueHealth
	failThreshold int
}

// NewHealthTracker creates a tracker that disables a venue after
// failThreshold consecutive failures.
func NewHealthTracker(failThreshold int) *HealthTracker {
	if failThreshold < 1 {
		failThreshold = 3
	}
	return &HealthTracker{
		venues:        make(map[string]*domain.VenueHealth),
		failThreshold: failThreshold,
	}
}

// Register adds a venue in healthy state. Registering twice is a no-op.
func (t *HealthTracker) Register(venueID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.venues[venueID]; !ok {
		t.venues[venueID] = &domain.VenueHealth{
			VenueID: venueID,
			Status:  domain.VenueHealthy,
		}
	}
}

// MarkSuccess records a successful poll and its latency.
func (t *HealthTracker) MarkSuccess(venueID string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.get(venueID)
	h.ConsecutiveFails = 0
	h.Status = domain.VenueHealthy
	h.LastSuccess = time.Now().UTC()
	if h.LatencyEWMA == 0 {
		h.LatencyEWMA = latency
	} else {
		h.LatencyEWMA = time.Duration(float64(h.LatencyEWMA)*(1-ewmaAlpha) + float64(latency)*ewmaAlpha)
	}
}

// MarkFailure records a failed or timed-out poll. Crossing the consecutive
// failure threshold disables the venue.
func (t *HealthTracker) MarkFailure(venueID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.get(venueID)
	h.ConsecutiveFails++
	h.LastFailure = time.Now().UTC()
	switch {
	case h.ConsecutiveFails >= t.failThreshold:
		h.Status = domain.VenueDisabled
	case h.ConsecutiveFails > 1:
		h.Status = domain.VenueDegraded
	}
}

// Excluded reports whether the venue should be skipped this cycle.
func (t *HealthTracker) Excluded(venueID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.venues[venueID]
	return ok && h.Status == domain.VenueDisabled
}

// Snapshot returns a copy of every venue's health record.
func (t *HealthTracker) Snapshot() []domain.VenueHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.VenueHealth, 0, len(t.venues))
	for _, h := range t.venues {
		out = append(out, *h)
	}
	return out
}

// Latency returns the venue's latency EWMA, zero when unknown.
func (t *HealthTracker) Latency(venueID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.venues[venueID]; ok {
		return h.LatencyEWMA
	}
	return 0
}

func (t *HealthTracker) get(venueID string) *domain.VenueHealth {
	h, ok := t.venues[venueID]
	if !ok {
		h = &domain.VenueHealth{VenueID: venueID, Status: domain.VenueHealthy}
		t.venues[venueID] = h
	}
	return h
}
