package handler

import (
	"net/http"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// VenueHealthSource exposes per-venue health for the operator surface. The
// aggregator implements it.
type VenueHealthSource interface {
	Health() []domain.VenueHealth
}

// HealthHandler serves liveness and venue-health endpoints.
type HealthHandler struct {
	venues  VenueHealthSource
	started time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(venues VenueHealthSource) *HealthHandler {
	return &HealthHandler{venues: venues, started: time.Now().UTC()}
}

// HealthCheck responds with process liveness and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListVenues returns the aggregator's venue health snapshot.
// GET /api/venues
func (h *HealthHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	type venueView struct {
		Venue            string `json:"venue"`
		Status           string `json:"status"`
		ConsecutiveFails int    `json:"consecutive_fails"`
		LatencyEWMAMs    int64  `json:"latency_ewma_ms"`
		LastSuccess      string `json:"last_success,omitempty"`
		LastFailure      string `json:"last_failure,omitempty"`
	}

	health := h.venues.Health()
	views := make([]venueView, 0, len(health))
	for _, v := range health {
		view := venueView{
			Venue:            v.VenueID,
			Status:           string(v.Status),
			ConsecutiveFails: v.ConsecutiveFails,
			LatencyEWMAMs:    v.LatencyEWMA.Milliseconds(),
		}
		if !v.LastSuccess.IsZero() {
			view.LastSuccess = v.LastSuccess.Format(time.RFC3339Nano)
		}
		if !v.LastFailure.IsZero() {
			view.LastFailure = v.LastFailure.Format(time.RFC3339Nano)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": views})
}
