package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// AttemptHandler serves the execution-attempt journal.
type AttemptHandler struct {
	store domain.AttemptStore
}

// NewAttemptHandler creates an AttemptHandler.
func NewAttemptHandler(store domain.AttemptStore) *AttemptHandler {
	return &AttemptHandler{store: store}
}

// ListRecent returns the newest attempts with full per-hop detail.
// GET /api/attempts/recent
func (h *AttemptHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	attempts, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing attempts failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// GetByID returns one attempt.
// GET /api/attempts/{id}
func (h *AttemptHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	attempt, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading attempt failed")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// ProfitSummary sums realized profit over a trailing window.
// GET /api/pnl?hours=24
func (h *AttemptHandler) ProfitSummary(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	total, err := h.store.SumRealizedProfit(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "summing realized profit failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":           since.Format(time.RFC3339),
		"realized_profit": total,
	})
}
