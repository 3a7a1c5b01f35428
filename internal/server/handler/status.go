package handler

import (
	"net/http"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
)

// EngineStatus is the slice of engine state the operator surface reads.
type EngineStatus interface {
	Cycles() uint64
	Executing() bool
	RecentOpportunities(limit int) []domain.Opportunity
	LastAttempt() *domain.ExecutionAttempt
}

// WalletSource snapshots the wallet for reporting.
type WalletSource interface {
	Snapshot() domain.WalletSnapshot
}

// StatusHandler reports engine, breaker and wallet state.
type StatusHandler struct {
	engine  EngineStatus
	breaker *breaker.Breaker
	wallet  WalletSource
}

// NewStatusHandler creates a StatusHandler. wallet may be nil in detect-only
// deployments.
func NewStatusHandler(engine EngineStatus, brk *breaker.Breaker, wallet WalletSource) *StatusHandler {
	return &StatusHandler{engine: engine, breaker: brk, wallet: wallet}
}

// Status returns the engine's operating state.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"cycles":        h.engine.Cycles(),
		"executing":     h.engine.Executing(),
		"breaker_state": string(h.breaker.State()),
	}
	if h.wallet != nil {
		snap := h.wallet.Snapshot()
		balances := make(map[string]map[string]int64, len(snap.Balances))
		for asset, bal := range snap.Balances {
			balances[string(asset)] = map[string]int64{
				"balance":   bal,
				"reserved":  snap.Reserved[asset],
				"available": snap.Available(asset),
			}
		}
		resp["wallet"] = map[string]any{
			"address":  snap.Address,
			"balances": balances,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListOpportunities returns recently scored opportunities, newest first.
// GET /api/opportunities/recent
func (h *StatusHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 100)
	type oppView struct {
		ID         string  `json:"id"`
		Route      string  `json:"route"`
		Hops       int     `json:"hops"`
		InputAmt   int64   `json:"input_amount"`
		NetProfit  int64   `json:"net_profit"`
		RiskScore  float64 `json:"risk_score"`
		DetectedAt string  `json:"detected_at"`
	}
	opps := h.engine.RecentOpportunities(limit)
	views := make([]oppView, 0, len(opps))
	for _, o := range opps {
		views = append(views, oppView{
			ID:         o.ID,
			Route:      o.Route.Key(),
			Hops:       len(o.Route.Hops),
			InputAmt:   o.InputAmount,
			NetProfit:  o.NetProfit,
			RiskScore:  o.RiskScore,
			DetectedAt: o.DetectedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": views})
}
