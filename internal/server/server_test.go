package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/breaker"
	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/server/handler"
)

type stubVenues struct {
	health []domain.VenueHealth
}

func (s *stubVenues) Health() []domain.VenueHealth { return s.health }

type stubEngine struct {
	cycles  uint64
	opps    []domain.Opportunity
	attempt *domain.ExecutionAttempt
}

func (s *stubEngine) Cycles() uint64  { return s.cycles }
func (s *stubEngine) Executing() bool { return false }

func (s *stubEngine) LastAttempt() *domain.ExecutionAttempt {
	return s.attempt
}

func (s *stubEngine) RecentOpportunities(limit int) []domain.Opportunity {
	if limit > len(s.opps) {
		limit = len(s.opps)
	}
	return s.opps[:limit]
}

type stubWallet struct {
	snap domain.WalletSnapshot
}

func (s *stubWallet) Snapshot() domain.WalletSnapshot { return s.snap }

type stubAttemptStore struct {
	attempts map[string]domain.ExecutionAttempt
	profit   int64
}

func (s *stubAttemptStore) Create(ctx context.Context, a domain.ExecutionAttempt) error { return nil }
func (s *stubAttemptStore) Finish(ctx context.Context, a domain.ExecutionAttempt) error { return nil }

func (s *stubAttemptStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return domain.ExecutionAttempt{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *stubAttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	out := make([]domain.ExecutionAttempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAttemptStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionAttempt, error) {
	return nil, nil
}

func (s *stubAttemptStore) SumRealizedProfit(ctx context.Context, since time.Time) (int64, error) {
	return s.profit, nil
}

func newTestServer(t *testing.T, store domain.AttemptStore) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	brk := breaker.New(breaker.Config{}, logger)

	eng := &stubEngine{
		cycles: 7,
		opps: []domain.Opportunity{{
			ID:          "opp-1",
			Route:       domain.Route{Base: "SOL", Hops: []domain.Quote{{Pair: domain.TokenPair{In: "SOL", Out: "USDC", Venue: "jupiter"}}}},
			InputAmount: 1_000_000_000,
			NetProfit:   878_250,
			DetectedAt:  time.Now().UTC(),
		}},
	}
	w := &stubWallet{snap: domain.WalletSnapshot{
		Address:  "wallet1",
		Balances: map[domain.Asset]int64{"SOL": 5_000},
		Reserved: map[domain.Asset]int64{"SOL": 1_000},
	}}

	srv := NewServer(Config{Port: 0}, Handlers{
		Health:   handler.NewHealthHandler(&stubVenues{health: []domain.VenueHealth{{VenueID: "jupiter", Status: domain.VenueHealthy}}}),
		Status:   handler.NewStatusHandler(eng, brk, w),
		Attempts: handler.NewAttemptHandler(store),
	}, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndVenues(t *testing.T) {
	ts := newTestServer(t, &stubAttemptStore{})

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &health))
	require.Equal(t, "ok", health["status"])

	var venues map[string][]map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/venues", &venues))
	require.Len(t, venues["venues"], 1)
	require.Equal(t, "jupiter", venues["venues"][0]["venue"])
}

func TestStatusReportsWalletAndBreaker(t *testing.T) {
	ts := newTestServer(t, &stubAttemptStore{})

	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/status", &status))
	require.Equal(t, float64(7), status["cycles"])
	require.Equal(t, string(breaker.StateClosed), status["breaker_state"])

	wallet := status["wallet"].(map[string]any)
	balances := wallet["balances"].(map[string]any)
	sol := balances["SOL"].(map[string]any)
	require.Equal(t, float64(5_000), sol["balance"])
	require.Equal(t, float64(1_000), sol["reserved"])
	require.Equal(t, float64(4_000), sol["available"])
}

func TestRecentOpportunities(t *testing.T) {
	ts := newTestServer(t, &stubAttemptStore{})

	var body map[string][]map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/opportunities/recent", &body))
	require.Len(t, body["opportunities"], 1)
	require.Equal(t, "opp-1", body["opportunities"][0]["id"])
	require.Equal(t, float64(878_250), body["opportunities"][0]["net_profit"])
}

func TestAttemptLookup(t *testing.T) {
	store := &stubAttemptStore{attempts: map[string]domain.ExecutionAttempt{
		"att-1": {ID: "att-1", Outcome: domain.AttemptCompleted, RealizedProfit: 42},
	}}
	ts := newTestServer(t, store)

	var attempt map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/attempts/att-1", &attempt))

	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/attempts/missing", nil))
}

func TestProfitSummary(t *testing.T) {
	ts := newTestServer(t, &stubAttemptStore{profit: 1_234})

	var pnl map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/pnl?hours=48", &pnl))
	require.Equal(t, float64(1_234), pnl["realized_profit"])

	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/pnl?hours=no", nil))
}
