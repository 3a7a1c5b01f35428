package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		FeeBps:      4,
		BaseAsset:   "SOL",
		TradeAssets: []domain.Asset{"USDC", "RAY"},
	})
}

func TestQuoteNormalization(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SOL", r.URL.Query().Get("inputMint"))
		require.Equal(t, "USDC", r.URL.Query().Get("outputMint"))
		require.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		_ = json.NewEncoder(w).Encode(quoteResponse{
			InAmount:       "1000000000",
			OutAmount:      "150000000",
			PriceImpactPct: "0.0012",
		})
	})

	q, err := c.Quote(context.Background(), domain.QuoteRequest{
		In: "SOL", Out: "USDC", InAmount: 1_000_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(150_000_000), q.OutAmount)
	require.Equal(t, int64(12), q.PriceImpactBps)
	require.Equal(t, int64(4), q.FeeBps)
	require.Equal(t, "jupiter", q.Pair.Venue)
	require.False(t, q.ObservedAt.IsZero())
	require.NotEmpty(t, q.RouteHint)
}

func TestQuoteRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Quote(context.Background(), domain.QuoteRequest{
		In: "SOL", Out: "USDC", InAmount: 1_000,
	})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPairsAreConfiguredCross(t *testing.T) {
	c := newTestClient(t, nil)

	pairs := c.Pairs()
	// 3 assets, every ordered pair.
	require.Len(t, pairs, 6)
	for _, p := range pairs {
		require.Equal(t, "jupiter", p.Venue)
		require.NotEqual(t, p.In, p.Out)
	}
}

func TestImpactConversionRoundsUp(t *testing.T) {
	require.Equal(t, int64(0), impactPctToBps("0"))
	require.Equal(t, int64(0), impactPctToBps("garbage"))
	require.Equal(t, int64(1), impactPctToBps("0.00001"))
	require.Equal(t, int64(100), impactPctToBps("0.01"))
}
