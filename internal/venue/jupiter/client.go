// Package jupiter implements the venue adapter for the Jupiter aggregator
// quote API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/venue"
)

const venueID = "jupiter"

// Client is the REST adapter for the Jupiter quote API.
type Client struct {
	baseURL    string
	feeBps     int64
	pairs      []domain.TokenPair
	httpClient *http.Client
}

// Config holds the adapter's construction parameters.
type Config struct {
	BaseURL string
	// FeeBps is the platform fee applied on top of pool fees.
	FeeBps      int64
	BaseAsset   domain.Asset
	TradeAssets []domain.Asset
}

// New creates a Jupiter adapter.
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		feeBps:  cfg.FeeBps,
		pairs:   venue.StaticPairs(venueID, cfg.BaseAsset, cfg.TradeAssets),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string { return venueID }

// Pairs returns the advertised pair capability list. Jupiter routes any
// mint pair, so the list is the configured asset cross.
func (c *Client) Pairs() []domain.TokenPair {
	out := make([]domain.TokenPair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Quote fetches a swap quote and normalizes it into the domain shape.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	params := url.Values{}
	params.Set("inputMint", string(req.In))
	params.Set("outputMint", string(req.Out))
	params.Set("amount", strconv.FormatInt(req.InAmount, 10))
	params.Set("swapMode", "ExactIn")

	body, err := c.get(ctx, "/quote?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote %s>%s: %w", req.In, req.Out, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}

	outAmount, err := strconv.ParseInt(resp.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: parse outAmount %q: %w", resp.OutAmount, err)
	}
	impactBps := impactPctToBps(resp.PriceImpactPct)

	hint, err := json.Marshal(resp)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: encode route hint: %w", err)
	}

	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: venueID},
		InAmount:       req.InAmount,
		OutAmount:      outAmount,
		PriceImpactBps: impactBps,
		FeeBps:         c.feeBps,
		LiquidityUnits: depthFromImpact(req.InAmount, impactBps),
		RouteHint:      string(hint),
		ObservedAt:     time.Now().UTC(),
	}, nil
}

// BuildSwap asks the swap endpoint to assemble an unsigned transaction for
// the quote's route hint.
func (c *Client) BuildSwap(ctx context.Context, quote domain.Quote, owner string) (venue.SwapPayload, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse: quote.RouteHint,
		UserPublicKey: owner,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("jupiter: encode swap request: %w", err)
	}

	body, err := c.post(ctx, "/swap", reqBody)
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("jupiter: build swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.SwapPayload{}, fmt.Errorf("jupiter: decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return venue.SwapPayload{}, fmt.Errorf("jupiter: swap response missing transaction")
	}

	return venue.SwapPayload{
		TxBase64:             resp.SwapTransaction,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// impactPctToBps converts a decimal-fraction percentage string ("0.0012")
// to basis points, rounding up so impact is never understated.
func impactPctToBps(pct string) int64 {
	f, err := strconv.ParseFloat(pct, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int64(math.Ceil(f * 10_000))
}

// depthFromImpact approximates pair depth from the quoted impact: an order
// of size in moving the price by impactBps implies roughly
// in * 10000 / impactBps units of depth. Zero impact is treated as deep.
func depthFromImpact(in, impactBps int64) int64 {
	if impactBps <= 0 {
		return in * 10_000
	}
	return in * 10_000 / impactBps
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
