// Package orca implements the venue adapter for the Orca whirlpool API,
// with an optional websocket price stream that pre-warms quotes.
package orca

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

const venueID = "orca"

// Client is the REST adapter for the Orca quote API.
type Client struct {
	baseURL    string
	feeBps     int64
	pairs      []domain.TokenPair
	httpClient *http.Client
}

// Config holds the adapter's construction parameters.
type Config struct {
	BaseURL     string
	FeeBps      int64
	BaseAsset   domain.Asset
	TradeAssets []domain.Asset
}

// New creates an Orca adapter.
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

// quoteResponse is the wire shape of the whirlpool quote endpoint.
type quoteResponse struct {
	Quote struct {
		OutAmount      string `json:"outAmount"`
		PriceImpactBps int64  `json:"priceImpactBps"`
		LpFeeBps       int64  `json:"lpFeeBps"`
		Whirlpool      string `json:"whirlpool"`
	} `json:"quote"`
	Pool struct {
		TotalLiquidity string `json:"totalLiquidity"`
	} `json:"pool"`
}

// txBuildResponse is the wire shape of the swap transaction endpoint.
type txBuildResponse struct {
	Transaction          string `json:"transaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Name returns the venue identifier.
func (c *Client) Name() string { return venueID }

// Pairs returns the advertised pair capability list.
func (c *Client) Pairs() []domain.TokenPair {
	out := make([]domain.TokenPair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Quote fetches a whirlpool quote and normalizes it.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	params := url.Values{}
	params.Set("tokenIn", string(req.In))
	params.Set("tokenOut", string(req.Out))
	params.Set("amountIn", strconv.FormatInt(req.InAmount, 10))

	body, err := c.get(ctx, "/quote?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("orca: quote %s>%s: %w", req.In, req.Out, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("orca: decode quote: %w", err)
	}

	outAmount, err := strconv.ParseInt(resp.Quote.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("orca: parse outAmount %q: %w", resp.Quote.OutAmount, err)
	}
	liquidity, _ := strconv.ParseInt(resp.Pool.TotalLiquidity, 10, 64)

	feeBps := resp.Quote.LpFeeBps
	if feeBps == 0 {
		feeBps = c.feeBps
	}

	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: venueID},
		InAmount:       req.InAmount,
		OutAmount:      outAmount,
		PriceImpactBps: resp.Quote.PriceImpactBps,
		FeeBps:         feeBps,
		LiquidityUnits: liquidity,
		RouteHint:      resp.Quote.Whirlpool,
		ObservedAt:     time.Now().UTC(),
	}, nil
}

// BuildSwap asks the whirlpool swap endpoint for an unsigned transaction.
func (c *Client) BuildSwap(ctx context.Context, quote domain.Quote, owner string) (venue.SwapPayload, error) {
	slippageBps := quote.PriceImpactBps + 50
	reqBody, err := json.Marshal(map[string]any{
		"whirlpool":   quote.RouteHint,
		"wallet":      owner,
		"tokenIn":     string(quote.Pair.In),
		"tokenOut":    string(quote.Pair.Out),
		"amountIn":    strconv.FormatInt(quote.InAmount, 10),
		"slippageBps": slippageBps,
	})
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("orca: encode swap request: %w", err)
	}

	body, err := c.post(ctx, "/swap", reqBody)
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("orca: build swap: %w", err)
	}

	var resp txBuildResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.SwapPayload{}, fmt.Errorf("orca: decode swap: %w", err)
	}
	if resp.Transaction == "" {
		return venue.SwapPayload{}, fmt.Errorf("orca: swap response missing transaction")
	}

	return venue.SwapPayload{
		TxBase64:             resp.Transaction,
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
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

// approxImpactBps estimates impact for a stream-derived quote where the
// endpoint did not report one: size relative to pool depth, in bps.
func approxImpactBps(in, liquidity int64) int64 {
	if liquidity <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(in) / float64(liquidity) * 10_000))
}
