// Package raydium implements the venue adapter for the Raydium AMM trade
// API.
package raydium

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

const venueID = "raydium"

// Client is the REST adapter for Raydium's swap-compute API.
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

// New creates a Raydium adapter.
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

// computeResponse is the wire shape of the swap-compute endpoint.
type computeResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Data    struct {
		OutputAmount string  `json:"outputAmount"`
		PriceImpact  float64 `json:"priceImpactPct"`
		FeeBps       int64   `json:"tradeFeeBps"`
		PoolLiquidity string `json:"poolLiquidity"`
		RouteID      string  `json:"routeId"`
	} `json:"data"`
}

// txResponse is the wire shape of the transaction-build endpoint.
type txResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Transaction          string `json:"transaction"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"data"`
}

// Name returns the venue identifier.
func (c *Client) Name() string { return venueID }

// Pairs returns the advertised pair capability list.
func (c *Client) Pairs() []domain.TokenPair {
	out := make([]domain.TokenPair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Quote fetches a swap-compute result and normalizes it.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	params := url.Values{}
	params.Set("inputMint", string(req.In))
	params.Set("outputMint", string(req.Out))
	params.Set("amount", strconv.FormatInt(req.InAmount, 10))
	params.Set("txVersion", "V0")

	body, err := c.get(ctx, "/compute/swap-base-in?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("raydium: compute %s>%s: %w", req.In, req.Out, err)
	}

	var resp computeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("raydium: decode compute: %w", err)
	}
	if !resp.Success {
		return domain.Quote{}, fmt.Errorf("raydium: compute rejected: %s", resp.Msg)
	}

	outAmount, err := strconv.ParseInt(resp.Data.OutputAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("raydium: parse outputAmount %q: %w", resp.Data.OutputAmount, err)
	}

	liquidity, _ := strconv.ParseInt(resp.Data.PoolLiquidity, 10, 64)
	feeBps := resp.Data.FeeBps
	if feeBps == 0 {
		feeBps = c.feeBps
	}

	return domain.Quote{
		Pair:           domain.TokenPair{In: req.In, Out: req.Out, Venue: venueID},
		InAmount:       req.InAmount,
		OutAmount:      outAmount,
		PriceImpactBps: int64(math.Ceil(resp.Data.PriceImpact * 100)), // pct → bps
		FeeBps:         feeBps,
		LiquidityUnits: liquidity,
		RouteHint:      resp.Data.RouteID,
		ObservedAt:     time.Now().UTC(),
	}, nil
}

// BuildSwap asks the transaction endpoint to assemble an unsigned swap for
// the quote's route.
func (c *Client) BuildSwap(ctx context.Context, quote domain.Quote, owner string) (venue.SwapPayload, error) {
	reqBody, err := json.Marshal(map[string]any{
		"routeId":   quote.RouteHint,
		"wallet":    owner,
		"amount":    strconv.FormatInt(quote.InAmount, 10),
		"txVersion": "V0",
		"wrapSol":   true,
	})
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("raydium: encode tx request: %w", err)
	}

	body, err := c.post(ctx, "/transaction/swap-base-in", reqBody)
	if err != nil {
		return venue.SwapPayload{}, fmt.Errorf("raydium: build swap: %w", err)
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.SwapPayload{}, fmt.Errorf("raydium: decode tx: %w", err)
	}
	if !resp.Success || len(resp.Data) == 0 {
		return venue.SwapPayload{}, fmt.Errorf("raydium: tx build returned no transaction")
	}

	return venue.SwapPayload{
		TxBase64:             resp.Data[0].Transaction,
		LastValidBlockHeight: resp.Data[0].LastValidBlockHeight,
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
