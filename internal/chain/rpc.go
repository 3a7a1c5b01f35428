package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// Confirmation levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Blockhash is a recent blockhash plus the last block height it is valid
// for, both required when submitting a transaction.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}

// SignatureStatus is the node's view of one submitted transaction.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string
	Err                json.RawMessage
}

// Confirmed reports whether the transaction reached at least the given
// commitment level.
func (s SignatureStatus) Confirmed(commitment string) bool {
	switch s.ConfirmationStatus {
	case CommitmentFinalized:
		return true
	case CommitmentConfirmed:
		return commitment != CommitmentFinalized
	case CommitmentProcessed:
		return commitment == CommitmentProcessed
	default:
		return false
	}
}

// Failed reports whether the transaction landed with an on-chain error.
func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Client is a minimal JSON-RPC 2.0 client for the node endpoints the
// executor needs: blockhash, balance, submission and status polling.
type Client struct {
	endpoint   string
	commitment string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client against endpoint at the given commitment level.
func NewClient(endpoint, commitment string, requestTimeout time.Duration, logger *slog.Logger) *Client {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &Client{
		endpoint:   endpoint,
		commitment: commitment,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With(slog.String("component", "chain")),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip, decoding result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("chain: marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("chain: %s: %w", method, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chain: %s returned status %d: %s", method, resp.StatusCode, snippet)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("chain: decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("chain: %s: %w", method, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("chain: decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetLatestBlockhash returns a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	params := []any{map[string]string{"commitment": c.commitment}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return Blockhash{}, err
	}
	return Blockhash{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

// GetBalance returns the native balance of address in base units.
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	var result struct {
		Value int64 `json:"value"`
	}
	params := []any{address, map[string]string{"commitment": c.commitment}}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetTokenBalance returns the wallet's balance for one SPL token mint, in
// the token's base units.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint string) (int64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": c.commitment},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}
	var total int64
	for _, acct := range result.Value {
		var amt int64
		if _, err := fmt.Sscan(acct.Account.Data.Parsed.Info.TokenAmount.Amount, &amt); err != nil {
			return 0, fmt.Errorf("chain: parse token amount: %w", err)
		}
		total += amt
	}
	return total, nil
}

// SendTransaction submits a signed, base64 serialized transaction and
// returns its signature. A node-side rejection maps to ErrTxRejected, which
// is terminal for the hop.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	var signature string
	params := []any{signedTxBase64, map[string]any{
		"encoding":            "base64",
		"skipPreflight":       false,
		"preflightCommitment": c.commitment,
	}}
	err := c.call(ctx, "sendTransaction", params, &signature)
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("chain: transaction rejected: %s: %w", rpcErr.Message, domain.ErrTxRejected)
		}
		return "", err
	}
	return signature, nil
}

// GetSignatureStatuses looks up the current status of each signature.
// Missing transactions come back as zero-valued entries.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]SignatureStatus, error) {
	var result struct {
		Value []*struct {
			Slot               uint64          `json:"slot"`
			Confirmations      *uint64         `json:"confirmations"`
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	params := []any{signatures, map[string]bool{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	statuses := make([]SignatureStatus, len(result.Value))
	for i, v := range result.Value {
		if v == nil {
			continue
		}
		statuses[i] = SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
			Err:                v.Err,
		}
	}
	return statuses, nil
}

// WaitForConfirmation polls a signature until it confirms, fails on chain,
// or the deadline passes. Timeout maps to ErrConfirmTimeout so the caller
// can route the attempt into mitigation instead of hanging.
func (c *Client) WaitForConfirmation(ctx context.Context, signature string, poll, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		statuses, err := c.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 {
			st := statuses[0]
			if st.Failed() {
				return fmt.Errorf("chain: transaction %s failed on chain: %s: %w", signature, st.Err, domain.ErrTxRejected)
			}
			if st.Confirmed(c.commitment) {
				return nil
			}
		} else if err != nil {
			c.logger.Debug("status poll failed", slog.String("signature", signature), slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("chain: confirming %s: %w", signature, domain.ErrConfirmTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
