package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// FearGreedSource reads a fear-and-greed style index over HTTP and maps the
// 0..100 value onto [-1, 1]. The asset argument is ignored; the index is
// market wide.
type FearGreedSource struct {
	baseURL    string
	httpClient *http.Client
}

var _ SentimentSource = (*FearGreedSource)(nil)

// NewFearGreedSource builds a source against the given index endpoint.
func NewFearGreedSource(baseURL string) *FearGreedSource {
	return &FearGreedSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

func (s *FearGreedSource) Score(ctx context.Context, _ domain.Asset) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return 0, fmt.Errorf("risk: build sentiment request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("risk: fetch sentiment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("risk: sentiment endpoint returned %d", resp.StatusCode)
	}

	var body fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("risk: decode sentiment response: %w", err)
	}
	if len(body.Data) == 0 {
		return 0, fmt.Errorf("risk: sentiment response carried no data points")
	}
	raw, err := strconv.ParseFloat(body.Data[0].Value, 64)
	if err != nil {
		return 0, fmt.Errorf("risk: parse sentiment value %q: %w", body.Data[0].Value, err)
	}
	return (raw - 50) / 50, nil
}
