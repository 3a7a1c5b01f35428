package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/juant72/sniperforge/internal/domain"
)

// QuoteCache implements domain.QuoteCache. Each pair's latest quote is
// stored as JSON at "quote:{pairKey}" with a TTL matching the quote's own
// staleness deadline, so Redis expiry and quote expiry agree.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(pair domain.TokenPair) string {
	return "quote:" + pair.Key()
}

// Put stores the quote under its pair key. Quotes already past expiry are
// dropped silently.
func (qc *QuoteCache) Put(ctx context.Context, quote domain.Quote) error {
	ttl := time.Until(quote.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", quote.Pair.Key(), err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(quote.Pair), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", quote.Pair.Key(), err)
	}
	return nil
}

// Get retrieves the freshest quote for a pair. It returns domain.ErrNotFound
// when the key is missing and domain.ErrStaleQuote when the stored quote
// outlived its deadline between Redis expiry sweeps.
func (qc *QuoteCache) Get(ctx context.Context, pair domain.TokenPair) (domain.Quote, error) {
	raw, err := qc.rdb.Get(ctx, quoteKey(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", pair.Key(), err)
	}

	var quote domain.Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: unmarshal quote %s: %w", pair.Key(), err)
	}
	if quote.Stale(time.Now().UTC()) {
		return domain.Quote{}, domain.ErrStaleQuote
	}
	return quote, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
