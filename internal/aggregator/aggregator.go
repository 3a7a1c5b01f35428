// Package aggregator polls all enabled venue adapters concurrently and
// produces a merged, freshness-filtered set of quotes per discovery cycle.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/errgroup"

	"github.com/juant72/sniperforge/internal/domain"
	"github.com/juant72/sniperforge/internal/venue"
)

// pollConcurrency bounds the number of in-flight quote requests across all
// venues in one cycle.
const pollConcurrency = 16

// VenueRecorder receives per-venue outcome signals. The circuit breaker
// implements it.
type VenueRecorder interface {
	RecordVenueSuccess(venueID string)
	RecordVenueFailure(venueID string)
}

// Options tunes a single Aggregator.
type Options struct {
	ProbeAmount     int64
	VenueTimeout    time.Duration
	StalenessWindow time.Duration
}

// Aggregator fans out quote requests to every registered adapter, stamps
// expiry, drops stale or malformed results and tracks venue health. Streamed
// quotes (from the whirlpool feed) are pre-warmed into a local cache and
// merged into the next cycle while still fresh.
type Aggregator struct {
	adapters map[string]venue.Adapter
	health   *HealthTracker
	recorder VenueRecorder
	remote   domain.QuoteCache
	local    *ristretto.Cache
	opts     Options
	logger   *slog.Logger
}

// New builds an Aggregator over the given adapters. recorder and remote may
// be nil.
func New(adapters []venue.Adapter, health *HealthTracker, recorder VenueRecorder, remote domain.QuoteCache, opts Options, logger *slog.Logger) (*Aggregator, error) {
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregator: create local cache: %w", err)
	}
	byName := make(map[string]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
		health.Register(a.Name())
	}
	return &Aggregator{
		adapters: byName,
		health:   health,
		recorder: recorder,
		remote:   remote,
		local:    local,
		opts:     opts,
		logger:   logger.With(slog.String("component", "aggregator")),
	}, nil
}

// Adapter returns the adapter registered under name, or nil.
func (a *Aggregator) Adapter(name string) venue.Adapter {
	return a.adapters[name]
}

// Adapters lists every registered adapter whose venue is not currently
// excluded by health tracking.
func (a *Aggregator) Adapters() []venue.Adapter {
	out := make([]venue.Adapter, 0, len(a.adapters))
	for name, ad := range a.adapters {
		if a.health.Excluded(name) {
			continue
		}
		out = append(out, ad)
	}
	return out
}

// Health exposes the aggregator's venue health snapshot.
func (a *Aggregator) Health() []domain.VenueHealth {
	return a.health.Snapshot()
}

// Prewarm stores a streamed quote so the next Poll cycle can use it without
// an HTTP round trip. Quotes past their expiry are ignored.
func (a *Aggregator) Prewarm(q domain.Quote) {
	now := time.Now().UTC()
	if q.ExpiresAt.IsZero() {
		q.ExpiresAt = q.ObservedAt.Add(a.opts.StalenessWindow)
	}
	if q.Stale(now) {
		return
	}
	a.local.SetWithTTL(q.Pair.Key(), q, 1, time.Until(q.ExpiresAt))
}

// Poll requests a quote for every pair on every healthy venue and returns
// the fresh results. A venue that fails or times out is recorded against its
// health but never aborts the cycle; the error return is reserved for
// context cancellation.
func (a *Aggregator) Poll(ctx context.Context) ([]domain.Quote, error) {
	type result struct {
		venueID string
		quote   domain.Quote
		err     error
	}

	var work []domain.TokenPair
	active := make(map[string]venue.Adapter)
	for name, ad := range a.adapters {
		if a.health.Excluded(name) {
			a.logger.Debug("venue excluded from cycle", slog.String("venue", name))
			continue
		}
		active[name] = ad
		work = append(work, ad.Pairs()...)
	}

	results := make([]result, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for i, pair := range work {
		g.Go(func() error {
			ad := active[pair.Venue]
			qctx, cancel := context.WithTimeout(gctx, a.opts.VenueTimeout)
			defer cancel()
			start := time.Now()
			q, err := ad.Quote(qctx, domain.QuoteRequest{
				In:       pair.In,
				Out:      pair.Out,
				InAmount: a.opts.ProbeAmount,
			})
			if err != nil {
				results[i] = result{venueID: pair.Venue, err: err}
				return nil
			}
			a.health.MarkSuccess(pair.Venue, time.Since(start))
			results[i] = result{venueID: pair.Venue, quote: q}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	failed := make(map[string]error)
	quotes := make([]domain.Quote, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.err != nil {
			// One failure per venue per cycle counts against its health.
			if _, ok := failed[r.venueID]; !ok {
				failed[r.venueID] = r.err
			}
			continue
		}
		q := r.quote
		if q.OutAmount <= 0 || q.InAmount <= 0 {
			continue
		}
		if q.ObservedAt.IsZero() {
			q.ObservedAt = now
		}
		if q.ExpiresAt.IsZero() {
			q.ExpiresAt = q.ObservedAt.Add(a.opts.StalenessWindow)
		}
		if q.Stale(now) {
			continue
		}
		quotes = append(quotes, q)
		seen[q.Pair.Key()] = struct{}{}
		if a.remote != nil {
			if err := a.remote.Put(ctx, q); err != nil {
				a.logger.Warn("quote cache write failed", slog.String("error", err.Error()))
			}
		}
	}

	for venueID, err := range failed {
		a.health.MarkFailure(venueID)
		if a.recorder != nil {
			a.recorder.RecordVenueFailure(venueID)
		}
		a.logger.Warn("venue poll failed",
			slog.String("venue", venueID),
			slog.String("error", err.Error()))
	}
	for venueID := range active {
		if _, ok := failed[venueID]; !ok && a.recorder != nil {
			a.recorder.RecordVenueSuccess(venueID)
		}
	}

	// Merge pre-warmed streamed quotes for pairs the cycle did not cover.
	for _, ad := range active {
		for _, pair := range ad.Pairs() {
			key := pair.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			v, ok := a.local.Get(key)
			if !ok {
				continue
			}
			q, ok := v.(domain.Quote)
			if !ok || q.Stale(now) {
				continue
			}
			quotes = append(quotes, q)
			seen[key] = struct{}{}
		}
	}

	a.logger.Debug("poll cycle complete",
		slog.Int("quotes", len(quotes)),
		slog.Int("venues_failed", len(failed)))
	return quotes, nil
}
