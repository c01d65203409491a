package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sam-keen/bitcoin-price-guesser/internal/metrics"
	"github.com/sam-keen/bitcoin-price-guesser/internal/storage"
)

// ProviderOptions parameterise the cached provider.
type ProviderOptions struct {
	// TTL is the window during which a fetched price is reused without a
	// new upstream call.
	TTL time.Duration
	// Now is the clock; nil defaults to time.Now.
	Now func() time.Time
	// Recorder receives one price sample per fresh fetch, best-effort.
	Recorder storage.SampleStore
	Metrics  *metrics.Metrics
}

// Provider wraps a Source with a short-lived single-entry cache. The cache
// is an owned value, never package state, so clocks and upstreams stay
// injectable. On upstream failure the last known quote is served stale
// rather than failing the caller.
type Provider struct {
	mu       sync.Mutex
	source   Source
	ttl      time.Duration
	now      func() time.Time
	cached   *Quote
	recorder storage.SampleStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewProvider constructs a cached price provider around source.
func NewProvider(source Source, opts ProviderOptions, logger zerolog.Logger) *Provider {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		source:   source,
		ttl:      ttl,
		now:      now,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "price_provider").Str("source", source.Name()).Logger(),
	}
}

// Current returns the spot price, served from cache while it is fresh.
// The lock is held across the upstream call, so concurrent callers inside
// one cache window observe a single fetch and the same quote.
func (p *Provider) Current(ctx context.Context) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.cached != nil && now.Sub(p.cached.FetchedAt) < p.ttl {
		p.metrics.ObserveCacheHit()
		return *p.cached, nil
	}

	price, err := p.source.FetchSpot(ctx)
	if err != nil {
		if errors.Is(err, ErrBadPayload) {
			p.metrics.ObservePriceFetch(p.source.Name(), metrics.OutcomeError)
			return Quote{}, err
		}
		if p.cached != nil {
			p.logger.Warn().Err(err).Msg("upstream failed, serving stale cached price")
			p.metrics.ObservePriceFetch(p.source.Name(), metrics.OutcomeStale)
			return *p.cached, nil
		}
		p.metrics.ObservePriceFetch(p.source.Name(), metrics.OutcomeError)
		return Quote{}, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	quote := Quote{Price: price, FetchedAt: now}
	p.cached = &quote
	p.metrics.ObservePriceFetch(p.source.Name(), metrics.OutcomeOK)
	p.record(ctx, quote)
	return quote, nil
}

func (p *Provider) record(ctx context.Context, quote Quote) {
	if p.recorder == nil {
		return
	}
	sample := storage.PriceSample{
		Price:     quote.Price,
		Source:    p.source.Name(),
		SampledAt: quote.FetchedAt,
	}
	if err := p.recorder.RecordPriceSample(ctx, sample); err != nil {
		p.logger.Warn().Err(err).Msg("failed to record price sample")
	}
}
