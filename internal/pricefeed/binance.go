package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	binanceDefaultBaseURL = "https://api.binance.com"
	binanceTickerPath     = "/api/v3/ticker/price?symbol=BTCUSDT"
)

// Binance fetches the BTCUSDT ticker price from the Binance public API.
// It is the alternative to Coinbase for deployments where Binance is
// reachable without geo-restrictions.
type Binance struct {
	opts    SourceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs a Binance spot source.
func NewBinance(opts SourceOptions, logger zerolog.Logger) *Binance {
	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_source").Logger(),
		client:  &http.Client{Timeout: opts.timeout()},
		baseURL: opts.baseURL(binanceDefaultBaseURL),
	}
}

// Name identifies the source in logs, samples, and metrics.
func (b *Binance) Name() string { return "binance" }

type binanceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchSpot retrieves the current ticker price.
func (b *Binance) FetchSpot(ctx context.Context) (decimal.Decimal, error) {
	endpoint := b.baseURL + binanceTickerPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.opts.userAgent())

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch binance ticker: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, upstreamStatusError(b.Name(), resp.StatusCode, payload)
	}

	var ticker binanceTickerResponse
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	return parseSpotAmount(b.Name(), ticker.Price)
}

var _ Source = (*Binance)(nil)
