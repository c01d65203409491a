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
	coinbaseDefaultBaseURL = "https://api.coinbase.com"
	coinbaseSpotPath       = "/v2/prices/BTC-USD/spot"
)

// Coinbase fetches the BTC-USD spot price from the Coinbase public API.
type Coinbase struct {
	opts    SourceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinbase constructs a Coinbase spot source.
func NewCoinbase(opts SourceOptions, logger zerolog.Logger) *Coinbase {
	return &Coinbase{
		opts:    opts,
		logger:  logger.With().Str("component", "coinbase_source").Logger(),
		client:  &http.Client{Timeout: opts.timeout()},
		baseURL: opts.baseURL(coinbaseDefaultBaseURL),
	}
}

// Name identifies the source in logs, samples, and metrics.
func (c *Coinbase) Name() string { return "coinbase" }

type coinbaseSpotResponse struct {
	Data struct {
		Base     string `json:"base"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	} `json:"data"`
}

// FetchSpot retrieves the current spot price.
func (c *Coinbase) FetchSpot(ctx context.Context) (decimal.Decimal, error) {
	endpoint := c.baseURL + coinbaseSpotPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.userAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch coinbase spot: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, upstreamStatusError(c.Name(), resp.StatusCode, payload)
	}

	var spot coinbaseSpotResponse
	if err := json.Unmarshal(payload, &spot); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	return parseSpotAmount(c.Name(), spot.Data.Amount)
}

var _ Source = (*Coinbase)(nil)
