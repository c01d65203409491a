package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable indicates the upstream failed and no cached price exists.
	ErrUnavailable = errors.New("pricefeed: upstream unavailable and no cached price")
	// ErrBadPayload indicates the upstream answered but the price could not
	// be parsed as a finite number.
	ErrBadPayload = errors.New("pricefeed: invalid upstream price data")
)

// Source retrieves the current BTC/USD spot price from one upstream feed.
type Source interface {
	Name() string
	FetchSpot(ctx context.Context) (decimal.Decimal, error)
}

// Quote is one spot price observation.
type Quote struct {
	Price     decimal.Decimal
	FetchedAt time.Time
}

// SourceOptions parameterise an upstream spot fetcher.
type SourceOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

func (o SourceOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 10 * time.Second
	}
	return o.Timeout
}

func (o SourceOptions) userAgent() string {
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		return ua
	}
	return "btcguessr/1.0"
}

func (o SourceOptions) baseURL(fallback string) string {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		return fallback
	}
	return base
}

type upstreamError struct {
	Message string `json:"message"`
	Msg     string `json:"msg"`
	Error_  string `json:"error"`
}

func upstreamStatusError(source string, status int, payload []byte) error {
	var apiErr upstreamError
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Message, apiErr.Msg, apiErr.Error_} {
			if msg != "" {
				return fmt.Errorf("%s api error (%d): %s", source, status, msg)
			}
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", source, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", source, status)
}

func parseSpotAmount(source, amount string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s price %q", ErrBadPayload, source, amount)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s price %q not positive", ErrBadPayload, source, amount)
	}
	return price, nil
}
