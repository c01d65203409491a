package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCoinbaseFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != coinbaseSpotPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"base": "BTC", "currency": "USD", "amount": "45123.37"},
		})
	}))
	defer srv.Close()

	source := NewCoinbase(SourceOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())

	price, err := source.FetchSpot(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("45123.37")) {
		t.Fatalf("expected 45123.37, got %s", price.String())
	}
}

func TestCoinbaseFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "rate limited"})
	}))
	defer srv.Close()

	source := NewCoinbase(SourceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := source.FetchSpot(context.Background()); err == nil {
		t.Fatal("HTTP 429 should return an error")
	} else if errors.Is(err, ErrBadPayload) {
		t.Fatalf("status errors must not be classified as bad payload: %v", err)
	}
}

func TestCoinbaseFetchBadPayload(t *testing.T) {
	cases := map[string]string{
		"non-numeric":  `{"data":{"amount":"not-a-price"}}`,
		"missing":      `{"data":{}}`,
		"not json":     `<html>maintenance</html>`,
		"non-positive": `{"data":{"amount":"0"}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			source := NewCoinbase(SourceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

			_, err := source.FetchSpot(context.Background())
			if !errors.Is(err, ErrBadPayload) {
				t.Fatalf("expected ErrBadPayload, got %v", err)
			}
		})
	}
}
