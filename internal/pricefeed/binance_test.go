package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBinanceFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("unexpected symbol %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"45123.37000000"}`))
	}))
	defer srv.Close()

	source := NewBinance(SourceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	price, err := source.FetchSpot(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("45123.37")) {
		t.Fatalf("expected 45123.37, got %s", price.String())
	}
}

func TestBinanceFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	source := NewBinance(SourceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := source.FetchSpot(context.Background()); err == nil {
		t.Fatal("HTTP 503 should return an error")
	}
}

func TestBinanceFetchBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"NaN-ish"}`))
	}))
	defer srv.Close()

	source := NewBinance(SourceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := source.FetchSpot(context.Background()); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}
