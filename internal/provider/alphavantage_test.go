package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/quota"
)

func newAVServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *AlphaVantage) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend, err := NewAlphaVantage("test-key", WithAlphaVantageBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewAlphaVantage failed: %v", err)
	}
	return server, backend
}

func TestAlphaVantage_FetchQuote(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "GLOBAL_QUOTE" {
			t.Errorf("function = %q, want GLOBAL_QUOTE", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q, want test-key", got)
		}
		w.Write([]byte(`{"Global Quote": {"01. symbol": "AAPL", "05. price": "150.2500"}}`))
	})

	price, err := backend.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote failed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("price = %s, want 150.25", price)
	}
}

func TestAlphaVantage_FetchQuote_EmptyQuote(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Global Quote": {}}`))
	})

	_, err := backend.FetchQuote(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestAlphaVantage_RateLimitNote(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})

	_, err := backend.FetchQuote(context.Background(), "AAPL")
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *quota.ExceededError", err)
	}
	if qe.Scope != quota.ScopeMinute {
		t.Errorf("Scope = %q, want %q", qe.Scope, quota.ScopeMinute)
	}
}

func TestAlphaVantage_DailyQuotaNote(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Information": "Please consider upgrading to a premium plan."}`))
	})

	_, err := backend.FetchQuote(context.Background(), "AAPL")
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *quota.ExceededError", err)
	}
	if qe.Scope != quota.ScopeDaily {
		t.Errorf("Scope = %q, want %q", qe.Scope, quota.ScopeDaily)
	}
}

func TestAlphaVantage_InvalidKey(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "the parameter apikey is invalid or missing. Please claim your free API key."}`))
	})

	_, err := backend.FetchQuote(context.Background(), "AAPL")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAlphaVantage_HTTP429(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := backend.FetchQuote(context.Background(), "AAPL")
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		t.Errorf("err = %v, want *quota.ExceededError", err)
	}
}

func TestAlphaVantage_ServerErrorIsTransient(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := backend.FetchQuote(context.Background(), "AAPL")
	var te *TransientError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want *TransientError", err)
	}
}

func TestAlphaVantage_FetchDailyHistory(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("outputsize"); got != "full" {
			t.Errorf("outputsize = %q, want full for a year-long range", got)
		}
		w.Write([]byte(`{
			"Time Series (Daily)": {
				"2025-06-02": {"1. open": "149.00", "2. high": "151.00", "3. low": "148.50", "4. close": "150.25", "5. volume": "51234567"},
				"2025-06-03": {"1. open": "150.30", "2. high": "152.10", "3. low": "150.00", "4. close": "151.90", "5. volume": "43210987"}
			}
		}`))
	})

	start := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	rows, err := backend.FetchDailyHistory(context.Background(), "AAPL", start, end)
	if err != nil {
		t.Fatalf("FetchDailyHistory failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if !row.Close.IsPositive() {
			t.Errorf("row %s has non-positive close %s", row.Timestamp, row.Close)
		}
		if row.Volume == 0 {
			t.Errorf("row %s missing volume", row.Timestamp)
		}
	}
}

func TestAlphaVantage_HistoryNoSeries(t *testing.T) {
	_, backend := newAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Meta Data": {}}`))
	})

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := backend.FetchDailyHistory(context.Background(), "ZZZZ", start, start.AddDate(0, 0, 10))
	if !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestAlphaVantage_Tiers(t *testing.T) {
	free, _ := NewAlphaVantage("k")
	paid, _ := NewAlphaVantage("k", WithAlphaVantagePaidTier(true))

	if perMin, perDay := free.Limits(); perMin != 5 || perDay != 500 {
		t.Errorf("free limits = (%d, %d), want (5, 500)", perMin, perDay)
	}
	if perMin, perDay := paid.Limits(); perMin != 75 || perDay != 0 {
		t.Errorf("paid limits = (%d, %d), want (75, 0 = unlimited)", perMin, perDay)
	}
	if free.CallDelay() <= paid.CallDelay() {
		t.Error("free tier should self-throttle harder than paid")
	}
}
