package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/quota"
)

// fakeBackend scripts per-ticker behavior for client tests.
type fakeBackend struct {
	quoteCalls   int
	historyCalls int
	quoteFn      func(ticker string) (decimal.Decimal, error)
	historyFn    func(ticker string) ([]Candle, error)
}

func (f *fakeBackend) Name() string                    { return "fake" }
func (f *fakeBackend) Limits() (int, int)              { return 100, 0 }
func (f *fakeBackend) CallDelay() time.Duration        { return 0 }
func (f *fakeBackend) MarketOpen(context.Context) bool { return true }

func (f *fakeBackend) FetchQuote(_ context.Context, ticker string) (decimal.Decimal, error) {
	f.quoteCalls++
	return f.quoteFn(ticker)
}

func (f *fakeBackend) FetchDailyHistory(_ context.Context, ticker string, _, _ time.Time) ([]Candle, error) {
	f.historyCalls++
	if f.historyFn == nil {
		return nil, ErrNoData
	}
	return f.historyFn(ticker)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClient_CurrentPrices_PartialFailure(t *testing.T) {
	backend := &fakeBackend{
		quoteFn: func(ticker string) (decimal.Decimal, error) {
			if ticker == "MSFT" {
				return decimal.Zero, &TransientError{Err: errors.New("connection reset")}
			}
			return decimal.RequireFromString("150.25"), nil
		},
	}
	c := NewClient(backend, WithRetry(2, time.Millisecond))

	prices, err := c.CurrentPrices(context.Background(), []string{"AAPL", "MSFT", "SPY"})
	if err != nil {
		t.Fatalf("CurrentPrices failed: %v", err)
	}
	if prices["AAPL"] == nil || !prices["AAPL"].Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("AAPL = %v, want 150.25", prices["AAPL"])
	}
	if prices["MSFT"] != nil {
		t.Errorf("MSFT = %v, want nil after exhausted retries", prices["MSFT"])
	}
	if prices["SPY"] == nil {
		t.Error("SPY = nil, want price despite earlier failure")
	}
}

func TestClient_QuotaErrorNotRetried(t *testing.T) {
	backend := &fakeBackend{
		quoteFn: func(string) (decimal.Decimal, error) {
			return decimal.Zero, &quota.ExceededError{Scope: quota.ScopeMinute, Limit: 5, RetryAfter: time.Minute}
		},
	}
	c := NewClient(backend, WithRetry(3, time.Millisecond))

	_, err := c.CurrentPrices(context.Background(), []string{"AAPL"})
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *quota.ExceededError", err)
	}
	if backend.quoteCalls != 1 {
		t.Errorf("quoteCalls = %d, want 1 (quota errors must not be retried)", backend.quoteCalls)
	}
	if st := c.Quota(); st.MinuteCalls != 0 {
		t.Errorf("tracker recorded %d calls for a rejected request, want 0", st.MinuteCalls)
	}
}

func TestClient_InvalidCredentialsAbortsBatch(t *testing.T) {
	backend := &fakeBackend{
		quoteFn: func(string) (decimal.Decimal, error) {
			return decimal.Zero, ErrInvalidCredentials
		},
	}
	c := NewClient(backend, WithRetry(3, time.Millisecond))

	_, err := c.CurrentPrices(context.Background(), []string{"AAPL", "MSFT", "SPY"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if backend.quoteCalls != 1 {
		t.Errorf("quoteCalls = %d, want 1 (credential failures stop the batch)", backend.quoteCalls)
	}
}

func TestClient_TransientErrorsRetried(t *testing.T) {
	attempts := 0
	backend := &fakeBackend{
		quoteFn: func(string) (decimal.Decimal, error) {
			attempts++
			if attempts < 3 {
				return decimal.Zero, &TransientError{Err: errors.New("timeout")}
			}
			return decimal.RequireFromString("99.5"), nil
		},
	}
	c := NewClient(backend, WithRetry(3, time.Millisecond))

	prices, err := c.CurrentPrices(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("CurrentPrices failed: %v", err)
	}
	if prices["AAPL"] == nil {
		t.Fatal("AAPL = nil, want price after retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if st := c.Quota(); st.MinuteCalls != 1 {
		t.Errorf("recorded calls = %d, want exactly 1 per successful request", st.MinuteCalls)
	}
}

func TestClient_QuotaCheckedBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{
		quoteFn: func(string) (decimal.Decimal, error) {
			return decimal.RequireFromString("1"), nil
		},
	}
	tracker := quota.New(2, 0)
	c := NewClient(backend, WithQuotaTracker(tracker), WithRetry(1, time.Millisecond))

	tracker.Record()
	tracker.Record()

	_, err := c.CurrentPrices(context.Background(), []string{"AAPL"})
	var qe *quota.ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *quota.ExceededError", err)
	}
	if backend.quoteCalls != 0 {
		t.Errorf("quoteCalls = %d, want 0 (no network call when quota exhausted)", backend.quoteCalls)
	}
}

func TestClient_HistoricalPrices_ClipsSortsAndValidates(t *testing.T) {
	backend := &fakeBackend{
		historyFn: func(string) ([]Candle, error) {
			return []Candle{
				{Timestamp: day(2025, 6, 4), Close: decimal.RequireFromString("103")},
				{Timestamp: day(2025, 6, 2), Close: decimal.RequireFromString("101")},
				{Timestamp: day(2025, 6, 3), Close: decimal.RequireFromString("-5")}, // invalid, dropped
				{Timestamp: day(2025, 5, 1), Close: decimal.RequireFromString("90")}, // out of range
			}, nil
		},
	}
	c := NewClient(backend, WithRetry(1, time.Millisecond))

	rows, err := c.HistoricalPrices(context.Background(), "aapl", day(2025, 6, 1), day(2025, 6, 30))
	if err != nil {
		t.Fatalf("HistoricalPrices failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if !rows[0].Timestamp.Equal(day(2025, 6, 2)) || !rows[1].Timestamp.Equal(day(2025, 6, 4)) {
		t.Errorf("rows not in ascending timestamp order: %v, %v", rows[0].Timestamp, rows[1].Timestamp)
	}
}

func TestClient_HistoricalPrices_NoDataIsEmptyNotError(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClient(backend, WithRetry(1, time.Millisecond))

	rows, err := c.HistoricalPrices(context.Background(), "AAPL", day(2025, 6, 1), day(2025, 6, 30))
	if err != nil {
		t.Fatalf("HistoricalPrices failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %v, want empty non-nil slice", rows)
	}
	if st := c.Quota(); st.MinuteCalls != 1 {
		t.Errorf("recorded calls = %d, want 1 (empty results still consume quota)", st.MinuteCalls)
	}
}

func TestClient_HistoricalPrices_InvalidRange(t *testing.T) {
	backend := &fakeBackend{}
	c := NewClient(backend)

	if _, err := c.HistoricalPrices(context.Background(), "AAPL", day(2025, 6, 30), day(2025, 6, 1)); err == nil {
		t.Error("expected error for start after end")
	}
	if backend.historyCalls != 0 {
		t.Errorf("historyCalls = %d, want 0", backend.historyCalls)
	}
}
