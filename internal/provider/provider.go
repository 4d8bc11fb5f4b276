package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidCredentials marks a rejected API key. Retrying cannot help;
// callers must stop issuing requests.
var ErrInvalidCredentials = errors.New("invalid provider credentials")

// ErrNoData marks an empty upstream result. It is not a failure: the
// backend simply has nothing for the requested symbol or range.
var ErrNoData = errors.New("no data available")

// TransientError wraps network-level failures (timeouts, 5xx, malformed
// payloads) that are worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// Candle is one OHLCV row returned by a backend. Close is always set;
// zero Open/High/Low/Volume mean the backend did not report the field.
type Candle struct {
	Timestamp time.Time // UTC
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Backend is one concrete market-data upstream. Implementations perform
// raw requests only; quota accounting, retry and throttling live in
// Client.
type Backend interface {
	// Name identifies the backend in stored price rows and logs.
	Name() string

	// Limits returns the {per-minute, per-day} call quota. A per-day
	// limit <= 0 means unlimited.
	Limits() (perMinute, perDay int)

	// CallDelay is the minimum pause between consecutive calls, used to
	// self-throttle below the hard limits.
	CallDelay() time.Duration

	// FetchQuote returns the latest price for one ticker.
	FetchQuote(ctx context.Context, ticker string) (decimal.Decimal, error)

	// FetchDailyHistory returns daily OHLCV rows covering [start, end].
	// Rows outside the range may be returned; callers clip.
	FetchDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]Candle, error)

	// MarketOpen reports whether the market is currently open. Returns
	// true when the status cannot be determined.
	MarketOpen(ctx context.Context) bool
}

// retryable reports whether an error is worth another attempt.
// Quota and credential failures propagate immediately.
func retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// validCandle checks the numeric sanity of one OHLCV row. Optional
// fields are only checked when present.
func validCandle(c Candle) error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if !c.Close.IsPositive() {
		return fmt.Errorf("close %s is not positive", c.Close)
	}
	for _, p := range []struct {
		name  string
		value decimal.Decimal
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}} {
		if !p.value.IsZero() && !p.value.IsPositive() {
			return fmt.Errorf("%s %s is not positive", p.name, p.value)
		}
	}
	if !c.High.IsZero() && !c.Low.IsZero() && c.High.LessThan(c.Low) {
		return fmt.Errorf("high %s below low %s", c.High, c.Low)
	}
	if c.Volume < 0 {
		return fmt.Errorf("volume %d is negative", c.Volume)
	}
	return nil
}
