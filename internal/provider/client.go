package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/quota"
)

// Client wraps a Backend with quota enforcement, exponential-backoff
// retry and inter-call self-throttling.
type Client struct {
	backend Backend
	tracker *quota.Tracker
	limiter *rate.Limiter
	logger  *slog.Logger

	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a retrying client around the given backend. The
// quota tracker is sized from the backend's advertised limits and the
// throttle from its inter-call delay.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	perMinute, perDay := backend.Limits()

	c := &Client{
		backend:    backend,
		tracker:    quota.New(perMinute, perDay),
		logger:     slog.Default(),
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}

	if delay := backend.CallDelay(); delay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(delay), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithRetry sets the retry budget and base backoff delay.
func WithRetry(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = retryDelay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithQuotaTracker replaces the tracker built from the backend limits.
func WithQuotaTracker(t *quota.Tracker) ClientOption {
	return func(c *Client) {
		c.tracker = t
	}
}

// Name returns the wrapped backend's name.
func (c *Client) Name() string { return c.backend.Name() }

// Quota returns the current quota counters.
func (c *Client) Quota() quota.Status { return c.tracker.Status() }

// MarketOpen reports the backend's view of market status.
func (c *Client) MarketOpen(ctx context.Context) bool { return c.backend.MarketOpen(ctx) }

// CurrentPrices fetches the latest price for each ticker, one request
// per ticker. A per-ticker failure records a nil entry rather than
// aborting the batch; credential and quota errors abort immediately
// since continuing cannot help. Callers fill nil entries from stored
// data.
func (c *Client) CurrentPrices(ctx context.Context, tickers []string) (map[string]*decimal.Decimal, error) {
	clean, err := model.NormalizeTickers(tickers)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]*decimal.Decimal, len(clean))
	for _, ticker := range clean {
		var price decimal.Decimal
		err := c.call(ctx, "quote", ticker, func(ctx context.Context) error {
			p, err := c.backend.FetchQuote(ctx, ticker)
			price = p
			return err
		})
		switch {
		case err == nil && price.IsPositive():
			p := price
			prices[ticker] = &p
		case errors.Is(err, ErrNoData):
			c.logger.Warn("no quote data", "ticker", ticker, "provider", c.backend.Name())
			prices[ticker] = nil
		case errors.Is(err, ErrInvalidCredentials):
			return prices, err
		case isQuotaErr(err):
			return prices, err
		default:
			if err == nil {
				err = fmt.Errorf("non-positive price %s", price)
			}
			c.logger.Error("quote fetch failed", "ticker", ticker, "error", err)
			prices[ticker] = nil
		}
	}
	return prices, nil
}

// HistoricalPrices fetches daily OHLCV rows for one ticker restricted
// to [start, end]. An empty slice (not an error) means the backend has
// no data in range. Invalid rows are dropped, not fatal.
func (c *Client) HistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]Candle, error) {
	tk, err := model.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	startDay, endDay := dayOf(start), dayOf(end)
	if startDay.After(endDay) {
		return nil, fmt.Errorf("start %s after end %s", startDay.Format(time.DateOnly), endDay.Format(time.DateOnly))
	}

	var rows []Candle
	err = c.call(ctx, "history", tk, func(ctx context.Context) error {
		fetched, err := c.backend.FetchDailyHistory(ctx, tk, startDay, endDay)
		rows = fetched
		return err
	})
	if errors.Is(err, ErrNoData) {
		return []Candle{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		day := dayOf(row.Timestamp)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		if err := validCandle(row); err != nil {
			c.logger.Warn("dropping invalid price row",
				"ticker", tk,
				"timestamp", row.Timestamp,
				"error", err,
			)
			continue
		}
		out = append(out, row)
	}
	sortCandles(out)

	c.logger.Debug("fetched history",
		"ticker", tk,
		"rows", len(out),
		"start", startDay.Format(time.DateOnly),
		"end", endDay.Format(time.DateOnly),
	)
	return out, nil
}

// call runs one logical request with quota check, throttle, and retry.
// The quota is checked once up front; a successful attempt records
// exactly one call.
func (c *Client) call(ctx context.Context, op, ticker string, fn func(context.Context) error) error {
	if err := c.tracker.Check(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay * (1 << attempt)
			c.logger.Debug("retrying request",
				"op", op,
				"ticker", ticker,
				"attempt", attempt+1,
				"backoff", wait,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		// Pace requests even below the hard quota limits.
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil || errors.Is(err, ErrNoData) {
			c.tracker.Record()
			return err
		}

		lastErr = err
		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", op, ticker, c.maxRetries, lastErr)
}

func isQuotaErr(err error) bool {
	var qe *quota.ExceededError
	return errors.As(err, &qe)
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortCandles(rows []Candle) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
}
