package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/quota"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co/query"

// Free-tier Alpha Vantage limits; the paid tier lifts the daily cap and
// raises the minute limit.
const (
	avFreeMinuteLimit = 5
	avFreeDailyLimit  = 500
	avPaidMinuteLimit = 75
	avFreeCallDelay   = 12 * time.Second
	avPaidCallDelay   = 1 * time.Second
)

// AlphaVantage is the primary price backend, using the Alpha Vantage
// REST API (GLOBAL_QUOTE, TIME_SERIES_DAILY, MARKET_STATUS).
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	paidTier   bool
	httpClient *http.Client
	logger     *slog.Logger
}

// AlphaVantageOption configures an AlphaVantage backend.
type AlphaVantageOption func(*AlphaVantage)

// NewAlphaVantage creates an Alpha Vantage backend. The API key is
// required; whether it is valid is only learned from the first call.
func NewAlphaVantage(apiKey string, opts ...AlphaVantageOption) (*AlphaVantage, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("alpha vantage api key is required")
	}

	b := &AlphaVantage{
		baseURL: defaultAlphaVantageURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// WithAlphaVantageBaseURL overrides the API endpoint (tests).
func WithAlphaVantageBaseURL(u string) AlphaVantageOption {
	return func(b *AlphaVantage) { b.baseURL = u }
}

// WithAlphaVantagePaidTier switches quota limits to the paid tier.
func WithAlphaVantagePaidTier(paid bool) AlphaVantageOption {
	return func(b *AlphaVantage) { b.paidTier = paid }
}

// WithAlphaVantageTimeout sets the per-request HTTP timeout.
func WithAlphaVantageTimeout(d time.Duration) AlphaVantageOption {
	return func(b *AlphaVantage) { b.httpClient.Timeout = d }
}

// WithAlphaVantageLogger sets the logger.
func WithAlphaVantageLogger(logger *slog.Logger) AlphaVantageOption {
	return func(b *AlphaVantage) { b.logger = logger }
}

func (b *AlphaVantage) Name() string {
	if b.paidTier {
		return "AlphaVantage (PAID)"
	}
	return "AlphaVantage (FREE)"
}

func (b *AlphaVantage) Limits() (perMinute, perDay int) {
	if b.paidTier {
		return avPaidMinuteLimit, 0
	}
	return avFreeMinuteLimit, avFreeDailyLimit
}

func (b *AlphaVantage) CallDelay() time.Duration {
	if b.paidTier {
		return avPaidCallDelay
	}
	return avFreeCallDelay
}

// FetchQuote returns the latest price via GLOBAL_QUOTE.
func (b *AlphaVantage) FetchQuote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", ticker)

	payload, err := b.query(ctx, params)
	if err != nil {
		return decimal.Zero, err
	}

	raw, ok := payload["Global Quote"]
	if !ok || string(raw) == "{}" {
		return decimal.Zero, ErrNoData
	}

	var quote struct {
		Price string `json:"05. price"`
	}
	if err := json.Unmarshal(raw, &quote); err != nil {
		return decimal.Zero, &TransientError{Err: fmt.Errorf("decode quote: %w", err)}
	}
	if quote.Price == "" {
		return decimal.Zero, ErrNoData
	}

	price, err := decimal.NewFromString(quote.Price)
	if err != nil {
		return decimal.Zero, &TransientError{Err: fmt.Errorf("parse price %q: %w", quote.Price, err)}
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("quote for %s is not positive: %s", ticker, price)
	}
	return price, nil
}

// FetchDailyHistory returns daily OHLCV rows via TIME_SERIES_DAILY.
// The API returns either ~100 recent rows (compact) or 20+ years
// (full); outputsize is chosen from the requested span.
func (b *AlphaVantage) FetchDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]Candle, error) {
	outputsize := "compact"
	if end.Sub(start) > 100*24*time.Hour {
		outputsize = "full"
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", ticker)
	params.Set("outputsize", outputsize)

	payload, err := b.query(ctx, params)
	if err != nil {
		return nil, err
	}

	raw, ok := payload["Time Series (Daily)"]
	if !ok {
		return nil, ErrNoData
	}

	var series map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	}
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decode time series: %w", err)}
	}

	rows := make([]Candle, 0, len(series))
	for dateStr, v := range series {
		day, err := time.ParseInLocation(time.DateOnly, dateStr, time.UTC)
		if err != nil {
			b.logger.Warn("skipping unparseable date", "ticker", ticker, "date", dateStr)
			continue
		}

		closeP, err := decimal.NewFromString(v.Close)
		if err != nil {
			b.logger.Warn("skipping row with bad close", "ticker", ticker, "date", dateStr, "close", v.Close)
			continue
		}

		row := Candle{Timestamp: day, Close: closeP}
		if p, err := decimal.NewFromString(v.Open); err == nil {
			row.Open = p
		}
		if p, err := decimal.NewFromString(v.High); err == nil {
			row.High = p
		}
		if p, err := decimal.NewFromString(v.Low); err == nil {
			row.Low = p
		}
		if n, err := strconv.ParseInt(v.Volume, 10, 64); err == nil {
			row.Volume = n
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// MarketOpen checks MARKET_STATUS for the US market. Unknown status is
// reported as open so that callers err on the side of refreshing.
func (b *AlphaVantage) MarketOpen(ctx context.Context) bool {
	params := url.Values{}
	params.Set("function", "MARKET_STATUS")

	payload, err := b.query(ctx, params)
	if err != nil {
		b.logger.Warn("could not check market status", "error", err)
		return true
	}

	raw, ok := payload["markets"]
	if !ok {
		return true
	}
	var markets []struct {
		Region           string `json:"region"`
		PrimaryExchanges string `json:"primary_exchanges"`
		CurrentStatus    string `json:"current_status"`
	}
	if err := json.Unmarshal(raw, &markets); err != nil {
		return true
	}
	for _, m := range markets {
		if m.Region == "United States" && m.PrimaryExchanges != "" {
			return m.CurrentStatus == "open"
		}
	}
	return false
}

// query performs one GET and classifies errors into the provider
// taxonomy. Alpha Vantage reports most failures as 200 responses with
// an "Error Message" or "Note" body, so both layers are inspected.
func (b *AlphaVantage) query(ctx context.Context, params url.Values) (map[string]json.RawMessage, error) {
	params.Set("apikey", b.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &quota.ExceededError{Scope: quota.ScopeMinute, RetryAfter: time.Minute}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decode response: %w", err)}
	}

	if raw, ok := payload["Error Message"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		if strings.Contains(strings.ToLower(msg), "api key") {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("api error: %s", msg)
	}

	for _, key := range []string{"Note", "Information"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var note string
		_ = json.Unmarshal(raw, &note)
		lower := strings.ToLower(note)
		switch {
		case strings.Contains(note, "API call frequency"):
			return nil, &quota.ExceededError{Scope: quota.ScopeMinute, Limit: avFreeMinuteLimit, RetryAfter: time.Minute}
		case strings.Contains(lower, "premium") || strings.Contains(lower, "upgrade"):
			return nil, &quota.ExceededError{Scope: quota.ScopeDaily, Limit: avFreeDailyLimit, RetryAfter: 24 * time.Hour}
		}
	}

	return payload, nil
}
