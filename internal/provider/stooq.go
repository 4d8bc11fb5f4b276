package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultStooqURL = "https://stooq.com"

// Stooq limits are not published; these are conservative values that
// keep the scraper-style endpoint happy.
const (
	stooqMinuteLimit = 20
	stooqDailyLimit  = 1000
	stooqCallDelay   = 2 * time.Second
)

// Stooq is the secondary price backend, using stooq.com's key-less CSV
// endpoints. Useful when no Alpha Vantage key is configured.
type Stooq struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// StooqOption configures a Stooq backend.
type StooqOption func(*Stooq)

// NewStooq creates a Stooq backend. No credentials are needed.
func NewStooq(opts ...StooqOption) *Stooq {
	b := &Stooq{
		baseURL: defaultStooqURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithStooqBaseURL overrides the endpoint (tests).
func WithStooqBaseURL(u string) StooqOption {
	return func(b *Stooq) { b.baseURL = u }
}

// WithStooqTimeout sets the HTTP timeout.
func WithStooqTimeout(d time.Duration) StooqOption {
	return func(b *Stooq) { b.httpClient.Timeout = d }
}

// WithStooqLogger sets the logger.
func WithStooqLogger(logger *slog.Logger) StooqOption {
	return func(b *Stooq) { b.logger = logger }
}

func (b *Stooq) Name() string { return "Stooq" }

func (b *Stooq) Limits() (perMinute, perDay int) { return stooqMinuteLimit, stooqDailyLimit }

func (b *Stooq) CallDelay() time.Duration { return stooqCallDelay }

// FetchQuote returns the latest close from the lightweight quote CSV.
func (b *Stooq) FetchQuote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("s", stooqSymbol(ticker))
	params.Set("f", "sd2t2ohlcv")
	params.Set("h", "")
	params.Set("e", "csv")

	records, err := b.fetchCSV(ctx, "/q/l/", params)
	if err != nil {
		return decimal.Zero, err
	}
	// Header plus one data row expected.
	if len(records) < 2 || len(records[1]) < 7 {
		return decimal.Zero, ErrNoData
	}

	closeField := records[1][6]
	if closeField == "" || closeField == "N/D" {
		return decimal.Zero, ErrNoData
	}
	price, err := decimal.NewFromString(closeField)
	if err != nil {
		return decimal.Zero, &TransientError{Err: fmt.Errorf("parse close %q: %w", closeField, err)}
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("quote for %s is not positive: %s", ticker, price)
	}
	return price, nil
}

// FetchDailyHistory downloads the daily OHLCV CSV for [start, end].
func (b *Stooq) FetchDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]Candle, error) {
	params := url.Values{}
	params.Set("s", stooqSymbol(ticker))
	params.Set("d1", start.UTC().Format("20060102"))
	params.Set("d2", end.UTC().Format("20060102"))
	params.Set("i", "d")

	records, err := b.fetchCSV(ctx, "/q/d/l/", params)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrNoData
	}

	rows := make([]Candle, 0, len(records)-1)
	for _, rec := range records[1:] {
		// Date,Open,High,Low,Close,Volume
		if len(rec) < 5 {
			continue
		}
		day, err := time.ParseInLocation(time.DateOnly, rec[0], time.UTC)
		if err != nil {
			b.logger.Warn("skipping unparseable date", "ticker", ticker, "date", rec[0])
			continue
		}
		closeP, err := decimal.NewFromString(rec[4])
		if err != nil {
			b.logger.Warn("skipping row with bad close", "ticker", ticker, "date", rec[0], "close", rec[4])
			continue
		}

		row := Candle{Timestamp: day, Close: closeP}
		if p, err := decimal.NewFromString(rec[1]); err == nil {
			row.Open = p
		}
		if p, err := decimal.NewFromString(rec[2]); err == nil {
			row.High = p
		}
		if p, err := decimal.NewFromString(rec[3]); err == nil {
			row.Low = p
		}
		if len(rec) > 5 {
			if n, err := strconv.ParseInt(rec[5], 10, 64); err == nil {
				row.Volume = n
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

// MarketOpen is unknown for Stooq; report open.
func (b *Stooq) MarketOpen(ctx context.Context) bool { return true }

func (b *Stooq) fetchCSV(ctx context.Context, path string, params url.Values) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read response: %w", err)}
	}
	if strings.Contains(strings.ToLower(string(body)), "no data") {
		return nil, ErrNoData
	}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("parse csv: %w", err)}
	}
	return records, nil
}

// stooqSymbol maps a normalized ticker to stooq's lowercase convention,
// defaulting to the US market when no exchange suffix is given.
func stooqSymbol(ticker string) string {
	s := strings.ToLower(ticker)
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}
