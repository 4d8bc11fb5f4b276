// Package analytics derives portfolio performance figures from stored
// snapshots and prices. Statistics use float64; the source values stay
// decimal in the store.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/ledger"
	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/store"
)

// DefaultRiskFreeRate is the annualized risk-free rate used for the
// Sharpe ratio when none is stored.
const DefaultRiskFreeRate = 0.045

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// TimelinePoint is the portfolio value at one snapshot instant.
type TimelinePoint struct {
	Timestamp time.Time
	Value     decimal.Decimal
	// Benchmark is the hypothetical value of the same starting capital
	// invested in the benchmark. Zero when no benchmark was requested
	// or it has no data yet.
	Benchmark decimal.Decimal
}

// Metrics summarizes portfolio performance over a timeline.
type Metrics struct {
	TotalReturnPct float64
	// VolatilityPct is the annualized standard deviation of daily
	// returns, in percent.
	VolatilityPct float64
	SharpeRatio   float64
	Days          int
}

// TickerPerformance is the price change of one ticker over its stored
// history.
type TickerPerformance struct {
	Ticker    string
	FirstDate time.Time
	LastDate  time.Time
	ChangePct float64
}

// Stats is the portfolio's current standing.
type Stats struct {
	Cash        decimal.Decimal
	Value       decimal.Decimal
	InitialCash decimal.Decimal
	ReturnPct   float64
	Positions   map[string]int64
	// Weights is each held ticker's share of the total portfolio value,
	// in percent. Cash makes up the remainder.
	Weights map[string]float64
}

// Analyzer answers performance queries against the store.
type Analyzer struct {
	store  store.Store
	ledger *ledger.Ledger
}

// New creates an Analyzer.
func New(st store.Store, led *ledger.Ledger) *Analyzer {
	return &Analyzer{store: st, ledger: led}
}

// Timeline returns the portfolio value over time since the cutoff. All
// snapshot rows from one run share a timestamp and portfolio value, so
// each instant collapses to a single point; the max guards against rows
// from an interrupted run carrying a stale value.
func (a *Analyzer) Timeline(ctx context.Context, since time.Time) ([]TimelinePoint, error) {
	snaps, err := a.store.SnapshotsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	byTS := make(map[time.Time]decimal.Decimal)
	for _, s := range snaps {
		ts := s.Timestamp.UTC()
		if cur, ok := byTS[ts]; !ok || s.PortfolioValue.GreaterThan(cur) {
			byTS[ts] = s.PortfolioValue
		}
	}

	points := make([]TimelinePoint, 0, len(byTS))
	for ts, v := range byTS {
		points = append(points, TimelinePoint{Timestamp: ts, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// TimelineWithBenchmark is Timeline with a benchmark overlay: the value
// of the same starting capital invested in the benchmark ticker at the
// first point. Benchmark closes are carried forward, so points between
// trading days reuse the most recent close.
func (a *Analyzer) TimelineWithBenchmark(ctx context.Context, since time.Time, benchmark string) ([]TimelinePoint, error) {
	points, err := a.Timeline(ctx, since)
	if err != nil || len(points) == 0 {
		return points, err
	}

	prices, err := a.store.PriceRange(ctx, benchmark, since.AddDate(0, 0, -7), points[len(points)-1].Timestamp)
	if err != nil {
		return nil, fmt.Errorf("loading benchmark prices: %w", err)
	}
	if len(prices) == 0 {
		return points, nil
	}

	baseClose := closeOnOrBefore(prices, points[0].Timestamp)
	if baseClose == nil || baseClose.IsZero() {
		return points, nil
	}
	baseValue := points[0].Value

	for i := range points {
		close := closeOnOrBefore(prices, points[i].Timestamp)
		if close == nil {
			continue
		}
		points[i].Benchmark = baseValue.Mul(*close).Div(*baseClose)
	}
	return points, nil
}

// closeOnOrBefore returns the close of the latest price row with
// timestamp <= ts, or nil when every row is later. prices must be
// ascending by timestamp.
func closeOnOrBefore(prices []model.PricePoint, ts time.Time) *decimal.Decimal {
	// First index strictly after ts; the row before it is the match.
	idx := sort.Search(len(prices), func(i int) bool { return prices[i].Timestamp.After(ts) })
	if idx == 0 {
		return nil
	}
	return &prices[idx-1].Close
}

// Performance computes return, volatility and Sharpe ratio over the
// timeline since the cutoff. The risk-free rate comes from the durable
// risk_free_rate key, defaulting to DefaultRiskFreeRate.
func (a *Analyzer) Performance(ctx context.Context, since time.Time) (*Metrics, error) {
	points, err := a.Timeline(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return &Metrics{Days: len(points)}, nil
	}

	riskFree, err := a.riskFreeRate(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value.InexactFloat64()
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		}
	}

	m := &Metrics{Days: len(points)}
	if values[0] != 0 {
		m.TotalReturnPct = (values[len(values)-1]/values[0] - 1) * 100
	}
	if len(returns) == 0 {
		return m, nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	dailyStd := math.Sqrt(variance)

	m.VolatilityPct = dailyStd * math.Sqrt(tradingDaysPerYear) * 100
	if dailyStd > 0 {
		annualReturn := mean * tradingDaysPerYear
		m.SharpeRatio = (annualReturn - riskFree) / (dailyStd * math.Sqrt(tradingDaysPerYear))
	}
	return m, nil
}

func (a *Analyzer) riskFreeRate(ctx context.Context) (float64, error) {
	raw, ok, err := a.store.GetConfig(ctx, model.ConfigRiskFreeRate)
	if err != nil {
		return 0, fmt.Errorf("reading risk-free rate: %w", err)
	}
	if !ok {
		return DefaultRiskFreeRate, nil
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("stored risk-free rate %q is not a number: %w", raw, err)
	}
	return rate, nil
}

// BestWorst finds the best and worst performing tickers over their
// stored price history, comparing each ticker's first and last close.
// Either result is nil when no ticker has at least two price rows.
func (a *Analyzer) BestWorst(ctx context.Context) (best, worst *TickerPerformance, err error) {
	tickers, err := a.store.PriceTickers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing tickers: %w", err)
	}

	for _, ticker := range tickers {
		first, err := a.store.FirstPrice(ctx, ticker)
		if err != nil {
			return nil, nil, err
		}
		last, err := a.store.LastPrice(ctx, ticker)
		if err != nil {
			return nil, nil, err
		}
		if first == nil || last == nil || first.EventID == last.EventID || first.Close.IsZero() {
			continue
		}

		perf := &TickerPerformance{
			Ticker:    ticker,
			FirstDate: first.Timestamp,
			LastDate:  last.Timestamp,
			ChangePct: last.Close.Sub(first.Close).Div(first.Close).InexactFloat64() * 100,
		}
		if best == nil || perf.ChangePct > best.ChangePct {
			best = perf
		}
		if worst == nil || perf.ChangePct < worst.ChangePct {
			worst = perf
		}
	}
	return best, worst, nil
}

// PortfolioStats replays the ledger and values the current positions at
// the latest stored closes.
func (a *Analyzer) PortfolioStats(ctx context.Context) (*Stats, error) {
	state, err := a.ledger.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	initial, err := a.ledger.InitialCash(ctx)
	if err != nil {
		return nil, err
	}

	held := make([]string, 0, len(state.Positions))
	for ticker, qty := range state.Positions {
		if qty > 0 {
			held = append(held, ticker)
		}
	}
	closes, err := a.store.LatestCloses(ctx, held)
	if err != nil {
		return nil, fmt.Errorf("reading latest closes: %w", err)
	}

	value := state.Cash
	holdings := make(map[string]decimal.Decimal, len(held))
	for _, ticker := range held {
		if close, ok := closes[ticker]; ok {
			worth := close.Mul(decimal.NewFromInt(state.Positions[ticker]))
			holdings[ticker] = worth
			value = value.Add(worth)
		}
	}

	stats := &Stats{
		Cash:        state.Cash,
		Value:       value,
		InitialCash: initial,
		Positions:   state.Positions,
		Weights:     make(map[string]float64, len(holdings)),
	}
	if value.IsPositive() {
		for ticker, worth := range holdings {
			stats.Weights[ticker] = worth.Div(value).InexactFloat64() * 100
		}
	}
	if !initial.IsZero() {
		stats.ReturnPct = value.Sub(initial).Div(initial).InexactFloat64() * 100
	}
	return stats, nil
}
