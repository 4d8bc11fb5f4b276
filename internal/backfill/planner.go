// Package backfill decides which date ranges need fetching to bring a
// ticker's price history up to date.
package backfill

import (
	"time"
)

const (
	// DefaultLookbackDays is how far back a full backfill reaches when a
	// ticker has no stored history.
	DefaultLookbackDays = 365

	// DefaultToleranceDays is the slack allowed between the configured
	// lookback start and the earliest stored price before the history is
	// considered insufficient.
	DefaultToleranceDays = 5
)

// Plan is a proposed fetch for one ticker. Start and End are inclusive
// UTC dates. A nil Plan means the stored history is already current.
type Plan struct {
	Ticker string
	Start  time.Time
	End    time.Time
	// Full is set when the plan covers the entire lookback window rather
	// than a gap at the recent end.
	Full bool
}

// Planner computes backfill plans from stored price bounds.
type Planner struct {
	lookbackDays  int
	toleranceDays int
	now           func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithLookbackDays overrides the full-backfill window length.
func WithLookbackDays(days int) Option {
	return func(p *Planner) {
		if days > 0 {
			p.lookbackDays = days
		}
	}
}

// WithToleranceDays overrides the insufficient-history slack.
func WithToleranceDays(days int) Option {
	return func(p *Planner) {
		if days >= 0 {
			p.toleranceDays = days
		}
	}
}

// WithClock overrides the planner's notion of now. Tests use this to
// pin today's date.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Planner with the default lookback and tolerance.
func New(opts ...Option) *Planner {
	p := &Planner{
		lookbackDays:  DefaultLookbackDays,
		toleranceDays: DefaultToleranceDays,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LookbackDays reports the configured full-backfill window length.
func (p *Planner) LookbackDays() int { return p.lookbackDays }

// PlanFor decides what, if anything, to fetch for a ticker given the
// stored price bounds. hasData is false when the ticker has no stored
// prices, in which case minTS and maxTS are ignored.
//
// Rules, evaluated against today's UTC date:
//   - no data: fetch the full lookback window ending today
//   - earliest stored price is later than the lookback start by more
//     than the tolerance: the history is insufficient, fetch the full
//     window (this wins even when the recent end is also stale)
//   - latest stored price is older than yesterday: fetch from the day
//     after it through today
//   - otherwise the history is current and no plan is proposed
//
// History through yesterday counts as current: today's candle may not
// exist yet (weekends, pre-close weekdays), and re-planning an empty
// fetch every run would waste quota.
func (p *Planner) PlanFor(ticker string, minTS, maxTS time.Time, hasData bool) *Plan {
	today := dateOf(p.now())
	lookbackStart := today.AddDate(0, 0, -p.lookbackDays)

	if !hasData {
		return &Plan{Ticker: ticker, Start: lookbackStart, End: today, Full: true}
	}

	minDay := dateOf(minTS)
	maxDay := dateOf(maxTS)

	if minDay.After(lookbackStart.AddDate(0, 0, p.toleranceDays)) {
		return &Plan{Ticker: ticker, Start: lookbackStart, End: today, Full: true}
	}

	if maxDay.Before(today.AddDate(0, 0, -1)) {
		return &Plan{Ticker: ticker, Start: maxDay.AddDate(0, 0, 1), End: today}
	}

	return nil
}

// dateOf truncates a time to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
