// Package engine orchestrates price synchronization: it decides what to
// fetch, writes price history through the store's dedup layer, and
// records portfolio snapshots derived from the trade ledger.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/backfill"
	"github.com/tmarek/stockfolio/internal/ledger"
	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/provider"
	"github.com/tmarek/stockfolio/internal/store"
)

// State is the engine's current phase. The engine is Idle between
// operations; a refresh moves through Fetching, Reconciling and
// Snapshotting before returning to Idle.
type State string

const (
	StateIdle         State = "IDLE"
	StateFetching     State = "FETCHING"
	StateReconciling  State = "RECONCILING"
	StateSnapshotting State = "SNAPSHOTTING"
)

// DefaultCooldown is the minimum gap between manual refreshes.
const DefaultCooldown = 60 * time.Second

// PriceSource is the subset of the provider client the engine needs.
type PriceSource interface {
	Name() string
	MarketOpen(ctx context.Context) bool
	CurrentPrices(ctx context.Context, tickers []string) (map[string]*decimal.Decimal, error)
	HistoricalPrices(ctx context.Context, ticker string, start, end time.Time) ([]provider.Candle, error)
}

var _ PriceSource = (*provider.Client)(nil)

// Engine ties the store, price source, planner and ledger together.
type Engine struct {
	store   store.Store
	source  PriceSource
	ledger  *ledger.Ledger
	planner *backfill.Planner
	logger  *slog.Logger

	cooldown       time.Duration
	benchmark      string
	defaultTickers []string
	now            func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithCooldown sets the minimum gap between manual refreshes.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

// WithBenchmark sets the benchmark ticker included in every refresh.
func WithBenchmark(ticker string) Option {
	return func(e *Engine) { e.benchmark = ticker }
}

// WithDefaultTickers sets the tickers tracked before any trade or price
// data exists.
func WithDefaultTickers(tickers []string) Option {
	return func(e *Engine) { e.defaultTickers = tickers }
}

// WithPlanner overrides the backfill planner.
func WithPlanner(p *backfill.Planner) Option {
	return func(e *Engine) { e.planner = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine.
func New(st store.Store, src PriceSource, led *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		source:    src,
		ledger:    led,
		planner:   backfill.New(),
		logger:    slog.Default(),
		cooldown:  DefaultCooldown,
		benchmark: "SPY",
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status reports the engine's current phase.
func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// TrackedTickers returns the tickers the engine keeps current: every
// ticker that appears in the trade ledger or the price store. Before
// any data exists it falls back to the configured defaults.
func (e *Engine) TrackedTickers(ctx context.Context) ([]string, error) {
	traded, err := e.store.TradeTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing traded tickers: %w", err)
	}
	priced, err := e.store.PriceTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing priced tickers: %w", err)
	}

	seen := make(map[string]struct{}, len(traded)+len(priced))
	for _, t := range traded {
		seen[t] = struct{}{}
	}
	for _, t := range priced {
		seen[t] = struct{}{}
	}
	if len(seen) == 0 {
		if len(e.defaultTickers) == 0 {
			return nil, nil
		}
		return model.NormalizeTickers(e.defaultTickers)
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Bootstrap stores the portfolio's initial cash and start date the
// first time the engine runs. Existing values are never overwritten.
func (e *Engine) Bootstrap(ctx context.Context, initialCash decimal.Decimal) error {
	if _, ok, err := e.store.GetConfig(ctx, model.ConfigInitialCash); err != nil {
		return fmt.Errorf("reading initial cash: %w", err)
	} else if !ok {
		if err := e.store.SetConfig(ctx, model.ConfigInitialCash, initialCash.String()); err != nil {
			return fmt.Errorf("storing initial cash: %w", err)
		}
		e.logger.Info("initial cash set", "cash", initialCash.String())
	}

	if _, ok, err := e.store.GetConfig(ctx, model.ConfigStartDate); err != nil {
		return fmt.Errorf("reading start date: %w", err)
	} else if !ok {
		start := e.now().UTC().Format(time.RFC3339)
		if err := e.store.SetConfig(ctx, model.ConfigStartDate, start); err != nil {
			return fmt.Errorf("storing start date: %w", err)
		}
		e.logger.Info("start date set", "start", start)
	}
	return nil
}

// dateOf truncates a time to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
