package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/model"
)

// Store is the durable backing for the portfolio engine. All timestamps
// are UTC. Methods returning a bool report whether a write actually
// happened: inserting a record whose event id already exists is a
// no-op, not an error.
type Store interface {
	// InsertPrice stores a price row unless its event id exists.
	InsertPrice(ctx context.Context, p model.PricePoint) (inserted bool, err error)

	// UpdatePriceClose mutates an existing row in place. Used for
	// intraday rows, which are legitimately overwritten until market
	// close; the event id assigned at insert time is kept.
	UpdatePriceClose(ctx context.Context, eventID string, close decimal.Decimal, kind model.PriceKind, note string) error

	// PriceOnOrAfter returns the earliest price row for ticker with
	// timestamp >= ts, or nil when none exists.
	PriceOnOrAfter(ctx context.Context, ticker string, ts time.Time) (*model.PricePoint, error)

	// PriceRange returns rows for ticker within [from, to], ascending.
	PriceRange(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error)

	// FirstPrice and LastPrice return the oldest/newest row for ticker,
	// or nil when the ticker has no data.
	FirstPrice(ctx context.Context, ticker string) (*model.PricePoint, error)
	LastPrice(ctx context.Context, ticker string) (*model.PricePoint, error)

	// LatestCloses returns the most recent close per ticker. Tickers
	// with no stored data are absent from the map.
	LatestCloses(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)

	// PriceBounds returns the min and max stored timestamp for ticker;
	// ok is false when the ticker has no data.
	PriceBounds(ctx context.Context, ticker string) (min, max time.Time, ok bool, err error)

	// PriceTickers lists distinct tickers with stored prices.
	PriceTickers(ctx context.Context) ([]string, error)

	// AppendTrade appends a committed trade. Returns false when a trade
	// with the same event id was already recorded.
	AppendTrade(ctx context.Context, t model.Trade) (appended bool, err error)

	// TradesAsc returns all trades in non-decreasing timestamp order,
	// ties broken by insertion order.
	TradesAsc(ctx context.Context) ([]model.Trade, error)

	// FirstBuyTime returns the timestamp of the earliest BUY for
	// ticker; ok is false when the ticker was never bought.
	FirstBuyTime(ctx context.Context, ticker string) (ts time.Time, ok bool, err error)

	// TradeTickers lists distinct tickers with trades.
	TradeTickers(ctx context.Context) ([]string, error)

	// InsertSnapshot stores a snapshot row unless its event id exists.
	InsertSnapshot(ctx context.Context, s model.Snapshot) (inserted bool, err error)

	// SnapshotsSince returns snapshot rows with timestamp >= cutoff,
	// ascending by timestamp.
	SnapshotsSince(ctx context.Context, cutoff time.Time) ([]model.Snapshot, error)

	// GetConfig reads one durable key; ok is false when unset.
	GetConfig(ctx context.Context, key string) (value string, ok bool, err error)

	// SetConfig creates or updates one durable key.
	SetConfig(ctx context.Context, key, value string) error
}
