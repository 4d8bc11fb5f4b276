package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceKind classifies how a price record was produced.
type PriceKind string

const (
	// KindHistory marks rows fetched by historical backfill.
	KindHistory PriceKind = "HISTORY"
	// KindIntraday marks rows updated in place while the market is open.
	KindIntraday PriceKind = "INTRADAY"
	// KindDaily marks the immutable close written after market close.
	KindDaily PriceKind = "DAILY"
)

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// Config keys persisted in the durable key/value store.
const (
	ConfigInitialCash  = "initial_cash"
	ConfigStartDate    = "start_date"
	ConfigRiskFreeRate = "risk_free_rate"
	ConfigLastRefresh  = "last_refresh_ts"
)

// PricePoint is one stored price observation for a ticker.
//
// Open/High/Low/Volume are optional: a zero value means the backend did
// not report the field. Intraday rows are mutated in place until market
// close; the event id is assigned at insert time and does not change on
// intraday mutation.
type PricePoint struct {
	EventID   string
	Ticker    string
	Timestamp time.Time // UTC, day or intraday granularity
	Close     decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Volume    int64
	Kind      PriceKind
	Source    string // provider name that produced the row
	Note      string
}

// Trade is one committed buy or sell. Trades are append-only: never
// mutated or deleted after commit. The Before/After fields are an audit
// trail of the replayed state at commit time.
type Trade struct {
	EventID        string
	Ticker         string
	Timestamp      time.Time // UTC
	Action         TradeAction
	Quantity       int64
	Price          decimal.Decimal
	TotalCost      decimal.Decimal
	PositionBefore int64
	PositionAfter  int64
	CashBefore     decimal.Decimal
	CashAfter      decimal.Decimal
	Note           string
}

// Snapshot is one row of a portfolio snapshot event. All rows of one
// event share the same timestamp, cash balance and portfolio value.
type Snapshot struct {
	EventID        string
	Ticker         string
	Timestamp      time.Time // UTC
	Position       int64
	CashBalance    decimal.Decimal
	PortfolioValue decimal.Decimal
	Note           string
}
