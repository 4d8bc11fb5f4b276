// Package ledger maintains the append-only trade log and the replay
// logic that derives positions and cash from it.
//
// The ledger never stores running balances as mutable state. Every
// recorded trade carries the position and cash before and after it, and
// those values are always derived by replaying the full trade history
// in timestamp order. Replaying the same trades always produces the
// same balances.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/store"
)

// DefaultInitialCash seeds the portfolio when no initial_cash value has
// been stored.
var DefaultInitialCash = decimal.New(100000, 0)

// InvariantError reports a trade that would violate a ledger invariant
// if recorded. The trade is rejected and nothing is written.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "ledger invariant violated: " + e.Reason
}

// ValidationError reports a structurally invalid trade request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade: %s %s", e.Field, e.Reason)
}

// Position is the replayed state for a single ticker.
type Position struct {
	Ticker   string
	Quantity int64
}

// State is the result of replaying a trade history.
type State struct {
	Cash      decimal.Decimal
	Positions map[string]int64
}

// Ledger records trades against a store and answers balance queries.
type Ledger struct {
	store       store.Store
	initialCash decimal.Decimal
	logger      *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithInitialCash sets the fallback starting cash used when the store
// has no initial_cash value.
func WithInitialCash(cash decimal.Decimal) Option {
	return func(l *Ledger) { l.initialCash = cash }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger backed by the given store.
func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       st,
		initialCash: DefaultInitialCash,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TradeRequest is a trade to be validated and recorded.
type TradeRequest struct {
	Ticker    string
	Action    model.TradeAction
	Quantity  int64
	Price     decimal.Decimal
	Timestamp time.Time // zero means now
	Note      string
}

// ValidateTrade checks a request's structure without touching the
// store. Quantity must be a positive whole number of shares and price
// must be positive.
func ValidateTrade(req TradeRequest) error {
	if _, err := model.NormalizeTicker(req.Ticker); err != nil {
		return &ValidationError{Field: "ticker", Reason: err.Error()}
	}
	switch req.Action {
	case model.ActionBuy, model.ActionSell:
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("must be %s or %s", model.ActionBuy, model.ActionSell)}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be a positive number of shares"}
	}
	if !req.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	return nil
}

// InitialCash returns the portfolio's starting cash: the stored
// initial_cash value when present, otherwise the configured fallback.
func (l *Ledger) InitialCash(ctx context.Context) (decimal.Decimal, error) {
	raw, ok, err := l.store.GetConfig(ctx, model.ConfigInitialCash)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("reading initial cash: %w", err)
	}
	if !ok {
		return l.initialCash, nil
	}
	cash, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("stored initial cash %q is not a number: %w", raw, err)
	}
	return cash, nil
}

// Record validates a trade, replays the existing history to derive the
// current balances, checks the ledger invariants, and appends the trade
// with its before/after values. The returned trade is the recorded row.
//
// Invariants enforced:
//   - a SELL never takes a position below zero
//   - a BUY never takes cash below zero
//   - a SELL never predates the ticker's first BUY
func (l *Ledger) Record(ctx context.Context, req TradeRequest) (*model.Trade, error) {
	if err := ValidateTrade(req); err != nil {
		return nil, err
	}
	ticker, err := model.NormalizeTicker(req.Ticker)
	if err != nil {
		return nil, &ValidationError{Field: "ticker", Reason: err.Error()}
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	initial, err := l.InitialCash(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := l.store.TradesAsc(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trade history: %w", err)
	}
	state := Replay(trades, initial)

	posBefore := state.Positions[ticker]
	cashBefore := state.Cash
	total := req.Price.Mul(decimal.NewFromInt(req.Quantity))

	var posAfter int64
	var cashAfter decimal.Decimal
	switch req.Action {
	case model.ActionBuy:
		posAfter = posBefore + req.Quantity
		cashAfter = cashBefore.Sub(total)
		if cashAfter.IsNegative() {
			return nil, &InvariantError{
				Reason: fmt.Sprintf("buying %d %s at %s costs %s but only %s cash is available",
					req.Quantity, ticker, req.Price, total, cashBefore),
			}
		}
	case model.ActionSell:
		firstBuy, held, err := l.store.FirstBuyTime(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("checking trade history for %s: %w", ticker, err)
		}
		if !held {
			return nil, &InvariantError{
				Reason: fmt.Sprintf("cannot sell %s before ever buying it", ticker),
			}
		}
		if ts.Before(firstBuy) {
			return nil, &InvariantError{
				Reason: fmt.Sprintf("cannot sell %s at %s before its first buy at %s",
					ticker, ts.Format(time.RFC3339), firstBuy.Format(time.RFC3339)),
			}
		}
		posAfter = posBefore - req.Quantity
		if posAfter < 0 {
			return nil, &InvariantError{
				Reason: fmt.Sprintf("selling %d %s but only %d held", req.Quantity, ticker, posBefore),
			}
		}
		cashAfter = cashBefore.Add(total)
	}

	trade := model.Trade{
		EventID:        model.TradeEventID(ts, ticker, req.Action, req.Quantity, req.Price),
		Ticker:         ticker,
		Timestamp:      ts,
		Action:         req.Action,
		Quantity:       req.Quantity,
		Price:          req.Price,
		TotalCost:      total,
		PositionBefore: posBefore,
		PositionAfter:  posAfter,
		CashBefore:     cashBefore,
		CashAfter:      cashAfter,
		Note:           model.SanitizeNote(req.Note),
	}

	appended, err := l.store.AppendTrade(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("appending trade: %w", err)
	}
	if !appended {
		l.logger.Info("duplicate trade skipped",
			"event_id", trade.EventID,
			"ticker", ticker,
			"action", string(req.Action))
		return &trade, nil
	}

	l.logger.Info("trade recorded",
		"event_id", trade.EventID,
		"ticker", ticker,
		"action", string(req.Action),
		"quantity", req.Quantity,
		"price", req.Price.String(),
		"cash_after", cashAfter.String())
	return &trade, nil
}

// CurrentState replays the full trade history and returns the resulting
// cash balance and per-ticker positions.
func (l *Ledger) CurrentState(ctx context.Context) (*State, error) {
	initial, err := l.InitialCash(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := l.store.TradesAsc(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trade history: %w", err)
	}
	state := Replay(trades, initial)
	return &state, nil
}

// Replay derives cash and positions from a trade history, applied in
// order. It is pure: the same inputs always yield the same state.
func Replay(trades []model.Trade, initialCash decimal.Decimal) State {
	state := State{
		Cash:      initialCash,
		Positions: make(map[string]int64),
	}
	for _, t := range trades {
		total := t.Price.Mul(decimal.NewFromInt(t.Quantity))
		switch t.Action {
		case model.ActionBuy:
			state.Positions[t.Ticker] += t.Quantity
			state.Cash = state.Cash.Sub(total)
		case model.ActionSell:
			state.Positions[t.Ticker] -= t.Quantity
			state.Cash = state.Cash.Add(total)
		}
	}
	return state
}
