package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/ledger"
	"github.com/tmarek/stockfolio/internal/model"
)

// TakeSnapshot replays the ledger and records one snapshot row per held
// ticker. All rows from the same run share the timestamp, cash balance
// and total portfolio value, so grouping by timestamp reconstructs the
// whole portfolio at that instant. Returns the number of rows written.
func (e *Engine) TakeSnapshot(ctx context.Context) (int, error) {
	e.setState(StateSnapshotting)
	defer e.setState(StateIdle)

	state, err := e.ledger.CurrentState(ctx)
	if err != nil {
		return 0, err
	}
	return e.snapshotState(ctx, state, e.now().UTC())
}

func (e *Engine) snapshotState(ctx context.Context, state *ledger.State, at time.Time) (int, error) {
	held := make([]string, 0, len(state.Positions))
	for ticker, qty := range state.Positions {
		if qty > 0 {
			held = append(held, ticker)
		}
	}
	if len(held) == 0 {
		return 0, nil
	}

	closes, err := e.store.LatestCloses(ctx, held)
	if err != nil {
		return 0, fmt.Errorf("reading latest closes: %w", err)
	}

	value := state.Cash
	for _, ticker := range held {
		close, ok := closes[ticker]
		if !ok {
			// No stored price yet; the position contributes nothing
			// until the next refresh stores one.
			e.logger.Warn("no stored price for held ticker", "ticker", ticker)
			continue
		}
		value = value.Add(close.Mul(decimal.NewFromInt(state.Positions[ticker])))
	}

	written := 0
	for _, ticker := range held {
		snap := model.Snapshot{
			EventID:        model.SnapshotEventID(at, ticker, state.Positions[ticker]),
			Ticker:         ticker,
			Timestamp:      at,
			Position:       state.Positions[ticker],
			CashBalance:    state.Cash,
			PortfolioValue: value,
		}
		inserted, err := e.store.InsertSnapshot(ctx, snap)
		if err != nil {
			return written, fmt.Errorf("storing snapshot for %s: %w", ticker, err)
		}
		if inserted {
			written++
		}
	}

	e.logger.Info("snapshot recorded",
		"tickers", len(held),
		"written", written,
		"portfolio_value", value.String())
	return written, nil
}

// IntradayUpdate refreshes today's price row for every tracked ticker
// with the current quote. Today's row is updated in place when it
// already exists; its event id is kept so the overwrite never creates a
// duplicate.
func (e *Engine) IntradayUpdate(ctx context.Context) error {
	return e.updateToday(ctx, model.KindIntraday, "intraday update")
}

// DailyClose records the final price of the day for every tracked
// ticker, overwriting the intraday row when one exists.
func (e *Engine) DailyClose(ctx context.Context) error {
	return e.updateToday(ctx, model.KindDaily, "daily close")
}

func (e *Engine) updateToday(ctx context.Context, kind model.PriceKind, note string) error {
	e.setState(StateFetching)
	defer e.setState(StateIdle)

	tickers, err := e.TrackedTickers(ctx)
	if err != nil {
		return err
	}
	tickers = withBenchmark(tickers, e.benchmark)
	if len(tickers) == 0 {
		return nil
	}

	quotes, err := e.source.CurrentPrices(ctx, tickers)
	if err != nil {
		return fmt.Errorf("fetching quotes: %w", err)
	}

	today := dateOf(e.now())
	for _, ticker := range tickers {
		price := quotes[ticker]
		if price == nil {
			continue
		}

		existing, err := e.store.PriceOnOrAfter(ctx, ticker, today)
		if err != nil {
			return fmt.Errorf("reading today's price for %s: %w", ticker, err)
		}
		if existing != nil {
			if err := e.store.UpdatePriceClose(ctx, existing.EventID, *price, kind, note); err != nil {
				return fmt.Errorf("updating today's price for %s: %w", ticker, err)
			}
			continue
		}

		p := model.PricePoint{
			EventID:   model.PriceEventID(ticker, today, *price, kind, note),
			Ticker:    ticker,
			Timestamp: today,
			Close:     *price,
			Kind:      kind,
			Source:    e.source.Name(),
			Note:      note,
		}
		if _, err := e.store.InsertPrice(ctx, p); err != nil {
			return fmt.Errorf("storing today's price for %s: %w", ticker, err)
		}
	}

	e.logger.Info("today's prices updated", "kind", string(kind), "tickers", len(tickers))
	return nil
}
