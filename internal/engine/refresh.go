package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/provider"
	"github.com/tmarek/stockfolio/internal/quota"
)

// CooldownError reports a refresh attempted before the cooldown since
// the previous refresh elapsed. Nothing is fetched.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("refresh on cooldown: retry in %s", e.Remaining.Round(time.Second))
}

// RefreshSummary reports what one refresh run did.
type RefreshSummary struct {
	RunID    uuid.UUID
	Started  time.Time
	Tickers  []string
	Added    map[string]int    // ticker -> price rows inserted
	Errors   map[string]string // ticker -> failure reason
	Aborted  bool              // a credentials or quota error stopped the run early
	Snapshot int               // snapshot rows written
}

// ManualRefresh brings price history current for every tracked ticker
// plus the benchmark, then reconciles the ledger and records a
// snapshot.
//
// The cooldown is durable: the last refresh time lives in the store, so
// restarts and concurrent processes observe it. A refresh inside the
// cooldown window returns a *CooldownError without touching the
// network. The cooldown timestamp is updated as soon as fetching
// completes, even if some tickers failed or a later step errors, so a
// failing provider cannot be hammered by immediate retries.
func (e *Engine) ManualRefresh(ctx context.Context) (*RefreshSummary, error) {
	now := e.now().UTC()
	if remaining, err := e.cooldownRemaining(ctx, now); err != nil {
		return nil, err
	} else if remaining > 0 {
		return nil, &CooldownError{Remaining: remaining}
	}

	summary := &RefreshSummary{
		RunID:   uuid.New(),
		Started: now,
		Added:   make(map[string]int),
		Errors:  make(map[string]string),
	}
	logger := e.logger.With("run_id", summary.RunID.String())

	e.setState(StateFetching)
	defer e.setState(StateIdle)

	tickers, err := e.TrackedTickers(ctx)
	if err != nil {
		return nil, err
	}
	tickers = withBenchmark(tickers, e.benchmark)
	summary.Tickers = tickers

	logger.Info("refresh started", "source", e.source.Name(), "tickers", len(tickers))

	for _, ticker := range tickers {
		added, err := e.refreshTicker(ctx, ticker, now)
		if err != nil {
			summary.Errors[ticker] = err.Error()
			if isAbortErr(err) {
				logger.Error("refresh aborted", "ticker", ticker, "error", err)
				summary.Aborted = true
				break
			}
			logger.Warn("ticker refresh failed", "ticker", ticker, "error", err)
			continue
		}
		summary.Added[ticker] = added
	}

	// Record the cooldown as soon as the fetching is done. A failure in
	// the reconcile or snapshot steps below must not leave the provider
	// open to immediate re-fetching.
	if err := e.store.SetConfig(ctx, model.ConfigLastRefresh, now.Format(time.RFC3339)); err != nil {
		return summary, fmt.Errorf("recording refresh time: %w", err)
	}

	e.setState(StateReconciling)
	state, err := e.ledger.CurrentState(ctx)
	if err != nil {
		return summary, fmt.Errorf("reconciling ledger: %w", err)
	}

	e.setState(StateSnapshotting)
	written, err := e.snapshotState(ctx, state, now)
	if err != nil {
		return summary, err
	}
	summary.Snapshot = written

	logger.Info("refresh finished",
		"added", totalAdded(summary.Added),
		"failed", len(summary.Errors),
		"snapshots", summary.Snapshot)
	return summary, nil
}

// ClearCooldown removes the durable refresh cooldown, allowing the next
// refresh to run immediately. The scheduled morning backfill uses this
// so a recent manual refresh cannot block it.
func (e *Engine) ClearCooldown(ctx context.Context) error {
	return e.store.SetConfig(ctx, model.ConfigLastRefresh, "")
}

func (e *Engine) cooldownRemaining(ctx context.Context, now time.Time) (time.Duration, error) {
	raw, ok, err := e.store.GetConfig(ctx, model.ConfigLastRefresh)
	if err != nil {
		return 0, fmt.Errorf("reading last refresh time: %w", err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// An unparseable value cannot block refreshes forever.
		e.logger.Warn("ignoring malformed last refresh time", "value", raw)
		return 0, nil
	}
	if elapsed := now.Sub(last); elapsed < e.cooldown {
		return e.cooldown - elapsed, nil
	}
	return 0, nil
}

// refreshTicker plans and executes the backfill for one ticker,
// returning the number of price rows inserted.
func (e *Engine) refreshTicker(ctx context.Context, ticker string, now time.Time) (int, error) {
	minTS, maxTS, hasData, err := e.store.PriceBounds(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("reading price bounds: %w", err)
	}

	plan := e.planner.PlanFor(ticker, minTS, maxTS, hasData)
	if plan == nil {
		return 0, nil
	}

	candles, err := e.source.HistoricalPrices(ctx, ticker, plan.Start, plan.End)
	if err != nil {
		return 0, err
	}

	// The note must not vary between runs: it is hashed into the event
	// id, and a re-fetched candle has to dedup against the first fetch.
	const note = "backfill"
	e.logger.Debug("backfill planned",
		"ticker", ticker,
		"start", plan.Start.Format(time.DateOnly),
		"end", plan.End.Format(time.DateOnly),
		"full", plan.Full)

	added := 0
	for _, c := range candles {
		p := model.PricePoint{
			EventID:   model.PriceEventID(ticker, c.Timestamp, c.Close, model.KindHistory, note),
			Ticker:    ticker,
			Timestamp: c.Timestamp,
			Close:     c.Close,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Volume:    c.Volume,
			Kind:      model.KindHistory,
			Source:    e.source.Name(),
			Note:      note,
		}
		inserted, err := e.store.InsertPrice(ctx, p)
		if err != nil {
			return added, fmt.Errorf("storing price for %s: %w", ticker, err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// isAbortErr reports whether an error should stop the whole refresh
// run: bad credentials and exhausted quotas affect every remaining
// ticker equally.
func isAbortErr(err error) bool {
	var qerr *quota.ExceededError
	return errors.Is(err, provider.ErrInvalidCredentials) || errors.As(err, &qerr)
}

func withBenchmark(tickers []string, benchmark string) []string {
	if benchmark == "" {
		return tickers
	}
	for _, t := range tickers {
		if t == benchmark {
			return tickers
		}
	}
	return append(tickers, benchmark)
}

func totalAdded(added map[string]int) int {
	total := 0
	for _, n := range added {
		total += n
	}
	return total
}
