package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Postgres) Close() { s.db.Close() }

func (s *Postgres) InsertPrice(ctx context.Context, p model.PricePoint) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO prices (event_id, ticker, ts, close, open, high, low, volume, kind, source, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`, p.EventID, p.Ticker, p.Timestamp.UTC(), p.Close,
		nullDecimal(p.Open), nullDecimal(p.High), nullDecimal(p.Low), nullInt(p.Volume),
		string(p.Kind), p.Source, p.Note)
	if err != nil {
		return false, fmt.Errorf("insert price: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Postgres) UpdatePriceClose(ctx context.Context, eventID string, close decimal.Decimal, kind model.PriceKind, note string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE prices SET close = $2, kind = $3, note = $4 WHERE event_id = $1
	`, eventID, close, string(kind), note)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update price: event %s not found", eventID)
	}
	return nil
}

const priceColumns = `event_id, ticker, ts, close, open, high, low, volume, kind, source, note`

func (s *Postgres) PriceOnOrAfter(ctx context.Context, ticker string, ts time.Time) (*model.PricePoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+priceColumns+` FROM prices
		WHERE ticker = $1 AND ts >= $2
		ORDER BY ts ASC LIMIT 1
	`, ticker, ts.UTC())
	return scanOptionalPrice(row)
}

func (s *Postgres) PriceRange(ctx context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+priceColumns+` FROM prices
		WHERE ticker = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, ticker, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query price range: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) FirstPrice(ctx context.Context, ticker string) (*model.PricePoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+priceColumns+` FROM prices WHERE ticker = $1 ORDER BY ts ASC LIMIT 1
	`, ticker)
	return scanOptionalPrice(row)
}

func (s *Postgres) LastPrice(ctx context.Context, ticker string) (*model.PricePoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+priceColumns+` FROM prices WHERE ticker = $1 ORDER BY ts DESC LIMIT 1
	`, ticker)
	return scanOptionalPrice(row)
}

func (s *Postgres) LatestCloses(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (ticker) ticker, close
		FROM prices
		WHERE ticker = ANY($1)
		ORDER BY ticker, ts DESC
	`, tickers)
	if err != nil {
		return nil, fmt.Errorf("query latest closes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal, len(tickers))
	for rows.Next() {
		var ticker string
		var close decimal.Decimal
		if err := rows.Scan(&ticker, &close); err != nil {
			return nil, fmt.Errorf("scan latest close: %w", err)
		}
		out[ticker] = close
	}
	return out, rows.Err()
}

func (s *Postgres) PriceBounds(ctx context.Context, ticker string) (time.Time, time.Time, bool, error) {
	var minTS, maxTS *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT min(ts), max(ts) FROM prices WHERE ticker = $1
	`, ticker).Scan(&minTS, &maxTS)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query price bounds: %w", err)
	}
	if minTS == nil || maxTS == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return minTS.UTC(), maxTS.UTC(), true, nil
}

func (s *Postgres) PriceTickers(ctx context.Context) ([]string, error) {
	return s.distinctTickers(ctx, `SELECT DISTINCT ticker FROM prices ORDER BY ticker`)
}

func (s *Postgres) AppendTrade(ctx context.Context, t model.Trade) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO trades (event_id, ticker, ts, action, quantity, price, total_cost,
			position_before, position_after, cash_before, cash_after, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING
	`, t.EventID, t.Ticker, t.Timestamp.UTC(), string(t.Action), t.Quantity, t.Price, t.TotalCost,
		t.PositionBefore, t.PositionAfter, t.CashBefore, t.CashAfter, t.Note)
	if err != nil {
		return false, fmt.Errorf("append trade: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Postgres) TradesAsc(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id, ticker, ts, action, quantity, price, total_cost,
			position_before, position_after, cash_before, cash_after, note
		FROM trades
		ORDER BY ts ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var action string
		if err := rows.Scan(&t.EventID, &t.Ticker, &t.Timestamp, &action, &t.Quantity, &t.Price,
			&t.TotalCost, &t.PositionBefore, &t.PositionAfter, &t.CashBefore, &t.CashAfter, &t.Note); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Action = model.TradeAction(action)
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) FirstBuyTime(ctx context.Context, ticker string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRow(ctx, `
		SELECT ts FROM trades WHERE ticker = $1 AND action = 'BUY' ORDER BY ts ASC, id ASC LIMIT 1
	`, ticker).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query first buy: %w", err)
	}
	return ts.UTC(), true, nil
}

func (s *Postgres) TradeTickers(ctx context.Context) ([]string, error) {
	return s.distinctTickers(ctx, `SELECT DISTINCT ticker FROM trades ORDER BY ticker`)
}

func (s *Postgres) InsertSnapshot(ctx context.Context, snap model.Snapshot) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO snapshots (event_id, ticker, ts, position, cash_balance, portfolio_value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, snap.EventID, snap.Ticker, snap.Timestamp.UTC(), snap.Position, snap.CashBalance, snap.PortfolioValue, snap.Note)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Postgres) SnapshotsSince(ctx context.Context, cutoff time.Time) ([]model.Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id, ticker, ts, position, cash_balance, portfolio_value, note
		FROM snapshots
		WHERE ts >= $1
		ORDER BY ts ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		if err := rows.Scan(&snap.EventID, &snap.Ticker, &snap.Timestamp, &snap.Position,
			&snap.CashBalance, &snap.PortfolioValue, &snap.Note); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Timestamp = snap.Timestamp.UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Postgres) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM config_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Postgres) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO config_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *Postgres) distinctTickers(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type priceScanner interface {
	Scan(dest ...any) error
}

func scanPrice(row priceScanner) (model.PricePoint, error) {
	var p model.PricePoint
	var open, high, low decimal.NullDecimal
	var volume *int64
	var kind string
	if err := row.Scan(&p.EventID, &p.Ticker, &p.Timestamp, &p.Close,
		&open, &high, &low, &volume, &kind, &p.Source, &p.Note); err != nil {
		return model.PricePoint{}, fmt.Errorf("scan price: %w", err)
	}
	p.Kind = model.PriceKind(kind)
	p.Timestamp = p.Timestamp.UTC()
	if open.Valid {
		p.Open = open.Decimal
	}
	if high.Valid {
		p.High = high.Decimal
	}
	if low.Valid {
		p.Low = low.Decimal
	}
	if volume != nil {
		p.Volume = *volume
	}
	return p, nil
}

func scanOptionalPrice(row priceScanner) (*model.PricePoint, error) {
	p, err := scanPrice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func nullDecimal(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
