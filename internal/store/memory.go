package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/model"
)

// Memory is an in-memory Store with the same dedup and ordering
// semantics as Postgres. Used by tests and local development; not
// durable.
type Memory struct {
	mu        sync.Mutex
	prices    map[string]*model.PricePoint // event id -> row
	trades    []model.Trade                // insertion order
	tradeIDs  map[string]struct{}
	snapshots map[string]*model.Snapshot
	config    map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		prices:    make(map[string]*model.PricePoint),
		tradeIDs:  make(map[string]struct{}),
		snapshots: make(map[string]*model.Snapshot),
		config:    make(map[string]string),
	}
}

func (s *Memory) InsertPrice(_ context.Context, p model.PricePoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prices[p.EventID]; exists {
		return false, nil
	}
	p.Timestamp = p.Timestamp.UTC()
	s.prices[p.EventID] = &p
	return true, nil
}

func (s *Memory) UpdatePriceClose(_ context.Context, eventID string, close decimal.Decimal, kind model.PriceKind, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.prices[eventID]
	if !exists {
		return fmt.Errorf("update price: event %s not found", eventID)
	}
	p.Close = close
	p.Kind = kind
	p.Note = note
	return nil
}

func (s *Memory) PriceOnOrAfter(_ context.Context, ticker string, ts time.Time) (*model.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.PricePoint
	for _, p := range s.prices {
		if p.Ticker != ticker || p.Timestamp.Before(ts) {
			continue
		}
		if best == nil || p.Timestamp.Before(best.Timestamp) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *Memory) PriceRange(_ context.Context, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PricePoint
	for _, p := range s.prices {
		if p.Ticker == ticker && !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Memory) FirstPrice(_ context.Context, ticker string) (*model.PricePoint, error) {
	return s.boundPrice(ticker, true), nil
}

func (s *Memory) LastPrice(_ context.Context, ticker string) (*model.PricePoint, error) {
	return s.boundPrice(ticker, false), nil
}

func (s *Memory) boundPrice(ticker string, oldest bool) *model.PricePoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.PricePoint
	for _, p := range s.prices {
		if p.Ticker != ticker {
			continue
		}
		if best == nil ||
			(oldest && p.Timestamp.Before(best.Timestamp)) ||
			(!oldest && p.Timestamp.After(best.Timestamp)) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (s *Memory) LatestCloses(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(tickers))
	for _, ticker := range tickers {
		if p := s.boundPrice(ticker, false); p != nil {
			out[ticker] = p.Close
		}
	}
	return out, nil
}

func (s *Memory) PriceBounds(_ context.Context, ticker string) (time.Time, time.Time, bool, error) {
	first := s.boundPrice(ticker, true)
	last := s.boundPrice(ticker, false)
	if first == nil || last == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return first.Timestamp, last.Timestamp, true, nil
}

func (s *Memory) PriceTickers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, p := range s.prices {
		seen[p.Ticker] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *Memory) AppendTrade(_ context.Context, t model.Trade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tradeIDs[t.EventID]; exists {
		return false, nil
	}
	t.Timestamp = t.Timestamp.UTC()
	s.tradeIDs[t.EventID] = struct{}{}
	s.trades = append(s.trades, t)
	return true, nil
}

func (s *Memory) TradesAsc(_ context.Context) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Trade, len(s.trades))
	copy(out, s.trades)
	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Memory) FirstBuyTime(_ context.Context, ticker string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first time.Time
	found := false
	for _, t := range s.trades {
		if t.Ticker != ticker || t.Action != model.ActionBuy {
			continue
		}
		if !found || t.Timestamp.Before(first) {
			first = t.Timestamp
			found = true
		}
	}
	return first, found, nil
}

func (s *Memory) TradeTickers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, t := range s.trades {
		seen[t.Ticker] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *Memory) InsertSnapshot(_ context.Context, snap model.Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[snap.EventID]; exists {
		return false, nil
	}
	snap.Timestamp = snap.Timestamp.UTC()
	s.snapshots[snap.EventID] = &snap
	return true, nil
}

func (s *Memory) SnapshotsSince(_ context.Context, cutoff time.Time) ([]model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Snapshot
	for _, snap := range s.snapshots {
		if !snap.Timestamp.Before(cutoff) {
			out = append(out, *snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Memory) GetConfig(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.config[key]
	return v, ok, nil
}

func (s *Memory) SetConfig(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config[key] = value
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
