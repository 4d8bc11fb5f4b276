package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventIDLength is the number of hex characters kept from the content
// hash. 16 hex chars (64 bits) keeps collision probability negligible at
// per-ticker cardinality; a collision would silently drop one record.
// That risk is accepted in exchange for naturally idempotent writes.
const EventIDLength = 16

// EventID derives a deterministic short identifier from the semantic
// payload of a record. Identical inputs always produce identical ids, so
// the store can treat the id as a write-once dedup key: re-inserting the
// same fact is a no-op.
func EventID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:EventIDLength]
}

// PriceEventID identifies a price observation by its semantic content.
func PriceEventID(ticker string, ts time.Time, close decimal.Decimal, kind PriceKind, note string) string {
	return EventID("price", ticker, ts.UTC().Format(time.RFC3339), close.String(), string(kind), note)
}

// TradeEventID identifies a trade by its semantic content.
func TradeEventID(ts time.Time, ticker string, action TradeAction, quantity int64, price decimal.Decimal) string {
	return EventID("trade", ts.UTC().Format(time.RFC3339), ticker, string(action),
		strconv.FormatInt(quantity, 10), price.String())
}

// SnapshotEventID identifies one snapshot row by instant, ticker and
// held position.
func SnapshotEventID(ts time.Time, ticker string, position int64) string {
	return EventID("snapshot", ts.UTC().Format(time.RFC3339), ticker, strconv.FormatInt(position, 10))
}
