package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEventID_Deterministic(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	price := decimal.RequireFromString("150.25")

	a := PriceEventID("AAPL", ts, price, KindHistory, "backfill")
	b := PriceEventID("AAPL", ts, price, KindHistory, "backfill")

	if a != b {
		t.Errorf("same inputs produced different ids: %q vs %q", a, b)
	}
	if len(a) != EventIDLength {
		t.Errorf("id length = %d, want %d", len(a), EventIDLength)
	}
}

func TestEventID_SensitiveToEveryField(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	price := decimal.RequireFromString("150.25")
	base := PriceEventID("AAPL", ts, price, KindHistory, "backfill")

	variants := map[string]string{
		"ticker":    PriceEventID("MSFT", ts, price, KindHistory, "backfill"),
		"timestamp": PriceEventID("AAPL", ts.Add(time.Minute), price, KindHistory, "backfill"),
		"close":     PriceEventID("AAPL", ts, decimal.RequireFromString("150.26"), KindHistory, "backfill"),
		"kind":      PriceEventID("AAPL", ts, price, KindDaily, "backfill"),
		"note":      PriceEventID("AAPL", ts, price, KindHistory, "manual"),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}

func TestTradeEventID_ActionAndQuantity(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	price := decimal.RequireFromString("150.00")

	buy := TradeEventID(ts, "AAPL", ActionBuy, 10, price)
	sell := TradeEventID(ts, "AAPL", ActionSell, 10, price)
	buy11 := TradeEventID(ts, "AAPL", ActionBuy, 11, price)

	if buy == sell {
		t.Error("BUY and SELL produced the same id")
	}
	if buy == buy11 {
		t.Error("different quantities produced the same id")
	}
}

func TestEventID_TimezoneIndependent(t *testing.T) {
	utc := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))
	price := decimal.RequireFromString("99.5")

	if PriceEventID("SPY", utc, price, KindDaily, "") != PriceEventID("SPY", est, price, KindDaily, "") {
		t.Error("equal instants in different zones produced different ids")
	}
}
