package backfill

import (
	"testing"
	"time"
)

func fixedNow(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestPlanFor_NoData(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	p := New(fixedNow(now))

	plan := p.PlanFor("AAPL", time.Time{}, time.Time{}, false)
	if plan == nil {
		t.Fatal("expected a plan for a ticker with no data")
	}
	wantStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !plan.Start.Equal(wantStart) || !plan.End.Equal(wantEnd) {
		t.Errorf("plan = [%v, %v], want [%v, %v]", plan.Start, plan.End, wantStart, wantEnd)
	}
	if !plan.Full {
		t.Error("no-data plan should be a full backfill")
	}
}

func TestPlanFor_StaleRecentEnd(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p := New(fixedNow(now))

	minTS := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	maxTS := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	plan := p.PlanFor("AAPL", minTS, maxTS, true)
	if plan == nil {
		t.Fatal("expected a gap plan for stale history")
	}
	wantStart := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !plan.Start.Equal(wantStart) || !plan.End.Equal(wantEnd) {
		t.Errorf("plan = [%v, %v], want [%v, %v]", plan.Start, plan.End, wantStart, wantEnd)
	}
	if plan.Full {
		t.Error("gap plan should not be marked full")
	}
}

func TestPlanFor_InsufficientHistoryWinsOverGap(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p := New(fixedNow(now))

	// History starts well after the lookback start and is also stale at
	// the recent end. The full backfill must win.
	minTS := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	maxTS := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	plan := p.PlanFor("AAPL", minTS, maxTS, true)
	if plan == nil {
		t.Fatal("expected a plan")
	}
	wantStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	if !plan.Start.Equal(wantStart) || !plan.Full {
		t.Errorf("plan start = %v full = %v, want full backfill from %v", plan.Start, plan.Full, wantStart)
	}
}

func TestPlanFor_ToleranceAllowsNearMiss(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p := New(fixedNow(now))

	// Earliest stored price is 5 days after the lookback start, which is
	// within the default tolerance. History is current at the recent end.
	minTS := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	maxTS := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if plan := p.PlanFor("AAPL", minTS, maxTS, true); plan != nil {
		t.Errorf("expected no plan within tolerance, got [%v, %v]", plan.Start, plan.End)
	}

	// One day past the tolerance triggers a full backfill.
	minTS = time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	plan := p.PlanFor("AAPL", minTS, maxTS, true)
	if plan == nil || !plan.Full {
		t.Error("expected a full backfill just past the tolerance")
	}
}

func TestPlanFor_CurrentHistoryProposesNothing(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p := New(fixedNow(now))

	minTS := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	maxTS := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if plan := p.PlanFor("AAPL", minTS, maxTS, true); plan != nil {
		t.Errorf("expected no plan for current history, got [%v, %v]", plan.Start, plan.End)
	}
}

func TestPlanFor_HistoryThroughYesterdayProposesNothing(t *testing.T) {
	// Saturday, with history current through Friday. No candle exists
	// for Saturday, so planning a fetch would just burn quota.
	now := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	p := New(fixedNow(now))

	minTS := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	maxTS := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	if plan := p.PlanFor("AAPL", minTS, maxTS, true); plan != nil {
		t.Errorf("expected no plan when current through yesterday, got [%v, %v]", plan.Start, plan.End)
	}

	// Two days behind is a real gap again.
	plan := p.PlanFor("AAPL", minTS, maxTS.AddDate(0, 0, -1), true)
	if plan == nil {
		t.Fatal("expected a gap plan when history ends before yesterday")
	}
	wantStart := time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	if !plan.Start.Equal(wantStart) || !plan.End.Equal(dateOf(now)) {
		t.Errorf("plan = [%v, %v], want [%v, %v]", plan.Start, plan.End, wantStart, dateOf(now))
	}
}

func TestPlanFor_CustomWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p := New(WithLookbackDays(30), WithToleranceDays(0), fixedNow(now))

	plan := p.PlanFor("SPY", time.Time{}, time.Time{}, false)
	wantStart := time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)
	if plan == nil || !plan.Start.Equal(wantStart) {
		t.Fatalf("plan start = %v, want %v", plan.Start, wantStart)
	}

	// Zero tolerance: any gap at the old end forces a full backfill.
	minTS := wantStart.AddDate(0, 0, 1)
	maxTS := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	plan = p.PlanFor("SPY", minTS, maxTS, true)
	if plan == nil || !plan.Full {
		t.Error("expected full backfill with zero tolerance")
	}
}
