package quota

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives the tracker's notion of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(perMinute, perDay int) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)}
	tr := New(perMinute, perDay)
	tr.now = clock.now
	tr.dailyReset = dateOf(clock.t)
	return tr, clock
}

func TestTracker_MinuteLimit(t *testing.T) {
	tr, clock := newTestTracker(5, 500)

	for i := 0; i < 5; i++ {
		if err := tr.Check(); err != nil {
			t.Fatalf("call %d: unexpected quota error: %v", i+1, err)
		}
		tr.Record()
		clock.advance(time.Second)
	}

	err := tr.Check()
	var qe *ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("Check() = %v, want *ExceededError", err)
	}
	if qe.Scope != ScopeMinute {
		t.Errorf("Scope = %q, want %q", qe.Scope, ScopeMinute)
	}
	if qe.RetryAfter <= 0 || qe.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %s, want within (0, 60s]", qe.RetryAfter)
	}
}

func TestTracker_MinuteWindowSlides(t *testing.T) {
	tr, clock := newTestTracker(5, 500)

	for i := 0; i < 5; i++ {
		tr.Record()
	}
	if err := tr.Check(); err == nil {
		t.Fatal("expected minute quota error")
	}

	clock.advance(61 * time.Second)
	if err := tr.Check(); err != nil {
		t.Errorf("Check() after window slide = %v, want nil", err)
	}
}

func TestTracker_DailyLimit(t *testing.T) {
	tr, clock := newTestTracker(1000, 3)

	for i := 0; i < 3; i++ {
		tr.Record()
		clock.advance(2 * time.Minute)
	}

	err := tr.Check()
	var qe *ExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("Check() = %v, want *ExceededError", err)
	}
	if qe.Scope != ScopeDaily {
		t.Errorf("Scope = %q, want %q", qe.Scope, ScopeDaily)
	}
}

func TestTracker_DailyResetsOnUTCDateChange(t *testing.T) {
	tr, clock := newTestTracker(1000, 3)

	for i := 0; i < 3; i++ {
		tr.Record()
	}
	if err := tr.Check(); err == nil {
		t.Fatal("expected daily quota error before reset")
	}

	clock.advance(24 * time.Hour)
	if err := tr.Check(); err != nil {
		t.Errorf("Check() after date change = %v, want nil", err)
	}
	if st := tr.Status(); st.DailyCalls != 0 {
		t.Errorf("DailyCalls after reset = %d, want 0", st.DailyCalls)
	}
}

func TestTracker_UnlimitedDaily(t *testing.T) {
	tr, clock := newTestTracker(75, 0)

	for i := 0; i < 1000; i++ {
		tr.Record()
		clock.advance(time.Second)
	}
	if err := tr.Check(); err != nil {
		t.Errorf("Check() with unlimited daily quota = %v, want nil", err)
	}
}

func TestTracker_Status(t *testing.T) {
	tr, clock := newTestTracker(5, 500)

	tr.Record()
	tr.Record()
	clock.advance(30 * time.Second)

	st := tr.Status()
	if st.MinuteCalls != 2 {
		t.Errorf("MinuteCalls = %d, want 2", st.MinuteCalls)
	}
	if st.DailyCalls != 2 {
		t.Errorf("DailyCalls = %d, want 2", st.DailyCalls)
	}
	if st.LastCall.IsZero() {
		t.Error("LastCall is zero, want recorded timestamp")
	}
}
