// Package quota enforces a provider's per-minute and per-day call
// limits before any network call is attempted. Counters are purely
// in-memory and reset on restart; quota windows are at most one day, so
// losing them on restart is acceptable.
package quota

import (
	"fmt"
	"sync"
	"time"
)

// Scope identifies which limit was exceeded.
type Scope string

const (
	ScopeMinute Scope = "minute"
	ScopeDaily  Scope = "daily"
)

// ExceededError reports an exhausted call quota. RetryAfter is the
// earliest duration after which a retry can succeed.
type ExceededError struct {
	Scope      Scope
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded (%d calls), retry after %s", e.Scope, e.Limit, e.RetryAfter)
}

// Tracker counts calls against a {per-minute, per-day} limit pair using
// a sliding minute window and a UTC-date-keyed daily counter.
// A DailyLimit <= 0 means unlimited daily calls (paid tier); the minute
// limit is always finite.
type Tracker struct {
	mu          sync.Mutex
	minuteLimit int
	dailyLimit  int
	minuteCalls []time.Time
	dailyCalls  int
	dailyReset  time.Time // UTC date of the current daily window
	lastCall    time.Time

	now func() time.Time // overridable for tests
}

// New creates a Tracker for the given limits.
func New(perMinute, perDay int) *Tracker {
	t := &Tracker{
		minuteLimit: perMinute,
		dailyLimit:  perDay,
		now:         time.Now,
	}
	t.dailyReset = dateOf(t.now())
	return t
}

// Check fails with *ExceededError if either limit is met or exceeded.
// It must be called before issuing a request.
func (t *Tracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.rollLocked(now)

	if t.dailyLimit > 0 && t.dailyCalls >= t.dailyLimit {
		return &ExceededError{Scope: ScopeDaily, Limit: t.dailyLimit, RetryAfter: 24 * time.Hour}
	}
	if len(t.minuteCalls) >= t.minuteLimit {
		wait := time.Minute - now.Sub(t.minuteCalls[0])
		if wait < 0 {
			wait = 0
		}
		return &ExceededError{Scope: ScopeMinute, Limit: t.minuteLimit, RetryAfter: wait}
	}
	return nil
}

// Record counts one successful call. It must be called immediately
// after a successful request, never before.
func (t *Tracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.rollLocked(now)
	t.minuteCalls = append(t.minuteCalls, now)
	t.dailyCalls++
	t.lastCall = now
}

// Status reports the current counters after pruning expired entries.
type Status struct {
	MinuteCalls int
	MinuteLimit int
	DailyCalls  int
	DailyLimit  int // <= 0 means unlimited
	LastCall    time.Time
}

// Status returns a point-in-time view of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked(t.now().UTC())
	return Status{
		MinuteCalls: len(t.minuteCalls),
		MinuteLimit: t.minuteLimit,
		DailyCalls:  t.dailyCalls,
		DailyLimit:  t.dailyLimit,
		LastCall:    t.lastCall,
	}
}

// rollLocked resets the daily counter on UTC date change and prunes
// minute-window entries older than 60 seconds.
func (t *Tracker) rollLocked(now time.Time) {
	if today := dateOf(now); today.After(t.dailyReset) {
		t.dailyCalls = 0
		t.dailyReset = today
	}

	cutoff := now.Add(-time.Minute)
	keep := t.minuteCalls[:0]
	for _, ts := range t.minuteCalls {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	t.minuteCalls = keep
}

func dateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
