package engine

import "time"

// Task is what a scheduled run should do at a given instant.
type Task string

const (
	TaskNone     Task = "NONE"
	TaskBackfill Task = "BACKFILL"
	TaskIntraday Task = "INTRADAY"
	TaskClose    Task = "CLOSE"
)

// backfillWindow is how long after the top of the backfill hour the
// morning backfill may still start. Cron drift must not skip the run.
const backfillWindow = 20 * time.Minute

// closeWindowTail is how long after market close the closing price may
// still be saved.
const closeWindowTail = 30 * time.Minute

// PlanTask decides what a scheduled run should do at the given time.
// All hours are UTC. Weekends do nothing: US markets are closed and
// the history fetched on Friday stays current.
//
// The close window opens an hour before the close and stays open for a
// tail after it, and takes precedence over intraday updates so the
// final price of the day is never missed.
func PlanTask(now time.Time, backfillHour, openHour, closeHour int) Task {
	u := now.UTC()
	switch u.Weekday() {
	case time.Saturday, time.Sunday:
		return TaskNone
	}

	minute := time.Duration(u.Hour())*time.Hour + time.Duration(u.Minute())*time.Minute

	if u.Hour() == backfillHour && minute < time.Duration(backfillHour)*time.Hour+backfillWindow {
		return TaskBackfill
	}

	closeStart := time.Duration(closeHour-1) * time.Hour
	closeEnd := time.Duration(closeHour)*time.Hour + closeWindowTail
	if minute >= closeStart && minute <= closeEnd {
		return TaskClose
	}

	if u.Hour() >= openHour && u.Hour() < closeHour {
		return TaskIntraday
	}

	return TaskNone
}
