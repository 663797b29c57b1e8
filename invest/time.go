package invest

import (
	"time"
)

// =============================================================================
// CLOCK - Injectable "now" for the ledger and sweeper
// =============================================================================

// Clock returns the current time. Tests pin it; production uses time.Now.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

// =============================================================================
// CALENDAR DATES
// =============================================================================

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Tomorrow is the exclusive upper bound for the maturity scan on day t.
func Tomorrow(t time.Time) time.Time { return DateOf(t).AddDate(0, 0, 1) }

// AddMonthsClamped adds n months to a calendar date, clamping to the end of
// the target month instead of overflowing (Jan 31 + 1 month = Feb 28/29).
func AddMonthsClamped(d time.Time, n int) time.Time {
	d = DateOf(d)
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := endOfMonth(first.Year(), first.Month()).Day()
	day := d.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func endOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format("2006-01-02") }
