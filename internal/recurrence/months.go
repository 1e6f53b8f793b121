// Package recurrence turns monthly transaction templates into one stored
// occurrence per elapsed month.
package recurrence

import "time"

// AddMonths moves t by n calendar months, keeping the clock. When the day
// does not exist in the target month it is clamped to the month's last day.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WholeMonthsBetween counts the complete months from from to to. Partial
// months are dropped, and the result is negative when to is before from.
func WholeMonthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return -WholeMonthsBetween(to, from)
	}
	to = to.In(from.Location())
	n := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if AddMonths(from, n).After(to) {
		n--
	}
	return n
}

// RemainingMonths returns the monthly occurrence dates owed after anchor
// up to now. Each date is one month after the previous one, so a clamped
// end-of-month day carries over (Jan 31, Feb 28, Mar 28).
func RemainingMonths(anchor, now time.Time) []time.Time {
	n := WholeMonthsBetween(anchor, now)
	if n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	d := anchor
	for i := 0; i < n; i++ {
		d = AddMonths(d, 1)
		dates = append(dates, d)
	}
	return dates
}
