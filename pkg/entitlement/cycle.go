package entitlement

import "time"

// nextPeriod returns the usage window starting at start.
func nextPeriod(start time.Time) (periodStart, periodEnd time.Time) {
	s := start.UTC()
	return s, addMonthsSafe(s, 1)
}

// addMonthsSafe adds months to a time, clipping to the last day of the target
// month (Jan 31 + 1 month = Feb 28/29).
func addMonthsSafe(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	// day=0 of month+1 is the last day of month.
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, target.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
