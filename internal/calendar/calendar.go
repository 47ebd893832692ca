// Package calendar holds the date arithmetic shared by recurrence expansion,
// projections and month-end snapshots. Date-only values are UTC midnights.
package calendar

import "time"

const Layout = "2006-01-02"

// Day returns the calendar date of t as a UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Parse(value string) (time.Time, error) {
	return time.ParseInLocation(Layout, value, time.UTC)
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// AddMonths moves t by n calendar months, clamping the day to the last day of
// the target month. The time of day and location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := DaysIn(target); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func DaysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

// PreviousMonthEnd is the last day of the month before the one containing t.
func PreviousMonthEnd(t time.Time) time.Time {
	return AddDays(StartOfMonth(t), -1)
}

// DaysBetween counts calendar days from a to b (b exclusive); negative if b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Months returns the first day of every month from the month of from up to,
// but excluding, the month of until.
func Months(from, until time.Time) []time.Time {
	var months []time.Time
	last := StartOfMonth(until)
	for m := StartOfMonth(from); m.Before(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}
