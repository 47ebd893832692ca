// Package recurrence expands recurring definitions into occurrence dates.
package recurrence

import (
	"time"

	"finance/internal/calendar"
	"finance/internal/models"
)

// Advance moves t forward by one unit of freq. Month-based frequencies clamp
// to the end of the target month (Jan 31 -> Feb 28).
func Advance(t time.Time, freq models.Frequency) (time.Time, error) {
	switch freq {
	case models.Daily:
		return t.AddDate(0, 0, 1), nil
	case models.Weekly:
		return t.AddDate(0, 0, 7), nil
	case models.Biweekly:
		return t.AddDate(0, 0, 14), nil
	case models.Monthly:
		return calendar.AddMonths(t, 1), nil
	case models.Quarterly:
		return calendar.AddMonths(t, 3), nil
	case models.Yearly:
		return calendar.AddMonths(t, 12), nil
	}
	return time.Time{}, models.ErrUnknownFrequency
}

// Expand lists the occurrences of a schedule whose calendar day falls inside
// [windowStart, windowEnd]. Occurrences before windowStart still count
// against remaining.
func Expand(next time.Time, freq models.Frequency, remaining *int, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if !freq.Valid() {
		return nil, models.ErrUnknownFrequency
	}
	start := calendar.Day(windowStart)
	end := calendar.Day(windowEnd)
	var out []time.Time
	emitted := 0
	current := next
	for {
		if remaining != nil && emitted >= *remaining {
			break
		}
		day := calendar.Day(current)
		if day.After(end) {
			break
		}
		if !day.Before(start) {
			out = append(out, current)
		}
		emitted++
		advanced, err := Advance(current, freq)
		if err != nil {
			return nil, err
		}
		current = advanced
	}
	return out, nil
}
