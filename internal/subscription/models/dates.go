package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day wire format used by events, flags and the CLI.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its UTC calendar day. Snapshot grain is the
// UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey renders a day as the YYYYMMDD integer used as dim_date's key.
func DateKey(day time.Time) int {
	y, m, d := day.UTC().Date()
	return y*10000 + int(m)*100 + d
}

// DateFromKey is the inverse of DateKey.
func DateFromKey(key int) time.Time {
	return time.Date(key/10000, time.Month(key/100%100), key%100, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DateRange returns every day from start through end inclusive.
func DateRange(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
