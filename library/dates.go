package library

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used everywhere: borrow dates,
// return dates, CLI input and the persisted stores.
const DateLayout = "02/01/2006"

// ParseDate parses a DD/MM/YYYY date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q (want DD/MM/YYYY): %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysBetween counts whole calendar days from 'from' to 'to'. Both times are
// normalized to midnight UTC first, so wall-clock hours never contribute:
// 23:59 on day N to 00:01 on day N+1 is one day. Negative when 'to' is
// earlier than 'from'.
func DaysBetween(from, to time.Time) int {
	return int(midnight(to).Sub(midnight(from)).Hours() / 24)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
